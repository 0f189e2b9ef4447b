package tesseract

import "errors"

// ErrUnavailable is returned by the stub build.
var ErrUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

const (
	DefaultLanguage = "eng"
	DefaultDPI      = 200.0
)

type config struct {
	languages []string
	dpi       float64
}

// Option configures an Engine.
type Option func(*config)

// WithLanguages sets the Tesseract language packs, for example "eng", "cym".
func WithLanguages(langs ...string) Option {
	return func(c *config) {
		if len(langs) > 0 {
			c.languages = langs
		}
	}
}

// WithDPI sets the rasterization resolution.
func WithDPI(dpi float64) Option {
	return func(c *config) {
		if dpi > 0 {
			c.dpi = dpi
		}
	}
}

func newConfig(opts []Option) config {
	c := config{languages: []string{DefaultLanguage}, dpi: DefaultDPI}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
