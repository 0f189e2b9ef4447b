//go:build !tesseract

package tesseract

import "context"

// Engine is a stub for builds without the tesseract tag.
type Engine struct {
	cfg config
}

// New creates a stub Engine.
func New(opts ...Option) *Engine {
	return &Engine{cfg: newConfig(opts)}
}

// Available reports whether the engine is compiled in.
func Available() bool {
	return false
}

// Rasterize returns ErrUnavailable.
func (e *Engine) Rasterize(ctx context.Context, payload []byte) ([][]byte, error) {
	return nil, ErrUnavailable
}

// Recognize returns ErrUnavailable.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	return "", 0, ErrUnavailable
}
