package enrich

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultTokenModel selects the encoding used for token counts.
	DefaultTokenModel = "gpt-4"

	fallbackEncoding = "cl100k_base"
)

var loaderOnce sync.Once

// TokenCounter counts model tokens with a tiktoken encoding.
type TokenCounter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter loads the encoding for model, falling back to cl100k_base
// for models tiktoken does not know. BPE ranks are embedded, so no network
// access is needed.
func NewTokenCounter(model string) (*TokenCounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	if model == "" {
		model = DefaultTokenModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodingUnavailable, err)
		}
	}
	return &TokenCounter{model: model, encoding: enc}, nil
}

// Model returns the model name the counter was built for.
func (c *TokenCounter) Model() string {
	return c.model
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}
