// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/refinery/core"
)

// Enricher computes derived metadata for cleaned records.
// It is safe for concurrent use when its Tagger is.
type Enricher struct {
	languageThreshold float64
	tagger            Tagger
	tokenModel        string
	tokens            *TokenCounter
	logger            *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher) error

// WithLanguageThreshold sets the minimum detection confidence.
// Default is 0.5.
func WithLanguageThreshold(threshold float64) Option {
	return func(e *Enricher) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
		}
		e.languageThreshold = threshold
		return nil
	}
}

// WithTagger replaces the default KeywordTagger.
func WithTagger(t Tagger) Option {
	return func(e *Enricher) error {
		if t != nil {
			e.tagger = t
		}
		return nil
	}
}

// WithTokenModel selects the tokenizer by model name.
// Default is "gpt-4" (cl100k_base).
func WithTokenModel(model string) Option {
	return func(e *Enricher) error {
		e.tokenModel = model
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Enricher.
func New(opts ...Option) (*Enricher, error) {
	e := &Enricher{
		languageThreshold: DefaultLanguageThreshold,
		tokenModel:        DefaultTokenModel,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.tagger == nil {
		e.tagger = NewKeywordTagger()
	}
	tokens, err := NewTokenCounter(e.tokenModel)
	if err != nil {
		return nil, err
	}
	e.tokens = tokens
	e.logger = e.logger.With("stage", "enrich")
	return e, nil
}

// Enrich derives language, topics and counts for rec. Tagging failures are
// recorded as warnings and leave Topics empty.
func (e *Enricher) Enrich(ctx context.Context, rec *core.NormalizedRecord) (*core.EnrichedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &core.EnrichedRecord{NormalizedRecord: *rec}
	out.Warnings = slices.Clone(rec.Warnings)

	out.Language, out.LanguageConfidence = DetectLanguage(rec.Body, e.languageThreshold)

	topics, err := e.tagger.Tag(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("topic tagging failed", "source", rec.Origin.Source, "name", rec.Origin.Name,
			"row", rec.Row, "error", err)
		out.Warn("topic tagging failed: %v", err)
	}
	out.Topics = topics

	out.WordCount = WordCount(rec.Body)
	out.TokenCount = e.tokens.Count(rec.Body)
	return out, nil
}

// WordCount returns the number of whitespace-separated words in body.
func WordCount(body string) int {
	return len(strings.Fields(body))
}
