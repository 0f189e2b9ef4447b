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


package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/refinery/core"
)

// PageBreak separates page texts of a paginated document.
const PageBreak = "\n\f\n"

const (
	DefaultConfidenceThreshold = 60.0
	DefaultMinTextChars        = 200
	DefaultOCRTimeout          = 2 * time.Minute
	DefaultMaxAttempts         = 2
	DefaultBaseDelay           = time.Second
)

// Rasterizer renders the pages of a paginated document as encoded images.
type Rasterizer interface {
	Rasterize(ctx context.Context, payload []byte) ([][]byte, error)
}

// Recognizer performs optical character recognition on one page image.
// Confidence is the mean word confidence on a 0-100 scale.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// Extractor dispatches document payloads to an extraction strategy.
type Extractor struct {
	rasterizer          Rasterizer
	recognizer          Recognizer
	confidenceThreshold float64
	minTextChars        int
	ocrTimeout          time.Duration
	maxAttempts         int
	baseDelay           time.Duration
	logger              *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR enables the optical strategy.
func WithOCR(rasterizer Rasterizer, recognizer Recognizer) Option {
	return func(e *Extractor) {
		e.rasterizer = rasterizer
		e.recognizer = recognizer
	}
}

// WithConfidenceThreshold sets the mean confidence below which a page is
// flagged as low confidence.
func WithConfidenceThreshold(threshold float64) Option {
	return func(e *Extractor) {
		e.confidenceThreshold = threshold
	}
}

// WithMinTextChars sets the text layer length below which OCR is attempted.
func WithMinTextChars(n int) Option {
	return func(e *Extractor) {
		e.minTextChars = n
	}
}

// WithOCRTimeout sets the deadline of each recognition call.
func WithOCRTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		e.ocrTimeout = timeout
	}
}

// WithRetry sets the attempts per page and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Extractor) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		e.baseDelay = baseDelay
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
	}
}

// New creates an Extractor. Without WithOCR only text layers and markup are
// read.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		confidenceThreshold: DefaultConfidenceThreshold,
		minTextChars:        DefaultMinTextChars,
		ocrTimeout:          DefaultOCRTimeout,
		maxAttempts:         DefaultMaxAttempts,
		baseDelay:           DefaultBaseDelay,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("stage", "extract")
	return e
}

// HasOCR reports whether the optical strategy is available.
func (e *Extractor) HasOCR() bool {
	return e.rasterizer != nil && e.recognizer != nil
}

// Extract produces the record of a Markup, ScannedDocument or StructuredText
// payload.
func (e *Extractor) Extract(ctx context.Context, raw *core.RawRecord, kind core.SourceKind) (*core.NormalizedRecord, error) {
	rec := core.NewNormalizedRecord(raw, kind, "", 0)

	var err error
	switch kind {
	case core.SourceKindMarkup:
		err = e.extractMarkup(raw.Payload, rec)
	case core.SourceKindScannedDocument:
		err = e.extractScanned(ctx, raw, rec)
	case core.SourceKindStructuredText:
		err = e.extractStructured(raw, rec)
	default:
		return nil, fmt.Errorf("%w: %s is not a document kind", core.ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(rec.Body) == "" {
		return nil, fmt.Errorf("%w: %s yielded no text", core.ErrExtractionFailed, raw.Ref())
	}
	e.logger.Debug("extracted document", "source", raw.Source, "name", raw.Name,
		"kind", kind, "chars", utf8.RuneCountInString(rec.Body))
	return rec, nil
}

func (e *Extractor) extractMarkup(payload []byte, rec *core.NormalizedRecord) error {
	doc, err := ExtractHTML(strings.NewReader(decodeText(payload)))
	if err != nil {
		return err
	}
	applyDocument(rec, doc)
	return nil
}

// applyDocument fills rec from doc, keeping metadata the source already set.
func applyDocument(rec *core.NormalizedRecord, doc *Document) {
	if rec.Title == "" {
		rec.Title = doc.Title
	}
	if rec.Description == "" {
		rec.Description = doc.Description
	}
	rec.SetBody(doc.Text)
}
