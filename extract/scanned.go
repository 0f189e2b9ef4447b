package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/retry"
)

var imageExts = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"tif":  true,
	"tiff": true,
	"bmp":  true,
	"gif":  true,
}

// Page is the recognized text of one page.
type Page struct {
	Number     int // 1-based
	Text       string
	Confidence float64
}

func (e *Extractor) extractScanned(ctx context.Context, raw *core.RawRecord, rec *core.NormalizedRecord) error {
	if imageExts[raw.Ext()] {
		if !e.HasOCR() {
			return fmt.Errorf("%w: %s is an image and OCR is not available", core.ErrExtractionFailed, raw.Ref())
		}
		pages, err := e.recognizePages(ctx, [][]byte{raw.Payload})
		if err != nil {
			return err
		}
		e.applyPages(rec, pages)
		return nil
	}

	layer, layerErr := TextLayer(raw.Payload)
	layerText := joinPages(layer)
	if layerErr != nil {
		e.logger.Debug("no pdf text layer", "source", raw.Source, "name", raw.Name, "err", layerErr)
	}

	if utf8.RuneCountInString(strings.TrimSpace(layerText)) >= e.minTextChars || !e.HasOCR() {
		if layerErr != nil && layerText == "" {
			return fmt.Errorf("%w: %w", core.ErrCorruptInput, layerErr)
		}
		rec.SetBody(layerText)
		return nil
	}

	images, err := e.rasterize(ctx, raw.Payload)
	if err != nil {
		if layerText != "" {
			e.logger.Warn("rasterization failed, keeping text layer", "source", raw.Source, "name", raw.Name, "err", err)
			rec.SetBody(layerText)
			return nil
		}
		return err
	}
	pages, err := e.recognizePages(ctx, images)
	if err != nil {
		return err
	}

	// The longer of the two readings wins
	if utf8.RuneCountInString(joinPages(pageTexts(pages))) > utf8.RuneCountInString(layerText) {
		e.applyPages(rec, pages)
		return nil
	}
	rec.SetBody(layerText)
	return nil
}

func (e *Extractor) rasterize(ctx context.Context, payload []byte) ([][]byte, error) {
	var images [][]byte
	err := retry.WithBackoff(ctx, func() error {
		return retry.WithTimeout(ctx, e.ocrTimeout, func(callCtx context.Context) error {
			var err error
			images, err = e.rasterizer.Rasterize(callCtx, payload)
			return err
		})
	}, e.maxAttempts, e.baseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: rasterize: %w", core.ErrExtractionFailed, err)
	}
	return images, nil
}

// recognizePages runs OCR on every page. A page that keeps failing is kept
// empty so page numbering is preserved.
func (e *Extractor) recognizePages(ctx context.Context, images [][]byte) ([]Page, error) {
	pages := make([]Page, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages[i].Number = i + 1
		err := retry.WithBackoff(ctx, func() error {
			return retry.WithTimeout(ctx, e.ocrTimeout, func(callCtx context.Context) error {
				text, conf, err := e.recognizer.Recognize(callCtx, img)
				if err != nil {
					return err
				}
				pages[i].Text = CollapseWhitespace(text)
				pages[i].Confidence = conf
				return nil
			})
		}, e.maxAttempts, e.baseDelay)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("page recognition failed", "page", i+1, "err", err)
			pages[i].Confidence = -1
		}
	}
	return pages, nil
}

func (e *Extractor) applyPages(rec *core.NormalizedRecord, pages []Page) {
	var low []int
	for _, p := range pages {
		switch {
		case p.Confidence < 0:
			rec.Warn("page %d: recognition failed", p.Number)
		case p.Text != "" && p.Confidence < e.confidenceThreshold:
			low = append(low, p.Number)
			rec.Warn("page %d: low OCR confidence %.1f", p.Number, p.Confidence)
		}
	}
	if len(low) > 0 {
		rec.SetFlag(core.FlagLowConfidenceOCR, true)
	}
	rec.SetBody(joinPages(pageTexts(pages)))
}

func pageTexts(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Text
	}
	return out
}

// joinPages joins page texts with PageBreak. An all-empty document joins to
// the empty string.
func joinPages(texts []string) string {
	empty := true
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			empty = false
			break
		}
	}
	if empty {
		return ""
	}
	return strings.Join(texts, PageBreak)
}

// TextLayer reads the embedded text of each page of a PDF.
func TextLayer(payload []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, CollapseWhitespace(text))
	}
	return pages, nil
}
