//go:build tesseract

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// Engine rasterizes PDFs with MuPDF and recognizes page images with Tesseract.
type Engine struct {
	cfg config
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	return &Engine{cfg: newConfig(opts)}
}

// Available reports whether the engine is compiled in.
func Available() bool {
	return true
}

// Rasterize renders every page of a PDF payload as PNG.
func (e *Engine) Rasterize(ctx context.Context, payload []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(payload)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	images := make([][]byte, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(n, e.cfg.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", n+1, err)
		}
		images = append(images, buf.Bytes())
	}
	return images, nil
}

// Recognize runs Tesseract on one image. The confidence is the mean of the
// word confidences.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	// gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.cfg.languages...); err != nil {
		return "", 0, err
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", 0, err
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, err
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return text, 0, err
	}
	if len(boxes) == 0 {
		return text, 0, nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return text, sum / float64(len(boxes)), nil
}
