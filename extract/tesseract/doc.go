// Package tesseract provides the optical strategy of package extract:
// MuPDF rasterization through go-fitz and Tesseract recognition through
// gosseract.
//
// Both libraries need their C toolchains, so the implementation is compiled
// only with the tesseract build tag:
//
//	go build -tags tesseract ./...
//
// Without the tag Engine is a stub whose methods return ErrUnavailable and
// Available reports false.
package tesseract
