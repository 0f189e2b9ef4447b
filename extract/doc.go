// Package extract turns document payloads into single-body records.
//
// Markup is read with a structural strategy: the HTML token stream is walked
// in document order, navigation and scripting elements are skipped and block
// elements become paragraph boundaries. Paginated documents first try their
// PDF text layer and fall back to an optical strategy (a Rasterizer and a
// Recognizer) when the layer is too thin. Recognized pages are joined with
// PageBreak and pages below the confidence threshold are flagged, not
// dropped.
//
// A payload with no usable text fails with core.ErrExtractionFailed.
package extract
