package enrich

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/poiesic/refinery/core"
)

// DefaultLanguageThreshold is the confidence below which the language is
// reported as unknown.
const DefaultLanguageThreshold = 0.5

// DetectLanguage returns the ISO 639-1 code of text and the detector's
// confidence. Empty text, unconfident detections and languages without a
// two-letter code report core.LanguageUnknown.
func DetectLanguage(text string, threshold float64) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return core.LanguageUnknown, 0
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" || info.Confidence < threshold {
		return core.LanguageUnknown, info.Confidence
	}
	return code, info.Confidence
}
