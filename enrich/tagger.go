package enrich

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/poiesic/refinery/core"
)

// bodyPrefix is how much of a body contributes to topic tagging.
const bodyPrefix = 1000

// Tagger assigns topic codes to a record.
type Tagger interface {
	Tag(ctx context.Context, rec *core.NormalizedRecord) ([]string, error)
}

// TagText is the text a tagger reads: title, description, keywords and the
// first 1000 characters of the body.
func TagText(rec *core.NormalizedRecord) string {
	parts := make([]string, 0, 4)
	if rec.Title != "" {
		parts = append(parts, rec.Title)
	}
	if rec.Description != "" {
		parts = append(parts, rec.Description)
	}
	if len(rec.Keywords) > 0 {
		parts = append(parts, strings.Join(rec.Keywords, " "))
	}
	if rec.Body != "" {
		parts = append(parts, truncateRunes(rec.Body, bodyPrefix))
	}
	return strings.Join(parts, " ")
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// KeywordTagger matches theme keyword lists against the tag text. Themes are
// ranked by hit count, ties in vocabulary order.
type KeywordTagger struct {
	themes  []Theme
	maxTags int
}

// NewKeywordTagger creates a tagger over the given themes, or the full
// vocabulary when none are given.
func NewKeywordTagger(themes ...Theme) *KeywordTagger {
	if len(themes) == 0 {
		themes = Themes()
	}
	return &KeywordTagger{themes: themes, maxTags: MaxTags}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type themeScore struct {
	code  string
	order int
	score float64
}

func rank(scores []themeScore, limit int) []string {
	slices.SortStableFunc(scores, func(a, b themeScore) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.order - b.order
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	tags := make([]string, len(scores))
	for i, s := range scores {
		tags[i] = s.code
	}
	return tags
}

// Tag returns up to three theme codes. Records with no hits get none.
func (t *KeywordTagger) Tag(_ context.Context, rec *core.NormalizedRecord) ([]string, error) {
	tokens := tokenize(TagText(rec))
	if len(tokens) == 0 {
		return nil, nil
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	joined := " " + strings.Join(tokens, " ") + " "

	var scores []themeScore
	for i, theme := range t.themes {
		hits := 0
		for _, kw := range theme.Keywords {
			if strings.Contains(kw, " ") {
				hits += strings.Count(joined, " "+kw+" ")
				continue
			}
			hits += counts[kw]
		}
		if hits > 0 {
			scores = append(scores, themeScore{code: theme.Code, order: i, score: float64(hits)})
		}
	}
	return rank(scores, t.maxTags), nil
}
