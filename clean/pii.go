package clean

import (
	"fmt"
	"regexp"
)

// Category is a kind of personally identifying information.
type Category string

const (
	CategoryEmail Category = "email"
	CategoryPhone Category = "phone"
)

// Placeholders replacing each category.
const (
	EmailPlaceholder = "xxx@xxx.xx"
	PhonePlaceholder = "xx-xxxx-xxxx"
)

// Pattern is one named detection rule.
type Pattern struct {
	Category Category
	Name     string
	Expr     *regexp.Regexp
}

// DefaultPatterns detect email addresses and UK and North American phone
// numbers. Detection is pattern based and not exhaustive.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{CategoryEmail, "email", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
		{CategoryPhone, "nanp", regexp.MustCompile(`(?:\+1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`)},
		{CategoryPhone, "uk_mobile", regexp.MustCompile(`(?:\+44\s?7\d{3}|\b07\d{3})\s?\d{3}\s?\d{3}\b`)},
		{CategoryPhone, "uk_landline", regexp.MustCompile(`(?:\+44\s?(?:\(0\)\s?)?|\b0)[1-9]\d{1,3}[\s-]?\d{3,4}[\s-]?\d{3,4}\b`)},
	}
}

// Redactor replaces PII matches with their category placeholder.
type Redactor struct {
	patterns []Pattern
}

// NewRedactor creates a Redactor over the default patterns plus extra ones.
// Extra patterns are keyed by category and given as regular expressions.
func NewRedactor(extra map[string][]string) (*Redactor, error) {
	patterns := DefaultPatterns()
	for cat, exprs := range extra {
		category := Category(cat)
		if category != CategoryEmail && category != CategoryPhone {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidPattern, cat)
		}
		for i, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPattern, cat, err)
			}
			patterns = append(patterns, Pattern{Category: category, Name: fmt.Sprintf("%s_custom_%d", cat, i+1), Expr: re})
		}
	}
	// Emails first so their digits are never read as phone numbers
	sorted := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Category == CategoryEmail {
			sorted = append(sorted, p)
		}
	}
	for _, p := range patterns {
		if p.Category != CategoryEmail {
			sorted = append(sorted, p)
		}
	}
	return &Redactor{patterns: sorted}, nil
}

// Patterns returns the rules in application order.
func (r *Redactor) Patterns() []Pattern {
	return r.patterns
}

// RedactionCounts reports replacements per category.
type RedactionCounts struct {
	Emails int
	Phones int
}

func (c RedactionCounts) Total() int {
	return c.Emails + c.Phones
}

// Redact replaces every match in text. Existing placeholders are left alone
// and not counted.
func (r *Redactor) Redact(text string) (string, RedactionCounts) {
	var counts RedactionCounts
	for _, p := range r.patterns {
		placeholder := placeholderFor(p.Category)
		text = p.Expr.ReplaceAllStringFunc(text, func(match string) string {
			if match == placeholder {
				return match
			}
			switch p.Category {
			case CategoryEmail:
				counts.Emails++
			case CategoryPhone:
				counts.Phones++
			}
			return placeholder
		})
	}
	return text, counts
}

func placeholderFor(c Category) string {
	if c == CategoryEmail {
		return EmailPlaceholder
	}
	return PhonePlaceholder
}
