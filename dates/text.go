package dates

import (
	"errors"
	"regexp"
)

const monthPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var inText = regexp.MustCompile(`(?i)\b(?:` +
	`\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:\d{2})?)?` +
	`|\d{1,2}[/.]\d{1,2}[/.]\d{4}` +
	`|\d{1,2}(?:st|nd|rd|th)?\s+` + monthPattern + `\.?,?\s+\d{4}` +
	`|` + monthPattern + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
	`)\b`)

// TextResult reports what RewriteText changed.
type TextResult struct {
	Text       string
	Normalized int
	Unresolved []string
}

// RewriteText replaces every recognizable date in text with its ISO-8601
// rendering. Ambiguous dates are left in place and listed in Unresolved.
// Values already in canonical form are not counted.
func RewriteText(text string, order Order) TextResult {
	res := TextResult{}
	res.Text = inText.ReplaceAllStringFunc(text, func(match string) string {
		v, err := Parse(match, order)
		if err != nil {
			if errors.Is(err, ErrAmbiguous) {
				res.Unresolved = append(res.Unresolved, match)
			}
			return match
		}
		out := v.String()
		if out != match {
			res.Normalized++
		}
		return out
	})
	return res
}
