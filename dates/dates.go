package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339
)

var (
	numericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	timeOnly    = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	allDigits   = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	monthName   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`)
	ordinal     = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	monthDot    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.`)
)

var isoLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02",
}

var namedLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
}

// Value is a parsed date.
type Value struct {
	Time    time.Time
	HasTime bool
}

// String renders v as ISO-8601.
func (v Value) String() string {
	if v.HasTime {
		return v.Time.UTC().Format(DateTimeLayout)
	}
	return v.Time.Format(DateLayout)
}

// IsTimeOnly reports whether s is a bare time of day such as "10:26".
func IsTimeOnly(s string) bool {
	return timeOnly.MatchString(strings.TrimSpace(s))
}

// Parse parses s as a date. Numeric day/month/year values are resolved with
// order; pass OrderUnknown when the locale is not known.
func Parse(s string, order Order) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" || allDigits.MatchString(s) || IsTimeOnly(s) {
		return Value{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		return parseNumeric(s, m, order)
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Value{Time: t, HasTime: strings.Contains(layout, "15")}, nil
		}
	}

	if !monthName.MatchString(s) {
		return Value{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return parseNamed(s)
}

// Normalize parses s and renders it as ISO-8601.
func Normalize(s string, order Order) (string, error) {
	v, err := Parse(s, order)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func parseNumeric(s string, m []string, order Order) (Value, error) {
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	var day, month int
	switch {
	case a > 12 && b <= 12:
		day, month = a, b
	case b > 12 && a <= 12:
		day, month = b, a
	case a == b:
		day, month = a, b
	case order == OrderDayFirst:
		day, month = a, b
	case order == OrderMonthFirst:
		day, month = b, a
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrAmbiguous, s)
	}

	var hour, minute, sec int
	hasTime := m[4] != ""
	if hasTime {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			sec, _ = strconv.Atoi(m[6])
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes out-of-range values; reject them instead
	if t.Day() != day || int(t.Month()) != month || t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return Value{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return Value{Time: t, HasTime: hasTime}, nil
}

func parseNamed(s string) (v Value, err error) {
	clean := ordinal.ReplaceAllString(s, "$1")
	clean = monthDot.ReplaceAllString(clean, "$1")

	for _, layout := range namedLayouts {
		if t, err := time.Parse(layout, clean); err == nil {
			return Value{Time: t}, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			v, err = Value{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
		}
	}()
	t, perr := dateparse.ParseIn(clean, time.UTC)
	if perr != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return Value{Time: t, HasTime: strings.Contains(clean, ":")}, nil
}
