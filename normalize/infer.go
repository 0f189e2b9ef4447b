package normalize

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/dates"
)

const (
	dateShare    = 0.5
	numericShare = 0.9
)

var numericNoise = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "£", "", "$", "", "€", "", "%", "")

// ParseNumber parses a numeric cell after removing thousands separators,
// whitespace, currency symbols and percent signs.
func ParseNumber(s string) (float64, bool) {
	cleaned := numericNoise.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}

func isDateLike(s string, order dates.Order) bool {
	_, err := dates.Parse(s, order)
	return err == nil || errors.Is(err, dates.ErrAmbiguous)
}

// InferType infers a column type from its non-null cell values.
func InferType(values []string, order dates.Order) core.FieldType {
	if len(values) == 0 {
		return core.FieldTypeString
	}

	bools, datesSeen, numbers, timeOnly := 0, 0, 0, 0
	whole := true
	for _, v := range values {
		if _, ok := parseBool(v); ok {
			bools++
		}
		if dates.IsTimeOnly(v) {
			timeOnly++
		}
		if isDateLike(v, order) {
			datesSeen++
		}
		if f, ok := ParseNumber(v); ok {
			numbers++
			if f != math.Trunc(f) || strings.ContainsAny(numericNoise.Replace(v), ".eE") {
				whole = false
			}
		}
	}

	n := float64(len(values))
	switch {
	case bools == len(values):
		return core.FieldTypeBoolean
	case float64(datesSeen) >= dateShare*n && float64(timeOnly) < dateShare*n:
		return core.FieldTypeDate
	case float64(numbers) >= numericShare*n:
		if whole {
			return core.FieldTypeInteger
		}
		return core.FieldTypeFloat
	}
	return core.FieldTypeString
}

// Coerce renders s in the canonical form of typ. Dates keep their source
// rendering for the cleaner to normalize; the cell only has to be date-like.
func Coerce(s string, typ core.FieldType, order dates.Order) (string, bool) {
	switch typ {
	case core.FieldTypeInteger:
		f, ok := ParseNumber(s)
		if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return "", false
		}
		return strconv.FormatInt(int64(f), 10), true
	case core.FieldTypeFloat:
		f, ok := ParseNumber(s)
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case core.FieldTypeBoolean:
		b, ok := parseBool(s)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(b), true
	case core.FieldTypeDate:
		if !isDateLike(s, order) {
			return "", false
		}
		return s, true
	}
	return s, true
}
