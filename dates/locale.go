package dates

import "strings"

// Order is the position of day and month in numeric dates.
type Order int

const (
	// OrderUnknown means the locale does not decide the order.
	OrderUnknown Order = iota
	OrderDayFirst
	OrderMonthFirst
)

func (o Order) String() string {
	switch o {
	case OrderDayFirst:
		return "day-first"
	case OrderMonthFirst:
		return "month-first"
	default:
		return "unknown"
	}
}

// Regions writing numeric dates month first.
var monthFirstRegions = map[string]bool{
	"US": true,
	"PH": true,
	"FM": true,
	"MH": true,
	"PW": true,
}

// OrderForLocale returns the numeric date order of a BCP 47 tag. Empty and
// "und" tags are unknown; a bare language defaults to day first except for
// English, whose region decides.
func OrderForLocale(locale string) Order {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" || strings.EqualFold(locale, "und") {
		return OrderUnknown
	}

	parts := strings.Split(locale, "-")
	lang := strings.ToLower(parts[0])
	region := ""
	for _, p := range parts[1:] {
		if len(p) == 2 {
			region = strings.ToUpper(p)
			break
		}
	}

	if region == "" {
		if lang == "en" {
			return OrderUnknown
		}
		return OrderDayFirst
	}
	if monthFirstRegions[region] {
		return OrderMonthFirst
	}
	return OrderDayFirst
}
