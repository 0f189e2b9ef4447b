// Package dates recognizes calendar dates in source data and renders them as
// ISO-8601.
//
// Date-only values render as YYYY-MM-DD and values with a time of day render
// as RFC 3339 in UTC. Numeric day/month/year forms are resolved by the
// publishing locale; when the locale is unknown and both leading parts could
// be a month the value is reported as ErrAmbiguous and left for the caller to
// flag.
package dates
