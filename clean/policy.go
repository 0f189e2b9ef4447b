package clean

import (
	"fmt"
	"strings"
)

// MissingAction is what happens to a field without a value.
type MissingAction int

const (
	MissingFlag MissingAction = iota
	MissingDrop
	MissingDefault
)

// MissingPolicy is the per-field missing-value policy.
type MissingPolicy struct {
	Action  MissingAction
	Default string
}

func (p MissingPolicy) String() string {
	switch p.Action {
	case MissingDrop:
		return "drop"
	case MissingDefault:
		return "default:" + p.Default
	default:
		return "flag"
	}
}

// ParsePolicy parses "drop", "flag" or "default:<value>".
func ParsePolicy(s string) (MissingPolicy, error) {
	switch {
	case s == "drop":
		return MissingPolicy{Action: MissingDrop}, nil
	case s == "flag":
		return MissingPolicy{Action: MissingFlag}, nil
	case strings.HasPrefix(s, "default:"):
		return MissingPolicy{Action: MissingDefault, Default: strings.TrimPrefix(s, "default:")}, nil
	}
	return MissingPolicy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}
