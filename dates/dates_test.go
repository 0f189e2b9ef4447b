package dates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderForLocale(t *testing.T) {
	tests := []struct {
		locale string
		want   Order
	}{
		{"en-US", OrderMonthFirst},
		{"en_US", OrderMonthFirst},
		{"en-GB", OrderDayFirst},
		{"fr-FR", OrderDayFirst},
		{"de", OrderDayFirst},
		{"en", OrderUnknown},
		{"", OrderUnknown},
		{"und", OrderUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderForLocale(tt.locale))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		order Order
		want  string
	}{
		{"iso date", "2025-01-27", OrderUnknown, "2025-01-27"},
		{"rfc3339 utc", "2025-01-27T10:26:06Z", OrderUnknown, "2025-01-27T10:26:06Z"},
		{"rfc3339 offset", "2025-01-27T10:26:06+01:00", OrderUnknown, "2025-01-27T09:26:06Z"},
		{"iso with space", "2025-01-27 10:26:06", OrderUnknown, "2025-01-27T10:26:06Z"},
		{"day first", "03/04/2025", OrderDayFirst, "2025-04-03"},
		{"month first", "03/04/2025", OrderMonthFirst, "2025-03-04"},
		{"unambiguous day", "27/01/2025", OrderUnknown, "2025-01-27"},
		{"unambiguous month first", "01/27/2025", OrderUnknown, "2025-01-27"},
		{"equal parts", "05/05/2025", OrderUnknown, "2025-05-05"},
		{"dotted", "27.01.2025", OrderUnknown, "2025-01-27"},
		{"numeric with time", "27/01/2025 10:26", OrderUnknown, "2025-01-27T10:26:00Z"},
		{"named day first", "27 January 2025", OrderUnknown, "2025-01-27"},
		{"named month first", "January 27, 2025", OrderUnknown, "2025-01-27"},
		{"ordinal", "January 27th, 2025", OrderUnknown, "2025-01-27"},
		{"abbreviated", "Feb. 3, 2024", OrderUnknown, "2024-02-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Ambiguous(t *testing.T) {
	_, err := Normalize("03/04/2025", OrderUnknown)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestNormalize_Unrecognized(t *testing.T) {
	for _, input := range []string{"", "hello", "12345", "3.14", "10:26", "10:26:06", "31/02/2025"} {
		t.Run(input, func(t *testing.T) {
			_, err := Normalize(input, OrderDayFirst)
			assert.ErrorIs(t, err, ErrUnrecognized)
		})
	}
}

func TestIsTimeOnly(t *testing.T) {
	assert.True(t, IsTimeOnly("10:26"))
	assert.True(t, IsTimeOnly("10:26:06.5"))
	assert.False(t, IsTimeOnly("2025-01-27 10:26"))
	assert.False(t, IsTimeOnly("ten past"))
}

func TestRewriteText(t *testing.T) {
	res := RewriteText("Published 27 January 2025, revised 03/02/2025 and 2025-02-10.", OrderDayFirst)
	assert.Equal(t, "Published 2025-01-27, revised 2025-02-03 and 2025-02-10.", res.Text)
	assert.Equal(t, 2, res.Normalized)
	assert.Empty(t, res.Unresolved)
}

func TestRewriteText_Unresolved(t *testing.T) {
	res := RewriteText("Meeting on 03/04/2025 at noon", OrderUnknown)
	assert.Equal(t, "Meeting on 03/04/2025 at noon", res.Text)
	assert.Zero(t, res.Normalized)
	assert.Equal(t, []string{"03/04/2025"}, res.Unresolved)
}

func TestRewriteText_LeavesPhoneNumbers(t *testing.T) {
	text := "call 555-123-4567"
	res := RewriteText(text, OrderUnknown)
	assert.Equal(t, text, res.Text)
	assert.Zero(t, res.Normalized)
}
