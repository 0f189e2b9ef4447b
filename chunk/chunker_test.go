package chunk

import (
	"strings"
	"testing"

	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidParams(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}

	_, err := New(100, 10, WithTolerance(100))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestSplit_HardCutScenario(t *testing.T) {
	c, err := New(800, 100)
	require.NoError(t, err)

	parent := core.IDFromContent("doc")
	body := strings.Repeat("a", 1000)

	chunks := c.Split(parent, body)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 800, chunks[0].End)
	assert.Equal(t, 700, chunks[1].Start)
	assert.Equal(t, 1000, chunks[1].End)

	assert.Equal(t, core.ChunkIDFor(parent, 0), chunks[0].ID)
	assert.Equal(t, core.ChunkIDFor(parent, 1), chunks[1].ID)
	assert.Equal(t, body[:800], chunks[0].Text)
	assert.Equal(t, body[700:], chunks[1].Text)
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(120, 20)
	require.NoError(t, err)

	parent := core.IDFromContent("doc")
	body := strings.Repeat("The council published its budget. Spending rose by four percent.\n\n", 20)

	first := c.Split(parent, body)
	second := c.Split(parent, body)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, *first[i], *second[i])
	}
}

func TestSplit_ShortBody(t *testing.T) {
	c, err := New(800, 100)
	require.NoError(t, err)

	body := "A short notice about road works."
	chunks := c.Split(core.IDFromContent("x"), body)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune(body)), chunks[0].End)
	assert.Equal(t, body, chunks[0].Text)
}

func TestSplit_ExactlySize(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	chunks := c.Split(core.IDFromContent("x"), "0123456789")
	require.Len(t, chunks, 1)
	assert.Equal(t, 10, chunks[0].End)
}

func TestSplit_EmptyBody(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Split(core.IDFromContent("x"), ""))
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	c, err := New(50, 5, WithTolerance(20))
	require.NoError(t, err)

	// Paragraph break after 40 characters, inside the tolerance window.
	body := strings.Repeat("x", 38) + "\n\n" + strings.Repeat("y", 40)
	chunks := c.Split(core.IDFromContent("p"), body)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 40, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))
	assert.Equal(t, 35, chunks[1].Start)
}

func TestSplit_FallsBackToWordBoundary(t *testing.T) {
	c, err := New(18, 2, WithTolerance(6))
	require.NoError(t, err)

	body := "aaaa bbbb cccc dddd eeee ffff"
	chunks := c.Split(core.IDFromContent("w"), body)
	require.Len(t, chunks, 2)
	// The window [0,18) ends inside "dddd"; the cut moves back past the space.
	assert.Equal(t, 15, chunks[0].End)
	assert.Equal(t, "aaaa bbbb cccc ", chunks[0].Text)
}

func TestSplit_Invariants(t *testing.T) {
	c, err := New(64, 16)
	require.NoError(t, err)

	parent := core.IDFromContent("inv")
	body := strings.Repeat("Résumé of the régional council meeting. ", 30)
	runes := []rune(body)

	chunks := c.Split(parent, body)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
	for i, ch := range chunks {
		require.NoError(t, core.ValidateChunk(ch, len(runes)))
		assert.Equal(t, i, ch.Ordinal)
		assert.LessOrEqual(t, ch.End-ch.Start, 64)
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		if i > 0 {
			prev := chunks[i-1]
			assert.Equal(t, prev.End-16, ch.Start, "windows overlap by exactly the overlap")
			assert.Greater(t, ch.Start, prev.Start)
		}
	}
}
