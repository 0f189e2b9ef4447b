package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder().WithDimensions(16)

	a, err := m.EmbedText(context.Background(), "same")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "same")
	require.NoError(t, err)
	c, err := m.EmbedText(context.Background(), "different")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	assert.Equal(t, 16, m.Dimensions())
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	vec := GenerateDeterministicVector("norm me", 32)
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockEmbedder_Counts(t *testing.T) {
	m := NewMockEmbedder()
	_, _ = m.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	_, _ = m.EmbedText(context.Background(), "d")

	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, 4, m.TextCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Zero(t, m.TextCount())
}

func TestMockEmbedder_InjectedFailure(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}

	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestMockEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockEmbedder().EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	require.NotNil(t, p.Embedder())
	assert.Equal(t, "mock-embedder", p.Embedder().ModelID())
	assert.False(t, p.Closed())
	assert.NoError(t, p.Close())
	assert.True(t, p.Closed())

	custom := NewMockEmbedder().WithModel("custom")
	p = NewMockProviderWithEmbedder(custom)
	assert.Same(t, custom, p.MockEmbedder())
}
