package enrich

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/refinery/ai"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
)

// DefaultSimilarityThreshold is the cosine similarity a theme must exceed.
const DefaultSimilarityThreshold = 0.3

// EmbeddingTagger scores the tag text against embedded theme descriptions.
// Theme vectors are computed on first use.
type EmbeddingTagger struct {
	embedder  ai.Embedder
	themes    []Theme
	threshold float64

	mu      sync.Mutex
	vectors [][]float32
}

// NewEmbeddingTagger creates a tagger that keeps themes scoring above
// threshold. A zero threshold selects DefaultSimilarityThreshold.
func NewEmbeddingTagger(embedder ai.Embedder, threshold float64) (*EmbeddingTagger, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &EmbeddingTagger{embedder: embedder, themes: Themes(), threshold: threshold}, nil
}

func (t *EmbeddingTagger) themeVectors(ctx context.Context) ([][]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vectors != nil {
		return t.vectors, nil
	}
	descriptions := make([]string, len(t.themes))
	for i, theme := range t.themes {
		descriptions[i] = theme.Description
	}
	vectors, err := t.embedder.EmbedTexts(ctx, descriptions)
	if err != nil {
		return nil, fmt.Errorf("failed to embed theme descriptions: %w", err)
	}
	if len(vectors) != len(descriptions) {
		return nil, fmt.Errorf("expected %d theme vectors, got %d", len(descriptions), len(vectors))
	}
	t.vectors = vectors
	return vectors, nil
}

// Tag returns up to three theme codes ordered by similarity.
func (t *EmbeddingTagger) Tag(ctx context.Context, rec *core.NormalizedRecord) ([]string, error) {
	text := TagText(rec)
	if text == "" {
		return nil, nil
	}
	themes, err := t.themeVectors(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := t.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed record %s: %w", rec.ID, err)
	}

	var scores []themeScore
	for i, tv := range themes {
		if sim := embedding.CosineSimilarity(vec, tv); sim > t.threshold {
			scores = append(scores, themeScore{code: t.themes[i].Code, order: i, score: sim})
		}
	}
	return rank(scores, MaxTags), nil
}
