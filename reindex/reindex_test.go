package reindex

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/refinery/ai/mock"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
	"github.com/poiesic/refinery/index"
	badgerstore "github.com/poiesic/refinery/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, parents, perParent int) *badgerstore.Store {
	t.Helper()
	store, _, backend, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	for p := range parents {
		parent := core.RecordID("ons", "file.csv", "", p+1)
		chunks := make([]*core.Chunk, perParent)
		for o := range perParent {
			text := strings.Repeat("x", o+1) + " chunk"
			chunks[o] = &core.Chunk{ID: core.ChunkIDFor(parent, o), ParentID: parent, Ordinal: o, Start: 0, End: len(text), Text: text}
		}
		require.NoError(t, store.ReplaceChunks(ctx, parent, chunks))
	}
	return store
}

func newBatcher(t *testing.T, e *mock.MockEmbedder) *embedding.Batcher {
	t.Helper()
	b, err := embedding.NewBatcher(e, embedding.WithRetry(1, 0), embedding.WithWorkers(2), embedding.WithBatchSize(4))
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestReindexer_Run(t *testing.T) {
	store := setupStore(t, 3, 4)
	embedder := mock.NewMockEmbedder().WithModel("new-model")
	idx, err := index.New("new-model", mock.DefaultDimensions)
	require.NoError(t, err)

	var out bytes.Buffer
	r, err := New(store, newBatcher(t, embedder), WithBatchSize(5), WithProgress(&out, 5))
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 12, Indexed: 12}, stats)
	assert.Equal(t, 12, idx.Len())
	assert.Contains(t, out.String(), "Starting reindex of 12 chunks")
	assert.Contains(t, out.String(), "12/12")

	report, err := Verify(context.Background(), store, idx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 12, report.Stored)
}

func TestReindexer_RunSkipsIndexedChunks(t *testing.T) {
	store := setupStore(t, 2, 2)
	embedder := mock.NewMockEmbedder()
	idx, err := index.New(embedder.ModelID(), mock.DefaultDimensions)
	require.NoError(t, err)
	r, err := New(store, newBatcher(t, embedder))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), idx)
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 4, Skipped: 4}, stats)
}

func TestReindexer_EmbeddingFailuresAreCounted(t *testing.T) {
	store := setupStore(t, 1, 3)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.HasPrefix(text, "xx ") {
				return nil, errors.New("rejected")
			}
			out[i] = mock.GenerateDeterministicVector(text, mock.DefaultDimensions)
		}
		return out, nil
	}
	b, err := embedding.NewBatcher(embedder, embedding.WithRetry(1, 0), embedding.WithBatchSize(1))
	require.NoError(t, err)
	t.Cleanup(b.Release)
	idx, err := index.New(embedder.ModelID(), mock.DefaultDimensions)
	require.NoError(t, err)

	r, err := New(store, b)
	require.NoError(t, err)
	stats, err := r.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 3, Indexed: 2, Failed: 1}, stats)

	report, err := Verify(context.Background(), store, idx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Missing, 1)
	assert.Equal(t, core.ChunkIDFor(core.RecordID("ons", "file.csv", "", 1), 1), report.Missing[0])
}

func TestReindexer_ModelMismatch(t *testing.T) {
	store := setupStore(t, 1, 1)
	idx, err := index.New("old-model", mock.DefaultDimensions)
	require.NoError(t, err)
	r, err := New(store, newBatcher(t, mock.NewMockEmbedder()))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), idx)
	assert.ErrorIs(t, err, core.ErrModelMismatch)
}

func TestReindexer_EmbeddingUnavailable(t *testing.T) {
	store := setupStore(t, 1, 1)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	idx, err := index.New(embedder.ModelID(), mock.DefaultDimensions)
	require.NoError(t, err)
	r, err := New(store, newBatcher(t, embedder))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), idx)
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Equal(t, 0, idx.Len())
}

func TestReindexer_EmptyStore(t *testing.T) {
	store := setupStore(t, 0, 0)
	embedder := mock.NewMockEmbedder()
	idx, err := index.New(embedder.ModelID(), mock.DefaultDimensions)
	require.NoError(t, err)
	var out bytes.Buffer
	r, err := New(store, newBatcher(t, embedder), WithProgress(&out, 1))
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Contains(t, out.String(), "0 chunks")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = New(setupStore(t, 0, 0), nil)
	assert.ErrorIs(t, err, ErrBatcherRequired)
}

func TestVerify_Orphaned(t *testing.T) {
	store := setupStore(t, 1, 1)
	idx, err := index.New("m", 3)
	require.NoError(t, err)
	parent := core.RecordID("ons", "file.csv", "", 1)
	require.NoError(t, idx.Add(core.ChunkIDFor(parent, 0), []float32{1, 0, 0}))
	stray := core.ChunkIDFor(core.IDFromContent("gone"), 0)
	require.NoError(t, idx.Add(stray, []float32{0, 1, 0}))

	report, err := Verify(context.Background(), store, idx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 2, report.Indexed)
	assert.Empty(t, report.Missing)
	assert.Equal(t, []core.ChunkID{stray}, report.Orphaned)
}

func TestChunkIterator_Batches(t *testing.T) {
	store := setupStore(t, 2, 3)
	var sizes []int
	err := NewChunkIterator(store, 4).ForEach(context.Background(), func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, sizes)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	store := setupStore(t, 2, 3)
	sentinel := errors.New("stop")
	calls := 0
	err := NewChunkIterator(store, 2).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewChunkIterator(setupStore(t, 1, 1), 2).ForEach(ctx, func([]*core.Chunk) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)
	tracker.Increment(10)
	assert.Empty(t, buf.String(), "no output before Start")

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(200)
	time.Sleep(time.Millisecond)
	assert.Positive(t, tracker.Elapsed())
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "25/100")
	assert.Contains(t, output, "100/100")
	assert.Contains(t, output, "100.0%")
	assert.True(t, strings.HasSuffix(output, "\n"))
}
