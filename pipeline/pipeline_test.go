package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/refinery/ai/mock"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/staging"
	badgerstore "github.com/poiesic/refinery/storage/badger"
	"github.com/poiesic/refinery/storage/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root        string
	store       *badgerstore.Store
	checkpoints *badgerstore.CheckpointRepository
	embedder    *mock.MockEmbedder
	batcher     *embedding.Batcher
	index       *index.Manager
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func stage(t *testing.T, root, source, name, content, retrievedAt string) {
	t.Helper()
	writeFile(t, filepath.Join(root, source, name), content)
	if retrievedAt != "" {
		writeFile(t, filepath.Join(root, source, name+staging.SidecarSuffix),
			`{"retrieved_at": "`+retrievedAt+`"}`)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, checkpoints, backend, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	batcher, err := embedding.NewBatcher(embedder,
		embedding.WithBatchSize(1), embedding.WithRetry(1, 0), embedding.WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(batcher.Release)

	idx, err := index.New(embedder.ModelID(), mock.DefaultDimensions)
	require.NoError(t, err)

	return &fixture{
		root:        t.TempDir(),
		store:       store,
		checkpoints: checkpoints,
		embedder:    embedder,
		batcher:     batcher,
		index:       idx,
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithIngestWorkers(2), WithOCRWorkers(1)}, opts...)
	p, err := New(staging.NewReader(f.root), f.store, f.checkpoints, f.batcher, f.index, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNew_RequiresDependencies(t *testing.T) {
	f := newFixture(t)
	reader := staging.NewReader(f.root)

	_, err := New(nil, f.store, f.checkpoints, f.batcher, f.index)
	assert.ErrorIs(t, err, ErrStagingRequired)
	_, err = New(reader, nil, f.checkpoints, f.batcher, f.index)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = New(reader, f.store, nil, f.batcher, f.index)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = New(reader, f.store, f.checkpoints, nil, f.index)
	assert.ErrorIs(t, err, ErrBatcherRequired)
	_, err = New(reader, f.store, f.checkpoints, f.batcher, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "people.csv", "name,age\nAlice,30\nBob,41\n", "2025-01-10T00:00:00Z")
	stage(t, f.root, "ons", "bulletin.html",
		"<html><head><title>Bulletin</title></head><body><p>Hospital waiting times fell this quarter.</p></body></html>",
		"2025-01-11T00:00:00Z")
	stage(t, f.root, "ons", "note.txt", "Farm output and crop yields rose.", "2025-01-12T00:00:00Z")
	exportDir := t.TempDir()

	p := f.pipeline(t, WithExport(exportDir))
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ons"}, summary.Sources())
	assert.Equal(t, StageStats{Processed: 3}, summary.Stats(StageIngest))
	assert.Equal(t, StageStats{Processed: 4}, summary.Stats(StageClean))
	assert.Equal(t, StageStats{Processed: 4}, summary.Stats(StageEnrich))
	assert.Equal(t, StageStats{Processed: 4}, summary.Stats(StageChunk))
	assert.Equal(t, 4, summary.Stats(StageEmbed).Processed)
	assert.Equal(t, 4, summary.Stats(StageIndex).Processed)
	assert.Equal(t, StageStats{Processed: 1}, summary.Stats(StageExport))
	assert.Empty(t, summary.Failures())
	assert.Equal(t, 4, summary.IndexSize())
	assert.Equal(t, 4, f.index.Len())

	ctx := context.Background()
	n, err := f.store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rec, err := f.store.GetRecord(ctx, "ons", core.RecordID("ons", "people.csv", "", 2))
	require.NoError(t, err)
	assert.Equal(t, "name: Bob\nage: 41", rec.Body)
	assert.Equal(t, 4, rec.WordCount)
	assert.Positive(t, rec.TokenCount)

	doc, err := f.store.GetRecord(ctx, "ons", core.RecordID("ons", "bulletin.html", "", 0))
	require.NoError(t, err)
	assert.Equal(t, "Bulletin", doc.Title)
	assert.Contains(t, doc.Topics, "HEAL")

	cp, err := f.checkpoints.LoadCheckpoint(ctx, "ons")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.Position)
	assert.Equal(t, 3, cp.Completed)

	rows, err := parquet.ReadRecords(parquet.RecordsPath(exportDir, "ons"))
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	chunks, err := parquet.ReadChunks(parquet.ChunksPath(exportDir, "ons"))
	require.NoError(t, err)
	assert.Len(t, chunks, 4)

	var out bytes.Buffer
	_, err = summary.WriteTo(&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ingest")
	assert.Contains(t, out.String(), "index chunks: 4")
}

func TestRun_RedactsPII(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "gov", "contact.txt", "call 555-123-4567 or email a@b.com", "")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	audit := summary.Audit()
	assert.Equal(t, int64(1), audit.EmailsRedacted)
	assert.Equal(t, int64(1), audit.PhonesRedacted)

	rec, err := f.store.GetRecord(context.Background(), "gov", core.RecordID("gov", "contact.txt", "", 0))
	require.NoError(t, err)
	assert.Equal(t, "call xx-xxxx-xxxx or email xxx@xxx.xx", rec.Body)
	assert.True(t, rec.HasFlag(core.FlagPIIRedacted))

	chunks, err := f.store.ChunksForParent(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, "a@b.com")
}

func TestRun_KeepsEarliestDuplicate(t *testing.T) {
	f := newFixture(t)
	body := "Quarterly energy prices for households and businesses."
	stage(t, f.root, "ons", "a.txt", body, "2025-02-01T00:00:00Z")
	stage(t, f.root, "ons", "b.txt", body, "2025-01-01T00:00:00Z")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Audit().DuplicatesDropped)
	assert.Equal(t, StageStats{Processed: 1, Skipped: 1}, summary.Stats(StageClean))

	ctx := context.Background()
	_, err = f.store.GetRecord(ctx, "ons", core.RecordID("ons", "b.txt", "", 0))
	require.NoError(t, err)
	_, err = f.store.GetRecord(ctx, "ons", core.RecordID("ons", "a.txt", "", 0))
	assert.Error(t, err)
	assert.Equal(t, 1, f.index.Len())
}

func TestRun_DisplacesLaterStoredDuplicate(t *testing.T) {
	f := newFixture(t)
	body := "Regional development funds were allocated to rural municipalities."
	stage(t, f.root, "ons", "a.txt", body, "2025-02-01T00:00:00Z")

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	later := core.RecordID("ons", "a.txt", "", 0)

	// An earlier copy staged afterwards takes over the fingerprint.
	stage(t, f.root, "ons", "b.txt", body, "2025-01-01T00:00:00Z")
	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Audit().DuplicatesDropped)

	ctx := context.Background()
	_, err = f.store.GetRecord(ctx, "ons", later)
	assert.Error(t, err)
	_, err = f.store.GetRecord(ctx, "ons", core.RecordID("ons", "b.txt", "", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, f.index.Len())
}

func TestRun_ResumeSkipsDoneFiles(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "a.txt", "Train and bus timetables changed.", "")
	stage(t, f.root, "ons", "b.txt", "School enrolment figures for the year.", "")

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	embedded := f.embedder.TextCount()

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Stats(StageIngest).Processed)
	assert.Equal(t, embedded+1, f.embedder.TextCount(), "only the ping is embedded")
	assert.Equal(t, 2, f.index.Len())
}

func TestRun_FailedEmbeddingLeavesFilePending(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, errors.New("model rejected input")
			}
			out[i] = mock.GenerateDeterministicVector(text, mock.DefaultDimensions)
		}
		return out, nil
	}
	stage(t, f.root, "ons", "a.txt", "Tax receipts rose sharply.", "")
	stage(t, f.root, "ons", "b.txt", "This text is poison for the model.", "")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageStats{Processed: 1, Failed: 1}, summary.Stats(StageEmbed))
	require.Len(t, summary.Failures(), 1)
	assert.Equal(t, StageEmbed, summary.Failures()[0].Stage)
	assert.Equal(t, "b.txt", summary.Failures()[0].Name)

	ctx := context.Background()
	cp, err := f.checkpoints.LoadCheckpoint(ctx, "ons")
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Position)
	done, err := f.checkpoints.IsDone(ctx, "ons", "b.txt")
	require.NoError(t, err)
	assert.False(t, done)
	_, err = f.store.GetRecord(ctx, "ons", core.RecordID("ons", "b.txt", "", 0))
	assert.Error(t, err)
	assert.Equal(t, 1, f.index.Len())
}

func TestRun_UnsupportedFileIsDone(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "blob.bin", "\xff\xfe\x00\x81", "")
	stage(t, f.root, "ons", "note.txt", "Court rulings on police powers.", "")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageStats{Processed: 1, Failed: 1}, summary.Stats(StageIngest))
	require.Len(t, summary.Failures(), 1)
	assert.ErrorIs(t, summary.Failures()[0].Err, core.ErrUnsupportedFormat)

	done, err := f.checkpoints.IsDone(context.Background(), "ons", "blob.bin")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRun_UnreadableFileNamedInSummary(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "a.txt", "Rail timetables for the region.", "")
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "ons", "a.txt"+staging.SidecarSuffix), 0o755))
	stage(t, f.root, "ons", "b.txt", "Court rulings on police powers.", "")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Failures(), 1)
	failure := summary.Failures()[0]
	assert.Equal(t, StageIngest, failure.Stage)
	assert.Equal(t, "ons", failure.Source)
	assert.Equal(t, "a.txt", failure.Name)
	assert.Equal(t, 0, failure.Position)
	assert.Contains(t, failure.String(), "ons/a.txt")
}

func TestRun_EmbeddingUnavailable(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	stage(t, f.root, "ons", "a.txt", "Anything at all.", "")

	summary, err := f.pipeline(t).Run(context.Background())
	require.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Stats(StageIngest).Processed)

	cp, err := f.checkpoints.LoadCheckpoint(context.Background(), "ons")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRun_ModelMismatch(t *testing.T) {
	f := newFixture(t)
	idx, err := index.New("other-model", mock.DefaultDimensions)
	require.NoError(t, err)
	f.index = idx

	_, err = f.pipeline(t).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrModelMismatch)
}

func TestRun_DimensionMismatch(t *testing.T) {
	f := newFixture(t)
	idx, err := index.New(f.embedder.ModelID(), 8)
	require.NoError(t, err)
	f.index = idx

	_, err = f.pipeline(t).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestRun_PersistsIndex(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "a.txt", "Broadband coverage reached most homes.", "")
	path := filepath.Join(t.TempDir(), index.FileName(f.embedder.ModelID()))

	_, err := f.pipeline(t, WithIndexPath(path)).Run(context.Background())
	require.NoError(t, err)

	loaded, err := index.Load(path, f.embedder.ModelID())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestRun_NamedSources(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "a.txt", "Population estimates for the regions.", "")
	stage(t, f.root, "gov", "b.txt", "Budget allocations by department.", "")

	summary, err := f.pipeline(t).Run(context.Background(), "gov")
	require.NoError(t, err)
	assert.Equal(t, []string{"gov"}, summary.Sources())
	assert.Equal(t, 1, f.index.Len())
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t)
	stage(t, f.root, "ons", "a.txt", "Anything.", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(t).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatermark(t *testing.T) {
	w := newWatermark(-1)
	w.mark(1)
	assert.Equal(t, -1, w.pos)
	w.mark(0)
	assert.Equal(t, 1, w.pos)
	w.mark(3)
	w.mark(2)
	assert.Equal(t, 3, w.pos)
	w.mark(0)
	assert.Equal(t, 3, w.pos)
}
