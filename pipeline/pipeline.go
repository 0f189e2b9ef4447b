// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/refinery/chunk"
	"github.com/poiesic/refinery/clean"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
	"github.com/poiesic/refinery/enrich"
	"github.com/poiesic/refinery/extract"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/metrics"
	"github.com/poiesic/refinery/normalize"
	"github.com/poiesic/refinery/staging"
	"github.com/poiesic/refinery/storage"
	"github.com/poiesic/refinery/storage/parquet"
)

// DefaultBatchFiles is the number of staged files processed per batch.
const DefaultBatchFiles = 16

// Store is the persistence the pipeline writes records and chunks to.
type Store interface {
	storage.RecordRepository
	storage.ChunkRepository
}

// Pipeline orchestrates the refinement of staged sources.
type Pipeline struct {
	staging     *staging.Reader
	store       Store
	checkpoints storage.CheckpointRepository
	batcher     *embedding.Batcher
	index       *index.Manager
	indexPath   string

	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	cleanOpts  []clean.Option
	enricher   *enrich.Enricher
	chunker    *chunk.Chunker
	exportDir  string
	exporter   *parquet.Exporter
	metrics    *metrics.Metrics

	ingestPool *ants.Pool
	ocrPool    *ants.Pool
	batchFiles int
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

func replacePool(old *ants.Pool, size int) (*ants.Pool, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	if old != nil {
		old.Release()
	}
	return pool, nil
}

// WithIngestWorkers sets the pool size for ingest, clean and enrich work.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithIngestWorkers(size int) Option {
	return func(p *Pipeline) error {
		pool, err := replacePool(p.ingestPool, size)
		if err != nil {
			return err
		}
		p.ingestPool = pool
		return nil
	}
}

// WithOCRWorkers sets the pool size for scanned documents.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithOCRWorkers(size int) Option {
	return func(p *Pipeline) error {
		pool, err := replacePool(p.ocrPool, size)
		if err != nil {
			return err
		}
		p.ocrPool = pool
		return nil
	}
}

// WithBatchFiles sets how many staged files form one batch.
func WithBatchFiles(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.batchFiles = n
		return nil
	}
}

// WithNormalizer replaces the default FormatNormalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) error {
		if n != nil {
			p.normalizer = n
		}
		return nil
	}
}

// WithExtractor replaces the default TextExtractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(p *Pipeline) error {
		if e != nil {
			p.extractor = e
		}
		return nil
	}
}

// WithCleanOptions configures the Cleaner built for each run.
func WithCleanOptions(opts ...clean.Option) Option {
	return func(p *Pipeline) error {
		p.cleanOpts = append(p.cleanOpts, opts...)
		return nil
	}
}

// WithEnricher replaces the default Enricher.
func WithEnricher(e *enrich.Enricher) Option {
	return func(p *Pipeline) error {
		if e != nil {
			p.enricher = e
		}
		return nil
	}
}

// WithChunker replaces the default 800/100 Chunker.
func WithChunker(c *chunk.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithIndexPath persists the index to path after every batch.
func WithIndexPath(path string) Option {
	return func(p *Pipeline) error {
		p.indexPath = path
		return nil
	}
}

// WithExport writes per-source parquet tables under dir after each source.
func WithExport(dir string) Option {
	return func(p *Pipeline) error {
		p.exportDir = dir
		return nil
	}
}

// WithMetrics mirrors the run summary to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Pipeline. The batcher and index stay owned by the caller.
func New(
	reader *staging.Reader,
	store Store,
	checkpoints storage.CheckpointRepository,
	batcher *embedding.Batcher,
	idx *index.Manager,
	opts ...Option,
) (*Pipeline, error) {
	if reader == nil {
		return nil, ErrStagingRequired
	}
	if store == nil || checkpoints == nil {
		return nil, ErrStoreRequired
	}
	if batcher == nil {
		return nil, ErrBatcherRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}

	p := &Pipeline{
		staging:     reader,
		store:       store,
		checkpoints: checkpoints,
		batcher:     batcher,
		index:       idx,
		batchFiles:  DefaultBatchFiles,
		logger:      slog.Default(),
	}

	poolSize := runtime.NumCPU() / 2
	for _, opt := range append([]Option{WithIngestWorkers(poolSize), WithOCRWorkers(poolSize)}, opts...) {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	if p.normalizer == nil {
		p.normalizer = normalize.New(normalize.WithLogger(p.logger))
	}
	if p.extractor == nil {
		p.extractor = extract.New(extract.WithLogger(p.logger))
	}
	if p.enricher == nil {
		e, err := enrich.New(enrich.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
		p.enricher = e
	}
	if p.chunker == nil {
		c, err := chunk.New(800, 100)
		if err != nil {
			p.Release()
			return nil, err
		}
		p.chunker = c
	}
	if _, err := p.newCleaner(); err != nil {
		p.Release()
		return nil, err
	}
	if p.exportDir != "" {
		p.exporter = parquet.NewExporter(p.exportDir, store, store)
	}
	return p, nil
}

func (p *Pipeline) newCleaner() (*clean.Cleaner, error) {
	return clean.New(append([]clean.Option{clean.WithLogger(p.logger)}, p.cleanOpts...)...)
}

// Release releases the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.ingestPool != nil {
		p.ingestPool.Release()
	}
	if p.ocrPool != nil {
		p.ocrPool.Release()
	}
}

// Run processes sources, or every staged source when none are named. The
// embedding model is probed first; an unreachable model or a model or
// dimension that differs from the index's aborts the run before any file is
// read. The returned Summary is valid even when err is not nil.
func (p *Pipeline) Run(ctx context.Context, sources ...string) (*Summary, error) {
	summary := newSummary(p.metrics)
	defer summary.finish()

	if err := p.batcher.Ping(ctx); err != nil {
		return summary, err
	}
	if p.index.Model() != p.batcher.ModelID() {
		return summary, fmt.Errorf("%w: index holds %q, embedder is %q",
			core.ErrModelMismatch, p.index.Model(), p.batcher.ModelID())
	}
	if err := p.checkDimensions(); err != nil {
		return summary, err
	}

	if len(sources) == 0 {
		var err error
		if sources, err = p.staging.Sources(); err != nil {
			return summary, err
		}
	}

	cleaner, err := p.newCleaner()
	if err != nil {
		return summary, err
	}
	batchesBefore := p.batcher.Batches()
	defer func() {
		summary.setAudit(cleaner.Audit().Snapshot())
		summary.setIndexSize(p.index.Len())
		if p.metrics != nil {
			p.metrics.AddEmbedBatches(p.batcher.Batches() - batchesBefore)
		}
	}()

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.addSource(source)
		start := time.Now()
		if err := p.runSource(ctx, source, cleaner, summary); err != nil {
			p.logger.Error("run stopped", "source", source, "error", err)
			return summary, err
		}
		p.logger.Info("source complete", "source", source, "duration", time.Since(start))
	}
	return summary, nil
}

func (p *Pipeline) checkDimensions() error {
	if dim := p.batcher.Dimensions(); dim != 0 && dim != p.index.Dimensions() {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, model produces %d",
			core.ErrDimensionMismatch, p.index.Dimensions(), dim)
	}
	return nil
}

// watermark tracks the highest position below which every file is done.
type watermark struct {
	pos  int
	done map[int]bool
}

func newWatermark(pos int) *watermark {
	return &watermark{pos: pos, done: make(map[int]bool)}
}

func (w *watermark) mark(pos int) {
	if pos <= w.pos {
		return
	}
	w.done[pos] = true
	for w.done[w.pos+1] {
		delete(w.done, w.pos+1)
		w.pos++
	}
}

func (p *Pipeline) runSource(ctx context.Context, source string, cleaner *clean.Cleaner, summary *Summary) error {
	logger := p.logger.With("source", source)

	cp, err := p.checkpoints.LoadCheckpoint(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint for %s: %w", source, err)
	}
	if cp == nil {
		cp = &core.Checkpoint{Source: source, Position: -1}
	}
	set, err := p.seedFingerprints(ctx, source)
	if err != nil {
		return err
	}
	logger.Info("processing source", "resume_after", cp.Position, "fingerprints", set.Len())

	wm := newWatermark(cp.Position)
	var batch []*core.RawRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		done, err := p.runBatch(ctx, source, batch, cleaner, set, summary)
		batch = nil
		if err != nil {
			return err
		}
		names := make([]string, len(done))
		for i, raw := range done {
			names[i] = raw.Name
			wm.mark(raw.Position)
		}
		cp.Position = wm.pos
		cp.Completed += len(done)
		cp.UpdatedAt = time.Now().UTC()
		if err := p.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp, names...); err != nil {
			return fmt.Errorf("failed to save checkpoint for %s: %w", source, err)
		}
		return nil
	}

	for raw, err := range p.staging.Records(ctx, source, cp.Position+1) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f := Failure{Stage: StageIngest, Source: source, Err: err}
			var readErr *staging.ReadError
			if errors.As(err, &readErr) {
				f.Name, f.Position = readErr.File.Name, readErr.File.Position
			}
			logger.Warn("failed to read staged file", "name", f.Name, "position", f.Position, "error", err)
			summary.fail(f)
			continue
		}
		done, err := p.checkpoints.IsDone(ctx, source, raw.Name)
		if err != nil {
			return err
		}
		if done {
			wm.mark(raw.Position)
			summary.add(StageIngest, 0, 1, 0)
			continue
		}
		batch = append(batch, raw)
		if len(batch) >= p.batchFiles {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if p.exporter != nil {
		stats, err := p.exporter.Export(ctx, source)
		if err != nil {
			logger.Error("export failed", "error", err)
			summary.fail(Failure{Stage: StageExport, Source: source, Err: err})
			return nil
		}
		summary.add(StageExport, 1, 0, 0)
		logger.Info("exported tables", "records", stats.Records, "chunks", stats.Chunks)
	}
	return nil
}

// seedFingerprints loads the near fingerprints of the source's stored
// records, so duplicates of earlier runs are caught.
func (p *Pipeline) seedFingerprints(ctx context.Context, source string) (*clean.FingerprintSet, error) {
	set := clean.NewFingerprintSet()
	err := p.store.ForEachRecord(ctx, source, func(r *core.EnrichedRecord) error {
		if r.Fingerprint != "" {
			set.Claim(clean.ClaimantOf(&r.NormalizedRecord), r.Fingerprint)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed fingerprints for %s: %w", source, err)
	}
	return set, nil
}
