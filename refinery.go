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


package refinery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/refinery/ai"
	"github.com/poiesic/refinery/ai/openai"
	"github.com/poiesic/refinery/chunk"
	"github.com/poiesic/refinery/clean"
	"github.com/poiesic/refinery/config"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
	"github.com/poiesic/refinery/enrich"
	"github.com/poiesic/refinery/extract"
	"github.com/poiesic/refinery/extract/tesseract"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/metrics"
	"github.com/poiesic/refinery/normalize"
	"github.com/poiesic/refinery/pipeline"
	"github.com/poiesic/refinery/reindex"
	"github.com/poiesic/refinery/staging"
	"github.com/poiesic/refinery/storage"
	"github.com/poiesic/refinery/storage/badger"
)

// Refinery opens the state store, the embedding provider and the index of
// one output tree as a unit.
type Refinery struct {
	cfg         *config.Config
	backend     *badger.Backend
	store       *badger.Store
	checkpoints *badger.CheckpointRepository
	provider    ai.AIProvider
	batcher     *embedding.Batcher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Refinery.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	metrics  *metrics.Metrics
	logger   *slog.Logger
	inMemory bool
}

// WithProvider replaces the OpenAI-compatible provider built from the
// embedding config.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithMetrics mirrors run summaries to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInMemoryState keeps the state store in memory. Index files and
// exports are still written under the output tree.
func WithInMemoryState() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// Open opens the output tree described by cfg.
func Open(cfg *config.Config, opts ...Option) (*Refinery, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(cfg.Paths.StateDir(), o.inMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	provider := o.provider
	if provider == nil {
		aiConfig := ai.NewConfig(
			ai.WithEmbeddingHost(cfg.Embedding.Host),
			ai.WithEmbeddingModel(cfg.Embedding.Model),
			ai.WithAPIKey(os.Getenv(cfg.Embedding.APIKeyEnv)),
			ai.WithDimensions(cfg.Embedding.Dimensions),
		)
		if provider, err = openai.NewProvider(aiConfig); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
	}

	batcher, err := embedding.NewBatcher(provider.Embedder(),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
		embedding.WithWorkers(cfg.Workers.Embed),
		embedding.WithNormalize(cfg.Embedding.Normalize),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithLogger(o.logger),
	)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	return &Refinery{
		cfg:         cfg,
		backend:     backend,
		store:       badger.NewStore(backend),
		checkpoints: badger.NewCheckpointRepository(backend),
		provider:    provider,
		batcher:     batcher,
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

// Close releases the batcher, the provider and the state store.
func (r *Refinery) Close() error {
	r.batcher.Release()
	if err := r.provider.Close(); err != nil {
		r.logger.Error("error closing embedding provider", "err", err)
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("error closing record store", "err", err)
		return err
	}
	if err := r.backend.Close(); err != nil {
		r.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the refinery was opened with.
func (r *Refinery) Config() *config.Config {
	return r.cfg
}

// RecordRepository returns the record store.
func (r *Refinery) RecordRepository() storage.RecordRepository {
	return r.store
}

// ChunkRepository returns the chunk store.
func (r *Refinery) ChunkRepository() storage.ChunkRepository {
	return r.store
}

// CheckpointRepository returns the checkpoint store.
func (r *Refinery) CheckpointRepository() storage.CheckpointRepository {
	return r.checkpoints
}

// IndexPath returns the index file of the configured model.
func (r *Refinery) IndexPath() string {
	return filepath.Join(r.cfg.Paths.IndexDir(), index.FileName(r.batcher.ModelID()))
}

// OpenIndex probes the embedding model and loads its index, or creates an
// empty one.
func (r *Refinery) OpenIndex(ctx context.Context) (*index.Manager, error) {
	if err := r.batcher.Ping(ctx); err != nil {
		return nil, err
	}
	return index.Open(r.cfg.Paths.IndexDir(), r.batcher.ModelID(), r.batcher.Dimensions(),
		index.WithCompactionThreshold(r.cfg.Index.CompactionThreshold),
		index.WithLogger(r.logger))
}

// NewPipeline builds a pipeline over idx from the configuration.
func (r *Refinery) NewPipeline(idx *index.Manager, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	cfg := r.cfg

	chunkOpts := []chunk.Option{}
	if cfg.Chunk.Tolerance > 0 {
		chunkOpts = append(chunkOpts, chunk.WithTolerance(cfg.Chunk.Tolerance))
	}
	chunker, err := chunk.New(cfg.Chunk.Size, cfg.Chunk.Overlap, chunkOpts...)
	if err != nil {
		return nil, err
	}

	extractOpts := []extract.Option{
		extract.WithConfidenceThreshold(cfg.Extract.OCRConfidenceThreshold),
		extract.WithMinTextChars(cfg.Extract.OCRMinTextChars),
		extract.WithOCRTimeout(cfg.Extract.OCRTimeout),
		extract.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
		extract.WithLogger(r.logger),
	}
	if tesseract.Available() {
		engine := tesseract.New(
			tesseract.WithLanguages(cfg.Extract.OCRLanguages...),
			tesseract.WithDPI(float64(cfg.Extract.OCRDPI)),
		)
		extractOpts = append(extractOpts, extract.WithOCR(engine, engine))
	} else {
		r.logger.Info("OCR engine not built in, scanned pages without a text layer will fail")
	}

	enrichOpts := []enrich.Option{
		enrich.WithLanguageThreshold(cfg.Enrich.LanguageConfidenceThreshold),
		enrich.WithTokenModel(cfg.TokenModel()),
		enrich.WithLogger(r.logger),
	}
	if cfg.Enrich.Tagger == config.TaggerEmbedding {
		tagger, err := enrich.NewEmbeddingTagger(r.provider.Embedder(), cfg.Enrich.SimilarityThreshold)
		if err != nil {
			return nil, err
		}
		enrichOpts = append(enrichOpts, enrich.WithTagger(tagger))
	}
	enricher, err := enrich.New(enrichOpts...)
	if err != nil {
		return nil, err
	}

	cleanOpts := []clean.Option{
		clean.WithPIIPatterns(cfg.Clean.PIIPatterns),
		clean.WithMissingValues(cfg.Clean.MissingValues),
		clean.WithLocale(cfg.Clean.Locale),
	}
	if cfg.Clean.DefaultPolicy != "" {
		cleanOpts = append(cleanOpts, clean.WithDefaultPolicy(cfg.Clean.DefaultPolicy))
	}

	base := []pipeline.Option{
		pipeline.WithIngestWorkers(cfg.Workers.Ingest),
		pipeline.WithOCRWorkers(cfg.Workers.OCR),
		pipeline.WithBatchFiles(cfg.Pipeline.BatchFiles),
		pipeline.WithNormalizer(normalize.New(normalize.WithLocale(cfg.Clean.Locale), normalize.WithLogger(r.logger))),
		pipeline.WithExtractor(extract.New(extractOpts...)),
		pipeline.WithCleanOptions(cleanOpts...),
		pipeline.WithEnricher(enricher),
		pipeline.WithChunker(chunker),
		pipeline.WithIndexPath(r.IndexPath()),
		pipeline.WithMetrics(r.metrics),
		pipeline.WithLogger(r.logger),
	}
	if cfg.Pipeline.Export {
		base = append(base, pipeline.WithExport(cfg.Paths.OutputDir))
	}
	reader := staging.NewReader(cfg.Paths.StagingDir, staging.WithLogger(r.logger))
	return pipeline.New(reader, r.store, r.checkpoints, r.batcher, idx, append(base, opts...)...)
}

// Run refines the named staged sources, or all of them.
func (r *Refinery) Run(ctx context.Context, sources ...string) (*pipeline.Summary, error) {
	idx, err := r.OpenIndex(ctx)
	if err != nil {
		return nil, err
	}
	p, err := r.NewPipeline(idx)
	if err != nil {
		return nil, err
	}
	defer p.Release()
	return p.Run(ctx, sources...)
}

// Reindex embeds every stored chunk with the configured model into that
// model's index, which is persisted afterwards. Indexes of other models are
// left alone.
func (r *Refinery) Reindex(ctx context.Context, progress io.Writer) (reindex.Stats, error) {
	idx, err := r.OpenIndex(ctx)
	if err != nil {
		return reindex.Stats{}, err
	}
	rx, err := reindex.New(r.store, r.batcher,
		reindex.WithBatchSize(r.cfg.Embedding.BatchSize*r.cfg.Workers.Embed),
		reindex.WithProgress(progress, r.cfg.Embedding.BatchSize),
		reindex.WithLogger(r.logger))
	if err != nil {
		return reindex.Stats{}, err
	}
	stats, err := rx.Run(ctx, idx)
	if err != nil {
		return stats, err
	}
	if r.metrics != nil {
		r.metrics.SetIndexSize(idx.Len())
	}
	return stats, idx.Persist(r.IndexPath())
}

// Verify compares the configured model's index file with the stored chunks.
func (r *Refinery) Verify(ctx context.Context) (reindex.Report, error) {
	idx, err := index.Load(r.IndexPath(), r.batcher.ModelID())
	if errors.Is(err, os.ErrNotExist) {
		dim := max(r.batcher.Dimensions(), 1)
		idx, err = index.New(r.batcher.ModelID(), dim)
	}
	if err != nil {
		return reindex.Report{}, err
	}
	return reindex.Verify(ctx, r.store, idx)
}

// Remove deletes a stored record with its chunks and drops the chunks from
// the configured model's index.
func (r *Refinery) Remove(ctx context.Context, source string, id core.ID) (int, error) {
	if err := r.store.DeleteRecord(ctx, source, id); err != nil {
		return 0, err
	}
	idx, err := index.Load(r.IndexPath(), r.batcher.ModelID(),
		index.WithCompactionThreshold(r.cfg.Index.CompactionThreshold))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := idx.RemoveParent(id)
	if n == 0 {
		return 0, nil
	}
	return n, idx.Persist(r.IndexPath())
}
