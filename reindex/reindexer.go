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


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/embedding"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/storage"
)

// Stats is the outcome of a rebuild.
type Stats struct {
	Chunks  int // Stored chunks seen
	Indexed int // Chunks added to the index
	Skipped int // Chunks already present in the index
	Failed  int // Chunks whose embedding failed after retries
}

// Reindexer re-embeds stored chunks into an index.
type Reindexer struct {
	chunks         storage.ChunkRepository
	batcher        *embedding.Batcher
	batchSize      int
	reportInterval int
	progress       io.Writer
	logger         *slog.Logger
}

// Option configures a Reindexer.
type Option func(*Reindexer)

// WithBatchSize sets how many chunks are embedded per batch.
func WithBatchSize(n int) Option {
	return func(r *Reindexer) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithProgress reports progress to w every interval chunks.
func WithProgress(w io.Writer, interval int) Option {
	return func(r *Reindexer) {
		r.progress = w
		r.reportInterval = interval
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reindexer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reindexer reading chunks from store.
func New(store storage.ChunkRepository, batcher *embedding.Batcher, opts ...Option) (*Reindexer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if batcher == nil {
		return nil, ErrBatcherRequired
	}
	r := &Reindexer{
		chunks:         store,
		batcher:        batcher,
		batchSize:      DefaultBatchSize,
		reportInterval: DefaultBatchSize,
		progress:       io.Discard,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reindex", "model", batcher.ModelID())
	return r, nil
}

// Run embeds every stored chunk that idx does not hold yet and adds it.
// idx must be built for the batcher's model. The embedding model is probed
// first; an unreachable model fails with core.ErrEmbeddingUnavailable
// before any chunk is read. Chunks whose embedding fails are counted and
// left out; rerunning picks them up.
func (r *Reindexer) Run(ctx context.Context, idx *index.Manager) (Stats, error) {
	var stats Stats
	if idx.Model() != r.batcher.ModelID() {
		return stats, fmt.Errorf("%w: index is for %q, embedder is %q",
			core.ErrModelMismatch, idx.Model(), r.batcher.ModelID())
	}
	if err := r.batcher.Ping(ctx); err != nil {
		return stats, err
	}
	if dim := r.batcher.Dimensions(); dim != idx.Dimensions() {
		return stats, fmt.Errorf("%w: index holds %d-dimensional vectors, model produces %d",
			core.ErrDimensionMismatch, idx.Dimensions(), dim)
	}

	total, err := r.chunks.CountChunks(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in store (0 chunks)\n")
		return stats, nil
	}
	fmt.Fprintf(r.progress, "Starting reindex of %d chunks (batch size: %d)\n", total, r.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.reportInterval)
	tracker.Start()

	err = NewChunkIterator(r.chunks, r.batchSize).ForEach(ctx, func(batch []*core.Chunk) error {
		stats.Chunks += len(batch)
		pending := slices.DeleteFunc(slices.Clone(batch), func(c *core.Chunk) bool {
			return idx.Contains(c.ID)
		})
		stats.Skipped += len(batch) - len(pending)

		n, failed, err := r.embedBatch(ctx, idx, pending)
		if err != nil {
			return err
		}
		stats.Indexed += n
		stats.Failed += failed
		tracker.Increment(len(batch))
		return nil
	})
	if err != nil {
		return stats, err
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Indexed %d chunks in %v (%d failed)\n",
		stats.Indexed, elapsed.Round(time.Millisecond), stats.Failed)
	r.logger.Info("reindex complete", "chunks", stats.Chunks, "indexed", stats.Indexed,
		"skipped", stats.Skipped, "failed", stats.Failed, "duration", elapsed)
	return stats, nil
}

func (r *Reindexer) embedBatch(ctx context.Context, idx *index.Manager, chunks []*core.Chunk) (int, int, error) {
	if len(chunks) == 0 {
		return 0, 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	res, err := r.batcher.Embed(ctx, texts)
	if err != nil {
		return 0, 0, err
	}

	items := make([]index.Item, 0, len(chunks))
	failed := 0
	for i, c := range chunks {
		if res.Errors[i] != nil {
			r.logger.Warn("failed to embed chunk", "chunk", c.ID, "parent", c.ParentID, "error", res.Errors[i])
			failed++
			continue
		}
		items = append(items, index.Item{ChunkID: c.ID, Vector: res.Vectors[i]})
	}
	if err := idx.AddBatch(items); err != nil {
		return 0, 0, fmt.Errorf("failed to index batch: %w", err)
	}
	return len(items), failed, nil
}
