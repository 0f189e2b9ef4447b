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


package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/refinery/ai"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/retry"
)

const (
	DefaultBatchSize   = 32
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Batcher embeds texts in sub-batches on a worker pool.
type Batcher struct {
	embedder    ai.Embedder
	batchSize   int
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	normalize   bool
	pool        *ants.Pool
	dim         atomic.Int64
	batches     atomic.Int64
	logger      *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithBatchSize sets the number of texts per embedding call.
func WithBatchSize(size int) Option {
	return func(b *Batcher) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		b.batchSize = size
		return nil
	}
}

// WithTimeout sets the deadline of each embedding call. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Batcher) error {
		b.timeout = timeout
		return nil
	}
}

// WithRetry sets the attempts per sub-batch and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Batcher) error {
		if maxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		b.maxAttempts = maxAttempts
		b.baseDelay = baseDelay
		return nil
	}
}

// WithWorkers sets the number of sub-batches embedded concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) Option {
	return func(b *Batcher) error {
		if n < 1 {
			n = 1
		}
		if b.pool != nil {
			b.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		b.pool = pool
		return nil
	}
}

// WithNormalize controls whether vectors are scaled to unit length.
// Default is true.
func WithNormalize(normalize bool) Option {
	return func(b *Batcher) error {
		b.normalize = normalize
		return nil
	}
}

// WithDimensions fixes the expected vector dimension up front.
func WithDimensions(dim int) Option {
	return func(b *Batcher) error {
		b.dim.Store(int64(dim))
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBatcher creates a Batcher around embedder.
func NewBatcher(embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Batcher{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		normalize:   true,
		logger:      slog.Default(),
	}
	if dim := embedder.Dimensions(); dim > 0 {
		b.dim.Store(int64(dim))
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			b.Release()
			return nil, err
		}
	}

	if b.pool == nil {
		if err := WithWorkers(runtime.NumCPU() / 2)(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("stage", "embed", "model", embedder.ModelID())
	return b, nil
}

// Release stops the worker pool.
func (b *Batcher) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}

// ModelID returns the model of the underlying embedder.
func (b *Batcher) ModelID() string {
	return b.embedder.ModelID()
}

// Dimensions returns the run's vector dimension, or 0 before the first
// successful call.
func (b *Batcher) Dimensions() int {
	return int(b.dim.Load())
}

// Batches returns the number of sub-batches embedded successfully.
func (b *Batcher) Batches() int64 {
	return b.batches.Load()
}

// Ping embeds a probe text with the configured retries. Failure means the
// model is unreachable and is reported as core.ErrEmbeddingUnavailable. A
// successful ping fixes the run's dimension.
func (b *Batcher) Ping(ctx context.Context) error {
	vectors, err := b.call(ctx, []string{"ping"})
	if err != nil {
		if errors.Is(err, core.ErrDimensionMismatch) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	b.logger.Info("embedding model reachable", "dimensions", len(vectors[0]))
	return nil
}

// Result holds the outcome of Embed. Vectors and Errors are indexed like the
// input; exactly one of Vectors[i] and Errors[i] is set.
type Result struct {
	Vectors [][]float32
	Errors  []error
}

// Failed returns the number of texts that could not be embedded.
func (r *Result) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Embed embeds texts and returns their vectors in input order. A sub-batch
// that fails after retries marks its texts failed in the Result. The
// returned error is reserved for run-fatal conditions: a dimension change
// or cancellation of ctx.
func (b *Batcher) Embed(ctx context.Context, texts []string) (*Result, error) {
	res := &Result{
		Vectors: make([][]float32, len(texts)),
		Errors:  make([]error, len(texts)),
	}
	if len(texts) == 0 {
		return res, nil
	}

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	setFatal := func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		if fatalErr == nil {
			fatalErr = err
		}
	}

	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			setFatal(err)
			break
		}
		end := min(start+b.batchSize, len(texts))

		wg.Add(1)
		lo, hi := start, end
		err := b.pool.Submit(func() {
			defer wg.Done()
			vectors, err := b.call(ctx, texts[lo:hi])
			if err != nil {
				if errors.Is(err, core.ErrDimensionMismatch) || ctx.Err() != nil {
					setFatal(err)
					return
				}
				b.logger.Warn("embedding sub-batch failed", "offset", lo, "count", hi-lo, "err", err)
				for i := lo; i < hi; i++ {
					res.Errors[i] = err
				}
				return
			}
			copy(res.Vectors[lo:hi], vectors)
		})
		if err != nil {
			wg.Done()
			setFatal(err)
			break
		}
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	return res, nil
}

// call embeds one sub-batch with timeout and retries, validating and
// normalizing the result.
func (b *Batcher) call(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.WithBackoff(ctx, func() error {
		return retry.WithTimeout(ctx, b.timeout, func(callCtx context.Context) error {
			out, err := b.embedder.EmbedTexts(callCtx, texts)
			if err != nil {
				if errors.Is(err, core.ErrDimensionMismatch) {
					return retry.Permanent(err)
				}
				return err
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(out))
			}
			vectors = out
			return nil
		})
	}, b.maxAttempts, b.baseDelay)
	if err != nil {
		return nil, err
	}

	for i, v := range vectors {
		if err := b.observe(len(v)); err != nil {
			return nil, err
		}
		if b.normalize {
			vectors[i] = NormalizeVector(v)
		}
	}
	b.batches.Add(1)
	return vectors, nil
}

func (b *Batcher) observe(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", core.ErrDimensionMismatch)
	}
	if b.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := int(b.dim.Load()); want != n {
		return fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, want, n)
	}
	return nil
}
