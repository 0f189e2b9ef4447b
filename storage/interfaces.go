package storage

import (
	"context"

	"github.com/poiesic/refinery/core"
)

// RecordRepository stores enriched records, one logical table per source.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	// PutRecords inserts or replaces records keyed by source and ID.
	PutRecords(ctx context.Context, records ...*core.EnrichedRecord) error

	// GetRecord retrieves a single record.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, source string, id core.ID) (*core.EnrichedRecord, error)

	// ForEachRecord calls fn for every record of source in key order.
	// Iteration stops at the first error from fn.
	ForEachRecord(ctx context.Context, source string, fn func(*core.EnrichedRecord) error) error

	// DeleteRecord removes a record and all chunks derived from it.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteRecord(ctx context.Context, source string, id core.ID) error

	// Sources lists the sources that have at least one stored record.
	Sources(ctx context.Context) ([]string, error)

	// Close releases repository resources.
	Close() error
}

// ChunkRepository stores chunks keyed by parent record and ordinal.
type ChunkRepository interface {
	// ReplaceChunks stores the chunks of parent, removing any chunks
	// previously stored for it.
	ReplaceChunks(ctx context.Context, parent core.ID, chunks []*core.Chunk) error

	// ChunksForParent returns the chunks of parent ordered by ordinal.
	ChunksForParent(ctx context.Context, parent core.ID) ([]*core.Chunk, error)

	// ForEachChunk calls fn for every stored chunk, grouped by parent and
	// ordered by ordinal within a parent.
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}

// CheckpointRepository tracks which staged files have fully persisted output.
type CheckpointRepository interface {
	// SaveCheckpoint persists progress for a source and marks the named
	// files done, atomically.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint, done ...string) error

	// LoadCheckpoint retrieves the checkpoint for a source.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, source string) (*core.Checkpoint, error)

	// IsDone reports whether the named file of source was completed.
	IsDone(ctx context.Context, source, name string) (bool, error)
}
