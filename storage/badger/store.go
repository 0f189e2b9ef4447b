package badger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/storage"
)

// Store implements storage.RecordRepository and storage.ChunkRepository for
// BadgerDB.
type Store struct {
	backend *Backend
}

var (
	_ storage.RecordRepository = (*Store)(nil)
	_ storage.ChunkRepository  = (*Store)(nil)
)

// NewStore creates a new Store.
func NewStore(backend *Backend) *Store {
	return &Store{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (s *Store) Close() error {
	return nil
}

// PutRecords inserts or replaces records.
func (s *Store) PutRecords(ctx context.Context, records ...*core.EnrichedRecord) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			if record.ProcessedAt.IsZero() {
				record.ProcessedAt = time.Now().UTC()
			}
			source := record.Origin.Source
			if err := tx.Set(makeRecordKey(source, record.ID), storage.MarshalRecord(record)); err != nil {
				return err
			}
			if err := tx.Set(makeSourceKey(source), []byte{}); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRecord retrieves a single record.
func (s *Store) GetRecord(ctx context.Context, source string, id core.ID) (*core.EnrichedRecord, error) {
	var record *core.EnrichedRecord
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecordKey(source, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalRecord(val)
			return unmarshalErr
		})
	}, false)
	return record, err
}

// ForEachRecord calls fn for every record of source in key order.
func (s *Store) ForEachRecord(ctx context.Context, source string, fn func(*core.EnrichedRecord) error) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeRecordSourcePrefix(source), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := storage.UnmarshalRecord(val)
			if err != nil {
				return err
			}
			return fn(record)
		})
	}, false)
}

// DeleteRecord removes a record and its chunks in one transaction.
func (s *Store) DeleteRecord(ctx context.Context, source string, id core.ID) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(source, id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		if err := deleteKeys(tx, scanKeys(tx, makePartialChunkKey(id))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Sources lists the sources with stored records, sorted.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	var sources []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(sourcePrefix + ":")
		for _, key := range scanKeys(tx, prefix) {
			sources = append(sources, strings.TrimPrefix(string(key), string(prefix)))
		}
		return nil
	}, false)
	return sources, err
}

// ReplaceChunks stores the chunks of parent, replacing earlier ones.
func (s *Store) ReplaceChunks(ctx context.Context, parent core.ID, chunks []*core.Chunk) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteKeys(tx, scanKeys(tx, makePartialChunkKey(parent))); err != nil {
			return err
		}
		for _, chunk := range chunks {
			if err := tx.Set(makeChunkKey(parent, chunk.Ordinal), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ChunksForParent returns the chunks of parent ordered by ordinal.
func (s *Store) ChunksForParent(ctx context.Context, parent core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialChunkKey(parent), func(_, val []byte) error {
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			return nil
		})
	}, false)
	return chunks, err
}

// ForEachChunk calls fn for every stored chunk.
func (s *Store) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(chunkPrefix+":"), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			return fn(chunk)
		})
	}, false)
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		n = len(scanKeys(tx, []byte(chunkPrefix+":")))
		return nil
	}, false)
	return n, err
}

func deleteKeys(tx *badger.Txn, keys [][]byte) error {
	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
