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


package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pq "github.com/parquet-go/parquet-go"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/storage"
)

// Layout of the export directory.
const (
	RecordsDir = "records"
	ChunksDir  = "chunks"
)

// RecordsPath returns the records table of source under dir.
func RecordsPath(dir, source string) string {
	return filepath.Join(dir, RecordsDir, source+".parquet")
}

// ChunksPath returns the chunks table of source under dir.
func ChunksPath(dir, source string) string {
	return filepath.Join(dir, ChunksDir, source+".parquet")
}

// writeTable writes rows to path through a temporary file in the same
// directory.
func writeTable[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := pq.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// WriteRecords writes the records table at path.
func WriteRecords(path string, records []*core.EnrichedRecord) error {
	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = NewRecordRow(r)
	}
	return writeTable(path, rows)
}

// ReadRecords reads a records table.
func ReadRecords(path string) ([]RecordRow, error) {
	rows, err := pq.ReadFile[RecordRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// WriteChunks writes the chunks table at path.
func WriteChunks(path string, chunks []*core.Chunk) error {
	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = NewChunkRow(c)
	}
	return writeTable(path, rows)
}

// ReadChunks reads a chunks table.
func ReadChunks(path string) ([]ChunkRow, error) {
	rows, err := pq.ReadFile[ChunkRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// Exporter writes per-source tables from the record and chunk stores.
type Exporter struct {
	dir     string
	records storage.RecordRepository
	chunks  storage.ChunkRepository
}

// NewExporter creates an Exporter writing under dir.
func NewExporter(dir string, records storage.RecordRepository, chunks storage.ChunkRepository) *Exporter {
	return &Exporter{dir: dir, records: records, chunks: chunks}
}

// ExportStats reports what one export wrote.
type ExportStats struct {
	Records int
	Chunks  int
}

// Export rewrites both tables of source from the stores.
func (e *Exporter) Export(ctx context.Context, source string) (ExportStats, error) {
	var records []*core.EnrichedRecord
	var chunks []*core.Chunk
	err := e.records.ForEachRecord(ctx, source, func(r *core.EnrichedRecord) error {
		records = append(records, r)
		cs, err := e.chunks.ChunksForParent(ctx, r.ID)
		if err != nil {
			return err
		}
		chunks = append(chunks, cs...)
		return nil
	})
	if err != nil {
		return ExportStats{}, fmt.Errorf("failed to collect %s: %w", source, err)
	}
	if err := WriteRecords(RecordsPath(e.dir, source), records); err != nil {
		return ExportStats{}, err
	}
	if err := WriteChunks(ChunksPath(e.dir, source), chunks); err != nil {
		return ExportStats{}, err
	}
	return ExportStats{Records: len(records), Chunks: len(chunks)}, nil
}
