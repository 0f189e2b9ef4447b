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

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/storage"
)

// Report compares an index with the stored chunks.
type Report struct {
	Stored   int            // Chunks in the store
	Indexed  int            // Live entries in the index
	Missing  []core.ChunkID // Stored chunks the index lacks
	Orphaned []core.ChunkID // Indexed chunks the store lacks
}

// OK reports whether the index and the store hold the same chunks.
func (r Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Orphaned) == 0
}

// Verify checks every stored chunk against idx and every index entry
// against the store.
func Verify(ctx context.Context, chunks storage.ChunkRepository, idx *index.Manager) (Report, error) {
	entries := idx.Entries()
	report := Report{Indexed: len(entries)}

	stored := make(map[core.ChunkID]struct{})
	err := chunks.ForEachChunk(ctx, func(c *core.Chunk) error {
		stored[c.ID] = struct{}{}
		if !idx.Contains(c.ID) {
			report.Missing = append(report.Missing, c.ID)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to scan chunks: %w", err)
	}
	report.Stored = len(stored)

	for _, e := range entries {
		if _, ok := stored[e.ChunkID]; !ok {
			report.Orphaned = append(report.Orphaned, e.ChunkID)
		}
	}
	return report, nil
}
