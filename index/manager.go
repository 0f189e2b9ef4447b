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


package index

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/poiesic/refinery/core"
)

// DefaultCompactionThreshold is the tombstone count that triggers a rebuild.
const DefaultCompactionThreshold = 1024

// entry is immutable once created.
type entry struct {
	seq    uint64
	id     core.ChunkID
	vector []float32
}

// snapshot is the read-only view published after each write.
type snapshot struct {
	slots []*entry // nil marks a tombstoned position
}

// Manager owns one vector index and its identifier mapping.
type Manager struct {
	mu        sync.Mutex
	model     string
	dim       int
	slots     []*entry
	positions map[core.ChunkID]int
	dead      int
	nextSeq   uint64
	threshold int
	snap      atomic.Pointer[snapshot]
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithCompactionThreshold sets how many tombstones accumulate before the
// index is rebuilt. Default is DefaultCompactionThreshold.
func WithCompactionThreshold(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			n = 1
		}
		m.threshold = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// New creates an empty index for vectors of dim produced by model.
func New(model string, dim int, opts ...Option) (*Manager, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	m := &Manager{
		model:     model,
		dim:       dim,
		positions: make(map[core.ChunkID]int),
		threshold: DefaultCompactionThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "index", "model", model)
	m.publish()
	return m, nil
}

// Model returns the embedding model identifier the index is bound to.
func (m *Manager) Model() string { return m.model }

// Dimensions returns the fixed vector dimension.
func (m *Manager) Dimensions() int { return m.dim }

// Item is one vector to add.
type Item struct {
	ChunkID core.ChunkID
	Vector  []float32
}

// Add indexes vector under chunkID. It fails with core.ErrDuplicateChunk if
// chunkID is already indexed.
func (m *Manager) Add(chunkID core.ChunkID, vector []float32) error {
	return m.AddBatch([]Item{{ChunkID: chunkID, Vector: vector}})
}

// AddBatch indexes all items or none of them and publishes one snapshot.
func (m *Manager) AddBatch(items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[core.ChunkID]struct{}, len(items))
	for _, it := range items {
		if _, ok := m.positions[it.ChunkID]; ok {
			return fmt.Errorf("%w: %s", core.ErrDuplicateChunk, it.ChunkID)
		}
		if _, ok := seen[it.ChunkID]; ok {
			return fmt.Errorf("%w: %s repeated in batch", core.ErrDuplicateChunk, it.ChunkID)
		}
		if err := core.ValidateVector(it.Vector, m.dim); err != nil {
			return fmt.Errorf("chunk %s: %w", it.ChunkID, err)
		}
		seen[it.ChunkID] = struct{}{}
	}

	for _, it := range items {
		m.positions[it.ChunkID] = len(m.slots)
		m.slots = append(m.slots, &entry{
			seq:    m.nextSeq,
			id:     it.ChunkID,
			vector: slices.Clone(it.Vector),
		})
		m.nextSeq++
	}
	m.publish()
	return nil
}

// Remove drops chunkID from the index. It fails with core.ErrChunkNotFound
// if chunkID is not indexed. Each call publishes a snapshot; use RemoveBatch
// or RemoveParent for bulk deletions.
func (m *Manager) Remove(chunkID core.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.removeLocked(chunkID) {
		return fmt.Errorf("%w: %s", core.ErrChunkNotFound, chunkID)
	}
	m.maybeCompactLocked()
	m.publish()
	return nil
}

// RemoveBatch drops every indexed chunk of ids and publishes one snapshot.
// Ids that are not indexed are skipped. It returns how many were removed.
// Prefer it over repeated Remove calls for bulk deletions.
func (m *Manager) RemoveBatch(ids []core.ChunkID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if m.removeLocked(id) {
			removed++
		}
	}
	if removed > 0 {
		m.maybeCompactLocked()
		m.publish()
	}
	return removed
}

// RemoveParent drops every indexed chunk of parent and returns how many were
// removed. Chunk ordinals are contiguous from zero, so the scan stops at the
// first ordinal that is not indexed.
func (m *Manager) RemoveParent(parent core.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for ordinal := 0; m.removeLocked(core.ChunkIDFor(parent, ordinal)); ordinal++ {
		removed++
	}
	if removed > 0 {
		m.maybeCompactLocked()
		m.publish()
	}
	return removed
}

func (m *Manager) removeLocked(chunkID core.ChunkID) bool {
	pos, ok := m.positions[chunkID]
	if !ok {
		return false
	}
	delete(m.positions, chunkID)
	m.slots[pos] = nil
	m.dead++
	return true
}

func (m *Manager) maybeCompactLocked() {
	if m.dead >= m.threshold {
		m.compactLocked()
	}
}

// Compact rebuilds the index without tombstones and renumbers positions.
func (m *Manager) Compact() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dead == 0 {
		return
	}
	m.compactLocked()
	m.publish()
}

func (m *Manager) compactLocked() {
	live := make([]*entry, 0, len(m.positions))
	for _, e := range m.slots {
		if e != nil {
			live = append(live, e)
		}
	}
	positions := make(map[core.ChunkID]int, len(live))
	for i, e := range live {
		positions[e.id] = i
	}
	m.logger.Debug("compacted index", "tombstones", m.dead, "live", len(live))
	m.slots = live
	m.positions = positions
	m.dead = 0
}

// publish installs a snapshot of the current slots. Must be called with the
// writer lock held.
func (m *Manager) publish() {
	m.snap.Store(&snapshot{slots: slices.Clone(m.slots)})
}

// Contains reports whether chunkID is indexed.
func (m *Manager) Contains(chunkID core.ChunkID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[chunkID]
	return ok
}

// Len returns the number of indexed chunks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// Tombstones returns the number of removed positions awaiting compaction.
func (m *Manager) Tombstones() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dead
}

// Entries returns the live position mapping in position order.
func (m *Manager) Entries() []core.VectorIndexEntry {
	snap := m.snap.Load()
	entries := make([]core.VectorIndexEntry, 0, len(snap.slots))
	for pos, e := range snap.slots {
		if e != nil {
			entries = append(entries, core.VectorIndexEntry{Position: pos, ChunkID: e.id})
		}
	}
	return entries
}

// Search returns the k nearest indexed chunks to query, nearest first.
func (m *Manager) Search(query []float32, k int) ([]core.SearchHit, error) {
	if err := core.ValidateVector(query, m.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		seq  uint64
		id   core.ChunkID
		dist float32
	}
	snap := m.snap.Load()
	candidates := make([]scored, 0, len(snap.slots))
	for _, e := range snap.slots {
		if e == nil {
			continue
		}
		candidates = append(candidates, scored{seq: e.seq, id: e.id, dist: squaredL2(query, e.vector)})
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	hits := make([]core.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = core.SearchHit{ChunkID: c.id, Distance: c.dist}
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
