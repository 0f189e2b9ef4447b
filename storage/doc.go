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


// Package storage defines the persistence contracts of the pipeline.
//
// Three repositories cover the durable state of a run:
//
//   - RecordRepository holds enriched records, one logical table per source
//   - ChunkRepository holds chunks keyed by parent record and ordinal
//   - CheckpointRepository holds per-source progress and the set of completed files
//
// storage/badger implements all three on one badger database. The columnar
// tables consumed downstream are written by storage/parquet from the same
// repositories.
//
// The package also carries the MUS-format Encoder and Decoder shared by the
// record store and the vector index file, so both formats use one varint and
// string layout.
//
// Tests use the in-memory backend:
//
//	store, checkpoints, backend, err := badger.NewMemoryStore()
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer backend.Close()
//
// Implementations must be safe for concurrent use.
package storage
