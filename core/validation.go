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


package core

import (
	"fmt"
	"time"
)

// ValidateRawRecord validates a staged RawRecord.
//
// Validation rules:
//   - Source must not be empty
//   - Name must not be empty
//   - RetrievedAt must not be in the future
//
// An empty payload is valid here; the normalizer or extractor decides what
// an empty file means for its format.
func ValidateRawRecord(record *RawRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptySource)
	}
	if record.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyName)
	}
	if !IsValidTimestamp(record.RetrievedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateChunk validates a chunk against the body it was cut from.
func ValidateChunk(chunk *Chunk, bodyLen int) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidSpan)
	}
	if chunk.Start < 0 || chunk.End <= chunk.Start || chunk.End > bodyLen {
		return fmt.Errorf("%w: [%d,%d) in body of %d", ErrInvalidSpan, chunk.Start, chunk.End, bodyLen)
	}
	if chunk.ID != ChunkIDFor(chunk.ParentID, chunk.Ordinal) {
		return fmt.Errorf("%w: id %s does not match parent %s ordinal %d",
			ErrInvalidSpan, chunk.ID, chunk.ParentID, chunk.Ordinal)
	}
	return nil
}

// ValidateVector checks a vector against the run's fixed dimension.
func ValidateVector(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vector))
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
