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

import "errors"

// Pipeline error taxonomy
var (
	// ErrUnsupportedFormat indicates the payload's format cannot be determined.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptInput indicates the payload's container cannot be parsed at all.
	ErrCorruptInput = errors.New("corrupt input")

	// ErrExtractionFailed indicates no page or node yielded usable text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEmbeddingUnavailable indicates the embedding model cannot be reached.
	// It is fatal for a run.
	ErrEmbeddingUnavailable = errors.New("embedding model unavailable")

	// ErrDuplicateChunk indicates the chunk is already indexed.
	ErrDuplicateChunk = errors.New("duplicate chunk")

	// ErrChunkNotFound indicates the chunk is not indexed.
	ErrChunkNotFound = errors.New("chunk not indexed")

	// ErrIndexCorrupt indicates the persisted index and its mapping disagree.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrModelMismatch indicates an index was built with another embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrDimensionMismatch indicates a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptySource indicates the source tag is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptyName indicates the file name is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrInvalidSpan indicates a chunk span is empty or reversed.
	ErrInvalidSpan = errors.New("invalid chunk span")
)
