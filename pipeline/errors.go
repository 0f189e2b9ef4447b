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


package pipeline

import "errors"

var (
	// ErrStagingRequired is returned when no staging reader is provided.
	ErrStagingRequired = errors.New("staging reader required")

	// ErrStoreRequired is returned when a record, chunk or checkpoint store is missing.
	ErrStoreRequired = errors.New("record, chunk and checkpoint stores required")

	// ErrBatcherRequired is returned when no embedding batcher is provided.
	ErrBatcherRequired = errors.New("embedding batcher required")

	// ErrIndexRequired is returned when no vector index is provided.
	ErrIndexRequired = errors.New("vector index required")
)
