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


package storage

import "errors"

var (
	// ErrNotFound indicates that no record is stored under the given source and id.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates a write after the backend was closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed wraps every decoding failure of a stored value.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates a length prefix that runs past the value.
	ErrTruncatedData = errors.New("truncated data")
)
