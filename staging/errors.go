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


package staging

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound indicates the source directory does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidSidecar indicates a metadata sidecar could not be parsed.
	ErrInvalidSidecar = errors.New("invalid metadata sidecar")
)

// ReadError reports a staged file that could not be read.
type ReadError struct {
	File File
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s/%s (position %d): %v", e.File.Source, e.File.Name, e.File.Position, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
