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


package clean

import "errors"

var (
	// ErrInvalidPolicy is returned for a missing-value policy that is not
	// drop, flag or default:<value>.
	ErrInvalidPolicy = errors.New("invalid missing-value policy")

	// ErrInvalidPattern is returned for a PII pattern that does not compile
	// or names an unknown category.
	ErrInvalidPattern = errors.New("invalid pii pattern")
)
