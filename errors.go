// Copyright 2024 The Cockroach Authors
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

package dict

import "github.com/pkg/errors"

var (
	// ErrDuplicateKey is returned by Add when the key is already present.
	ErrDuplicateKey = errors.New("dict: duplicate key")
	// ErrCapacity is returned by Expand and Resize when the requested
	// resize is not possible: a rehash is already in progress, the target
	// is smaller than the number of stored entries, or the target rounds to
	// the current table size.
	ErrCapacity = errors.New("dict: invalid capacity")
	// ErrNotFound is returned by Delete and Unlink for an absent key.
	ErrNotFound = errors.New("dict: key not found")
	// ErrInvariantViolation is the panic value (wrapped) raised when an
	// unsafe iterator detects that the dictionary was mutated while it was
	// in use. It is never returned.
	ErrInvariantViolation = errors.New("dict: invariant violation")
)
