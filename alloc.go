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

import (
	"unsafe"

	"go.uber.org/atomic"
)

// AccountingAllocator is an Allocator that keeps track of the number of
// bytes of bucket arrays and entries currently allocated. A single
// AccountingAllocator may be shared by several Dicts, including Dicts used
// on different goroutines, to account for their combined footprint.
type AccountingAllocator[K comparable, V any] struct {
	used atomic.Int64
}

var _ Allocator[int, int] = (*AccountingAllocator[int, int])(nil)

func entrySize[K comparable, V any]() int64 {
	var e Entry[K, V]
	return int64(unsafe.Sizeof(e))
}

func bucketSize[K comparable, V any]() int64 {
	var p *Entry[K, V]
	return int64(unsafe.Sizeof(p))
}

// UsedMemory returns the number of bytes currently allocated.
func (a *AccountingAllocator[K, V]) UsedMemory() int64 {
	return a.used.Load()
}

// AllocBuckets implements Allocator.
func (a *AccountingAllocator[K, V]) AllocBuckets(n int) []*Entry[K, V] {
	a.used.Add(int64(n) * bucketSize[K, V]())
	return make([]*Entry[K, V], n)
}

// FreeBuckets implements Allocator.
func (a *AccountingAllocator[K, V]) FreeBuckets(v []*Entry[K, V]) {
	a.used.Sub(int64(len(v)) * bucketSize[K, V]())
}

// AllocEntry implements Allocator.
func (a *AccountingAllocator[K, V]) AllocEntry() *Entry[K, V] {
	a.used.Add(entrySize[K, V]())
	return new(Entry[K, V])
}

// FreeEntry implements Allocator.
func (a *AccountingAllocator[K, V]) FreeEntry(e *Entry[K, V]) {
	a.used.Sub(entrySize[K, V]())
}
