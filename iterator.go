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

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Iterator walks every entry of a Dict: the active table in bucket order,
// then the rehash target if a rehash is in progress. Within a bucket,
// entries are returned most recently inserted first.
//
// A safe iterator suspends opportunistic rehashing for its lifetime and the
// Dict may be modified while it is in use, including deleting the entry
// most recently returned by Next. An unsafe iterator has no bookkeeping
// cost but only Next may be called until it is closed; Close panics if the
// Dict was changed in the meantime.
type Iterator[K comparable, V any] struct {
	d *Dict[K, V]
	// index is the current bucket of table, -1 before the first call to
	// Next.
	index int64
	table int
	safe  bool
	// entry is the entry last returned by Next. nextEntry is saved before
	// entry is returned because the caller may delete entry.
	entry     *Entry[K, V]
	nextEntry *Entry[K, V]
	// fingerprint of the Dict when an unsafe iterator started.
	fingerprint uint64
}

// Iterator returns an unsafe iterator over d.
func (d *Dict[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{
		d:     d,
		index: -1,
	}
}

// SafeIterator returns a safe iterator over d.
func (d *Dict[K, V]) SafeIterator() *Iterator[K, V] {
	it := d.Iterator()
	it.safe = true
	return it
}

func (it *Iterator[K, V]) started() bool {
	return !(it.index == -1 && it.table == 0)
}

// Next returns the next entry, or nil once every entry has been returned.
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	for {
		if it.entry == nil {
			d := it.d
			if !it.started() {
				if it.safe {
					d.iterators++
				} else {
					it.fingerprint = d.fingerprint()
				}
			}
			it.index++
			if it.table == 1 && d.rehash == nil {
				// The rehash was completed explicitly under a safe
				// iterator; its entries were already visited in table 0
				// or moved into the table being walked.
				return nil
			}
			t := d.table(it.table)
			if it.index >= int64(t.size) {
				if d.rehash == nil || it.table != 0 {
					return nil
				}
				it.table++
				it.index = 0
				t = d.table(it.table)
			}
			it.entry = t.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// Close releases the iterator. For a safe iterator this resumes
// opportunistic rehashing. For an unsafe iterator Close verifies that the
// Dict was not changed since the first call to Next, and panics with an
// error wrapping ErrInvariantViolation if it was: continuing would operate
// on a torn view of the table. Close is idempotent.
func (it *Iterator[K, V]) Close() {
	if !it.started() {
		return
	}
	defer func() {
		it.index, it.table = -1, 0
		it.entry, it.nextEntry = nil, nil
	}()
	if it.safe {
		it.d.iterators--
		return
	}
	if fp := it.d.fingerprint(); fp != it.fingerprint {
		err := errors.Wrapf(ErrInvariantViolation,
			"dict modified during unsafe iteration: fingerprint %016x, expected %016x", fp, it.fingerprint)
		it.d.logger.Error("unsafe dict iterator misuse", zap.Error(err))
		panic(err)
	}
}

// All calls yield sequentially for each key and value present in the dict
// using a safe iterator. If yield returns false, the iteration stops. The
// dict can be mutated during iteration.
func (d *Dict[K, V]) All(yield func(key K, value V) bool) {
	it := d.SafeIterator()
	defer it.Close()
	for e := it.Next(); e != nil; e = it.Next() {
		if !yield(e.key, e.value) {
			return
		}
	}
}

// fingerprint returns a 64 bit number that summarizes the structure of the
// Dict: the identity, size and entry count of both tables. The integers are
// hashed in sequence, Result = hash(hash(hash(int1)+int2)+int3)..., so the
// same integers in a different order produce a different fingerprint.
func (d *Dict[K, V]) fingerprint() uint64 {
	var target *table[K, V]
	if d.rehash != nil {
		target = &d.rehash.target
	} else {
		target = &table[K, V]{}
	}
	integers := [6]uint64{
		tableID(d.ht.buckets), d.ht.size, d.ht.used,
		tableID(target.buckets), target.size, target.used,
	}

	var hash uint64
	for _, v := range integers {
		// Thomas Wang's 64 bit integer hash.
		hash += v
		hash = (^hash) + (hash << 21)
		hash ^= hash >> 24
		hash = (hash + (hash << 3)) + (hash << 8)
		hash ^= hash >> 14
		hash = (hash + (hash << 2)) + (hash << 4)
		hash ^= hash >> 28
		hash += hash << 31
	}
	return hash
}

// tableID returns the address of a bucket array.
func tableID[K comparable, V any](buckets []*Entry[K, V]) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buckets))))
}
