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

// Scan visits the entries in one step of a full pass over the Dict and
// returns the cursor for the next step. A pass starts with cursor 0 and is
// complete when the returned cursor is 0 again.
//
// Every entry present for the whole pass is passed to fn at least once.
// Entries may be passed more than once if the Dict is resized between
// steps, and callers must tolerate duplicates. The cursor is the only state
// carried between steps, so the Dict may be freely modified between calls
// (but not by fn or bucketFn).
//
// If bucketFn is non-nil it is called with each visited bucket's head link
// before its entries are passed to fn, allowing the caller to relink a
// chain in place.
//
// Each step visits one bucket of a stable Dict. While rehashing it visits
// one bucket of the smaller table and then every bucket of the larger table
// that is an expansion of it, so entries moving between the two tables
// during the pass are never missed.
func (d *Dict[K, V]) Scan(
	cursor uint64, fn func(e *Entry[K, V]), bucketFn func(bucket **Entry[K, V]),
) uint64 {
	if d.Len() == 0 {
		return 0
	}

	if d.rehash == nil {
		t := &d.ht
		scanBucket(&t.buckets[cursor&t.mask], fn, bucketFn)
		return nextCursor(cursor, t.mask)
	}

	// Make sure small is the smaller and large is the larger table.
	small, large := &d.ht, &d.rehash.target
	if small.size > large.size {
		small, large = large, small
	}

	scanBucket(&small.buckets[cursor&small.mask], fn, bucketFn)

	// Iterate over the buckets of the larger table that are expansions of
	// the bucket the cursor selects in the smaller table.
	for {
		scanBucket(&large.buckets[cursor&large.mask], fn, bucketFn)
		cursor = nextCursor(cursor, large.mask)
		// Continue while the bits covered by the mask difference are
		// non-zero.
		if cursor&(small.mask^large.mask) == 0 {
			break
		}
	}
	return cursor
}

func scanBucket[K comparable, V any](
	bucket **Entry[K, V], fn func(e *Entry[K, V]), bucketFn func(bucket **Entry[K, V]),
) {
	if bucketFn != nil {
		bucketFn(bucket)
	}
	for he := *bucket; he != nil; {
		next := he.next
		fn(he)
		he = next
	}
}
