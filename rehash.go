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
	"context"
	"time"

	"go.uber.org/zap"
)

// rehashState is the state of a Dict that is migrating entries from its
// active table into a table of a different size. Its existence is the
// rehashing state: a stable Dict has no rehashState and no second table.
type rehashState[K comparable, V any] struct {
	// target receives every entry of the active table and every new
	// insertion.
	target table[K, V]
	// index is the next bucket of the active table to migrate. Every bucket
	// below index is empty.
	index uint64
}

// Rehashing reports whether a rehash is in progress.
func (d *Dict[K, V]) Rehashing() bool {
	return d.rehash != nil
}

// RehashIndex returns the next bucket of the active table to migrate, or -1
// if no rehash is in progress.
func (d *Dict[K, V]) RehashIndex() int64 {
	if d.rehash == nil {
		return -1
	}
	return int64(d.rehash.index)
}

// Rehash performs up to n steps of incremental rehashing. A step moves every
// entry of one non-empty bucket of the active table into the rehash target.
// Since part of the table may be empty, at most n*10 empty buckets are
// visited before Rehash gives up, which bounds the work of a single call
// even when no bucket is moved. Rehash reports whether there are still
// entries to move.
func (d *Dict[K, V]) Rehash(n int) bool {
	r := d.rehash
	if r == nil {
		return false
	}

	emptyVisits := n * 10
	for ; n > 0 && d.ht.used != 0; n-- {
		// The index cannot run past the end of the table as there are
		// entries left at or after it.
		for d.ht.buckets[r.index] == nil {
			r.index++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}

		// Move all the entries in this bucket to the target, re-linking
		// each one at the head of its new chain.
		for he := d.ht.buckets[r.index]; he != nil; {
			next := he.next
			idx := d.typ.Hash(he.key) & r.target.mask
			he.next = r.target.buckets[idx]
			r.target.buckets[idx] = he
			d.ht.used--
			r.target.used++
			he = next
		}
		d.ht.buckets[r.index] = nil
		r.index++
	}

	if d.ht.used == 0 {
		d.allocator.FreeBuckets(d.ht.buckets)
		d.ht = r.target
		d.rehash = nil
		d.logger.Debug("dict rehash finished",
			zap.Uint64("size", d.ht.size),
			zap.Uint64("used", d.ht.used))
		d.checkInvariants()
		return false
	}

	d.checkInvariants()
	return true
}

// rehashStep performs a single step of rehashing, and only if there are no
// safe iterators bound to the Dict. An iterator in the middle of a rehash
// could otherwise miss or duplicate entries. It is called by the lookup and
// update operations so that the table migrates while it is actively used.
func (d *Dict[K, V]) rehashStep() {
	if d.iterators == 0 {
		d.Rehash(1)
	}
}

// RehashFor rehashes in batches (100 buckets by default, see Config) until
// the rehash completes, the budget is exceeded, or ctx is done. The budget
// and ctx are only checked between batches, so RehashFor may overrun the
// budget by the time of one batch. It returns the number of steps
// performed, rounded to whole batches.
func (d *Dict[K, V]) RehashFor(ctx context.Context, budget time.Duration) int {
	start := d.clock.Now()
	rehashes := 0
	for d.Rehash(d.rehashBatch) {
		rehashes += d.rehashBatch
		if elapsed := d.clock.Since(start); elapsed > budget {
			d.logger.Debug("dict rehash budget exhausted",
				zap.Duration("budget", budget),
				zap.Duration("elapsed", elapsed),
				zap.Int("steps", rehashes))
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return rehashes
}
