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

// RandomEntry returns an entry chosen uniformly at random, or nil if the
// Dict is empty.
//
// A random non-empty bucket is found first. Because chains differ in
// length, returning the chain head would favor entries in short chains, so
// the chain is then walked once to count it and again to stop at a random
// position.
func (d *Dict[K, V]) RandomEntry() *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.rehash != nil {
		d.rehashStep()
	}

	var he *Entry[K, V]
	if r := d.rehash; r != nil {
		// There are no entries in the buckets of the active table below the
		// rehash index, so pick from the remaining slots of both tables.
		s0 := d.ht.size
		for he == nil {
			h := r.index + d.rand.Uint64n(s0+r.target.size-r.index)
			if h >= s0 {
				he = r.target.buckets[h-s0]
			} else {
				he = d.ht.buckets[h]
			}
		}
	} else {
		for he == nil {
			he = d.ht.buckets[d.rand.Uint64()&d.ht.mask]
		}
	}

	listLen := 0
	for e := he; e != nil; e = e.next {
		listLen++
	}
	for i := d.rand.Intn(listLen); i > 0; i-- {
		he = he.next
	}
	return he
}

// SomeEntries samples up to count entries from random locations of the
// Dict. It is much faster than calling RandomEntry count times, but the
// result is not uniformly distributed: entries are collected from runs of
// consecutive buckets starting at a random position, jumping elsewhere only
// after a run of empty buckets. It is suited to algorithms that need a
// sample to work on, not a fair draw.
//
// Fewer than count entries are returned if the Dict holds fewer entries or
// not enough were found within count*10 bucket probes. The result may
// contain duplicates if the Dict is rehashing.
func (d *Dict[K, V]) SomeEntries(count int) []*Entry[K, V] {
	if n := d.Len(); n < count {
		count = n
	}
	if count <= 0 {
		return nil
	}
	maxSteps := count * 10

	// Do rehashing work proportional to count.
	for j := 0; j < count && d.rehash != nil; j++ {
		d.rehashStep()
	}

	tables := d.numTables()
	maxMask := d.ht.mask
	if tables > 1 && maxMask < d.rehash.target.mask {
		maxMask = d.rehash.target.mask
	}

	// Pick a random point inside the larger table.
	i := d.rand.Uint64() & maxMask
	emptyLen := 0
	out := make([]*Entry[K, V], 0, count)
	for ; len(out) < count && maxSteps > 0; maxSteps-- {
		for j := 0; j < tables; j++ {
			t := d.table(j)
			if tables == 2 && j == 0 && i < d.rehash.index {
				// The buckets of the active table below the rehash index
				// are empty. If i is also out of range for the target
				// there is nothing below the rehash index in either table
				// (a shrinking rehash), so jump ahead.
				if i >= d.rehash.target.size {
					i = d.rehash.index
				} else {
					continue
				}
			}
			if i >= t.size {
				continue
			}

			he := t.buckets[i]
			if he == nil {
				// Jump elsewhere after a run of empty buckets as long as
				// count, with a minimum of 5.
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					i = d.rand.Uint64() & maxMask
					emptyLen = 0
				}
				continue
			}
			emptyLen = 0
			for ; he != nil; he = he.next {
				out = append(out, he)
				if len(out) == count {
					return out
				}
			}
		}
		i = (i + 1) & maxMask
	}
	return out
}
