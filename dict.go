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

// Package dict implements a resizable associative array with incremental
// rehashing, the engine underneath a key-value store's keyspace and internal
// indexes.
//
// # Tables
//
// A Dict stores entries in a power-of-two sized array of buckets. Each
// bucket holds the head of a singly linked chain of entries whose
// hash(key)&(size-1) selects that bucket. New entries are always inserted at
// the head of their chain on the assumption that recently added entries are
// the most likely to be accessed again.
//
// # Incremental rehashing
//
// Growing a large table in one step would stall the caller for a time
// proportional to the number of entries. Instead, Expand allocates a second
// table and the Dict enters the rehashing state. Entries are then migrated
// one bucket at a time: every Find, Add, Replace and Delete moves one
// bucket of the old table to the new one (unless a safe iterator is live),
// and Rehash/RehashFor let a maintenance loop move many buckets at once.
// While rehashing, lookups consult both tables and insertions go to the new
// table only. When the old table is drained, the new table replaces it.
//
//	 Stable                     Rehashing(index=3)
//	+---+                      +---+        +---+
//	| 0 | -> a -> e            | 0 | nil    | 0 | -> a
//	| 1 | -> b                 | 1 | nil    | 1 | -> b
//	| 2 | nil       Expand     | 2 | nil    | 2 |
//	| 3 | -> d      ------>    | 3 | -> d   | 3 |
//	+---+                      +---+        | 4 | -> e
//	                           old table    | 5 |
//	                                        | 6 |
//	                                        | 7 |
//	                                        +---+
//	                                        new table
//
// # Traversal
//
// There are two read paths over the table state. Iterators (safe and
// unsafe) walk every entry exactly once provided the Dict is not
// structurally changed underneath an unsafe iterator, which is detected with
// a fingerprint when the iterator is closed. Scan is a stateless cursor
// protocol that tolerates resizes between calls at the price of possibly
// returning an entry more than once.
//
// A Dict is NOT goroutine-safe.
package dict

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"k8s.io/utils/clock"
)

const (
	// initialSize is the size of the first table allocated for a Dict.
	initialSize = 4

	defaultForceResizeRatio = 5
	defaultRehashBatch      = 100

	// maxTableSize is the largest bucket array whose size in bytes fits in
	// an int.
	maxTableSize = math.MaxInt / (bits.UintSize / 8)

	// emptyCallbackPeriod is the number of buckets cleared by Empty between
	// invocations of its progress callback.
	emptyCallbackPeriod = 65536
)

// Entry holds a key and value. The key is immutable once the entry is
// linked into a Dict; the value may be changed with Dict.SetVal.
type Entry[K comparable, V any] struct {
	key   K
	value V
	next  *Entry[K, V]
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Value returns the entry's value.
func (e *Entry[K, V]) Value() V {
	return e.value
}

// table is a single bucket array. A Dict has one table while stable and two
// while rehashing.
type table[K comparable, V any] struct {
	buckets []*Entry[K, V]
	// The number of buckets, 0 or a power of 2.
	size uint64
	// size-1, used to compute hash%size with a bitwise &.
	mask uint64
	// The number of entries linked into buckets.
	used uint64
}

func (t *table[K, V]) reset() {
	*t = table[K, V]{}
}

// Dict is a hash table mapping keys to values with per-instance key
// behaviors supplied by a Type.
type Dict[K comparable, V any] struct {
	typ      Type[K, V]
	privdata any
	// The allocator to use for bucket arrays and entries.
	allocator Allocator[K, V]
	logger    *zap.Logger
	clock     clock.PassiveClock
	rand      *rand.Rand
	// ht is the active table. While rehashing it is the table being
	// drained.
	ht table[K, V]
	// rehash is non-nil while entries are migrating out of ht.
	rehash *rehashState[K, V]
	// iterators is the number of safe iterators that have started and not
	// been closed. Opportunistic rehash steps are suspended while it is
	// non-zero.
	iterators int
	// Growth policy. When canResize is false the table only grows once the
	// load ratio exceeds forceResizeRatio.
	canResize        bool
	forceResizeRatio uint64
	rehashBatch      int
}

// New constructs a new Dict using the key behaviors in typ. The Dict starts
// out with zero capacity and allocates its first table on the first insert.
// New panics if typ.Hash is nil or a Config passed with WithConfig is
// invalid.
func New[K comparable, V any](typ Type[K, V], options ...option[K, V]) *Dict[K, V] {
	if typ.Hash == nil {
		panic("dict: Type.Hash must not be nil")
	}
	d := &Dict[K, V]{
		typ:              typ,
		allocator:        defaultAllocator[K, V]{},
		logger:           zap.NewNop(),
		clock:            clock.RealClock{},
		rand:             rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		canResize:        true,
		forceResizeRatio: defaultForceResizeRatio,
		rehashBatch:      defaultRehashBatch,
	}

	for _, op := range options {
		op.apply(d)
	}
	if err := d.config().Validate(); err != nil {
		panic(err)
	}

	d.checkInvariants()
	return d
}

func (d *Dict[K, V]) config() Config {
	return Config{
		ResizeEnabled:    d.canResize,
		ForceResizeRatio: d.forceResizeRatio,
		RehashBatch:      d.rehashBatch,
	}
}

// PrivData returns the caller context supplied with WithPrivData.
func (d *Dict[K, V]) PrivData() any {
	return d.privdata
}

// Len returns the number of entries in the dict.
func (d *Dict[K, V]) Len() int {
	n := d.ht.used
	if d.rehash != nil {
		n += d.rehash.target.used
	}
	return int(n)
}

// Slots returns the total number of buckets across both tables.
func (d *Dict[K, V]) Slots() int {
	n := d.ht.size
	if d.rehash != nil {
		n += d.rehash.target.size
	}
	return int(n)
}

// Hash returns the hash of key as computed by the Dict's Type.
func (d *Dict[K, V]) Hash(key K) uint64 {
	return d.typ.Hash(key)
}

// EnableResize allows the table to grow as soon as it is fully loaded.
func (d *Dict[K, V]) EnableResize() {
	d.canResize = true
}

// DisableResize restricts growth to tables whose load ratio exceeds the
// force resize ratio, and disables Resize. This is useful while a
// copy-on-write snapshot of the process is alive and moving memory is
// expensive.
func (d *Dict[K, V]) DisableResize() {
	d.canResize = false
}

// numTables returns 2 while rehashing and 1 otherwise.
func (d *Dict[K, V]) numTables() int {
	if d.rehash != nil {
		return 2
	}
	return 1
}

// table returns table i, where table 1 is the rehash target.
func (d *Dict[K, V]) table(i int) *table[K, V] {
	if i == 0 {
		return &d.ht
	}
	return &d.rehash.target
}

func (d *Dict[K, V]) newTable(size uint64) table[K, V] {
	return table[K, V]{
		buckets: d.allocator.AllocBuckets(int(size)),
		size:    size,
		mask:    size - 1,
	}
}

// Expand creates the table, or starts a rehash into a table, large enough
// to hold size entries. The size is rounded up to a power of 2. Expand
// returns an error wrapping ErrCapacity if a rehash is already in progress,
// if size is smaller than the number of entries, if the bucket array could
// not be addressed, or if the rounded size equals the current table size.
func (d *Dict[K, V]) Expand(size uint64) error {
	if d.rehash != nil {
		return errors.Wrap(ErrCapacity, "rehash in progress")
	}
	if d.ht.used > size {
		return errors.Wrapf(ErrCapacity, "size %d is smaller than the %d stored entries", size, d.ht.used)
	}
	realSize := nextPower(size)
	if realSize > maxTableSize {
		return errors.Wrapf(ErrCapacity, "size %d exceeds the maximum table size", size)
	}
	if realSize == d.ht.size {
		return errors.Wrapf(ErrCapacity, "table already has %d buckets", realSize)
	}

	n := d.newTable(realSize)
	if d.ht.buckets == nil {
		// The first allocation is not really a rehash: install the table.
		d.ht = n
		d.logger.Debug("dict table allocated", zap.Uint64("size", realSize))
		d.checkInvariants()
		return nil
	}

	d.rehash = &rehashState[K, V]{target: n}
	d.logger.Debug("dict rehash started",
		zap.Uint64("from", d.ht.size),
		zap.Uint64("to", realSize),
		zap.Uint64("used", d.ht.used))
	d.checkInvariants()
	return nil
}

// Resize shrinks or grows the table to the minimal power of 2 size (at
// least 4) that holds every entry with a load ratio <= 1. It returns an
// error wrapping ErrCapacity when resizing is disabled, a rehash is in
// progress, or the table already has that size.
func (d *Dict[K, V]) Resize() error {
	if !d.canResize {
		return errors.Wrap(ErrCapacity, "resize disabled")
	}
	if d.rehash != nil {
		return errors.Wrap(ErrCapacity, "rehash in progress")
	}
	minimal := d.ht.used
	if minimal < initialSize {
		minimal = initialSize
	}
	return d.Expand(minimal)
}

// expandIfNeeded grows the table before an insertion when it is empty or
// fully loaded.
func (d *Dict[K, V]) expandIfNeeded() {
	if d.rehash != nil {
		return
	}
	var err error
	switch {
	case d.ht.size == 0:
		err = d.Expand(initialSize)
	case d.ht.used >= d.ht.size && (d.canResize || d.ht.used/d.ht.size > d.forceResizeRatio):
		if !d.canResize {
			d.logger.Debug("dict forced to grow while resize is disabled",
				zap.Uint64("size", d.ht.size),
				zap.Uint64("used", d.ht.used))
		}
		err = d.Expand(d.ht.used * 2)
	}
	if err != nil {
		// Unreachable: the targets above always differ from the current
		// size and exceed the entry count.
		d.logger.Warn("dict expand failed", zap.Error(err))
	}
}

// nextPower returns the smallest power of 2 >= size, at least initialSize.
func nextPower(size uint64) uint64 {
	if size >= math.MaxInt64 {
		return math.MaxInt64 + 1
	}
	if size <= initialSize {
		return initialSize
	}
	return 1 << bits.Len64(size-1)
}

// keyIndex returns the index of the bucket where key should be inserted, or
// the existing entry if key is already present. While rehashing the index
// refers to the rehash target, which receives all insertions.
func (d *Dict[K, V]) keyIndex(key K, h uint64) (idx uint64, existing *Entry[K, V]) {
	d.expandIfNeeded()
	for i, n := 0, d.numTables(); i < n; i++ {
		t := d.table(i)
		idx = h & t.mask
		for he := t.buckets[idx]; he != nil; he = he.next {
			if d.compareKeys(key, he.key) {
				return 0, he
			}
		}
	}
	return idx, nil
}

// AddRaw is the low level add-or-find. If key is absent a new entry is
// linked in and returned with its value unset, for the caller to fill in
// with SetVal. If key is present, AddRaw returns a nil entry and the
// existing entry.
func (d *Dict[K, V]) AddRaw(key K) (entry, existing *Entry[K, V]) {
	if d.rehash != nil {
		d.rehashStep()
	}

	idx, existing := d.keyIndex(key, d.typ.Hash(key))
	if existing != nil {
		return nil, existing
	}

	t := &d.ht
	if d.rehash != nil {
		t = &d.rehash.target
	}
	entry = d.allocator.AllocEntry()
	entry.next = t.buckets[idx]
	t.buckets[idx] = entry
	t.used++
	d.setKey(entry, key)
	return entry, nil
}

// Add inserts an entry. It returns an error wrapping ErrDuplicateKey if the
// key is already present.
func (d *Dict[K, V]) Add(key K, value V) error {
	entry, _ := d.AddRaw(key)
	if entry == nil {
		return errors.Wrapf(ErrDuplicateKey, "%v", key)
	}
	d.SetVal(entry, value)
	d.checkInvariants()
	return nil
}

// AddOrFind returns the entry for key, adding an entry with an unset value
// if key is absent.
func (d *Dict[K, V]) AddOrFind(key K) *Entry[K, V] {
	entry, existing := d.AddRaw(key)
	if entry != nil {
		return entry
	}
	return existing
}

// Replace inserts an entry, overwriting the value if the key is already
// present. It reports whether the key was newly added. The previous value is
// released after the new one is stored, since the two may share a
// reference-counted object.
func (d *Dict[K, V]) Replace(key K, value V) (created bool) {
	entry, existing := d.AddRaw(key)
	if entry != nil {
		d.SetVal(entry, value)
		d.checkInvariants()
		return true
	}

	old := existing.value
	d.SetVal(existing, value)
	d.freeVal(old)
	return false
}

// Find returns the entry for key, or nil if the key is not present.
func (d *Dict[K, V]) Find(key K) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.rehash != nil {
		d.rehashStep()
	}
	h := d.typ.Hash(key)
	for i, n := 0, d.numTables(); i < n; i++ {
		t := d.table(i)
		for he := t.buckets[h&t.mask]; he != nil; he = he.next {
			if d.compareKeys(key, he.key) {
				return he
			}
		}
	}
	return nil
}

// FetchValue retrieves the value for key, returning ok=false if the key is
// not present.
func (d *Dict[K, V]) FetchValue(key K) (value V, ok bool) {
	if he := d.Find(key); he != nil {
		return he.value, true
	}
	return value, false
}

// genericDelete unlinks the entry for key and, unless nofree is set,
// releases it.
func (d *Dict[K, V]) genericDelete(key K, nofree bool) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.rehash != nil {
		d.rehashStep()
	}
	h := d.typ.Hash(key)
	for i, n := 0, d.numTables(); i < n; i++ {
		t := d.table(i)
		idx := h & t.mask
		var prev *Entry[K, V]
		for he := t.buckets[idx]; he != nil; he = he.next {
			if !d.compareKeys(key, he.key) {
				prev = he
				continue
			}
			if prev != nil {
				prev.next = he.next
			} else {
				t.buckets[idx] = he.next
			}
			t.used--
			if !nofree {
				d.freeEntry(he)
			}
			d.checkInvariants()
			return he
		}
	}
	return nil
}

// Delete removes and releases the entry for key. It returns an error
// wrapping ErrNotFound if the key is not present.
func (d *Dict[K, V]) Delete(key K) error {
	if d.genericDelete(key, false) == nil {
		return errors.Wrapf(ErrNotFound, "%v", key)
	}
	return nil
}

// Unlink removes the entry for key without releasing it. Ownership passes
// to the caller, who must release it with FreeUnlinkedEntry once done with
// it. This avoids a second lookup when the old value is needed before it is
// discarded:
//
//	e, err := d.Unlink(key)
//	// use e.Value()
//	d.FreeUnlinkedEntry(e)
//
// Unlink returns an error wrapping ErrNotFound if the key is not present.
func (d *Dict[K, V]) Unlink(key K) (*Entry[K, V], error) {
	he := d.genericDelete(key, true)
	if he == nil {
		return nil, errors.Wrapf(ErrNotFound, "%v", key)
	}
	he.next = nil
	return he, nil
}

// FreeUnlinkedEntry releases an entry returned by Unlink. It is a noop for
// a nil entry.
func (d *Dict[K, V]) FreeUnlinkedEntry(he *Entry[K, V]) {
	if he == nil {
		return
	}
	d.freeEntry(he)
}

func (d *Dict[K, V]) freeEntry(he *Entry[K, V]) {
	d.freeKey(he.key)
	d.freeVal(he.value)
	d.allocator.FreeEntry(he)
}

// EntryRef returns the link that points at the entry whose key is
// identical (==, the KeyCompare is not consulted) to key, given the
// precomputed hash of the key. It returns nil if no such entry exists. The
// link may be overwritten to replace the entry in place. Keys must be
// comparable with == at run time.
func (d *Dict[K, V]) EntryRef(key K, hash uint64) **Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	for i, n := 0, d.numTables(); i < n; i++ {
		t := d.table(i)
		for ref := &t.buckets[hash&t.mask]; *ref != nil; ref = &(*ref).next {
			if (*ref).key == key {
				return ref
			}
		}
	}
	return nil
}

// clearTable releases every entry in t and the bucket array itself.
func (d *Dict[K, V]) clearTable(t *table[K, V], callback func(privdata any)) {
	for i := uint64(0); i < t.size && t.used > 0; i++ {
		if callback != nil && i%emptyCallbackPeriod == 0 {
			callback(d.privdata)
		}
		for he := t.buckets[i]; he != nil; {
			next := he.next
			d.freeEntry(he)
			t.used--
			he = next
		}
		t.buckets[i] = nil
	}
	if t.buckets != nil {
		d.allocator.FreeBuckets(t.buckets)
	}
	t.reset()
}

// Empty releases every entry and returns the Dict to its initial empty
// state. Live safe iterators keep suspending rehash steps until they are
// closed. If callback is non-nil it is invoked with the Dict's PrivData
// periodically while large tables are cleared.
func (d *Dict[K, V]) Empty(callback func(privdata any)) {
	d.clearTable(&d.ht, callback)
	if d.rehash != nil {
		d.clearTable(&d.rehash.target, callback)
		d.rehash = nil
	}
}

// Close releases every entry, returning memory to the configured
// allocator. It is invalid to use a Dict after it has been closed, though
// Close itself is idempotent.
func (d *Dict[K, V]) Close() {
	if d.allocator == nil {
		return
	}
	d.Empty(nil)
	d.allocator = nil
}

func (d *Dict[K, V]) checkInvariants() {
	if !invariants {
		return
	}
	checkTable := func(id int, t *table[K, V]) {
		if t.size&(t.size-1) != 0 {
			panic(fmt.Sprintf("invariant failed: table %d: size %d is not a power of 2\n%s", id, t.size, d.debugString()))
		}
		if t.size != 0 && t.mask != t.size-1 {
			panic(fmt.Sprintf("invariant failed: table %d: mask %d for size %d\n%s", id, t.mask, t.size, d.debugString()))
		}
		if uint64(len(t.buckets)) != t.size {
			panic(fmt.Sprintf("invariant failed: table %d: %d buckets for size %d", id, len(t.buckets), t.size))
		}
		var used uint64
		for i, he := range t.buckets {
			for ; he != nil; he = he.next {
				if h := d.typ.Hash(he.key) & t.mask; h != uint64(i) {
					panic(fmt.Sprintf("invariant failed: table %d: %v in bucket %d, expected %d\n%s",
						id, he.key, i, h, d.debugString()))
				}
				used++
			}
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: table %d: found %d entries, but used count is %d\n%s",
				id, used, t.used, d.debugString()))
		}
	}

	checkTable(0, &d.ht)
	if r := d.rehash; r != nil {
		checkTable(1, &r.target)
		if r.index > d.ht.size {
			panic(fmt.Sprintf("invariant failed: rehash index %d beyond size %d", r.index, d.ht.size))
		}
		for i := uint64(0); i < r.index; i++ {
			if d.ht.buckets[i] != nil {
				panic(fmt.Sprintf("invariant failed: bucket %d below rehash index %d is not empty\n%s",
					i, r.index, d.debugString()))
			}
		}
	}
}

func (d *Dict[K, V]) debugString() string {
	var buf strings.Builder
	dump := func(id int, t *table[K, V]) {
		fmt.Fprintf(&buf, "table %d: size=%d used=%d\n", id, t.size, t.used)
		for i, he := range t.buckets {
			if he == nil {
				continue
			}
			fmt.Fprintf(&buf, "  %4d:", i)
			for ; he != nil; he = he.next {
				fmt.Fprintf(&buf, " %v", he.key)
			}
			buf.WriteString("\n")
		}
	}
	dump(0, &d.ht)
	if d.rehash != nil {
		fmt.Fprintf(&buf, "rehash index=%d\n", d.rehash.index)
		dump(1, &d.rehash.target)
	}
	return buf.String()
}
