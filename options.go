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
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"k8s.io/utils/clock"
)

// option provide an interface to do work on Dict while it is being created.
type option[K comparable, V any] interface {
	apply(d *Dict[K, V])
}

type privDataOption[K comparable, V any] struct {
	privdata any
}

func (op privDataOption[K, V]) apply(d *Dict[K, V]) {
	d.privdata = op.privdata
}

// WithPrivData is an option to attach an opaque caller context to a
// Dict[K,V]. The context is passed to the callback given to Empty.
func WithPrivData[K comparable, V any](privdata any) option[K, V] {
	return privDataOption[K, V]{privdata}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Dict. The default allocator utilizes Go's builtin make() and new()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that bucket
// arrays and entries be freed then Dict.Close must be called in order to
// ensure FreeBuckets and FreeEntry are called.
type Allocator[K comparable, V any] interface {
	// AllocBuckets should return a slice equivalent to
	// make([]*Entry[K,V], n).
	AllocBuckets(n int) []*Entry[K, V]

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(v []*Entry[K, V])

	// AllocEntry should return a zeroed entry equivalent to
	// new(Entry[K,V]).
	AllocEntry() *Entry[K, V]

	// FreeEntry can optionally release an entry that is guaranteed to have
	// been allocated by AllocEntry and is no longer linked into the Dict.
	FreeEntry(e *Entry[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocBuckets(n int) []*Entry[K, V] {
	return make([]*Entry[K, V], n)
}

func (defaultAllocator[K, V]) FreeBuckets(v []*Entry[K, V]) {
}

func (defaultAllocator[K, V]) AllocEntry() *Entry[K, V] {
	return new(Entry[K, V])
}

func (defaultAllocator[K, V]) FreeEntry(e *Entry[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(d *Dict[K, V]) {
	d.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a
// Dict[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}

type loggerOption[K comparable, V any] struct {
	logger *zap.Logger
}

func (op loggerOption[K, V]) apply(d *Dict[K, V]) {
	d.logger = op.logger
}

// WithLogger is an option to specify the logger used to report resizes and
// iterator misuse. The default logger discards everything.
func WithLogger[K comparable, V any](logger *zap.Logger) option[K, V] {
	return loggerOption[K, V]{logger}
}

type clockOption[K comparable, V any] struct {
	clock clock.PassiveClock
}

func (op clockOption[K, V]) apply(d *Dict[K, V]) {
	d.clock = op.clock
}

// WithClock is an option to specify the clock used by RehashFor to measure
// its time budget.
func WithClock[K comparable, V any](clock clock.PassiveClock) option[K, V] {
	return clockOption[K, V]{clock}
}

type randOption[K comparable, V any] struct {
	rand *rand.Rand
}

func (op randOption[K, V]) apply(d *Dict[K, V]) {
	d.rand = op.rand
}

// WithRand is an option to specify the random source used by RandomEntry
// and SomeEntries.
func WithRand[K comparable, V any](rand *rand.Rand) option[K, V] {
	return randOption[K, V]{rand}
}

type configOption[K comparable, V any] struct {
	cfg Config
}

func (op configOption[K, V]) apply(d *Dict[K, V]) {
	d.canResize = op.cfg.ResizeEnabled
	d.forceResizeRatio = op.cfg.ForceResizeRatio
	d.rehashBatch = op.cfg.RehashBatch
}

// WithConfig is an option to apply the growth and rehash tuning in cfg. The
// Config should have been validated (ParseConfig does so).
func WithConfig[K comparable, V any](cfg Config) option[K, V] {
	return configOption[K, V]{cfg}
}
