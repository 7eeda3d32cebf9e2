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
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"
)

// steppingClock is a fake clock that advances by step every time elapsed
// time is measured.
type steppingClock struct {
	*clocktesting.FakePassiveClock
	step time.Duration
}

func (c *steppingClock) Since(ts time.Time) time.Duration {
	c.SetTime(c.Now().Add(c.step))
	return c.FakePassiveClock.Since(ts)
}

func TestRehashNotRehashing(t *testing.T) {
	d := New(mixType())
	require.False(t, d.Rehash(10))
	require.NoError(t, d.Add(1, 1))
	require.False(t, d.Rehash(10))
	require.EqualValues(t, -1, d.RehashIndex())
}

func TestRehashEmptyVisits(t *testing.T) {
	d := New(identityType())
	require.NoError(t, d.Expand(1024))
	require.NoError(t, d.Add(500, 500))

	// Shrink. Bucket 500 is the only non-empty bucket of the old table.
	require.NoError(t, d.Expand(4))
	require.True(t, d.Rehashing())

	// A single step gives up after visiting 10 empty buckets.
	require.True(t, d.Rehash(1))
	require.EqualValues(t, 10, d.RehashIndex())
	require.True(t, d.Rehash(5))
	require.EqualValues(t, 60, d.RehashIndex())

	steps := 2
	for d.Rehash(1) {
		steps++
	}
	require.EqualValues(t, 2+44, steps)
	require.EqualValues(t, -1, d.RehashIndex())
	require.EqualValues(t, 4, d.Slots())
	v, ok := d.FetchValue(500)
	require.True(t, ok)
	require.EqualValues(t, 500, v)
}

func TestRehashInterleaved(t *testing.T) {
	d := New(mixType())
	e := make(map[int]int)
	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Add(i, i))
		e[i] = i
	}
	d.finishRehash()

	for round := 0; round < 20; round++ {
		if !d.Rehashing() {
			if round%2 == 0 {
				require.NoError(t, d.Expand(uint64(d.Slots())*2))
			} else {
				_ = d.Resize()
			}
		}
		for i := 0; i < 200; i++ {
			k := rand.Intn(2000)
			switch rand.Intn(4) {
			case 0:
				d.Replace(k, i)
				e[k] = i
			case 1:
				if _, ok := e[k]; ok {
					require.NoError(t, d.Delete(k))
					delete(e, k)
				} else {
					require.ErrorIs(t, d.Delete(k), ErrNotFound)
				}
			case 2:
				v, ok := d.FetchValue(k)
				ev, eok := e[k]
				require.Equal(t, eok, ok)
				require.Equal(t, ev, v)
			default:
				d.Rehash(rand.Intn(3))
			}
			require.EqualValues(t, len(e), d.Len())
		}
	}

	d.finishRehash()
	require.Equal(t, e, d.toBuiltinMap())
	// No entry is duplicated in the final table.
	var n int
	d.All(func(k, v int) bool {
		n++
		return true
	})
	require.EqualValues(t, len(e), n)
}

func TestRehashFor(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	clock := &steppingClock{
		FakePassiveClock: clocktesting.NewFakePassiveClock(time.Unix(0, 0)),
		step:             time.Millisecond,
	}
	d := New(identityType(),
		WithClock[int, int](clock),
		WithLogger[int, int](zap.New(core)))

	// Every entry lives in its own bucket so each step moves exactly one
	// bucket.
	require.NoError(t, d.Expand(1<<14))
	for i := 0; i < 10000; i++ {
		require.NoError(t, d.Add(i, i))
	}
	require.NoError(t, d.Expand(1<<15))

	// The budget is exceeded after the second batch.
	require.EqualValues(t, 200, d.RehashFor(context.Background(), time.Millisecond))
	require.EqualValues(t, 200, d.RehashIndex())
	require.EqualValues(t, 1, logs.FilterMessage("dict rehash budget exhausted").Len())

	// A done context stops after one batch.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.EqualValues(t, 100, d.RehashFor(ctx, time.Hour))
	require.EqualValues(t, 300, d.RehashIndex())

	d.RehashFor(context.Background(), time.Hour)
	require.False(t, d.Rehashing())
	require.EqualValues(t, 10000, d.Len())
	require.EqualValues(t, 1<<15, d.Slots())
	require.EqualValues(t, 1, logs.FilterMessage("dict rehash finished").Len())
	require.Zero(t, d.RehashFor(context.Background(), time.Hour))
}

func TestRehashBatchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RehashBatch = 10
	d := New(identityType(), WithConfig[int, int](cfg))
	require.NoError(t, d.Expand(1<<10))
	for i := 0; i < 500; i++ {
		require.NoError(t, d.Add(i, i))
	}
	require.NoError(t, d.Expand(1<<11))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.EqualValues(t, 10, d.RehashFor(ctx, time.Hour))
	require.EqualValues(t, 10, d.RehashIndex())
}

func TestOpportunisticRehash(t *testing.T) {
	d := New(identityType())
	require.NoError(t, d.Expand(64))
	for i := 0; i < 64; i++ {
		require.NoError(t, d.Add(i, i))
	}
	require.NoError(t, d.Expand(128))

	// Each lookup or update moves one bucket.
	d.Find(1)
	require.EqualValues(t, 1, d.RehashIndex())
	d.FetchValue(1000)
	require.EqualValues(t, 2, d.RehashIndex())
	d.Replace(5, 50)
	require.EqualValues(t, 3, d.RehashIndex())
	require.NoError(t, d.Delete(6))
	require.EqualValues(t, 4, d.RehashIndex())
	require.NoError(t, d.Add(1000, 1000))
	require.EqualValues(t, 5, d.RehashIndex())

	// The lookup migrates bucket 5 before searching the target.
	v, ok := d.FetchValue(5)
	require.True(t, ok)
	require.EqualValues(t, 50, v)
}

func TestRehashLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := New(mixType(), WithLogger[int, int](zap.New(core)))
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Add(i, i))
	}
	require.EqualValues(t, 1, logs.FilterMessage("dict table allocated").Len())
	started := logs.FilterMessage("dict rehash started").All()
	require.Len(t, started, 1)
	require.EqualValues(t, 4, started[0].ContextMap()["from"])
	require.EqualValues(t, 8, started[0].ContextMap()["to"])
}
