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
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"
)

func BenchmarkDictIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapIter[uint64], genKeys[uint64]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictIter[uint64], genKeys[uint64]))
	})
}

func BenchmarkDictGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapGetHit[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictGetHit[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkDictGetHit[string], genKeys[string]))
	})
}

func BenchmarkDictGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapGetMiss[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictGetMiss[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkDictGetMiss[string], genKeys[string]))
	})
}

func BenchmarkDictPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapPutGrow[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictPutGrow[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkDictPutGrow[string], genKeys[string]))
	})
}

func BenchmarkDictPutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapPutPreAllocate[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutPreAllocate[string], genKeys[string]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictPutPreAllocate[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkDictPutPreAllocate[string], genKeys[string]))
	})
}

func BenchmarkDictPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkRuntimeMapPutDelete[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=dict", func(b *testing.B) {
		b.Run("t=Uint64", benchSizes(benchmarkDictPutDelete[uint64], genKeys[uint64]))
		b.Run("t=String", benchSizes(benchmarkDictPutDelete[string], genKeys[string]))
	})
}

func BenchmarkDictRehash(b *testing.B) {
	b.Run("t=Uint64", benchSizes(benchmarkDictRehash[uint64], genKeys[uint64]))
}

func BenchmarkDictRandomEntry(b *testing.B) {
	b.Run("t=Uint64", benchSizes(benchmarkDictRandomEntry[uint64], genKeys[uint64]))
}

type benchTypes interface {
	uint64 | string
}

var benchSeed = Seed{0: 1, 15: 1}

// benchType returns the Type used for keys of type T.
func benchType[T benchTypes]() Type[T, T] {
	var t T
	switch any(t).(type) {
	case uint64:
		return any(Uint64Type[uint64]()).(Type[T, T])
	case string:
		return any(StringType[string](benchSeed)).(Type[T, T])
	default:
		panic("not reached")
	}
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	var t T
	switch any(t).(type) {
	case uint64:
		keys := make([]uint64, end-start)
		for i := range keys {
			keys[i] = uint64(start + i)
		}
		return any(keys).([]T)
	case string:
		keys := make([]string, end-start)
		for i := range keys {
			keys[i] = strconv.Itoa(start + i)
		}
		return any(keys).([]T)
	default:
		panic("not reached")
	}
}

func newBenchDict[T benchTypes](keys []T) *Dict[T, T] {
	d := New(benchType[T]())
	for _, k := range keys {
		_ = d.Add(k, k)
	}
	d.finishRehash()
	return d
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkDictIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	d := newBenchDict(genKeys(0, n))
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		d.All(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkDictGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	d := newBenchDict(genKeys(0, n))
	miss := genKeys(-n, 0)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = d.FetchValue(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys = genKeys(0, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkDictGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	d := newBenchDict(genKeys(0, n))
	keys := genKeys(0, n)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = d.FetchValue(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkDictPutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	typ := benchType[T]()
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := New(typ)
		for _, k := range keys {
			d.Replace(k, k)
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkDictPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	typ := benchType[T]()
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := New(typ)
		_ = d.Expand(uint64(n))
		for _, k := range keys {
			d.Replace(k, k)
		}
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkDictPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	d := newBenchDict(keys)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		_ = d.Delete(keys[j])
		d.Replace(keys[j], keys[j])
	}
}

func benchmarkDictRehash[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	d := newBenchDict(genKeys(0, n))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Alternate between doubling and shrinking back.
		if i%2 == 0 {
			_ = d.Expand(uint64(d.Slots()) * 2)
		} else {
			_ = d.Resize()
		}
		d.RehashFor(context.Background(), time.Hour)
	}
}

func benchmarkDictRandomEntry[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	d := newBenchDict(genKeys(0, n))
	b.ResetTimer()
	var e *Entry[T, T]
	for i := 0; i < b.N; i++ {
		e = d.RandomEntry()
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, e)
}
