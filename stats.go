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
	"fmt"
	"strings"
)

// statsVectLen is the number of chain length histogram buckets. The last
// bucket counts every chain of length statsVectLen-1 or longer.
const statsVectLen = 50

// TableStats describes the bucket occupancy of one table of a Dict.
type TableStats struct {
	// Table is 0 for the active table and 1 for the rehash target.
	Table int
	Size  uint64
	Used  uint64
	// Slots is the number of non-empty buckets.
	Slots          uint64
	MaxChainLen    uint64
	TotalChainLen  uint64
	ChainLenCounts [statsVectLen]uint64
}

// Stats returns the occupancy of the active table and, while rehashing, of
// the rehash target.
func (d *Dict[K, V]) Stats() []TableStats {
	stats := []TableStats{d.ht.stats(0)}
	if d.rehash != nil {
		stats = append(stats, d.rehash.target.stats(1))
	}
	return stats
}

func (t *table[K, V]) stats(id int) TableStats {
	s := TableStats{Table: id, Size: t.size, Used: t.used}
	if t.used == 0 {
		return s
	}
	for _, he := range t.buckets {
		if he == nil {
			s.ChainLenCounts[0]++
			continue
		}
		s.Slots++
		var chainLen uint64
		for ; he != nil; he = he.next {
			chainLen++
		}
		s.ChainLenCounts[min(chainLen, statsVectLen-1)]++
		s.MaxChainLen = max(s.MaxChainLen, chainLen)
		s.TotalChainLen += chainLen
	}
	return s
}

// String formats the stats as a human readable report.
func (s TableStats) String() string {
	if s.Used == 0 {
		return "No stats available for empty dictionaries\n"
	}
	name := "main hash table"
	if s.Table == 1 {
		name = "rehashing target"
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "Hash table %d stats (%s):\n", s.Table, name)
	fmt.Fprintf(&buf, " table size: %d\n", s.Size)
	fmt.Fprintf(&buf, " number of elements: %d\n", s.Used)
	fmt.Fprintf(&buf, " different slots: %d\n", s.Slots)
	fmt.Fprintf(&buf, " max chain length: %d\n", s.MaxChainLen)
	fmt.Fprintf(&buf, " avg chain length (counted): %.02f\n", float64(s.TotalChainLen)/float64(s.Slots))
	fmt.Fprintf(&buf, " avg chain length (computed): %.02f\n", float64(s.Used)/float64(s.Slots))
	buf.WriteString(" Chain length distribution:\n")
	for i, n := range s.ChainLenCounts {
		if n == 0 {
			continue
		}
		prefix := ""
		if i == statsVectLen-1 {
			prefix = ">= "
		}
		fmt.Fprintf(&buf, "   %s%d: %d (%.02f%%)\n", prefix, i, n, float64(n)/float64(s.Size)*100)
	}
	return buf.String()
}

// FormatStats returns the human readable report of Stats.
func (d *Dict[K, V]) FormatStats() string {
	var buf strings.Builder
	for _, s := range d.Stats() {
		buf.WriteString(s.String())
	}
	return buf.String()
}
