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

import "math/bits"

// nextCursor returns the scan cursor that follows v for a table with the
// given mask.
//
// The cursor is incremented starting from its high order bits: the bits of
// v are reversed, incremented and reversed again. Bits above the mask are
// set first so that the increment carries through them and only the bits
// covered by the mask change. Once every masked bit combination has been
// produced the carry runs off the top and the cursor returns to 0.
//
// Because buckets are selected by hash&mask, growing a table from mask m to
// mask m' splits bucket b into the buckets whose low bits equal b. Walking
// the high bits first visits all those expansions of a prefix before moving
// to the next prefix, so a scan that is interrupted by a resize continues
// without revisiting finished prefixes or skipping new ones. When the table
// shrinks, each smaller bucket covers buckets of the larger table whose
// high-bit variations were either all visited or all ahead of the cursor.
func nextCursor(v, mask uint64) uint64 {
	v |= ^mask
	v = bits.Reverse64(v)
	v++
	return bits.Reverse64(v)
}
