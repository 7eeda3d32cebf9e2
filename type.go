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

// Type is the set of per-key-type behaviors a Dict is generic over. Only
// Hash is required. The remaining fields are optional and a nil field
// selects the documented fallback.
//
// The following requirements are the user's responsibility:
//   - KeyCompare(a, b) => Hash(a) == Hash(b)
//   - Hash must be deterministic for the lifetime of the Dict.
type Type[K comparable, V any] struct {
	// Hash places a key in a bucket.
	Hash func(key K) uint64
	// KeyCompare reports whether two keys are equal. If nil, keys are
	// compared with ==.
	KeyCompare func(k1, k2 K) bool
	// KeyDup is applied to a key when it is inserted. If nil, the key is
	// stored as is.
	KeyDup func(key K) K
	// ValDup is applied to a value when it is stored. If nil, the value is
	// stored as is.
	ValDup func(value V) V
	// KeyDestructor is called when an entry's key is released on delete,
	// clear or close.
	KeyDestructor func(key K)
	// ValDestructor is called when a value is released on delete,
	// overwrite, clear or close.
	ValDestructor func(value V)
}

// compareKeys reports whether two keys are equal. KeyCompare is
// authoritative when set: == may panic for interface keys holding
// uncomparable values.
func (d *Dict[K, V]) compareKeys(k1, k2 K) bool {
	if d.typ.KeyCompare != nil {
		return d.typ.KeyCompare(k1, k2)
	}
	return k1 == k2
}

func (d *Dict[K, V]) setKey(e *Entry[K, V], key K) {
	if d.typ.KeyDup != nil {
		key = d.typ.KeyDup(key)
	}
	e.key = key
}

// SetVal stores value in e, applying the Type's ValDup. It does not
// release the previous value.
func (d *Dict[K, V]) SetVal(e *Entry[K, V], value V) {
	if d.typ.ValDup != nil {
		value = d.typ.ValDup(value)
	}
	e.value = value
}

func (d *Dict[K, V]) freeKey(key K) {
	if d.typ.KeyDestructor != nil {
		d.typ.KeyDestructor(key)
	}
}

func (d *Dict[K, V]) freeVal(value V) {
	if d.typ.ValDestructor != nil {
		d.typ.ValDestructor(value)
	}
}
