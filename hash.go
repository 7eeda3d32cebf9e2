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
	"crypto/rand"
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/pkg/errors"
)

// Seed is the 128-bit key of the keyed hash used by the string Types.
// Keying the hash with a secret seed keeps an attacker who controls the
// keys from forcing collisions.
type Seed [16]byte

// NewSeed returns a Seed read from a cryptographically secure source.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, errors.Wrap(err, "reading hash seed")
	}
	return s, nil
}

func (s Seed) keys() (k0, k1 uint64) {
	return binary.LittleEndian.Uint64(s[:8]), binary.LittleEndian.Uint64(s[8:])
}

// GenHash returns the SipHash-2-4 of b keyed by seed.
func GenHash(seed Seed, b []byte) uint64 {
	k0, k1 := seed.keys()
	return siphash.Hash(k0, k1, b)
}

// GenCaseHash is like GenHash but ASCII letters are hashed as lower case,
// so keys differing only in ASCII case hash the same.
func GenCaseHash(seed Seed, b []byte) uint64 {
	lower := make([]byte, len(b))
	for i, c := range b {
		lower[i] = toLower(c)
	}
	return GenHash(seed, lower)
}

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// equalFoldASCII reports whether a and b are equal ignoring ASCII case. It
// matches GenCaseHash, which strings.EqualFold's Unicode folding does not.
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}
	return true
}

// stringBytes returns the bytes of s without copying. The result must not
// be modified.
func stringBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// StringType returns a Type for string keys hashed with GenHash.
func StringType[V any](seed Seed) Type[string, V] {
	return Type[string, V]{
		Hash: func(key string) uint64 {
			return GenHash(seed, stringBytes(key))
		},
	}
}

// CaseInsensitiveStringType returns a Type for string keys that compare
// equal regardless of ASCII case.
func CaseInsensitiveStringType[V any](seed Seed) Type[string, V] {
	return Type[string, V]{
		Hash: func(key string) uint64 {
			return GenCaseHash(seed, stringBytes(key))
		},
		KeyCompare: equalFoldASCII,
	}
}

// Uint64Type returns a Type for integer keys hashed with xxhash. The hash
// is not keyed, so it should only be used for keys that are not chosen by
// an untrusted party.
func Uint64Type[V any]() Type[uint64, V] {
	return Type[uint64, V]{
		Hash: func(key uint64) uint64 {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], key)
			return xxhash.Sum64(buf[:])
		},
	}
}
