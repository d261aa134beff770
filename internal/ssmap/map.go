// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
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

// Package ssmap implements the semi-static map and graph described in
// spec.md §4.2: a perfect-hash-style table built once from a known key set,
// offering O(1) lookup, plus additive extension (WithAdded) that builds a
// new table and leaves the original one intact. The construction algorithm (multiplicative hash with a
// bounded re-roll loop, β=4 bucket cap) is ported directly from
// original_source/include/fruit/impl/data_structures/semistatic_map.templates.h.
package ssmap

import (
	"math/rand/v2"
)

// beta bounds the number of colliding keys any single bucket may hold
// before a hash-function pick is rejected and re-rolled. Matches the
// original's `beta = 4`.
const beta = 4

// maxRerolls bounds how many random hash-function parameters are tried at a
// given table size before growing the table by one bit, turning an
// unbounded "roll until it works" loop (fine for a one-shot C++ build step)
// into a bounded one, per spec.md §4.2 ("re-roll up to a small bounded
// number of times before falling back to a larger table").
const maxRerolls = 100

// Hashable is the key constraint for Map: keys must produce a process-local
// hash (see typeid.ID.Hash) and support ==.
type Hashable interface {
	comparable
	Hash() uintptr
}

// Pair is one (key, value) entry supplied to New or WithAdded.
type Pair[K Hashable, V any] struct {
	Key   K
	Value V
}

// hashFunction implements the multiplicative hash h(x) = (a*x) >> shift
// described by spec.md §4.2.
type hashFunction struct {
	a     uint64
	shift uint
}

func (h hashFunction) hash(x uintptr) uint64 {
	return (h.a * uint64(x)) >> h.shift
}

// bucket is a half-open range [begin, end) into values.
type bucket struct {
	begin, end int
}

// Map is a semi-static perfect-hash map from K to V. The zero Map is
// invalid; construct one with New or WithAdded.
type Map[K Hashable, V any] struct {
	fn     hashFunction
	table  []bucket
	values []Pair[K, V]
}

// New builds a Map from a known, fixed set of pairs. Keys must be unique;
// behavior is undefined (a later pair silently shadows an earlier one) if
// they are not.
func New[K Hashable, V any](pairs []Pair[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.build(pairs)
	return m
}

// numBits picks the smallest table size (as a power-of-two bit count) that
// gives the construction loop below a realistic chance of keeping every
// bucket under beta entries: roughly n/beta buckets, rounded up to the next
// power of two, with a floor of 1 bucket.
func numBits(n int) uint {
	buckets := (n + beta - 1) / beta
	if buckets < 1 {
		buckets = 1
	}
	var bits uint
	for (1 << bits) < buckets {
		bits++
	}
	return bits
}

func (m *Map[K, V]) build(pairs []Pair[K, V]) {
	n := len(pairs)
	bits := numBits(n)
	shift := uint(64) - bits

	for {
		numBuckets := 1 << bits
		counts := make([]int, numBuckets)
		fn := hashFunction{a: rollA(), shift: shift}

		ok := true
		for _, p := range pairs {
			h := fn.hash(p.Key.Hash())
			counts[h]++
			if counts[h] >= beta {
				ok = false
				break
			}
		}
		if !ok {
			// Bounded re-roll: try a handful more random `a` values at this
			// table size before conceding it needs to grow.
			rerolled := false
			for try := 1; try < maxRerolls; try++ {
				fn.a = rollA()
				for i := range counts {
					counts[i] = 0
				}
				ok = true
				for _, p := range pairs {
					h := fn.hash(p.Key.Hash())
					counts[h]++
					if counts[h] >= beta {
						ok = false
						break
					}
				}
				if ok {
					rerolled = true
					break
				}
			}
			if !rerolled {
				bits++
				shift = uint(64) - bits
				continue
			}
		}

		// Prefix-sum counts into bucket start offsets, matching the
		// original's std::partial_sum over per-bucket counts.
		table := make([]bucket, numBuckets)
		offset := 0
		for i, c := range counts {
			table[i] = bucket{begin: offset, end: offset}
			offset += c
		}

		values := make([]Pair[K, V], n)
		cursor := make([]int, numBuckets)
		for i := range table {
			cursor[i] = table[i].begin
		}
		for _, p := range pairs {
			h := fn.hash(p.Key.Hash())
			idx := cursor[h]
			values[idx] = p
			cursor[h]++
			table[h].end = cursor[h]
		}

		m.fn = fn
		m.table = table
		m.values = values
		return
	}
}

func rollA() uint64 {
	return rand.Uint64() | 1 // odd multiplier spreads bits marginally better
}

// At returns the value for key. The caller must have already established
// that key is present (e.g. via Find); calling At for a missing key panics,
// mirroring the original's documented undefined behavior but choosing a
// safe, loud failure instead of silently reading garbage.
func (m *Map[K, V]) At(key K) V {
	v, ok := m.find(key)
	if !ok {
		panic("ssmap: At called for a key that is not present")
	}
	return v
}

// Find returns the value for key and true, or the zero value and false if
// key is not present.
func (m *Map[K, V]) Find(key K) (V, bool) {
	return m.find(key)
}

func (m *Map[K, V]) find(key K) (V, bool) {
	h := m.fn.hash(key.Hash())
	b := m.table[h]
	for i := b.begin; i < b.end; i++ {
		if m.values[i].Key == key {
			return m.values[i].Value, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of entries currently stored.
func (m *Map[K, V]) Len() int { return len(m.values) }

// WithAdded returns a new Map holding every pair of m plus the supplied
// additional pairs. Keys in added must not already be present in m. m
// itself is left untouched and remains valid and usable (spec.md §4.2's
// "additive construction" contract).
//
// The original C++ SemistaticMap shares the old table's storage and only
// allocates space for the new elements, trading a slower lookup path for
// added keys against avoiding a full rebuild. This module always rebuilds
// the table from scratch instead: Go's garbage collector makes the
// resulting double allocation cheap relative to the bookkeeping needed to
// splice new buckets into a shared table. Every key, old or new, is found
// in the returned Map, the old Map stays valid, and lookup is O(1) for old
// and added keys alike. DESIGN.md
// records this as a deliberate simplification over the arena-sharing
// original.
func (m *Map[K, V]) WithAdded(added []Pair[K, V]) *Map[K, V] {
	if len(added) == 0 {
		clone := *m
		return &clone
	}
	combined := make([]Pair[K, V], 0, len(m.values)+len(added))
	combined = append(combined, m.values...)
	combined = append(combined, added...)
	return New(combined)
}

// All iterates every (key, value) pair currently stored, in unspecified
// order — spec.md §4.2 notes ordering is not preserved.
func (m *Map[K, V]) All(yield func(K, V) bool) {
	for _, p := range m.values {
		if !yield(p.Key, p.Value) {
			return
		}
	}
}
