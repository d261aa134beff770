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

// Package sprout implements a compile-time-checked dependency-injection
// framework: components declare what they provide and require, a
// normalizer compiles a finished component into an immutable, lookup
// optimized structure, and an injector lazily constructs the requested
// object graph, one singleton per injector.
package sprout

import (
	"github.com/sprout-di/sprout/internal/typeid"
)

// Component is a typestate handle produced by CreateComponent and mutated
// by the builder operations in builder.go and factory.go.
// Go generics cannot express the compile-time type-level required/provided
// sets the original framework tracks as phantom type parameters (there is
// no way to compute "the set of types provided so far" as a type, only as
// a value), so this module tracks R and P at run time inside the shared
// *builder and poisons the Component the first time an operation detects a
// structural problem; every later operation on a poisoned Component is a
// no-op that returns the same poison unchanged, so the error still
// surfaces at its point of origin.
type Component struct {
	b   *builder
	err *BuildError
}

// builder accumulates the binding entries and provided/required/dependency
// bookkeeping a finished Component will hand to Normalize. It is the
// pre-normalization Component described by spec.md §3, realized as an
// ordinary mutable Go struct behind a pointer shared by every Component
// value that descends from the same CreateComponent() call — builder
// operations mutate it in place and hand back the same handle, the
// idiomatic Go equivalent of the original's copy-on-write typestate value.
type builder struct {
	// provides maps a TypeId to every entry index that provides it. Most
	// of the time this holds exactly one index; more than one means two
	// (possibly conflicting) direct bindings were registered for the same
	// type, which Normalize's N3 phase — not the builder call site itself
	// — is responsible for accepting (if the payloads are identical) or
	// rejecting (spec.md §8 invariant 1, §8 scenario S3). Registering the
	// conflict only at N3 lets the exact same check also catch the
	// cross-sub-component case, where two different install()ed
	// components each bind the type and neither builder call alone could
	// have seen the other.
	provides  map[typeid.ID][]int
	superset  map[typeid.ID]bool
	deps      map[typeid.ID][]typeid.ID
	ifaceBind map[typeid.ID]typeid.ID // interface TypeId -> implementation TypeId, deferred to N2

	entries        []bindingEntry
	multibindings  map[typeid.ID][]bindingEntry
	multibindOrder []typeid.ID
	lazy           []bindingEntry
	replacements   []bindingEntry
}

func newBuilder() *builder {
	return &builder{
		provides:      map[typeid.ID][]int{},
		superset:      map[typeid.ID]bool{},
		deps:          map[typeid.ID][]typeid.ID{},
		ifaceBind:     map[typeid.ID]typeid.ID{},
		multibindings: map[typeid.ID][]bindingEntry{},
	}
}

// CreateComponent returns an empty Component: the starting point of every
// builder chain.
func CreateComponent() Component {
	return Component{b: newBuilder()}
}

// Requires returns the component's current requirement set: rs_superset
// minus ps, per spec.md §3's invariant.
func (c Component) Requires() []typeid.ID {
	out := make([]typeid.ID, 0, len(c.b.superset))
	for id := range c.b.superset {
		if _, ok := c.b.provides[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Provides returns the component's current provided set.
func (c Component) Provides() []typeid.ID {
	out := make([]typeid.ID, 0, len(c.b.provides))
	for id := range c.b.provides {
		out = append(out, id)
	}
	return out
}

// Err returns the error that poisoned this Component, or nil if none of the
// builder operations applied to it have failed yet.
func (c Component) Err() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

// poisoned reports whether c already carries an error — every builder
// operation's very first statement should be `if c, ok := poisoned(c); ok { return c }`.
func poisoned(c Component) (Component, bool) {
	return c, c.err != nil
}

// poison returns c with the given error attached, unless c is already
// poisoned — spec.md §7's "the first error short-circuits."
func poison(c Component, code ErrorCode, msg string, types ...typeid.ID) Component {
	if c.err != nil {
		return c
	}
	return Component{b: c.b, err: &BuildError{Code: code, Types: types, Msg: msg}}
}

// provided reports whether id is already in the provided set, either as a
// direct binding or as a deferred interface binding.
func (b *builder) provided(id typeid.ID) bool {
	if _, ok := b.provides[id]; ok {
		return true
	}
	if _, ok := b.ifaceBind[id]; ok {
		return true
	}
	return false
}

// requireType records id in the requirement superset, to be satisfied
// either by ps or left as a genuine requirement of the final component.
func (b *builder) requireType(id typeid.ID) {
	b.superset[id] = true
}

// addEntry appends entry to the entries vector, registers id as provided at
// that index, records its dependency edge, and adds every dependency to the
// requirement superset. It does not reject a second entry for an id already
// present — see the provides field doc comment — so repeated calls simply
// accumulate entries for Normalize's N3 phase to reconcile.
func (b *builder) addEntry(entry bindingEntry) {
	idx := len(b.entries)
	b.entries = append(b.entries, entry)
	b.provides[entry.id] = append(b.provides[entry.id], idx)
	b.superset[entry.id] = true
	if len(entry.deps) > 0 {
		b.deps[entry.id] = entry.deps
		for _, d := range entry.deps {
			b.requireType(d)
		}
	}
}
