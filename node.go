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

package sprout

import (
	"reflect"
	"sync"

	"github.com/sprout-di/sprout/internal/typeid"
)

// nodeRecord is the injector-side graph node payload — spec.md §3's
// NormalizedBinding. The original packs "constructed or not" and "the
// stored pointer or the create thunk" into a single tagged machine word;
// this realization keeps them as an ordinary struct instead (see
// internal/ssmap's doc comment on Graph for why) with a sync.Once
// providing the "construct exactly once, block concurrent callers until
// done" guarantee spec.md §4.5 describes as a re-entrant-mutex-protected
// terminal check.
type nodeRecord struct {
	entry *bindingEntry
	once  sync.Once
	value reflect.Value
	err   error
}

// resolveState threads the re-entrant "visiting" set through one top-level
// Get call's entire construction chain, the Go realization of spec.md
// §4.5's re-entrant mutex: a provider.Get[T]() call made from inside
// another constructor on the same call chain must neither deadlock nor
// silently recurse forever if T's construction (transitively) asks for
// itself — it must be detected, matching point 5 of §4.5.
type resolveState struct {
	visiting map[typeid.ID]bool
}

func newResolveState() *resolveState {
	return &resolveState{visiting: map[typeid.ID]bool{}}
}

// resolveValue resolves the value for id against inj, constructing it (and
// recursively its dependencies) if this is the first request for id on
// this injector.
func resolveValue(inj *Injector, rs *resolveState, id typeid.ID) (reflect.Value, error) {
	n, ok := inj.graph.Find(id)
	if !ok {
		return reflect.Value{}, fail(UnboundType, "type not provided by this injector", id)
	}
	rec := *n.GetNode() // Graph's payload type is *nodeRecord; GetNode returns a pointer to that slot.
	return resolveNode(inj, rs, id, rec)
}

func resolveNode(inj *Injector, rs *resolveState, id typeid.ID, rec *nodeRecord) (reflect.Value, error) {
	if rec.entry.create == nil {
		// ConstructedObject / externally-owned instance: already a value,
		// no construction and no destruction bookkeeping needed.
		return rec.entry.instance, nil
	}

	if rs.visiting[id] {
		return reflect.Value{}, fail(CyclicGet, "construction cycle detected reaching back into an in-progress Get", id)
	}
	rs.visiting[id] = true
	defer delete(rs.visiting, id)

	rec.once.Do(func() {
		v, err := rec.entry.create(inj, rs)
		if err != nil {
			rec.err = err
			return
		}
		if rec.entry.ownsMemory {
			registerDestructor(inj, v)
		}
		rec.value = v
	})
	if rec.err != nil {
		return reflect.Value{}, rec.err
	}
	return rec.value, nil
}

// closer is the interface a constructed, arena-owned, non-trivially
// destructible value may implement to be cleaned up on injector teardown —
// the Go analogue of spec.md §4.1's "is_trivially_destructible" fact, which
// in a language without destructors can only mean "does this object need
// an explicit release step at all". A type is skipped entirely when
// typeid.TriviallyDestructible reports true for it, short-circuiting the
// reflect.Type.Implements check on the hot path for the common case.
type closer interface {
	Close() error
}

func registerDestructor(inj *Injector, v reflect.Value) {
	target := v
	if target.Kind() != reflect.Pointer && target.CanAddr() {
		target = target.Addr()
	}
	if !target.CanInterface() {
		return
	}
	id := typeid.OfReflect(derefType(v.Type()))
	if typeid.TriviallyDestructible(id) {
		return
	}
	if cl, ok := target.Interface().(closer); ok {
		inj.arena.PushDestructor(func() { _ = cl.Close() })
	}
}

func derefType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}
