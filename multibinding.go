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

// multibindRecord is the injector-side payload for one multibound
// interface: every contributor is constructed exactly once, the first time
// a GetMultibindings[T] call (or EagerlyInjectAll) reaches it,
// mirroring nodeRecord's sync.Once-per-node strategy for ordinary
// bindings.
type multibindRecord struct {
	entries []*bindingEntry

	once   sync.Once
	values []reflect.Value
	err    error

	convMu sync.Mutex
	conv   map[reflect.Type]any // T's reflect.Type -> the cached []T, for stable identity across repeat calls
}

// GetMultibindings resolves every contributor registered against I via
// AddMultibinding/AddInstanceMultibinding, constructing each on first call
// and returning the identical []T value (spec.md §8 invariant 9) on every
// later call for this injector. It returns nil if I has no multibinding
// registered at all, and panics with the construction error (a Class B
// RuntimeError such as NilMultibindingResult) if a contributor fails.
func GetMultibindings[T any](inj *Injector) []T {
	id := typeid.Of[T]()
	rec, ok := inj.multi[id]
	if !ok {
		return nil
	}

	constructMultibinding(inj, rec)
	if rec.err != nil {
		panic(rec.err)
	}

	rt := reflect.TypeFor[T]()
	rec.convMu.Lock()
	defer rec.convMu.Unlock()
	if cached, ok := rec.conv[rt]; ok {
		return cached.([]T)
	}
	out := make([]T, len(rec.values))
	for i, v := range rec.values {
		out[i], _ = v.Interface().(T)
	}
	if rec.conv == nil {
		rec.conv = map[reflect.Type]any{}
	}
	rec.conv[rt] = out
	return out
}

// constructMultibinding runs rec's construction exactly once, independent
// of which T a caller eventually asks GetMultibindings for — EagerlyInjectAll
// also drives this directly, since it only has rec's TypeId, never a
// concrete T to instantiate GetMultibindings with.
func constructMultibinding(inj *Injector, rec *multibindRecord) {
	rec.once.Do(func() {
		rs := newResolveState()
		vals := make([]reflect.Value, 0, len(rec.entries))
		for _, e := range rec.entries {
			v, err := resolveMultibindingEntry(inj, rs, e)
			if err != nil {
				rec.err = err
				return
			}
			vals = append(vals, v)
		}
		rec.values = vals
	})
}

func resolveMultibindingEntry(inj *Injector, rs *resolveState, e *bindingEntry) (reflect.Value, error) {
	if e.create == nil {
		return e.instance, nil
	}
	v, err := e.create(inj, rs)
	if err != nil {
		return reflect.Value{}, err
	}
	if e.ownsMemory {
		registerDestructor(inj, v)
	}
	return v, nil
}
