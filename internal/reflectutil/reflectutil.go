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

// Package reflectutil provides small reflection-based helpers shared by the
// builder, normalizer and injector. They back the "RegisterType"-style
// construction path: producing a zero/nil instance for a bound type and
// following pointer indirection the way a created object's dependency edges
// are walked.
package reflectutil

import "reflect"

// Alloc allocates a new value for a nil pointer and sets the pointer to it.
//
// This function causes a panic if rv is not a settable pointer.
func Alloc(rv reflect.Value) {
	rv.Set(reflect.New(rv.Type().Elem()))
}

// Deref follows pointers until it reaches a non-pointer, allocating if nil.
//
// If a nil pointer is encountered along the way, Deref will attempt to allocate
// a new value for it. If it encounters an un-settable nil pointer (e.g., one
// within an unexported struct field), it stops and returns that pointer to
// prevent a panic. The final, non-pointer value is returned.
func Deref(rv reflect.Value) reflect.Value {
	// Loop through multi-level pointers to handle cases like **int.
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			// If the pointer is nil but cannot be set, we must stop
			// here to avoid a panic.
			if !rv.CanSet() {
				break
			}
			Alloc(rv)
		}
		rv = rv.Elem()
	}
	return rv
}

// New constructs a new, addressable zero value of typ using reflect.New and
// returns it dereferenced to its element — the realization of spec.md's
// RegisterType contract ("when resolved, new zero/nil instance is created").
// For a pointer type, the pointer itself (pointing at a freshly allocated
// zero value) is returned instead.
func New(typ reflect.Type) reflect.Value {
	if typ.Kind() == reflect.Pointer {
		return reflect.New(typ.Elem())
	}
	return reflect.New(typ).Elem()
}
