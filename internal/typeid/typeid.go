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

// Package typeid produces a stable, hashable, pointer-comparable identifier
// for every distinct Go type the DI core sees, plus the size/alignment/name
// facts the injector's arena needs. Exactly one descriptor exists per
// distinct type (or annotated type), addressed by its own address — this
// gives O(1) equality and hashing, the same trick
// deep-rent/nexus/di.Slot[T]/NewSlot uses to key its binding map off a
// pointer rather than a reflect.Type or a string.
package typeid

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// Tag marks a type as usable as a compile-time annotation. An Annotation
// combined with a type T yields a distinct ID from T's own: Ann[A, T] is
// semantically a different type from T, and may be bound independently of
// it. Tag has no methods, so any type (typically an empty struct declared
// by the caller, in any package) can serve as an annotation; the named
// constraint only marks the role of OfAnnotated's first type parameter.
type Tag interface{}

// ID is the opaque, comparable identifier described by spec.md §3. Two IDs
// are equal iff they were produced by the same call to Of/OfAnnotated for
// the same (annotation, type) pair; the zero ID is never valid and is
// returned only as an error sentinel.
type ID struct {
	d *descriptor
}

// descriptor is the single per-type record interned in the registry below.
// Its own address is its identity, so ID is just a thin pointer wrapper.
type descriptor struct {
	name    string
	size    uintptr
	align   uintptr
	trivial bool
}

// IsValid reports whether id was produced by Of/OfAnnotated (as opposed to
// being the zero ID).
func (id ID) IsValid() bool { return id.d != nil }

// Hash returns a process-local hash suitable for hash-table buckets. Because
// descriptors are interned and never moved, the pointer's own bit pattern is
// already an excellent hash — this is the same trick the semi-static map's
// multiplicative hash is layered on top of in internal/ssmap.
func (id ID) Hash() uintptr {
	return uintptr(unsafe.Pointer(id.d))
}

// String returns the human-readable name of the type this ID identifies.
func (id ID) String() string {
	if id.d == nil {
		return "<invalid TypeID>"
	}
	return id.d.name
}

// registry interns one descriptor per (annotation, type) pair. reflect.Type
// values returned by reflect.TypeOf are themselves already interned by the
// runtime, so using one as a map key is safe and comparable.
var (
	mu       sync.Mutex
	byType   = map[reflect.Type]*descriptor{}
	byAnnTyp = map[[2]reflect.Type]*descriptor{}
)

// Of returns the stable ID for T, registering it on first use. Subsequent
// calls for the same T are O(1) and return the identical ID.
func Of[T any]() ID {
	rt := reflect.TypeFor[T]()
	mu.Lock()
	defer mu.Unlock()
	d, ok := byType[rt]
	if !ok {
		d = newDescriptor(rt)
		byType[rt] = d
	}
	return ID{d}
}

// OfAnnotated returns the stable ID for the annotated type Ann[A, T]. It is
// guaranteed to differ from Of[T]() and from OfAnnotated for any other
// annotation A2, even though no runtime value of type A is ever
// constructed — A is a zero-sized compile-time tag, per spec.md §3.
func OfAnnotated[A Tag, T any]() ID {
	rt := reflect.TypeFor[T]()
	ra := reflect.TypeFor[A]()
	key := [2]reflect.Type{ra, rt}
	mu.Lock()
	defer mu.Unlock()
	d, ok := byAnnTyp[key]
	if !ok {
		d = newDescriptor(rt)
		d.name = fmt.Sprintf("%s<%s>", ra.Name(), d.name)
		byAnnTyp[key] = d
	}
	return ID{d}
}

// OfReflect returns the stable ID for an unannotated reflect.Type known only
// at run time — used by the reflection-driven constructor/provider/factory
// signature inference in the builder, where T is not available as a Go type
// parameter.
func OfReflect(rt reflect.Type) ID {
	mu.Lock()
	defer mu.Unlock()
	d, ok := byType[rt]
	if !ok {
		d = newDescriptor(rt)
		byType[rt] = d
	}
	return ID{d}
}

func newDescriptor(rt reflect.Type) *descriptor {
	return &descriptor{
		name:    rt.String(),
		size:    rt.Size(),
		align:   uintptr(rt.Align()),
		trivial: isTriviallyDestructible(rt),
	}
}

// isTriviallyDestructible reports whether values of rt carry no resources
// that a Destructor would need to release, purely as a hint for arena
// bookkeeping (spec.md §4.1's "whether destruction is trivial" fact). Unlike
// the C++ original this is not a language-enforced trait — Go has no
// destructors — so it is only used by the injector (node.go's
// registerDestructor) to skip the Close check for an arena-owned value
// that cannot hold a Closer.
func isTriviallyDestructible(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if !isTriviallyDestructible(rt.Field(i).Type) {
				return false
			}
		}
		return true
	case reflect.Array:
		return isTriviallyDestructible(rt.Elem())
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return false
	default:
		return true
	}
}

// Size returns the in-memory size in bytes of the type identified by id.
func Size(id ID) uintptr { return id.d.size }

// Align returns the required alignment in bytes of the type identified by id.
func Align(id ID) uintptr { return id.d.align }

// Name returns the human-readable type name, identical to id.String().
func Name(id ID) string { return id.String() }

// TriviallyDestructible reports whether the type identified by id needs no
// destructor bookkeeping of its own (see isTriviallyDestructible).
func TriviallyDestructible(id ID) bool { return id.d.trivial }
