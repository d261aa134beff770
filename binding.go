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

	"github.com/sprout-di/sprout/internal/typeid"
)

// bindingKind discriminates the payload a bindingEntry carries, mirroring
// spec.md §3's BindingKind sum type. Go has no tagged unions, so this is
// realized the ordinary Go way: one struct with a kind tag and the fields
// relevant to that kind populated, the rest left zero.
type bindingKind uint8

const (
	kindConstructedObject bindingKind = iota
	kindObjectToConstructWithAllocation
	kindObjectToConstructNoAllocation
	kindCompressedBinding // never constructed; see normalize.go's assemble
	kindMultibindingConstructed
	kindMultibindingToConstruct
	kindMultibindingVectorCreator
	kindLazyComponent
	kindReplacedLazyComponent
	kindReplacementLazyComponent
	kindEndMarker
)

// createFunc is the per-binding construction thunk: spec.md §9's
// "void*-erased create callback." resolveState carries the re-entrant
// visiting set used for cycle detection (see injector.go).
type createFunc func(inj *Injector, rs *resolveState) (reflect.Value, error)

// bindingEntry is one entry of the builder's entries vector (spec.md §3's
// "Binding entry = { kind, type_id, payload }").
type bindingEntry struct {
	kind bindingKind
	id   typeid.ID

	// valueType is the static Go type a resolved reflect.Value for id will
	// have — an interface type for an interface binding, a concrete type
	// otherwise. Needed because interface-typed nodes must be materialized
	// via reflect.New(valueType) to get a settable interface slot.
	valueType reflect.Type

	// ConstructedObject / MultibindingConstructed: an externally-owned
	// value, never destroyed by the injector.
	instance reflect.Value

	// ObjectToConstructWithAllocation / NoAllocation / MultibindingToConstruct
	create     createFunc
	deps       []typeid.ID
	ownsMemory bool // true: arena-owned allocation; false: externally-returned pointer/value

	// ctorPtr is the original constructor/provider/factory func's own
	// identity (reflect.Value.Pointer of the func the caller passed in),
	// recorded separately from create — a fresh closure built per builder
	// call — so Normalize's N3 phase can tell a structurally identical
	// re-registration of the same function (silently deduplicated) from a
	// genuine conflict (spec.md §8 invariant 1). Zero for entries with no
	// create function.
	ctorPtr uintptr

	// CompressedBinding. Unused: compression is realized as node sharing
	// in normalize.go/injector.go instead of a dedicated entry kind.
	interfaceID typeid.ID
	classID     typeid.ID

	// LazyComponent
	fn        func(Component) Component
	fnPtr     uintptr
	args      any
	argsEqual func(a, b any) bool
	argsHash  func(a any) uint64

	// ReplacedLazyComponent / ReplacementLazyComponent
	replacedFnPtr uintptr
	replacement   *bindingEntry
}
