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

// Package arena provides the fixed-capacity construction arena an injector
// allocates once per normalized component, plus the LIFO destructor stack
// that runs when the injector is torn down. It is grounded on
// original_source/include/fruit/impl/storage/fixed_size_allocator.h, with
// one necessary divergence: the original bump-allocates raw, untyped bytes
// (`new char[max_space]`) and placement-news objects into them, sizing the
// buffer exactly via MaximumRequiredSpace. Go's garbage collector does not
// recognize a []byte as holding typed, pointer-containing values, so
// placing GC-managed objects into one would silently break the collector.
// Arena instead pre-sizes a slice of `any` (so the values it holds are on
// the ordinary Go heap, scanned normally by the GC) and uses
// MaximumRequiredSpace purely for the normalizer's N5 size-accounting
// estimate, not for carving up real memory.
package arena

import (
	"reflect"
	"sync"

	"github.com/sprout-di/sprout/internal/reflectutil"
	"github.com/sprout-di/sprout/internal/typeid"
)

// MaximumRequiredSpace returns the upper bound on bytes a single instance of
// the type identified by id could need once alignment padding is accounted
// for — align + size - 1, exactly as the original's
// FixedSizeAllocator::maximumRequiredSpace. The normalizer's N5 phase sums
// this over every owning binding to arrive at a component's total arena
// size (sprout's NormalizedComponent.ArenaHint). That total is
// informational only: Arena.New is sized by the injector's node count, not
// by this byte count.
func MaximumRequiredSpace(id typeid.ID) uintptr {
	return typeid.Align(id) + typeid.Size(id) - 1
}

// Arena owns every object constructed for one injector's lifetime, plus the
// LIFO list of destructors to run when the injector is closed. The zero
// Arena is usable; New merely pre-sizes its backing slice.
type Arena struct {
	mu          sync.Mutex
	values      []any
	destructors []func()
	closed      bool
}

// New returns an Arena whose backing slice is pre-sized for capacity
// objects, avoiding reallocation during normal injector construction.
func New(capacity int) *Arena {
	return &Arena{values: make([]any, 0, capacity)}
}

// Construct allocates a new value of typ (via internal/reflectutil.New),
// retains it for the arena's lifetime so it cannot be collected out from
// under an injector, and returns the addressable reflect.Value to
// initialize.
func (a *Arena) Construct(typ reflect.Type) reflect.Value {
	rv := reflectutil.New(typ)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic("arena: Construct called on a closed Arena")
	}
	a.values = append(a.values, rv.Addr().Interface())
	return rv
}

// PushDestructor registers fn to run when Close is called, before any
// destructor registered earlier — this is the arena's half of spec.md
// §4.1's "LIFO destructor list" invariant I-LIFO; the other half
// (registration order matching construction order) is the injector
// engine's responsibility.
func (a *Arena) PushDestructor(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destructors = append(a.destructors, fn)
}

// Close runs every registered destructor in LIFO order, then marks the
// arena closed; a closed Arena may no longer Construct. Close is safe to
// call exactly once; calling it again panics, since running destructors
// twice would double-release whatever resources they guard.
func (a *Arena) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		panic("arena: Close called twice")
	}
	a.closed = true
	fns := a.destructors
	a.destructors = nil
	a.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Len returns the number of values currently retained by the arena.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.values)
}
