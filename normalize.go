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
	"sort"

	"github.com/sprout-di/sprout/internal/arena"
	"github.com/sprout-di/sprout/internal/ssmap"
	"github.com/sprout-di/sprout/internal/typeid"
)

// NormalizedComponent is the compiled, reusable result of Normalize: the
// deduplicated, dependency-reconciled, binding-compressed form of a
// Component, from which any number of independent Injectors can be built
// cheaply — spec.md §4.4/§4.5's "normalize once, inject many". It holds
// shared, immutable *bindingEntry values; NewInjector and
// NewInjectorFromNormalized each build their own fresh per-node
// construction state around them (see injector.go), so two injectors built
// from the same NormalizedComponent never share singletons (spec.md §5).
//
// A NormalizedComponent may legitimately still have unresolved
// requirements: NewInjector demands they be empty, but
// NewInjectorFromNormalized exists precisely to satisfy them from an extra
// Component supplied at injector-construction time (spec.md §4.5's
// injector-with-requirements flow).
type NormalizedComponent struct {
	nodes     []ssmap.NodeSpec[typeid.ID, *bindingEntry]
	aliases   map[typeid.ID]typeid.ID // interface TypeId -> the concrete TypeId it shares a graph node with
	multibind map[typeid.ID][]*bindingEntry
	provided  map[typeid.ID]bool
	required  []typeid.ID
	arenaHint uintptr
}

// Provides returns every type this normalized component can construct,
// including interface bindings compressed onto their implementation's node.
func (n *NormalizedComponent) Provides() []typeid.ID {
	out := make([]typeid.ID, 0, len(n.provided)+len(n.aliases))
	for id := range n.provided {
		out = append(out, id)
	}
	for id := range n.aliases {
		out = append(out, id)
	}
	return out
}

// Requires returns the component's remaining, unsatisfied requirements.
func (n *NormalizedComponent) Requires() []typeid.ID {
	return append([]typeid.ID(nil), n.required...)
}

// ArenaHint returns the N5 capacity accounting: the sum of
// internal/arena.MaximumRequiredSpace over every binding this component
// would construct. Kept only for parity with spec.md §4.4's N5 phase — the
// arena realized in internal/arena retains values on the ordinary Go heap
// rather than a fixed-size buffer, so this number is informational, never
// load-bearing.
func (n *NormalizedComponent) ArenaHint() uintptr { return n.arenaHint }

// Normalize compiles c into a NormalizedComponent, running spec.md §4.4's
// six phases: N1 expands and deduplicates every Install()ed sub-component
// and resolves replace(...).with(...) pairs; N2 resolves deferred interface
// bindings down to the concrete type each terminates at; N3 assembles the
// dependency graph and rejects a type provided more than once with
// different bindings; N4 compresses each resolved interface binding onto
// its target's graph node instead of giving it a node of its own; N5
// accounts for the arena capacity every construction will need; N6 emits
// the semi-static node list NewInjector/NewInjectorFromNormalized build
// their graphs from.
func Normalize(c Component) (*NormalizedComponent, error) {
	if c.err != nil {
		return nil, c.err
	}

	merged, err := expand(c.b) // N1
	if err != nil {
		if be, ok := err.(*BuildError); ok {
			return nil, be
		}
		return nil, &BuildError{Code: RepeatedType, Msg: err.Error()}
	}

	aliases, err := resolveInterfaces(merged) // N2
	if err != nil {
		return nil, err
	}

	nodes, provided, err := assemble(merged, aliases) // N3 + N4
	if err != nil {
		return nil, err
	}

	required := make([]typeid.ID, 0)
	for id := range merged.superset {
		if provided[id] {
			continue
		}
		if _, ok := aliases[id]; ok {
			continue
		}
		required = append(required, id)
	}
	sort.Slice(required, func(i, j int) bool { return required[i].String() < required[j].String() })

	for iid := range aliases {
		provided[iid] = true
	}

	return &NormalizedComponent{
		nodes:     nodes,
		aliases:   aliases,
		multibind: compileMultibindings(merged),
		provided:  provided,
		required:  required,
		arenaHint: accountArena(merged),
	}, nil
}

// resolveInterfaces is N2: it follows every deferred interface binding
// (possibly chained, I1 bound to I2 bound to a concrete C) down to the
// concrete type it ultimately terminates at.
func resolveInterfaces(b *builder) (map[typeid.ID]typeid.ID, error) {
	aliases := map[typeid.ID]typeid.ID{}
	for iid := range b.ifaceBind {
		terminal, err := resolveChain(b, iid, map[typeid.ID]bool{})
		if err != nil {
			return nil, err
		}
		aliases[iid] = terminal
	}
	return aliases, nil
}

func resolveChain(b *builder, id typeid.ID, seen map[typeid.ID]bool) (typeid.ID, error) {
	if seen[id] {
		return typeid.ID{}, &BuildError{Code: SelfLoop, Types: []typeid.ID{id}, Msg: "interface binding cycle"}
	}
	seen[id] = true
	cid, ok := b.ifaceBind[id]
	if !ok {
		if len(b.provides[id]) == 0 {
			return typeid.ID{}, &BuildError{Code: NoBindingFoundForAbstractClass, Types: []typeid.ID{id}, Msg: "no binding found for the interface's implementation"}
		}
		return id, nil
	}
	return resolveChain(b, cid, seen)
}

// assemble is N3 (dependency-graph assembly, provision-uniqueness and
// acyclicity, spec.md §8 invariants 1 and 3) fused with N4 (binding
// compression, realized as node sharing — see ssmap.Graph's doc comment and
// injector.go: an interface binding never gets a node of its own, so
// "compressing" it is simply never materializing one).
func assemble(b *builder, aliases map[typeid.ID]typeid.ID) ([]ssmap.NodeSpec[typeid.ID, *bindingEntry], map[typeid.ID]bool, error) {
	provided := map[typeid.ID]bool{}
	entries := make(map[typeid.ID]*bindingEntry, len(b.provides))
	nodes := make([]ssmap.NodeSpec[typeid.ID, *bindingEntry], 0, len(b.provides))
	for id, idxs := range b.provides {
		if len(idxs) == 0 {
			continue
		}
		first := b.entries[idxs[0]]
		for _, idx := range idxs[1:] {
			other := b.entries[idx]
			if !entriesEqual(&first, &other) {
				return nil, nil, &BuildError{Code: RepeatedType, Types: []typeid.ID{id}, Msg: "type is provided more than once, with different bindings"}
			}
		}
		entry := first
		entries[id] = &entry
		nodes = append(nodes, ssmap.NodeSpec[typeid.ID, *bindingEntry]{Key: id, Value: &entry, Deps: entry.deps})
		provided[id] = true
	}
	if err := checkAcyclic(entries, aliases); err != nil {
		return nil, nil, err
	}
	return nodes, provided, nil
}

// entriesEqual reports whether a and b are structurally identical
// registrations of the same binding rather than a genuine conflict — two
// Install()ed sub-components that each register the same default instance
// or the same constructor for a type must dedupe silently (spec.md §8
// invariant 1), while two different instances or constructors for the same
// type must still be rejected. Equality of create, a fresh closure built
// per builder call, is never meaningful here; ctorPtr carries the identity
// of the underlying func value instead.
func entriesEqual(a, b *bindingEntry) bool {
	if a.kind != b.kind || a.id != b.id || a.valueType != b.valueType {
		return false
	}
	switch a.kind {
	case kindConstructedObject, kindMultibindingConstructed:
		return a.instance.IsValid() && b.instance.IsValid() &&
			reflect.DeepEqual(a.instance.Interface(), b.instance.Interface())
	case kindObjectToConstructWithAllocation, kindObjectToConstructNoAllocation, kindMultibindingToConstruct:
		return a.ctorPtr != 0 && a.ctorPtr == b.ctorPtr
	default:
		return false
	}
}

// checkAcyclic is N3's acyclicity check (spec.md §8 invariant 3, §4.5 point
// 5): a cycle among direct dependency edges must be rejected here as a
// BuildError, not left to surface later as a runtime CyclicGet. A
// Provider[T] parameter never contributes an edge (see paramDepID), so a
// cycle that only closes through a Provider[T] indirection is — correctly —
// invisible to this check; it is still caught, lazily, at Get time.
func checkAcyclic(entries map[typeid.ID]*bindingEntry, aliases map[typeid.ID]typeid.ID) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[typeid.ID]int, len(entries))
	var path []typeid.ID

	canonical := func(id typeid.ID) typeid.ID {
		if cid, ok := aliases[id]; ok {
			return cid
		}
		return id
	}

	var visit func(id typeid.ID) error
	visit = func(id typeid.ID) error {
		id = canonical(id)
		switch color[id] {
		case black:
			return nil
		case gray:
			cycle := append(append([]typeid.ID(nil), path...), id)
			return &BuildError{Code: SelfLoop, Types: cycle, Msg: "dependency cycle detected among direct bindings"}
		}
		entry, ok := entries[id]
		if !ok {
			return nil
		}
		color[id] = gray
		path = append(path, id)
		for _, dep := range entry.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	ids := make([]typeid.ID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func compileMultibindings(b *builder) map[typeid.ID][]*bindingEntry {
	out := make(map[typeid.ID][]*bindingEntry, len(b.multibindings))
	for id, entries := range b.multibindings {
		list := make([]*bindingEntry, len(entries))
		for i := range entries {
			e := entries[i]
			list[i] = &e
		}
		out[id] = list
	}
	return out
}

// accountArena is N5: the sum of every owning binding's
// arena.MaximumRequiredSpace, matching the original's arena size pass
// exactly in spirit, only feeding ArenaHint instead of an actual allocation.
func accountArena(b *builder) uintptr {
	var total uintptr
	for _, e := range b.entries {
		if e.ownsMemory {
			total += arena.MaximumRequiredSpace(e.id)
		}
	}
	for _, entries := range b.multibindings {
		for _, e := range entries {
			if e.kind == kindMultibindingToConstruct {
				total += arena.MaximumRequiredSpace(e.id)
			}
		}
	}
	return total
}
