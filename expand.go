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

// expansion carries the bookkeeping N1 needs across the whole recursive
// walk of Install()ed sub-components: which (function, args) pairs have
// already been spliced in, and which replace(...).with(...) pairs apply.
// Sharing one expansion across the whole recursion — rather than a fresh
// one per Install call — is what lets a sub-component installed twice at
// different points in the tree (spec.md §8 invariant 7) collapse into a
// single splice regardless of where either installation sits.
type expansion struct {
	seen         map[uintptr][]seenArgs
	replacements map[uintptr]*bindingEntry // replaced fn pointer -> replacement entry
}

type seenArgs struct {
	args any
	eq   func(a, b any) bool
}

func newExpansion() *expansion {
	return &expansion{
		seen:         map[uintptr][]seenArgs{},
		replacements: map[uintptr]*bindingEntry{},
	}
}

// alreadySeen reports whether (fnPtr, args) was already spliced in, using
// eq if supplied (a nil eq, i.e. an unparameterized Install, only matches
// another call with a nil eq and nil args).
func (e *expansion) alreadySeen(fnPtr uintptr, args any, eq func(a, b any) bool) bool {
	for _, s := range e.seen[fnPtr] {
		if eq != nil && s.eq != nil && eq(s.args, args) {
			return true
		}
		if eq == nil && s.eq == nil && args == nil && s.args == nil {
			return true
		}
	}
	return false
}

func (e *expansion) markSeen(fnPtr uintptr, args any, eq func(a, b any) bool) {
	e.seen[fnPtr] = append(e.seen[fnPtr], seenArgs{args: args, eq: eq})
}

// expand performs spec.md §4.4's N1: it walks root's lazy Install() entries
// (recursively, since an installed sub-component may itself install more
// sub-components), resolving any replace(...).with(...) pair along the way,
// and returns a fresh builder holding every direct binding — root's own
// plus every expanded sub-component's — with duplicates dropped.
func expand(root *builder) (*builder, error) {
	exp := newExpansion()
	for _, r := range root.replacements {
		if r.replacedFnPtr == r.replacement.fnPtr {
			return nil, &BuildError{Code: SelfLoop, Msg: "a component cannot replace itself"}
		}
		if _, ok := exp.replacements[r.replacedFnPtr]; ok {
			return nil, &BuildError{Code: RepeatedType, Msg: "the same sub-component was replaced more than once"}
		}
		exp.replacements[r.replacedFnPtr] = r.replacement
	}

	merged := newBuilder()
	mergeDirect(merged, root)
	if err := exp.walk(merged, root.lazy); err != nil {
		return nil, err
	}
	return merged, nil
}

func (e *expansion) walk(merged *builder, lazy []bindingEntry) error {
	for _, l := range lazy {
		fn := l.fn
		fnPtr := l.fnPtr
		if repl, ok := e.replacements[l.fnPtr]; ok {
			fn = repl.fn
			fnPtr = repl.fnPtr
		}
		if e.alreadySeen(fnPtr, l.args, l.argsEqual) {
			continue
		}
		e.markSeen(fnPtr, l.args, l.argsEqual)

		sub := fn(CreateComponent())
		if sub.err != nil {
			return sub.err
		}
		mergeDirect(merged, sub.b)
		if err := e.walk(merged, sub.b.lazy); err != nil {
			return err
		}
	}
	return nil
}

// mergeDirect copies src's own direct entries, interface bindings and
// multibindings into dst — everything except src's lazy/replacement lists,
// which the caller walks separately.
func mergeDirect(dst *builder, src *builder) {
	for _, entry := range src.entries {
		dst.addEntry(entry)
	}
	for iid, cid := range src.ifaceBind {
		dst.ifaceBind[iid] = cid
		dst.requireType(cid)
		dst.requireType(iid)
	}
	for id, entries := range src.multibindings {
		dst.multibindings[id] = append(dst.multibindings[id], entries...)
		for _, e := range entries {
			for _, d := range e.deps {
				dst.requireType(d)
			}
		}
	}
	dst.multibindOrder = append(dst.multibindOrder, src.multibindOrder...)
	for id := range src.superset {
		dst.requireType(id)
	}
}
