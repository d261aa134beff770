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
	"runtime"

	"github.com/sprout-di/sprout/internal/typeid"
)

// Bind records a deferred interface binding I←C: normalization's N2 phase
// resolves it (following chains of interface bindings) to the concrete type
// it ends at, and I then shares that type's graph node instead of getting a
// node of its own (spec.md §4.4 N2). Binding I to the same C again is
// accepted; binding it to a different C is rejected. Go has no dynamic_cast; C implementing I is checked via
// reflect.Type.Implements, the runtime realization spec.md §3's design
// note already anticipates for this port.
func Bind[I any, C any](c Component) Component {
	if c, ok := poisoned(c); ok {
		return c
	}

	it := reflect.TypeFor[I]()
	ct := reflect.TypeFor[C]()
	iid := typeid.Of[I]()
	cid := typeid.Of[C]()

	if iid == cid {
		return poison(c, InterfaceBindingToSelf, "cannot bind a type to itself", iid)
	}
	if it.Kind() != reflect.Interface {
		return poison(c, NotABaseClassOf, "I must be an interface type", iid)
	}
	if !ct.Implements(it) {
		return poison(c, NotABaseClassOf, "C does not implement I", iid, cid)
	}
	if _, ok := c.b.provides[iid]; ok {
		return poison(c, TypeAlreadyBound, "interface already bound", iid)
	}
	if existing, ok := c.b.ifaceBind[iid]; ok && existing != cid {
		return poison(c, TypeAlreadyBound, "interface already bound to a different implementation", iid)
	}

	c.b.ifaceBind[iid] = cid
	c.b.requireType(cid)
	return c
}

// RegisterConstructor registers a plain constructor function `func(A...) C`
// as the binding for C, adding each parameter to the dependency set. Named
// separately from RegisterProvider purely for API parity with spec.md
// §4.3's two distinct operations — in this Go realization both a "typed
// signature" and a "lambda" are the same thing, an ordinary func value, so
// the two share one implementation (registerFunc below).
func RegisterConstructor[C any](c Component, fn any) Component {
	return registerFunc[C](c, fn, false)
}

// RegisterProvider registers a provider function `func(A...) T` as the
// binding for T. See RegisterConstructor's doc comment for why this module
// does not distinguish the two operations beyond their name.
func RegisterProvider[T any](c Component, fn any) Component {
	return registerFunc[T](c, fn, true)
}

func registerFunc[T any](c Component, fn any, isProvider bool) Component {
	if c, ok := poisoned(c); ok {
		return c
	}

	rt, rv, ferr := inspectFunc(fn)
	if ferr != nil {
		return poison(c, ferr.Code, ferr.Msg)
	}

	want := reflect.TypeFor[T]()
	if rt.Out(0) != want {
		return poison(c, FunctorSignatureDoesNotMatch, "function must return "+want.String())
	}

	// A second binding for id is not rejected here — see builder.provides'
	// doc comment in component.go: Normalize's N3 phase is the one place
	// that can tell an identical re-declaration (silently deduplicated)
	// from a genuine conflict, including conflicts introduced by merging
	// two different install()ed sub-components that neither builder call
	// alone could have observed.
	id := typeid.Of[T]()

	params := make([]paramSpec, rt.NumIn())
	var deps []typeid.ID
	for i := 0; i < rt.NumIn(); i++ {
		pid, elem, assisted, deferred := paramDepID(rt.In(i))
		if assisted {
			return poison(c, FunctorSignatureDoesNotMatch, "Assisted[] parameters are only valid in RegisterFactory")
		}
		params[i] = paramSpec{id: pid, elemType: elem, paramType: rt.In(i), deferred: deferred}
		if !deferred {
			deps = append(deps, pid)
		}
	}

	ownsMemory := want.Kind() != reflect.Pointer
	create := func(inj *Injector, rs *resolveState) (reflect.Value, error) {
		args := make([]reflect.Value, len(params))
		for i, p := range params {
			if p.deferred {
				args[i] = newProviderValue(p.paramType, p.elemType, inj, rs)
				continue
			}
			v, err := resolveValue(inj, rs, p.id)
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = v
		}
		out := rv.Call(args)[0]
		if isNilable(out) && out.IsNil() {
			return reflect.Value{}, fail(NilProviderResult, "provider returned a nil result", id)
		}
		if ownsMemory {
			out = arenaConstruct(inj, want, out)
		}
		return out, nil
	}

	kind := kindObjectToConstructWithAllocation
	if !ownsMemory {
		kind = kindObjectToConstructNoAllocation
	}
	c.b.addEntry(bindingEntry{
		kind:       kind,
		id:         id,
		valueType:  want,
		create:     create,
		deps:       deps,
		ownsMemory: ownsMemory,
		ctorPtr:    rv.Pointer(),
	})
	return c
}

// arenaConstruct copies out into a freshly arena-allocated, addressable slot
// of typ and returns that slot instead of out itself — the owning-allocation
// half of spec.md §4.1's arena contract (internal/arena.Construct via
// internal/reflectutil.New), as opposed to ObjectToConstructNoAllocation's
// externally-returned pointer, which the arena never takes ownership of.
func arenaConstruct(inj *Injector, typ reflect.Type, out reflect.Value) reflect.Value {
	slot := inj.arena.Construct(typ)
	slot.Set(out)
	return slot
}

// paramSpec is a resolved constructor/provider parameter.
type paramSpec struct {
	id        typeid.ID
	elemType  reflect.Type
	paramType reflect.Type
	deferred  bool
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}

// BindInstance adds C to P with empty deps, storing a ConstructedObject
// binding over an externally-owned value: the injector never destroys it.
func BindInstance[C any](c Component, obj C) Component {
	if c, ok := poisoned(c); ok {
		return c
	}
	// See registerFunc's comment: duplicate-provision conflicts are left
	// for Normalize's N3 phase to detect.
	id := typeid.Of[C]()
	rv := reflect.New(reflect.TypeFor[C]()).Elem()
	rv.Set(reflect.ValueOf(obj))
	c.b.addEntry(bindingEntry{
		kind:      kindConstructedObject,
		id:        id,
		valueType: reflect.TypeFor[C](),
		instance:  rv,
	})
	return c
}

// AddMultibinding registers C as one more implementation of I in the
// multibinding table for I; unlike a regular binding, multiple calls
// accumulate rather than conflict.
func AddMultibinding[I any, C any](c Component, fn any) Component {
	if c, ok := poisoned(c); ok {
		return c
	}
	it := reflect.TypeFor[I]()
	ct := reflect.TypeFor[C]()
	iid := typeid.Of[I]()
	if it.Kind() == reflect.Interface && !ct.Implements(it) {
		return poison(c, NotABaseClassOf, "C does not implement I", iid, typeid.Of[C]())
	}

	rt, rv, ferr := inspectFunc(fn)
	if ferr != nil {
		return poison(c, ferr.Code, ferr.Msg)
	}
	if rt.Out(0) != ct {
		return poison(c, FunctorSignatureDoesNotMatch, "constructor must return "+ct.String())
	}

	params := make([]paramSpec, rt.NumIn())
	var deps []typeid.ID
	for i := 0; i < rt.NumIn(); i++ {
		pid, elem, assisted, deferred := paramDepID(rt.In(i))
		if assisted {
			return poison(c, FunctorSignatureDoesNotMatch, "Assisted[] parameters are only valid in RegisterFactory")
		}
		params[i] = paramSpec{id: pid, elemType: elem, paramType: rt.In(i), deferred: deferred}
		if !deferred {
			deps = append(deps, pid)
		}
	}

	create := func(inj *Injector, rs *resolveState) (reflect.Value, error) {
		args := make([]reflect.Value, len(params))
		for i, p := range params {
			if p.deferred {
				args[i] = newProviderValue(p.paramType, p.elemType, inj, rs)
				continue
			}
			v, err := resolveValue(inj, rs, p.id)
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = v
		}
		out := rv.Call(args)[0]
		if isNilable(out) && out.IsNil() {
			return reflect.Value{}, fail(NilMultibindingResult, "multibinding provider returned a nil result", iid)
		}
		return out, nil
	}

	entry := bindingEntry{
		kind:      kindMultibindingToConstruct,
		id:        iid,
		valueType: it,
		create:    create,
		deps:      deps,
	}
	c.b.multibindings[iid] = append(c.b.multibindings[iid], entry)
	c.b.multibindOrder = append(c.b.multibindOrder, iid)
	for _, d := range deps {
		c.b.requireType(d)
	}
	return c
}

// AddInstanceMultibinding registers obj as one more externally-owned
// implementation of I.
func AddInstanceMultibinding[I any, C any](c Component, obj C) Component {
	if c, ok := poisoned(c); ok {
		return c
	}
	it := reflect.TypeFor[I]()
	ct := reflect.TypeFor[C]()
	iid := typeid.Of[I]()
	if it.Kind() == reflect.Interface && !ct.Implements(it) {
		return poison(c, NotABaseClassOf, "C does not implement I", iid, typeid.Of[C]())
	}
	rv := reflect.New(it).Elem()
	rv.Set(reflect.ValueOf(obj))
	entry := bindingEntry{
		kind:      kindMultibindingConstructed,
		id:        iid,
		valueType: it,
		instance:  rv,
	}
	c.b.multibindings[iid] = append(c.b.multibindings[iid], entry)
	c.b.multibindOrder = append(c.b.multibindOrder, iid)
	return c
}

// AddMultibindingProvider is AddMultibinding's non-interface-checked
// counterpart for registering a raw provider function directly against a
// TypeId without an explicit I/C pair — kept for API parity with spec.md
// §4.3's add_multibinding_provider.
func AddMultibindingProvider[T any](c Component, fn any) Component {
	return AddMultibinding[T, T](c, fn)
}

// Install records a lazy sub-component entry: the function is not invoked
// now, only remembered (together with its identity and, if parameterized,
// its arguments) for expansion during normalization's N1 phase.
func Install(c Component, fn func(Component) Component) Component {
	return InstallArgs(c, fn, nil, nil, nil)
}

// InstallArgs is Install's parameterized form: for deduplication, args is
// compared against earlier installs of the same fn using argsEqual, the Go
// realization of spec.md §4.3's "virtual-equality closure" — the exact
// equality relation is left to the caller (spec.md §9's first open
// question), so this module never guesses a default. argsHash is stored
// with the entry, but N1 does not consult it.
func InstallArgs(c Component, fn func(Component) Component, args any, argsEqual func(a, b any) bool, argsHash func(a any) uint64) Component {
	if c, ok := poisoned(c); ok {
		return c
	}
	c.b.lazy = append(c.b.lazy, bindingEntry{
		kind:      kindLazyComponent,
		fn:        fn,
		fnPtr:     funcPtr(fn),
		args:      args,
		argsEqual: argsEqual,
		argsHash:  argsHash,
	})
	return c
}

// replaceBuilder is the intermediate value returned by ReplaceComponent,
// whose With method supplies the replacement half of the pair.
type replaceBuilder struct {
	c             Component
	replacedFnPtr uintptr
	args          any
	argsEqual     func(a, b any) bool
}

// ReplaceComponent begins a replace(...).with(...) pair (spec.md §4.3):
// every lazy-component entry whose function is replaced is dropped during
// N1 and replacement is installed in its stead.
func ReplaceComponent(c Component, replaced func(Component) Component) replaceBuilder {
	return replaceBuilder{c: c, replacedFnPtr: funcPtr(replaced)}
}

// ReplaceComponentArgs is ReplaceComponent's parameterized form. It stores
// args and argsEqual with the pair, but N1 matches replacements by function
// identity only: args are not compared, so every Install of replaced is
// substituted, whatever its args.
func ReplaceComponentArgs(c Component, replaced func(Component) Component, args any, argsEqual func(a, b any) bool) replaceBuilder {
	return replaceBuilder{c: c, replacedFnPtr: funcPtr(replaced), args: args, argsEqual: argsEqual}
}

// With supplies the replacement half of a ReplaceComponent pair.
func (r replaceBuilder) With(replacement func(Component) Component) Component {
	c := r.c
	if c, ok := poisoned(c); ok {
		return c
	}
	c.b.replacements = append(c.b.replacements, bindingEntry{
		kind:          kindReplacedLazyComponent,
		replacedFnPtr: r.replacedFnPtr,
		args:          r.args,
		argsEqual:     r.argsEqual,
		replacement: &bindingEntry{
			kind:  kindReplacementLazyComponent,
			fn:    replacement,
			fnPtr: funcPtr(replacement),
		},
	})
	return c
}

func funcPtr(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// funcName returns fn's runtime symbol name. Nothing in this package calls
// it; it is not part of the identity check (identity is the func pointer),
// since runtime.FuncForPC's name can
// legitimately collide for inlined/generic instantiations.
func funcName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return "<unknown>"
}
