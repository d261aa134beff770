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

// Assisted marks a factory lambda parameter as caller-supplied rather than
// injected: a parameter of type Assisted[T] in a RegisterFactory lambda is
// read from the synthesized function's own argument list at call time
// instead of being resolved by the injector. NewAssisted wraps a value for
// callers that need to build one explicitly; most call sites simply accept
// Assisted[T] and read .Value.
type Assisted[T any] struct {
	Value T
}

// NewAssisted wraps v as an assisted argument.
func NewAssisted[T any](v T) Assisted[T] { return Assisted[T]{Value: v} }

// factoryParam classifies one parameter of a RegisterFactory lambda.
type factoryParam struct {
	assisted bool
	deferred bool
	id       typeid.ID
	// paramType is the lambda parameter's own reflect.Type (Assisted[X] or
	// Provider[X] for those two cases, X itself for a plain dependency).
	paramType reflect.Type
	// elemType is the unwrapped X — equal to paramType for a plain
	// dependency.
	elemType reflect.Type
}

// RegisterFactory registers an assisted-factory binding: the synthesized
// function type Fn becomes a provided type in its own right (spec.md
// §4.6), built by interleaving values the injector resolves for fn's
// non-assisted parameters with values the caller supplies for its
// Assisted[X] parameters, in parameter-declaration order.
func RegisterFactory[Fn any, T any](c Component, fn any) Component {
	if c, ok := poisoned(c); ok {
		return c
	}

	fnType := reflect.TypeFor[Fn]()
	if fnType.Kind() != reflect.Func {
		return poison(c, NotASignature, "Fn type parameter must itself be a function type")
	}

	userType, userValue, ferr := inspectFunc(fn)
	if ferr != nil {
		return poison(c, ferr.Code, ferr.Msg, ferr.Types...)
	}

	tType := reflect.TypeFor[T]()
	if userType.Out(0) != tType {
		return poison(c, FunctorSignatureDoesNotMatch, "factory lambda must return "+tType.String())
	}
	if tType.Kind() == reflect.Pointer {
		return poison(c, FactoryReturningPointer, "a factory must not return a raw owning pointer; return by value")
	}
	if fnType.Out(0) != tType {
		return poison(c, FunctorSignatureDoesNotMatch, "Fn's declared return type must match the factory lambda's return type")
	}

	params := make([]factoryParam, userType.NumIn())
	var deps []typeid.ID
	assistedTypes := make([]reflect.Type, 0, userType.NumIn())
	for i := 0; i < userType.NumIn(); i++ {
		pt := userType.In(i)
		id, elem, assisted, deferred := paramDepID(pt)
		params[i] = factoryParam{assisted: assisted, deferred: deferred, id: id, paramType: pt, elemType: elem}
		if assisted {
			assistedTypes = append(assistedTypes, elem)
		} else if !deferred {
			deps = append(deps, id)
		}
	}

	if fnType.NumIn() != len(assistedTypes) {
		return poison(c, FunctorSignatureDoesNotMatch, "Fn's parameter count must match the number of Assisted[] parameters in the factory lambda")
	}
	for i, at := range assistedTypes {
		if fnType.In(i) != at {
			return poison(c, FunctorSignatureDoesNotMatch, "Fn's parameter "+at.String()+" does not match the corresponding Assisted[] parameter")
		}
	}

	// See builder.go's registerFunc comment: a second registration for the
	// same Fn is left for Normalize's N3 phase to accept or reject.
	fnID := typeid.OfReflect(fnType)

	create := func(inj *Injector, rs *resolveState) (reflect.Value, error) {
		// Resolve every injected (non-assisted) argument once, up front,
		// when the factory itself is constructed — the synthesized
		// function just replays these on every call, per spec.md §4.6
		// ("create captures a function object built from the user lambda
		// plus the injected dependencies").
		injected := make([]reflect.Value, len(params))
		for i, p := range params {
			switch {
			case p.assisted:
				// filled in per-call below.
			case p.deferred:
				injected[i] = newProviderValue(p.paramType, p.elemType, inj, rs)
			default:
				v, err := resolveValue(inj, rs, p.id)
				if err != nil {
					return reflect.Value{}, err
				}
				injected[i] = v
			}
		}

		synthesized := reflect.MakeFunc(fnType, func(callArgs []reflect.Value) []reflect.Value {
			full := make([]reflect.Value, len(params))
			assistedCursor := 0
			for i, p := range params {
				if !p.assisted {
					full[i] = injected[i]
					continue
				}
				assistedValue := reflect.New(p.paramType).Elem()
				assistedValue.Field(0).Set(callArgs[assistedCursor])
				full[i] = assistedValue
				assistedCursor++
			}
			return userValue.Call(full)
		})
		return arenaConstruct(inj, fnType, synthesized), nil
	}

	c.b.addEntry(bindingEntry{
		kind:       kindObjectToConstructWithAllocation,
		id:         fnID,
		valueType:  fnType,
		create:     create,
		deps:       deps,
		ownsMemory: true,
		ctorPtr:    userValue.Pointer(),
	})
	return c
}

// newProviderValue builds a reflect.Value of type providerType — the
// concrete Provider[X] struct the caller declared in their own constructor
// signature, so Go already monomorphized it at compile time — bound to
// inj/rs for dependency elemType. Go generics give no way to conjure a
// Provider[X] reflect.Type purely from a runtime elemType when nothing in
// the binary instantiated it, so this only ever works because the caller's
// own source already did: providerType is read straight off their
// parameter list (see RegisterConstructor/RegisterFactory's use of
// paramDepID), not reconstructed from elemType.
func newProviderValue(providerType, elemType reflect.Type, inj *Injector, rs *resolveState) reflect.Value {
	rv := reflect.New(providerType).Elem()
	resolveType := providerType.Field(0).Type // func() (elemType, error)
	id := typeid.OfReflect(elemType)
	resolveFn := reflect.MakeFunc(resolveType, func([]reflect.Value) []reflect.Value {
		v, err := resolveValue(inj, rs, id)
		errOut := reflect.New(resolveType.Out(1)).Elem()
		if err != nil {
			errOut.Set(reflect.ValueOf(err))
		}
		if !v.IsValid() {
			v = reflect.Zero(resolveType.Out(0))
		}
		return []reflect.Value{v, errOut}
	})
	rv.Field(0).Set(resolveFn)
	return rv
}
