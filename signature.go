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
	"strings"

	"github.com/sprout-di/sprout/internal/typeid"
)

// inspectFunc validates that fn is a plain func value taking zero or more
// parameters and returning exactly one value, the Go analogue of spec.md
// §4.3's "lambda's inferred signature T(A...)". It is shared by
// RegisterConstructor, RegisterProvider and RegisterFactory's injected
// (non-assisted) parameter inference.
func inspectFunc(fn any) (rt reflect.Type, rv reflect.Value, err *BuildError) {
	if fn == nil {
		return nil, reflect.Value{}, &BuildError{Code: NotASignature, Msg: "provider/constructor must be a non-nil func value"}
	}
	rv = reflect.ValueOf(fn)
	rt = rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, reflect.Value{}, &BuildError{Code: NotASignature, Msg: "provider/constructor must be a func value, got " + rt.String()}
	}
	if rt.NumOut() != 1 {
		return nil, reflect.Value{}, &BuildError{Code: FunctorSignatureDoesNotMatch, Msg: "provider/constructor must return exactly one value"}
	}
	if isBoundMethodValue(rv) {
		return nil, reflect.Value{}, &BuildError{Code: LambdaWithCaptures, Msg: "provider/constructor must not be a bound method value (it captures a receiver)"}
	}
	return rt, rv, nil
}

// isBoundMethodValue detects the one closure-capture case Go's runtime
// reliably exposes without access to the compiler's own capture analysis:
// a method value (x.Method, as opposed to a package-level func or a
// capture-free func literal) is compiled by gc with a synthetic wrapper
// whose symbol name ends in "-fm", and it always closes over the receiver
// x. This is a real, not guessed, signal; it is also the only closure shape
// this module can detect, so spec.md §4.3's "lambda must be empty (no
// captured state)" rule is enforced only for this one case — documented in
// DESIGN.md as a deliberately best-effort realization of
// LambdaWithCaptures/NonTriviallyCopyableLambda, since Go's reflect package
// exposes no way to inspect an arbitrary closure's captured environment.
func isBoundMethodValue(rv reflect.Value) bool {
	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return false
	}
	return strings.HasSuffix(fn.Name(), "-fm")
}

// paramDepID returns the TypeId a function parameter of type pt should
// depend on, unwrapping Provider[T]/Assisted[T] marker types to their inner
// T (also returned as elemType) — only a plain parameter contributes a
// dependency edge; an Assisted[T] parameter is supplied by the caller at
// call time, not by the injector (see factory.go), and a Provider[T]
// parameter is deferred: it adds no dependency edge and is not resolved
// during construction, exactly so a constructor
// can ask for a Provider[T] to sidestep an otherwise-cyclic eager
// dependency (spec.md §6).
func paramDepID(pt reflect.Type) (id typeid.ID, elemType reflect.Type, assisted bool, deferred bool) {
	if elem, ok := assistedElem(pt); ok {
		return typeid.OfReflect(elem), elem, true, false
	}
	if elem, ok := providerElem(pt); ok {
		return typeid.OfReflect(elem), elem, false, true
	}
	return typeid.OfReflect(pt), pt, false, false
}

// providerElem reports whether pt is a Provider[T] instantiation and, if
// so, returns T's reflect.Type. Go exposes no API to recover a generic
// instantiation's type arguments directly from a reflect.Type, so this
// relies on Provider[T]'s single field being a `func() (T, error)` closure
// whose own signature names T in its output — a deliberate design choice
// in provider.go specifically to make this reflectable.
func providerElem(pt reflect.Type) (reflect.Type, bool) {
	if pt.Kind() != reflect.Struct || pt.PkgPath() != sproutPkgPath || !strings.HasPrefix(pt.Name(), "Provider[") {
		return nil, false
	}
	if pt.NumField() != 1 {
		return nil, false
	}
	field := pt.Field(0).Type
	if field.Kind() != reflect.Func || field.NumOut() != 2 {
		return nil, false
	}
	return field.Out(0), true
}

// assistedElem reports whether pt is an Assisted[T] instantiation and, if
// so, returns T's reflect.Type, read directly off Assisted[T]'s own Value
// field.
func assistedElem(pt reflect.Type) (reflect.Type, bool) {
	if pt.Kind() != reflect.Struct || pt.PkgPath() != sproutPkgPath || !strings.HasPrefix(pt.Name(), "Assisted[") {
		return nil, false
	}
	if pt.NumField() != 1 {
		return nil, false
	}
	return pt.Field(0).Type, true
}

// pkgMarker exists solely so sproutPkgPath can recover this package's own
// import path via reflection — an anonymous struct type has no PkgPath,
// so a named one is needed.
type pkgMarker struct{}

// sproutPkgPath is compared against reflect.Type.PkgPath() to recognize
// this package's own marker generic types (Provider[T], Assisted[T])
// without risking a false match against an unrelated type from another
// package that happens to share a field shape.
var sproutPkgPath = reflect.TypeOf(pkgMarker{}).PkgPath()
