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
	"fmt"
	"strings"

	"github.com/sprout-di/sprout/internal/typeid"
)

// ErrorCode enumerates every structural (Class A) and run-time (Class B)
// failure the builder and injector can report. Not every code is produced
// by this module — several name C++-specific concepts (INJECT typedefs,
// non-trivially-copyable lambdas) that have no Go analogue and are kept only so the
// enum stays a faithful superset; DESIGN.md records which codes are
// actually ever constructed here.
type ErrorCode uint8

const (
	NoBindingFound ErrorCode = iota
	NoBindingFoundForAbstractClass
	RepeatedType
	SelfLoop
	InterfaceBindingToSelf
	NotABaseClassOf
	TypeAlreadyBound
	AnnotatedSignatureMismatchesLambda
	FunctorSignatureDoesNotMatch
	LambdaWithCaptures
	NonTriviallyCopyableLambda
	FactoryReturningPointer
	CannotConstructAbstractClass
	NotASignature
	InjectTypedefNotASignature
	InjectTypedefForWrongClass
	NoConstructorMatchingInjectSignature
	ProviderReturningPointerToAbstractClass
	TypesNotProvidedByInjector
	InjectorWithRequirements

	// Class B — run-time fatal codes. Returned as an ordinary error from
	// Get; MustGet and GetMultibindings panic with them, and UnsafeGet
	// returns nil instead (see RuntimeError below). ConflictingExtraBinding is
	// always raised via panic inside mergeBookkeeping and recovered back
	// into a returned error at NewInjectorFromNormalized's boundary.
	NilProviderResult
	ConflictingExtraBinding
	NilMultibindingResult
	UnboundType
	CyclicGet
)

var codeNames = [...]string{
	"NoBindingFound",
	"NoBindingFoundForAbstractClass",
	"RepeatedType",
	"SelfLoop",
	"InterfaceBindingToSelf",
	"NotABaseClassOf",
	"TypeAlreadyBound",
	"AnnotatedSignatureMismatchesLambda",
	"FunctorSignatureDoesNotMatch",
	"LambdaWithCaptures",
	"NonTriviallyCopyableLambda",
	"FactoryReturningPointer",
	"CannotConstructAbstractClass",
	"NotASignature",
	"InjectTypedefNotASignature",
	"InjectTypedefForWrongClass",
	"NoConstructorMatchingInjectSignature",
	"ProviderReturningPointerToAbstractClass",
	"TypesNotProvidedByInjector",
	"InjectorWithRequirements",
	"NilProviderResult",
	"ConflictingExtraBinding",
	"NilMultibindingResult",
	"UnboundType",
	"CyclicGet",
}

// String returns the code's name, matching the teacher's small hand-written
// enum String() methods (see log.Format, header's status-code naming).
func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// BuildError is the Class A (structural) error: every builder operation
// that discovers a problem with the component under construction returns a
// Component poisoned with one of these, carrying the ErrorCode and the
// TypeIDs of the types involved so a caller's diagnostics can point back at
// them.
type BuildError struct {
	Code  ErrorCode
	Types []typeid.ID
	Msg   string
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for _, t := range e.Types {
		b.WriteString(" [")
		b.WriteString(t.String())
		b.WriteString("]")
	}
	return b.String()
}

// RuntimeError is the Class B (run-time fatal) error described by spec.md
// §7: a problem only discoverable while the object graph is actually being
// constructed (a nil provider result, a construction cycle reached through
// re-entrant Get calls, an unbound type requested through UnsafeGet, two
// disagreeing bindings merged at injector-construction time). The original
// aborts the process after printing it; Get[T] instead returns it as an
// ordinary error, the idiomatic Go realization of "fatal" for a library (a
// library must never call os.Exit on a caller's behalf). MustGet and
// GetMultibindings[T] panic with it instead; UnsafeGet returns nil on any
// failure, so its caller never sees the error.
type RuntimeError struct {
	Code  ErrorCode
	Types []typeid.ID
	Msg   string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for _, t := range e.Types {
		b.WriteString(" [")
		b.WriteString(t.String())
		b.WriteString("]")
	}
	return b.String()
}

func fail(code ErrorCode, msg string, types ...typeid.ID) *RuntimeError {
	return &RuntimeError{Code: code, Types: types, Msg: msg}
}
