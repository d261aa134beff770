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

// Provider is a lightweight handle deferring a Get[T] call until the
// caller actually needs it — spec.md §6: "stored in a constructor
// parameter list, deferring the get<T> call until needed (e.g. to break
// an otherwise-eager construction chain or avoid binding cycles at the
// graph level)". A constructor or provider function may declare a
// parameter of type Provider[T] instead of T itself; the injector detects
// this via reflection (see paramDepID/providerElem in signature.go) and
// supplies a Provider bound to itself rather than eagerly resolving T.
//
// Resolve is exported, rather than the more natural unexported name,
// purely so the reflection-based constructor path in factory.go
// (newProviderValue) can populate it with reflect.Value.Set: reflect refuses to set
// an unexported struct field regardless of how the struct was obtained.
// Callers should use Get/MustGet, not this field, directly.
type Provider[T any] struct {
	Resolve func() (T, error)
}

// Get resolves T, constructing it (and its dependencies) on first call for
// this injector, exactly as a direct Get[T] call would.
func (p Provider[T]) Get() (T, error) {
	return p.Resolve()
}

// MustGet resolves T, panicking on failure — for callers who cannot
// usefully recover from a missing or cyclic binding at this point.
func (p Provider[T]) MustGet() T {
	v, err := p.Resolve()
	if err != nil {
		panic(err)
	}
	return v
}
