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

package sprout_test

import (
	"sync/atomic"
	"testing"

	"github.com/sprout-di/sprout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeTracker is a Closer (see node.go's closer interface) that appends
// its own name to a shared log on Close, used to assert destruction order.
type closeTracker struct {
	name string
	log  *[]string
}

func (c *closeTracker) Close() error {
	*c.log = append(*c.log, c.name)
	return nil
}

type depA struct{ *closeTracker }
type depB struct {
	*closeTracker
	A *depA
}
type depC struct {
	*closeTracker
	B *depB
}

// Invariant 5: destruction runs in the exact reverse of construction order.
// The providers return values, not pointers, so each result is arena-owned:
// the injector registers a destructor only for arena-owned objects.
func TestInjector_DestructionOrderIsReverseOfConstruction(t *testing.T) {
	var log []string

	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[depA](c, func() (depA, error) {
		return depA{closeTracker: &closeTracker{name: "A", log: &log}}, nil
	})
	c = sprout.RegisterProvider[depB](c, func(a depA) (depB, error) {
		return depB{closeTracker: &closeTracker{name: "B", log: &log}, A: &a}, nil
	})
	c = sprout.RegisterProvider[depC](c, func(b depB) (depC, error) {
		return depC{closeTracker: &closeTracker{name: "C", log: &log}, B: &b}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)

	_, err = sprout.Get[depC](inj)
	require.NoError(t, err)

	inj.Close()
	assert.Equal(t, []string{"C", "B", "A"}, log)
}

// Invariant 4: construction idempotence — the constructor runs exactly
// once even under concurrent Get calls for the same type.
func TestInjector_ConstructionIdempotentUnderConcurrency(t *testing.T) {
	var numConstructed atomic.Int32
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) {
		numConstructed.Add(1)
		return &counted{}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	const n = 32
	results := make(chan *counted, n)
	for i := 0; i < n; i++ {
		go func() {
			v, _ := sprout.Get[*counted](inj)
			results <- v
		}()
	}
	first := <-results
	for i := 1; i < n; i++ {
		assert.Same(t, first, <-results)
	}
	assert.Equal(t, int32(1), numConstructed.Load())
}

// Invariant 3: a cycle among direct (non-Provider[T]) bindings is a
// structural defect, rejected at normalization as a BuildError rather than
// silently accepted and left to fail lazily at Get time.
func TestInjector_DeclaredCycleIsRejectedAtNormalization(t *testing.T) {
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*cycleX](c, func(y *cycleY) (*cycleX, error) { return &cycleX{Y: y}, nil })
	c = sprout.RegisterProvider[*cycleY](c, func(x *cycleX) (*cycleY, error) { return &cycleY{X: x}, nil })
	require.NoError(t, c.Err())

	_, err := sprout.NewInjector(c)
	require.Error(t, err)
}

type cycleX struct{ Y *cycleY }
type cycleY struct{ X *cycleX }

// A self-reference mediated by a Provider[T] indirection is not a
// structural cycle — Provider[T] never contributes a dependency edge — so
// it normalizes cleanly; storing the provider for later use (the deferred,
// non-reentrant case) also constructs cleanly. Only a reentrant Get made
// synchronously, from inside the very construction it refers back into, is
// rejected — at runtime, as CyclicGet, exactly as before this change.
func TestInjector_ProviderMediatedCycleOnlyFailsAtGet(t *testing.T) {
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*selfRefViaProvider](c, func(p sprout.Provider[*selfRefViaProvider]) (*selfRefViaProvider, error) {
		if _, err := p.Get(); err != nil {
			return nil, err
		}
		return &selfRefViaProvider{}, nil
	})
	require.NoError(t, c.Err(), "a Provider[T]-mediated self-reference is not a declared cycle")

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	_, err = sprout.Get[*selfRefViaProvider](inj)
	require.Error(t, err, "reentering the same in-progress construction through its own provider must fail as CyclicGet")
}

type selfRefViaProvider struct{}

func TestInjector_ProviderDefersConstruction(t *testing.T) {
	var constructed atomic.Int32
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) {
		constructed.Add(1)
		return &counted{}, nil
	})
	c = sprout.RegisterProvider[*deferredConsumer](c, func(p sprout.Provider[*counted]) (*deferredConsumer, error) {
		return &deferredConsumer{provider: p}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	consumer, err := sprout.Get[*deferredConsumer](inj)
	require.NoError(t, err)
	assert.Equal(t, int32(0), constructed.Load(), "constructing the consumer must not eagerly resolve the deferred dependency")

	v, err := consumer.provider.Get()
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, int32(1), constructed.Load())
}

type deferredConsumer struct{ provider sprout.Provider[*counted] }

func TestInjector_UnsafeGetReturnsNilForUnboundType(t *testing.T) {
	c := sprout.CreateComponent()
	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	got := sprout.UnsafeGet[*counted](inj)
	assert.Nil(t, got)
}

func TestInjector_EagerlyInjectAllConstructsEverything(t *testing.T) {
	var built atomic.Int32
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) {
		built.Add(1)
		return &counted{}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	require.NoError(t, inj.EagerlyInjectAll())
	assert.Equal(t, int32(1), built.Load())
}
