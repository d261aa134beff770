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

// S1: bind<I,C>(); register_constructor<C()>() — inj.get::<I>() returns a
// reference whose dynamic type is C, and C's constructor runs exactly once
// even when I is requested twice.
func TestScenario_S1_InterfaceBindingToConcreteConstructor(t *testing.T) {
	var constructed int32

	c := sprout.CreateComponent()
	c = sprout.Bind[Greeter, *englishGreeter](c)
	c = sprout.RegisterProvider[*englishGreeter](c, func() (*englishGreeter, error) {
		atomic.AddInt32(&constructed, 1)
		return &englishGreeter{}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	g1, err := sprout.Get[Greeter](inj)
	require.NoError(t, err)
	g2, err := sprout.Get[Greeter](inj)
	require.NoError(t, err)

	_, ok := g1.(*englishGreeter)
	assert.True(t, ok, "dynamic type must be *englishGreeter")
	assert.Same(t, g1, g2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&constructed))
}

type Greeter interface{ Greet() string }
type englishGreeter struct{}

func (*englishGreeter) Greet() string { return "hello" }

// S2: register_provider(|| X()) with X::num_constructed counter — calling
// inj.get::<X>() twice leaves the counter at 1.
func TestScenario_S2_ProviderConstructsExactlyOnce(t *testing.T) {
	var numConstructed int32

	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) {
		atomic.AddInt32(&numConstructed, 1)
		return &counted{}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	_, err = sprout.Get[*counted](inj)
	require.NoError(t, err)
	_, err = sprout.Get[*counted](inj)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&numConstructed))
}

type counted struct{}

// S3: two register_provider calls for the same type in the same component
// — constructing the injector (which normalizes internally) must fail with
// an error naming the type and "provided more than once, with different
// bindings".
func TestScenario_S3_DuplicateProvisionFailsAtConstruction(t *testing.T) {
	c := sprout.CreateComponent()
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) { return &counted{}, nil })
	c = sprout.RegisterProvider[*counted](c, func() (*counted, error) { return &counted{}, nil })
	require.NoError(t, c.Err(), "neither call is rejected immediately; the conflict is only visible once merged")

	_, err := sprout.NewInjector(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provided more than once, with different bindings")
}

// S4: add_multibinding_provider + add_multibinding + bind — every
// contributor is invoked exactly once, and a second get_multibindings call
// returns the identical vector.
func TestScenario_S4_MultibindingAccumulation(t *testing.T) {
	var l1Notified, l2Notified int32

	c := sprout.CreateComponent()
	c = sprout.AddMultibindingProvider[Listener](c, func() (Listener, error) {
		return &listenerOne{notified: &l1Notified}, nil
	})
	c = sprout.AddMultibinding[Listener, *listenerTwo](c, func() (*listenerTwo, error) {
		return &listenerTwo{notified: &l2Notified}, nil
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	listeners := sprout.GetMultibindings[Listener](inj)
	require.Len(t, listeners, 2)
	for _, l := range listeners {
		l.Notify()
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&l1Notified))
	assert.Equal(t, int32(1), atomic.LoadInt32(&l2Notified))

	again := sprout.GetMultibindings[Listener](inj)
	assert.Same(t, &listeners[0], &again[0], "subsequent get_multibindings must return the same vector identity")
}

type Listener interface{ Notify() }
type listenerOne struct{ notified *int32 }

func (l *listenerOne) Notify() { atomic.AddInt32(l.notified, 1) }

type listenerTwo struct{ notified *int32 }

func (l *listenerTwo) Notify() { atomic.AddInt32(l.notified, 1) }

// S5: register_factory<Scaler(Assisted<double>)>(...) —
// inj.get::<func(float64) Scaler>()(12.1).Scale(3) == 36.3.
func TestScenario_S5_AssistedFactory(t *testing.T) {
	c := sprout.CreateComponent()
	c = sprout.RegisterFactory[func(float64) Scaler, Scaler](c, func(f sprout.Assisted[float64]) Scaler {
		return Scaler{Factor: f.Value}
	})
	require.NoError(t, c.Err())

	inj, err := sprout.NewInjector(c)
	require.NoError(t, err)
	defer inj.Close()

	factory, err := sprout.Get[func(float64) Scaler](inj)
	require.NoError(t, err)

	got := factory(12.1).Scale(3)
	assert.InDelta(t, 36.3, got, 1e-9)
}

type Scaler struct{ Factor float64 }

func (s Scaler) Scale(x float64) float64 { return s.Factor * x }

// S6: normalized = Normalize(parent); inj = NewInjectorFromNormalized(
// normalized, extra) where extra disagrees with a type parent already
// bound — construction fails, and normalized remains usable elsewhere.
func TestScenario_S6_ConflictingExtraBindingAtInjectorConstruction(t *testing.T) {
	parent := sprout.CreateComponent()
	parent = sprout.RegisterProvider[*counted](parent, func() (*counted, error) { return &counted{}, nil })
	require.NoError(t, parent.Err())

	normalized, err := sprout.Normalize(parent)
	require.NoError(t, err)

	extra := sprout.CreateComponent()
	extra = sprout.RegisterProvider[*counted](extra, func() (*counted, error) { return &counted{}, nil })
	require.NoError(t, extra.Err())

	_, err = sprout.NewInjectorFromNormalized(normalized, extra)
	require.Error(t, err)

	// normalized itself remains usable for a different, non-conflicting
	// injector construction.
	okExtra := sprout.CreateComponent()
	inj, err := sprout.NewInjectorFromNormalized(normalized, okExtra)
	require.NoError(t, err)
	defer inj.Close()

	_, err = sprout.Get[*counted](inj)
	require.NoError(t, err)
}
