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

package arena_test

import (
	"reflect"
	"testing"

	"github.com/sprout-di/sprout/internal/arena"
	"github.com/sprout-di/sprout/internal/typeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	name string
}

func TestArena_Construct(t *testing.T) {
	a := arena.New(4)
	rv := a.Construct(reflect.TypeFor[widget]())
	require.Equal(t, reflect.Struct, rv.Kind())
	rv.Set(reflect.ValueOf(widget{name: "lamp"}))
	assert.Equal(t, "lamp", rv.Interface().(widget).name)
	assert.Equal(t, 1, a.Len())
}

func TestArena_DestructorsRunInLIFOOrder(t *testing.T) {
	a := arena.New(0)
	var order []int
	a.PushDestructor(func() { order = append(order, 1) })
	a.PushDestructor(func() { order = append(order, 2) })
	a.PushDestructor(func() { order = append(order, 3) })

	a.Close()

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestArena_CloseTwicePanics(t *testing.T) {
	a := arena.New(0)
	a.Close()
	assert.Panics(t, func() { a.Close() })
}

func TestArena_ConstructAfterClosePanics(t *testing.T) {
	a := arena.New(0)
	a.Close()
	assert.Panics(t, func() { a.Construct(reflect.TypeFor[widget]()) })
}

func TestMaximumRequiredSpace(t *testing.T) {
	id := typeid.Of[int64]()
	got := arena.MaximumRequiredSpace(id)
	assert.EqualValues(t, typeid.Align(id)+typeid.Size(id)-1, got)
}
