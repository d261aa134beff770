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

package ssmap_test

import (
	"testing"

	"github.com/sprout-di/sprout/internal/ssmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specs() []ssmap.NodeSpec[key, string] {
	return []ssmap.NodeSpec[key, string]{
		{Key: key(1), Value: "root", Deps: []key{2, 3}},
		{Key: key(2), Value: "leaf-a", Deps: nil},
		{Key: key(3), Value: "mid", Deps: []key{2}},
	}
}

func TestGraph_AtAndTerminal(t *testing.T) {
	g := ssmap.Build(specs())
	require.Equal(t, 3, g.Len())

	root := g.At(key(1))
	assert.False(t, root.IsTerminal())
	assert.Equal(t, "root", *root.GetNode())

	leaf := g.At(key(2))
	assert.True(t, leaf.IsTerminal())
}

func TestGraph_NeighborsWalk(t *testing.T) {
	g := ssmap.Build(specs())
	root := g.At(key(1))

	var seen []string
	for it := root.NeighborsBegin(); !it.Done(); it = it.Next() {
		n, ok := it.NodeIterator()
		require.True(t, ok)
		seen = append(seen, *n.GetNode())
	}
	assert.Equal(t, []string{"leaf-a", "mid"}, seen)
}

func TestGraph_EdgeIterator_Advance(t *testing.T) {
	g := ssmap.Build(specs())
	root := g.At(key(1))

	it := root.NeighborsBegin().Advance(1)
	n, ok := it.NodeIterator()
	require.True(t, ok)
	assert.Equal(t, "mid", *n.GetNode())
}

func TestGraph_Find_Missing(t *testing.T) {
	g := ssmap.Build(specs())
	_, ok := g.Find(key(999))
	assert.False(t, ok)
}

func TestGraph_SetTerminal(t *testing.T) {
	g := ssmap.Build(specs())
	mid := g.At(key(3))
	require.False(t, mid.IsTerminal())
	mid.SetTerminal()
	assert.True(t, g.At(key(3)).IsTerminal())
}

func TestGraph_WithAdded(t *testing.T) {
	g := ssmap.Build(specs())
	extended := g.WithAdded([]ssmap.NodeSpec[key, string]{
		{Key: key(4), Value: "new", Deps: []key{1}},
	})

	require.Equal(t, 4, extended.Len())
	n := extended.At(key(4))
	seen := []string{}
	for it := n.NeighborsBegin(); !it.Done(); it = it.Next() {
		dep, ok := it.NodeIterator()
		require.True(t, ok)
		seen = append(seen, *dep.GetNode())
	}
	assert.Equal(t, []string{"root"}, seen)

	// Original graph is untouched.
	_, ok := g.Find(key(4))
	assert.False(t, ok)
}

func TestGraph_All(t *testing.T) {
	g := ssmap.Build(specs())
	count := 0
	g.All(func(k key, n ssmap.NodeIterator[key, string]) bool {
		count++
		return true
	})
	assert.Equal(t, 3, count)
}
