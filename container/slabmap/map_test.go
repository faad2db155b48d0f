/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package slabmap

import (
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/slab"
)

func TestMap(t *testing.T) {
	p := mempool.NewPool("map")
	m, err := New[int, string](slab.Config{Pool: p, StackSize: 4})
	require.NoError(t, err)
	assert.Equal(t, slab.DefaultHeapSizeOf[Entry[int, string]](slab.TreeOverhead), m.Stats().HeapSize)

	for i := 5; i > 0; i-- {
		require.NoError(t, m.Set(i, strconv.Itoa(i)))
	}
	require.NoError(t, m.Set(3, "three"))
	ok, err := m.Insert(3, "drei")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, m.Len())
	assert.Equal(t, int64(5), p.InuseItems())

	v, ok := m.Get(3)
	assert.True(t, ok)
	assert.Equal(t, "three", v)
	_, ok = m.Get(6)
	assert.False(t, ok)
	*m.GetPtr(1) = "one"
	assert.Nil(t, m.GetPtr(6))
	assert.True(t, m.Has(5))
	assert.Equal(t, 1, m.Count(5))

	assert.Equal(t, []int{1, 2, 3, 4, 5}, m.Keys())
	want := []Entry[int, string]{{1, "one"}, {2, "2"}, {3, "three"}, {4, "4"}, {5, "5"}}
	if diff := cmp.Diff(want, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	var keys []int
	m.AscendFrom(3, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{3, 4, 5}, keys)
	keys = keys[:0]
	m.Descend(func(k int, _ string) bool {
		keys = append(keys, k)
		return k > 4
	})
	assert.Equal(t, []int{5, 4}, keys)

	e, ok := m.Min()
	assert.True(t, ok)
	assert.Equal(t, Entry[int, string]{1, "one"}, e)
	e, _ = m.Max()
	assert.Equal(t, 5, e.Key)

	assert.True(t, m.Delete(3))
	assert.False(t, m.Delete(3))
	assert.Equal(t, 4, m.Len())
	m.Validate()

	m.Close()
	assert.Equal(t, int64(0), p.Slabs())
}

func TestMapCloneAndCopy(t *testing.T) {
	p := mempool.NewPool("map")
	m, err := NewFunc[string, int](slab.Config{Pool: p, StackSize: 2}, func(a, b string) bool { return a > b })
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Set(strconv.Itoa(i), i))
	}
	assert.Equal(t, "9", m.Keys()[0])

	c, err := m.Clone()
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), c.Entries())
	*c.GetPtr("9") = 90
	v, _ := m.Get("9")
	assert.Equal(t, 9, v)

	require.NoError(t, m.CopyFrom(c))
	v, _ = m.Get("9")
	assert.Equal(t, 90, v)
	assert.Equal(t, int64(20), p.InuseItems())

	m.Close()
	c.Close()
	assert.Equal(t, int64(0), p.AllocatedBytes())
}

func TestMultiMap(t *testing.T) {
	m, err := NewMulti[string, int](slab.Config{StackSize: 4})
	require.NoError(t, err)
	for i, k := range []string{"b", "a", "b", "c", "b"} {
		require.NoError(t, m.Insert(k, i))
	}
	assert.Equal(t, []int{0, 2, 4}, m.GetAll("b"))
	assert.Nil(t, m.GetAll("z"))
	assert.Equal(t, 3, m.Count("b"))
	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	assert.True(t, m.DeleteOne("b"))
	assert.Equal(t, []int{2, 4}, m.GetAll("b"))
	assert.Equal(t, []string{"a", "b", "b", "c"}, m.Keys())

	c, err := m.Clone()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Delete("b"))
	assert.Equal(t, []int{2, 4}, c.GetAll("b"))
	require.NoError(t, c.CopyFrom(m))
	assert.Equal(t, []string{"a", "c"}, c.Keys())

	m.Validate()
	c.Validate()
	m.Close()
	c.Close()
}

func TestMapProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m, err := New[uint8, int](slab.Config{
			StackSize: rapid.IntRange(0, 8).Draw(t, "stack"),
			HeapSize:  rapid.IntRange(1, 8).Draw(t, "heap"),
		})
		require.NoError(t, err)
		ref := map[uint8]int{}
		ops := rapid.SliceOf(rapid.IntRange(0, 2)).Draw(t, "ops")
		for i, op := range ops {
			k := rapid.Uint8Range(0, 32).Draw(t, "key")
			switch op {
			case 0, 1:
				require.NoError(t, m.Set(k, i))
				ref[k] = i
			case 2:
				_, had := ref[k]
				delete(ref, k)
				require.Equal(t, had, m.Delete(k))
			}
		}
		m.Validate()
		keys := make([]uint8, 0, len(ref))
		for k := range ref {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		require.Equal(t, keys, m.Keys())
		for k, v := range ref {
			got, ok := m.Get(k)
			require.True(t, ok)
			require.Equal(t, v, got)
		}
		m.Close()
	})
}
