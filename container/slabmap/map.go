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

// Package slabmap provides ordered maps whose nodes are served by a slab allocator.
//
// Every map owns its allocator: nodes never move between maps, so there is
// no Swap. Copying is always entry by entry.
package slabmap

import (
	"golang.org/x/exp/constraints"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/internal/avltree"
	"github.com/cloudwego/slabkit/slab"
)

// Entry is a key and its value.
type Entry[K, V any] struct {
	Key   K
	Value V
}

func entryLess[K, V any](less func(a, b K) bool) func(a, b Entry[K, V]) bool {
	return func(a, b Entry[K, V]) bool { return less(a.Key, b.Key) }
}

func newTree[K, V any](cfg slab.Config, less func(a, b K) bool, multi bool) (*avltree.Tree[Entry[K, V]], error) {
	if cfg.HeapSize <= 0 {
		cfg.HeapSize = slab.DefaultHeapSizeOf[Entry[K, V]](slab.TreeOverhead)
	}
	return avltree.New[Entry[K, V]](cfg, entryLess[K, V](less), multi)
}

type base[K, V any] struct {
	tree *avltree.Tree[Entry[K, V]]
}

func (m *base[K, V]) key(k K) Entry[K, V] { return Entry[K, V]{Key: k} }

// Len returns the number of entries.
func (m *base[K, V]) Len() int { return m.tree.Len() }

// Has reports whether an entry with key k is present.
func (m *base[K, V]) Has(k K) bool { return m.tree.Find(m.key(k)) != nil }

// Count returns the number of entries with key k.
func (m *base[K, V]) Count(k K) int { return m.tree.Count(m.key(k)) }

// Get returns the value of the first entry with key k.
func (m *base[K, V]) Get(k K) (v V, ok bool) {
	if p := m.tree.Find(m.key(k)); p != nil {
		return p.Value, true
	}
	return v, false
}

// GetPtr returns a pointer to the value of the first entry with key k, or nil.
// It is valid until the next insertion or deletion.
func (m *base[K, V]) GetPtr(k K) *V {
	if p := m.tree.Find(m.key(k)); p != nil {
		return &p.Value
	}
	return nil
}

// Ascend calls fn for every entry in key order until fn returns false.
func (m *base[K, V]) Ascend(fn func(k K, v V) bool) {
	m.tree.Ascend(func(e *Entry[K, V]) bool { return fn(e.Key, e.Value) })
}

// AscendFrom is Ascend starting at the first key not less than pivot.
func (m *base[K, V]) AscendFrom(pivot K, fn func(k K, v V) bool) {
	m.tree.AscendFrom(m.key(pivot), func(e *Entry[K, V]) bool { return fn(e.Key, e.Value) })
}

// Descend calls fn for every entry in reverse key order until fn returns false.
func (m *base[K, V]) Descend(fn func(k K, v V) bool) {
	m.tree.Descend(func(e *Entry[K, V]) bool { return fn(e.Key, e.Value) })
}

// Min returns the entry with the smallest key.
func (m *base[K, V]) Min() (e Entry[K, V], ok bool) {
	if p := m.tree.Min(); p != nil {
		return *p, true
	}
	return e, false
}

// Max returns the entry with the largest key.
func (m *base[K, V]) Max() (e Entry[K, V], ok bool) {
	if p := m.tree.Max(); p != nil {
		return *p, true
	}
	return e, false
}

// Keys returns all keys in order.
func (m *base[K, V]) Keys() []K {
	ret := make([]K, 0, m.Len())
	m.tree.Ascend(func(e *Entry[K, V]) bool {
		ret = append(ret, e.Key)
		return true
	})
	return ret
}

// Entries returns all entries in key order.
func (m *base[K, V]) Entries() []Entry[K, V] {
	ret := make([]Entry[K, V], 0, m.Len())
	m.tree.Ascend(func(e *Entry[K, V]) bool {
		ret = append(ret, *e)
		return true
	})
	return ret
}

// Reserve makes room for n more entries without further storage requests.
func (m *base[K, V]) Reserve(n int) error { return m.tree.Reserve(n) }

// Clear removes every entry.
func (m *base[K, V]) Clear() { m.tree.Clear() }

// Close clears the map and releases its allocator. The map must not be used afterwards.
func (m *base[K, V]) Close() { m.tree.Close() }

// Stats returns the slab stats of the node allocator.
func (m *base[K, V]) Stats() slab.Stats { return m.tree.Stats() }

// Pool returns the pool the map accounts to.
func (m *base[K, V]) Pool() *mempool.Pool { return m.tree.Config().Pool }

// Validate panics if the map or its allocator is inconsistent.
func (m *base[K, V]) Validate() { m.tree.Validate() }

func (m *base[K, V]) copyFrom(o *base[K, V]) error {
	if m == o {
		return nil
	}
	m.tree.Clear()
	if err := m.tree.Reserve(o.Len()); err != nil {
		return err
	}
	var err error
	o.tree.Ascend(func(e *Entry[K, V]) bool {
		_, err = m.tree.Insert(*e)
		return err == nil
	})
	return err
}

func (m *base[K, V]) clone() (base[K, V], error) {
	t, err := avltree.New[Entry[K, V]](m.tree.Config(), m.tree.Less(), m.tree.Multi())
	if err != nil {
		return base[K, V]{}, err
	}
	c := base[K, V]{tree: t}
	if err := c.copyFrom(m); err != nil {
		t.Close()
		return base[K, V]{}, err
	}
	return c, nil
}

// Map is an ordered map with unique keys.
type Map[K, V any] struct {
	base[K, V]
}

// New creates a Map ordered by <.
// cfg.HeapSize defaults to slab.DefaultHeapSizeOf[Entry[K, V]](slab.TreeOverhead).
func New[K constraints.Ordered, V any](cfg slab.Config) (*Map[K, V], error) {
	return NewFunc[K, V](cfg, avltree.Less[K])
}

// NewFunc creates a Map ordered by less.
func NewFunc[K, V any](cfg slab.Config, less func(a, b K) bool) (*Map[K, V], error) {
	t, err := newTree[K, V](cfg, less, false)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{base[K, V]{tree: t}}, nil
}

// Set maps k to v, replacing the value of an existing entry.
func (m *Map[K, V]) Set(k K, v V) error {
	if p := m.tree.Find(m.key(k)); p != nil {
		p.Value = v
		return nil
	}
	_, err := m.tree.Insert(Entry[K, V]{Key: k, Value: v})
	return err
}

// Insert adds the entry only if k is absent, and reports whether it did.
func (m *Map[K, V]) Insert(k K, v V) (bool, error) {
	return m.tree.Insert(Entry[K, V]{Key: k, Value: v})
}

// Delete removes the entry with key k and reports whether there was one.
func (m *Map[K, V]) Delete(k K) bool { return m.tree.Delete(m.key(k)) }

// Clone returns a copy of m with its own allocator, configured like the one of m.
func (m *Map[K, V]) Clone() (*Map[K, V], error) {
	c, err := m.clone()
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{c}, nil
}

// CopyFrom replaces the entries of m with copies of the entries of o.
// On error m holds a prefix of o.
func (m *Map[K, V]) CopyFrom(o *Map[K, V]) error { return m.copyFrom(&o.base) }
