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
	"golang.org/x/exp/constraints"

	"github.com/cloudwego/slabkit/internal/avltree"
	"github.com/cloudwego/slabkit/slab"
)

// MultiMap is an ordered map keeping every entry of a key, in insertion order.
type MultiMap[K, V any] struct {
	base[K, V]
}

// NewMulti creates a MultiMap ordered by <.
func NewMulti[K constraints.Ordered, V any](cfg slab.Config) (*MultiMap[K, V], error) {
	return NewMultiFunc[K, V](cfg, avltree.Less[K])
}

// NewMultiFunc creates a MultiMap ordered by less.
func NewMultiFunc[K, V any](cfg slab.Config, less func(a, b K) bool) (*MultiMap[K, V], error) {
	t, err := newTree[K, V](cfg, less, true)
	if err != nil {
		return nil, err
	}
	return &MultiMap[K, V]{base[K, V]{tree: t}}, nil
}

// Insert adds an entry after the existing entries of k.
func (m *MultiMap[K, V]) Insert(k K, v V) error {
	_, err := m.tree.Insert(Entry[K, V]{Key: k, Value: v})
	return err
}

// GetAll returns the values of k in insertion order.
func (m *MultiMap[K, V]) GetAll(k K) []V {
	var ret []V
	m.tree.AscendFrom(m.key(k), func(e *Entry[K, V]) bool {
		if m.tree.Less()(m.key(k), *e) {
			return false
		}
		ret = append(ret, e.Value)
		return true
	})
	return ret
}

// Delete removes every entry of k and returns how many there were.
func (m *MultiMap[K, V]) Delete(k K) int { return m.tree.DeleteAll(m.key(k)) }

// DeleteOne removes the first entry of k and reports whether there was one.
func (m *MultiMap[K, V]) DeleteOne(k K) bool { return m.tree.Delete(m.key(k)) }

func (m *MultiMap[K, V]) Clone() (*MultiMap[K, V], error) {
	c, err := m.clone()
	if err != nil {
		return nil, err
	}
	return &MultiMap[K, V]{c}, nil
}

func (m *MultiMap[K, V]) CopyFrom(o *MultiMap[K, V]) error { return m.copyFrom(&o.base) }
