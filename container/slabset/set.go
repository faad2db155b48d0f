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

// Package slabset provides ordered sets whose nodes are served by a slab allocator.
//
// Every set owns its allocator: nodes never move between sets, so there is
// no Swap. Copying is always element by element.
package slabset

import (
	"golang.org/x/exp/constraints"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/internal/avltree"
	"github.com/cloudwego/slabkit/slab"
)

type base[K any] struct {
	tree *avltree.Tree[K]
}

// Len returns the number of keys.
func (s *base[K]) Len() int { return s.tree.Len() }

// Has reports whether k is present.
func (s *base[K]) Has(k K) bool { return s.tree.Find(k) != nil }

// Count returns the number of keys equal to k.
func (s *base[K]) Count(k K) int { return s.tree.Count(k) }

// Ascend calls fn for every key in order until fn returns false.
func (s *base[K]) Ascend(fn func(k K) bool) {
	s.tree.Ascend(func(k *K) bool { return fn(*k) })
}

// AscendFrom calls fn for every key not less than pivot, in order, until fn returns false.
func (s *base[K]) AscendFrom(pivot K, fn func(k K) bool) {
	s.tree.AscendFrom(pivot, func(k *K) bool { return fn(*k) })
}

// Descend calls fn for every key in reverse order until fn returns false.
func (s *base[K]) Descend(fn func(k K) bool) {
	s.tree.Descend(func(k *K) bool { return fn(*k) })
}

// Min returns the smallest key.
func (s *base[K]) Min() (k K, ok bool) {
	if p := s.tree.Min(); p != nil {
		return *p, true
	}
	return k, false
}

// Max returns the largest key.
func (s *base[K]) Max() (k K, ok bool) {
	if p := s.tree.Max(); p != nil {
		return *p, true
	}
	return k, false
}

// Keys returns all keys in order.
func (s *base[K]) Keys() []K {
	ret := make([]K, 0, s.Len())
	s.Ascend(func(k K) bool {
		ret = append(ret, k)
		return true
	})
	return ret
}

// Reserve makes room for n more keys without further storage requests.
func (s *base[K]) Reserve(n int) error { return s.tree.Reserve(n) }

// Clear removes every key.
func (s *base[K]) Clear() { s.tree.Clear() }

// Close clears the set and releases its allocator. The set must not be used afterwards.
func (s *base[K]) Close() { s.tree.Close() }

// Stats returns the slab stats of the node allocator.
func (s *base[K]) Stats() slab.Stats { return s.tree.Stats() }

// Pool returns the pool the set accounts to.
func (s *base[K]) Pool() *mempool.Pool { return s.tree.Config().Pool }

// Validate panics if the set or its allocator is inconsistent.
func (s *base[K]) Validate() { s.tree.Validate() }

// copyFrom clears s and inserts every key of o.
func (s *base[K]) copyFrom(o *base[K]) error {
	if s == o {
		return nil
	}
	s.tree.Clear()
	if err := s.tree.Reserve(o.Len()); err != nil {
		return err
	}
	var err error
	o.tree.Ascend(func(k *K) bool {
		_, err = s.tree.Insert(*k)
		return err == nil
	})
	return err
}

func (s *base[K]) clone() (*avltree.Tree[K], error) {
	t, err := avltree.New[K](s.tree.Config(), s.tree.Less(), s.tree.Multi())
	if err != nil {
		return nil, err
	}
	c := &base[K]{tree: t}
	if err := c.copyFrom(s); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// Set is an ordered set of unique keys.
type Set[K any] struct {
	base[K]
}

// New creates a Set ordered by <.
func New[K constraints.Ordered](cfg slab.Config) (*Set[K], error) {
	return NewFunc[K](cfg, avltree.Less[K])
}

// NewFunc creates a Set ordered by less.
func NewFunc[K any](cfg slab.Config, less func(a, b K) bool) (*Set[K], error) {
	t, err := avltree.New[K](cfg, less, false)
	if err != nil {
		return nil, err
	}
	return &Set[K]{base[K]{tree: t}}, nil
}

// Insert adds k and reports whether it was absent.
func (s *Set[K]) Insert(k K) (bool, error) { return s.tree.Insert(k) }

// Delete removes k and reports whether it was present.
func (s *Set[K]) Delete(k K) bool { return s.tree.Delete(k) }

// Clone returns a copy of s with its own allocator, configured like the one of s.
func (s *Set[K]) Clone() (*Set[K], error) {
	t, err := s.clone()
	if err != nil {
		return nil, err
	}
	return &Set[K]{base[K]{tree: t}}, nil
}

// CopyFrom replaces the keys of s with copies of the keys of o.
// On error s holds a prefix of o.
func (s *Set[K]) CopyFrom(o *Set[K]) error { return s.copyFrom(&o.base) }
