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

package slabset

import (
	"golang.org/x/exp/constraints"

	"github.com/cloudwego/slabkit/internal/avltree"
	"github.com/cloudwego/slabkit/slab"
)

// MultiSet is an ordered set keeping equal keys, in insertion order.
type MultiSet[K any] struct {
	base[K]
}

// NewMulti creates a MultiSet ordered by <.
func NewMulti[K constraints.Ordered](cfg slab.Config) (*MultiSet[K], error) {
	return NewMultiFunc[K](cfg, avltree.Less[K])
}

// NewMultiFunc creates a MultiSet ordered by less.
func NewMultiFunc[K any](cfg slab.Config, less func(a, b K) bool) (*MultiSet[K], error) {
	t, err := avltree.New[K](cfg, less, true)
	if err != nil {
		return nil, err
	}
	return &MultiSet[K]{base[K]{tree: t}}, nil
}

// Insert adds k after any equal key.
func (s *MultiSet[K]) Insert(k K) error {
	_, err := s.tree.Insert(k)
	return err
}

// Delete removes every key equal to k and returns how many there were.
func (s *MultiSet[K]) Delete(k K) int { return s.tree.DeleteAll(k) }

// DeleteOne removes the first key equal to k and reports whether there was one.
func (s *MultiSet[K]) DeleteOne(k K) bool { return s.tree.Delete(k) }

func (s *MultiSet[K]) Clone() (*MultiSet[K], error) {
	t, err := s.clone()
	if err != nil {
		return nil, err
	}
	return &MultiSet[K]{base[K]{tree: t}}, nil
}

func (s *MultiSet[K]) CopyFrom(o *MultiSet[K]) error { return s.copyFrom(&o.base) }
