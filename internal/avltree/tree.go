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

// Package avltree implements an AVL tree whose nodes live in a slab.Allocator.
//
// The tree is the ordered primitive behind the slab-backed maps and sets.
// Nodes are addressed by slab.Ref, so every node stays bound to the
// allocator of its own tree.
package avltree

import (
	"log"

	"golang.org/x/exp/constraints"

	"github.com/cloudwego/slabkit/slab"
)

// Less is the natural ordering of ordered types.
func Less[T constraints.Ordered](a, b T) bool { return a < b }

type node[T any] struct {
	value  T
	left   slab.Ref
	right  slab.Ref
	height int32
}

// Tree is an AVL tree ordered by less.
// In multi mode equal elements are kept, each new one after the existing
// equal ones; otherwise Insert refuses an element equal to a present one.
type Tree[T any] struct {
	alloc *slab.Allocator[node[T]]
	cfg   slab.Config
	less  func(a, b T) bool
	multi bool
	root  slab.Ref
	size  int
}

// New creates an empty Tree.
// cfg.HeapSize defaults to slab.DefaultHeapSizeOf[T](slab.TreeOverhead).
func New[T any](cfg slab.Config, less func(a, b T) bool, multi bool) (*Tree[T], error) {
	if cfg.HeapSize <= 0 {
		cfg.HeapSize = slab.DefaultHeapSizeOf[T](slab.TreeOverhead)
	}
	alloc, err := slab.New[node[T]](cfg)
	if err != nil {
		return nil, err
	}
	cfg.Pool = alloc.Pool()
	return &Tree[T]{alloc: alloc, cfg: cfg, less: less, multi: multi}, nil
}

// Config returns the configuration the tree was created with, pool included.
func (t *Tree[T]) Config() slab.Config { return t.cfg }

// Less returns the ordering of the tree.
func (t *Tree[T]) Less() func(a, b T) bool { return t.less }

// Multi reports whether equal elements are kept.
func (t *Tree[T]) Multi() bool { return t.multi }

// Len returns the number of elements.
func (t *Tree[T]) Len() int { return t.size }

// Stats returns the slab stats of the node allocator.
func (t *Tree[T]) Stats() slab.Stats { return t.alloc.Stats() }

// Reserve makes room for n more elements without further storage requests.
func (t *Tree[T]) Reserve(n int) error {
	return t.alloc.Reserve(n)
}

func (t *Tree[T]) node(r slab.Ref) *node[T] {
	return t.alloc.Get(r)
}

func (t *Tree[T]) height(r slab.Ref) int32 {
	if r.IsNil() {
		return 0
	}
	return t.node(r).height
}

func (t *Tree[T]) balance(r slab.Ref) int32 {
	if r.IsNil() {
		return 0
	}
	n := t.node(r)
	return t.height(n.right) - t.height(n.left)
}

func (t *Tree[T]) updateHeight(n *node[T]) {
	n.height = 1 + max(t.height(n.left), t.height(n.right))
}

func (t *Tree[T]) rotateRight(r slab.Ref) slab.Ref {
	n := t.node(r)
	lr := n.left
	l := t.node(lr)
	n.left = l.right
	l.right = r
	t.updateHeight(n)
	t.updateHeight(l)
	return lr
}

func (t *Tree[T]) rotateLeft(r slab.Ref) slab.Ref {
	n := t.node(r)
	rr := n.right
	rn := t.node(rr)
	n.right = rn.left
	rn.left = r
	t.updateHeight(n)
	t.updateHeight(rn)
	return rr
}

func (t *Tree[T]) repairBalance(r slab.Ref) slab.Ref {
	n := t.node(r)
	t.updateHeight(n)
	switch t.balance(r) {
	case 2:
		if t.balance(n.right) == -1 {
			n.right = t.rotateRight(n.right)
		}
		return t.rotateLeft(r)
	case -2:
		if t.balance(n.left) == 1 {
			n.left = t.rotateLeft(n.left)
		}
		return t.rotateRight(r)
	}
	return r
}

// Insert adds v. In unique mode it returns false, leaving the tree
// unchanged, if an equal element is present.
// The only error is a failed node allocation, the tree is then unchanged.
func (t *Tree[T]) Insert(v T) (bool, error) {
	if !t.multi && t.Find(v) != nil {
		return false, nil
	}
	nr, err := t.alloc.Allocate()
	if err != nil {
		return false, err
	}
	n := t.node(nr)
	n.value = v
	n.height = 1
	t.root = t.insert(t.root, nr, n)
	t.size++
	return true, nil
}

func (t *Tree[T]) insert(r, nr slab.Ref, nn *node[T]) slab.Ref {
	if r.IsNil() {
		return nr
	}
	n := t.node(r)
	if t.less(nn.value, n.value) {
		n.left = t.insert(n.left, nr, nn)
	} else {
		n.right = t.insert(n.right, nr, nn)
	}
	return t.repairBalance(r)
}

// Find returns the first element equal to v, or nil.
// The pointer is valid until the next Insert or Delete; the part of the
// element the ordering depends on must not be modified through it.
func (t *Tree[T]) Find(v T) *T {
	r := t.find(t.root, v)
	if r.IsNil() {
		return nil
	}
	if t.multi {
		return t.LowerBound(v)
	}
	return &t.node(r).value
}

func (t *Tree[T]) find(r slab.Ref, v T) slab.Ref {
	for !r.IsNil() {
		n := t.node(r)
		switch {
		case t.less(n.value, v):
			r = n.right
		case t.less(v, n.value):
			r = n.left
		default:
			return r
		}
	}
	return slab.NilRef
}

// LowerBound returns the first element not less than v, or nil.
func (t *Tree[T]) LowerBound(v T) *T {
	var ret *T
	for r := t.root; !r.IsNil(); {
		n := t.node(r)
		if t.less(n.value, v) {
			r = n.right
		} else {
			ret = &n.value
			r = n.left
		}
	}
	return ret
}

// Count returns the number of elements equal to v.
func (t *Tree[T]) Count(v T) int {
	if !t.multi {
		if t.find(t.root, v).IsNil() {
			return 0
		}
		return 1
	}
	n := 0
	t.AscendFrom(v, func(e *T) bool {
		if t.less(v, *e) {
			return false
		}
		n++
		return true
	})
	return n
}

// Delete removes the first element equal to v and reports whether there was one.
func (t *Tree[T]) Delete(v T) bool {
	var ok bool
	t.root, ok = t.remove(t.root, v)
	if ok {
		t.size--
	}
	return ok
}

// DeleteAll removes every element equal to v and returns how many there were.
func (t *Tree[T]) DeleteAll(v T) int {
	n := 0
	for t.Delete(v) {
		n++
	}
	return n
}

func (t *Tree[T]) remove(r slab.Ref, v T) (slab.Ref, bool) {
	if r.IsNil() {
		return r, false
	}
	n := t.node(r)
	var ok bool
	switch {
	case t.less(n.value, v):
		n.right, ok = t.remove(n.right, v)
	case t.less(v, n.value):
		n.left, ok = t.remove(n.left, v)
	case t.multi && !t.find(n.left, v).IsNil():
		// an equal element comes first
		n.left, ok = t.remove(n.left, v)
	default:
		if n.left.IsNil() {
			root := n.right
			t.alloc.Deallocate(r)
			return root, true
		}
		if n.right.IsNil() {
			root := n.left
			t.alloc.Deallocate(r)
			return root, true
		}
		n.value, n.right = t.extractMin(n.right)
		ok = true
	}
	if !ok {
		return r, false
	}
	return t.repairBalance(r), true
}

// extractMin removes the minimum of the non-empty subtree r.
// Returns the removed value and the new subtree root.
func (t *Tree[T]) extractMin(r slab.Ref) (T, slab.Ref) {
	if r.IsNil() {
		panic("avltree: extractMin on empty subtree")
	}
	n := t.node(r)
	if n.left.IsNil() {
		value, root := n.value, n.right
		t.alloc.Deallocate(r)
		return value, root
	}
	var value T
	value, n.left = t.extractMin(n.left)
	return value, t.repairBalance(r)
}

// Min returns the first element, or nil if the tree is empty.
func (t *Tree[T]) Min() *T {
	if t.root.IsNil() {
		return nil
	}
	r := t.root
	for n := t.node(r); !n.left.IsNil(); n = t.node(r) {
		r = n.left
	}
	return &t.node(r).value
}

// Max returns the last element, or nil if the tree is empty.
func (t *Tree[T]) Max() *T {
	if t.root.IsNil() {
		return nil
	}
	r := t.root
	for n := t.node(r); !n.right.IsNil(); n = t.node(r) {
		r = n.right
	}
	return &t.node(r).value
}

// Ascend calls fn for every element in order until fn returns false.
// fn must not insert or delete.
func (t *Tree[T]) Ascend(fn func(v *T) bool) {
	stack := make([]slab.Ref, 0, 32)
	for r := t.root; !r.IsNil(); r = t.node(r).left {
		stack = append(stack, r)
	}
	t.ascend(stack, fn)
}

// AscendFrom is Ascend starting at the first element not less than pivot.
func (t *Tree[T]) AscendFrom(pivot T, fn func(v *T) bool) {
	stack := make([]slab.Ref, 0, 32)
	for r := t.root; !r.IsNil(); {
		n := t.node(r)
		if t.less(n.value, pivot) {
			r = n.right
		} else {
			stack = append(stack, r)
			r = n.left
		}
	}
	t.ascend(stack, fn)
}

// ascend walks in order; the top of stack is the next node to visit and
// each entry below is the next ancestor whose left subtree is being walked.
func (t *Tree[T]) ascend(stack []slab.Ref, fn func(v *T) bool) {
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.node(r)
		if !fn(&n.value) {
			return
		}
		for c := n.right; !c.IsNil(); c = t.node(c).left {
			stack = append(stack, c)
		}
	}
}

// Descend calls fn for every element in reverse order until fn returns false.
func (t *Tree[T]) Descend(fn func(v *T) bool) {
	stack := make([]slab.Ref, 0, 32)
	for r := t.root; !r.IsNil(); r = t.node(r).right {
		stack = append(stack, r)
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.node(r)
		if !fn(&n.value) {
			return
		}
		for c := n.left; !c.IsNil(); c = t.node(c).right {
			stack = append(stack, c)
		}
	}
}

// Clear removes every element, keeping the reserved storage of the allocator
// apart from heap slabs which become empty.
func (t *Tree[T]) Clear() {
	t.clear(t.root)
	t.root = slab.NilRef
	t.size = 0
}

func (t *Tree[T]) clear(r slab.Ref) {
	if r.IsNil() {
		return
	}
	n := t.node(r)
	t.clear(n.left)
	t.clear(n.right)
	t.alloc.Deallocate(r)
}

// Close clears the tree and closes its allocator.
func (t *Tree[T]) Close() {
	t.Clear()
	t.alloc.Close()
}

// Validate panics if the tree or its allocator is inconsistent.
func (t *Tree[T]) Validate() {
	t.alloc.Validate()
	var none T
	n := t.validate(t.root, none, false, none, false)
	if n != t.size {
		log.Panicf("avltree: %d nodes reachable, size is %d", n, t.size)
	}
	if inuse := t.alloc.InUse(); inuse != t.size {
		log.Panicf("avltree: %d slots allocated for %d elements", inuse, t.size)
	}
}

func (t *Tree[T]) validate(r slab.Ref, lo T, hasLo bool, hi T, hasHi bool) int {
	if r.IsNil() {
		return 0
	}
	n := t.node(r)
	if hasLo && (t.less(n.value, lo) || !t.multi && !t.less(lo, n.value)) {
		log.Panicf("avltree: node value %+v out of order with left border %+v", n.value, lo)
	}
	if hasHi && (t.less(hi, n.value) || !t.multi && !t.less(n.value, hi)) {
		log.Panicf("avltree: node value %+v out of order with right border %+v", n.value, hi)
	}
	if b := t.balance(r); b < -1 || b > 1 {
		log.Panicf("avltree: node %v has balance %d", r, b)
	}
	if h := 1 + max(t.height(n.left), t.height(n.right)); h != n.height {
		log.Panicf("avltree: node %v has height %d, want %d", r, n.height, h)
	}
	return 1 + t.validate(n.left, lo, hasLo, n.value, true) + t.validate(n.right, n.value, true, hi, hasHi)
}
