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

// Package slablist provides a doubly-linked list whose nodes are served by a
// slab allocator.
//
// A list owns its allocator and nodes never leave it. Operations which would
// relink nodes of another list (swap, splice) copy the elements instead:
// TransferAll exchanges the contents of two lists, the Move functions take
// elements from another list. Both cost O(n) copies.
package slablist

import (
	"log"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/slab"
)

type node[T any] struct {
	value T
	prev  slab.Ref
	next  slab.Ref
}

// Elem is a handle to an element of a List.
// It is valid until the element is erased or moved.
type Elem slab.Ref

// End is the position past the last element.
const End = Elem(slab.NilRef)

// List is a doubly-linked list.
type List[T any] struct {
	alloc *slab.Allocator[node[T]]
	cfg   slab.Config
	head  slab.Ref
	tail  slab.Ref
	size  int
}

// New creates an empty List.
// cfg.HeapSize defaults to slab.DefaultHeapSizeOf[T](slab.ListOverhead).
func New[T any](cfg slab.Config) (*List[T], error) {
	if cfg.HeapSize <= 0 {
		cfg.HeapSize = slab.DefaultHeapSizeOf[T](slab.ListOverhead)
	}
	alloc, err := slab.New[node[T]](cfg)
	if err != nil {
		return nil, err
	}
	cfg.Pool = alloc.Pool()
	return &List[T]{alloc: alloc, cfg: cfg}, nil
}

func (l *List[T]) node(e Elem) *node[T] {
	return l.alloc.Get(slab.Ref(e))
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.size }

// Front returns the first element, End if the list is empty.
func (l *List[T]) Front() Elem { return Elem(l.head) }

// Back returns the last element, End if the list is empty.
func (l *List[T]) Back() Elem { return Elem(l.tail) }

// End returns End.
func (l *List[T]) End() Elem { return End }

// Next returns the element after e, End after the last one.
func (l *List[T]) Next(e Elem) Elem { return Elem(l.node(e).next) }

// Prev returns the element before e, End before the first one.
// Prev(End) is Back.
func (l *List[T]) Prev(e Elem) Elem {
	if e == End {
		return l.Back()
	}
	return Elem(l.node(e).prev)
}

// Value returns the value of e.
func (l *List[T]) Value(e Elem) T { return l.node(e).value }

// ValuePtr returns a pointer to the value of e, valid as long as e.
func (l *List[T]) ValuePtr(e Elem) *T { return &l.node(e).value }

// InsertBefore inserts v before pos and returns its element.
// pos End appends.
func (l *List[T]) InsertBefore(pos Elem, v T) (Elem, error) {
	if pos != End {
		l.node(pos)
	}
	r, err := l.alloc.Allocate()
	if err != nil {
		return End, err
	}
	n := l.alloc.Get(r)
	n.value = v
	l.link(r, n, slab.Ref(pos))
	return Elem(r), nil
}

// link inserts the detached node r before pos.
func (l *List[T]) link(r slab.Ref, n *node[T], pos slab.Ref) {
	n.next = pos
	if pos.IsNil() {
		n.prev = l.tail
		l.tail = r
	} else {
		p := l.alloc.Get(pos)
		n.prev = p.prev
		p.prev = r
	}
	if n.prev.IsNil() {
		l.head = r
	} else {
		l.alloc.Get(n.prev).next = r
	}
	l.size++
}

// unlink detaches n, leaving its own links untouched.
func (l *List[T]) unlink(n *node[T]) {
	if n.prev.IsNil() {
		l.head = n.next
	} else {
		l.alloc.Get(n.prev).next = n.next
	}
	if n.next.IsNil() {
		l.tail = n.prev
	} else {
		l.alloc.Get(n.next).prev = n.prev
	}
	l.size--
}

// PushBack appends v.
func (l *List[T]) PushBack(v T) (Elem, error) { return l.InsertBefore(End, v) }

// PushFront prepends v.
func (l *List[T]) PushFront(v T) (Elem, error) { return l.InsertBefore(l.Front(), v) }

// Erase removes e and returns the element which followed it.
func (l *List[T]) Erase(e Elem) Elem {
	n := l.node(e)
	next := Elem(n.next)
	l.unlink(n)
	l.alloc.Deallocate(slab.Ref(e))
	return next
}

// PopFront removes and returns the first value.
func (l *List[T]) PopFront() (v T, ok bool) {
	if l.size == 0 {
		return v, false
	}
	v = l.Value(l.Front())
	l.Erase(l.Front())
	return v, true
}

// PopBack removes and returns the last value.
func (l *List[T]) PopBack() (v T, ok bool) {
	if l.size == 0 {
		return v, false
	}
	v = l.Value(l.Back())
	l.Erase(l.Back())
	return v, true
}

// Do calls fn for every value from front to back until fn returns false.
// fn must not insert or erase.
func (l *List[T]) Do(fn func(v *T) bool) {
	for r := l.head; !r.IsNil(); {
		n := l.alloc.Get(r)
		if !fn(&n.value) {
			return
		}
		r = n.next
	}
}

// Values returns all values from front to back.
func (l *List[T]) Values() []T {
	ret := make([]T, 0, l.size)
	l.Do(func(v *T) bool {
		ret = append(ret, *v)
		return true
	})
	return ret
}

// Clear removes every element.
func (l *List[T]) Clear() {
	for r := l.head; !r.IsNil(); {
		next := l.alloc.Get(r).next
		l.alloc.Deallocate(r)
		r = next
	}
	l.head, l.tail = slab.NilRef, slab.NilRef
	l.size = 0
}

// Reserve makes room for n more elements without further storage requests.
func (l *List[T]) Reserve(n int) error { return l.alloc.Reserve(n) }

// Close clears the list and releases its allocator. The list must not be used afterwards.
func (l *List[T]) Close() {
	l.Clear()
	l.alloc.Close()
}

// Stats returns the slab stats of the node allocator.
func (l *List[T]) Stats() slab.Stats { return l.alloc.Stats() }

// Pool returns the pool the list accounts to.
func (l *List[T]) Pool() *mempool.Pool { return l.cfg.Pool }

// Validate panics if the links, the size or the allocator are inconsistent.
func (l *List[T]) Validate() {
	l.alloc.Validate()
	n := 0
	prev := slab.NilRef
	for r := l.head; !r.IsNil(); r = l.alloc.Get(r).next {
		if p := l.alloc.Get(r).prev; p != prev {
			log.Panicf("slablist: element %v links back to %v, want %v", r, p, prev)
		}
		prev = r
		if n++; n > l.size {
			log.Panicf("slablist: more than %d elements reachable", l.size)
		}
	}
	if prev != l.tail || n != l.size {
		log.Panicf("slablist: %d elements ending at %v, size %d tail %v", n, prev, l.size, l.tail)
	}
	if inuse := l.alloc.InUse(); inuse != l.size {
		log.Panicf("slablist: %d slots allocated for %d elements", inuse, l.size)
	}
}

// Clone returns a copy of l with its own allocator, configured like the one of l.
func (l *List[T]) Clone() (*List[T], error) {
	c, err := New[T](l.cfg)
	if err != nil {
		return nil, err
	}
	if err := c.CopyFrom(l); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// CopyFrom replaces the elements of l with copies of the elements of o.
// On error l holds a prefix of o.
func (l *List[T]) CopyFrom(o *List[T]) error {
	if l == o {
		return nil
	}
	l.Clear()
	if err := l.Reserve(o.size); err != nil {
		return err
	}
	for r := o.head; !r.IsNil(); {
		n := o.alloc.Get(r)
		if _, err := l.PushBack(n.value); err != nil {
			return err
		}
		r = n.next
	}
	return nil
}
