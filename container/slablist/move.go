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

package slablist

import "github.com/cloudwego/slabkit/slab"

// moveOne copies the value of e, an element of o, into a new element of l
// placed before pos, then erases e from o.
// On error neither list is changed.
func (l *List[T]) moveOne(pos Elem, o *List[T], e Elem) error {
	n := o.node(e)
	r, err := l.alloc.Allocate()
	if err != nil {
		return err
	}
	nn := l.alloc.Get(r)
	nn.value = n.value
	l.link(r, nn, slab.Ref(pos))
	o.unlink(n)
	o.alloc.Deallocate(slab.Ref(e))
	return nil
}

// TransferAll exchanges the contents of l and o.
//
// Elements are copied one by one, alternately moving the front of the
// remaining original elements of each list to the back of the other:
// O(len(l)+len(o)) copies. Room for the incoming elements is reserved in
// both lists first. If a storage request still fails midway, both lists are
// valid, no element is lost or duplicated, but the exchange is incomplete.
func (l *List[T]) TransferAll(o *List[T]) error {
	if l == o {
		return nil
	}
	n, m := l.size, o.size
	if err := l.Reserve(m); err != nil {
		return err
	}
	if err := o.Reserve(n); err != nil {
		return err
	}
	for n > 0 || m > 0 {
		if n > 0 {
			if err := o.moveOne(End, l, l.Front()); err != nil {
				return err
			}
			n--
		}
		if m > 0 {
			if err := l.moveOne(End, o, o.Front()); err != nil {
				return err
			}
			m--
		}
	}
	return nil
}

// MoveRange moves the elements [first, last) of o before pos in l.
//
// If o is l the elements are relinked in place and pos must not be inside
// the range. Otherwise every element is copied into l and erased from o:
// O(k) for k elements, with room for all of them reserved in l first.
// If a storage request fails, the elements not moved yet stay in o.
func (l *List[T]) MoveRange(pos Elem, o *List[T], first, last Elem) error {
	if first == last {
		return nil
	}
	if l == o {
		l.relink(pos, first, last)
		return nil
	}
	k := 0
	for e := first; e != last; e = o.Next(e) {
		k++
	}
	if err := l.Reserve(k); err != nil {
		return err
	}
	for e := first; e != last; {
		next := o.Next(e)
		if err := l.moveOne(pos, o, e); err != nil {
			return err
		}
		e = next
	}
	return nil
}

// MoveAll moves every element of o before pos in l.
func (l *List[T]) MoveAll(pos Elem, o *List[T]) error {
	return l.MoveRange(pos, o, o.Front(), End)
}

// MoveElem moves the element e of o before pos in l. e End moves nothing.
func (l *List[T]) MoveElem(pos Elem, o *List[T], e Elem) error {
	if e == End {
		return nil
	}
	return l.MoveRange(pos, o, e, o.Next(e))
}

// relink moves [first, last) of l before pos without copying.
func (l *List[T]) relink(pos, first, last Elem) {
	if pos == last {
		return
	}
	lastIn := l.Prev(last)
	for e := first; ; e = l.Next(e) {
		if e == pos {
			panic("slablist: move position inside the moved range")
		}
		if e == lastIn {
			break
		}
	}
	fn, ln := l.node(first), l.node(lastIn)

	if fn.prev.IsNil() {
		l.head = ln.next
	} else {
		l.alloc.Get(fn.prev).next = ln.next
	}
	if ln.next.IsNil() {
		l.tail = fn.prev
	} else {
		l.alloc.Get(ln.next).prev = fn.prev
	}

	ln.next = slab.Ref(pos)
	if pos == End {
		fn.prev = l.tail
		l.tail = slab.Ref(lastIn)
	} else {
		p := l.node(pos)
		fn.prev = p.prev
		p.prev = slab.Ref(lastIn)
	}
	if fn.prev.IsNil() {
		l.head = slab.Ref(first)
	} else {
		l.alloc.Get(fn.prev).next = slab.Ref(first)
	}
}
