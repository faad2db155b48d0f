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

// Package slabvec provides a contiguous sequence whose buffer is served by a
// slab.VectorAllocator: up to StackSize elements live in the inline buffer,
// larger sequences in one heap buffer.
package slabvec

import (
	"fmt"
	"log"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/slab"
)

// Vector is a growable contiguous sequence.
// The zero value is not usable, create one with New.
type Vector[T any] struct {
	alloc *slab.VectorAllocator[T]
	cfg   slab.Config
	buf   []T
}

// New creates an empty Vector with capacity cfg.StackSize, backed by the
// inline buffer. cfg.HeapSize is ignored: heap buffers are sized by growth.
func New[T any](cfg slab.Config) (*Vector[T], error) {
	alloc, err := slab.NewVector[T](cfg.Pool, cfg.StackSize)
	if err != nil {
		return nil, err
	}
	cfg.Pool = alloc.Pool()
	buf, err := alloc.Allocate(cfg.StackSize)
	if err != nil {
		alloc.Close()
		return nil, err
	}
	return &Vector[T]{alloc: alloc, cfg: cfg, buf: buf[:0]}, nil
}

// NewWithLen creates a Vector holding n copies of v, with capacity
// max(n, cfg.StackSize).
func NewWithLen[T any](cfg slab.Config, n int, v T) (*Vector[T], error) {
	vec, err := New[T](cfg)
	if err != nil {
		return nil, err
	}
	if err := vec.Reserve(n); err != nil {
		vec.Close()
		return nil, err
	}
	for i := 0; i < n; i++ {
		vec.buf = append(vec.buf, v)
	}
	return vec, nil
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int { return len(v.buf) }

// Cap returns the number of elements the current buffer holds.
func (v *Vector[T]) Cap() int { return cap(v.buf) }

// At returns the element at i.
func (v *Vector[T]) At(i int) T { return v.buf[i] }

// Set replaces the element at i.
func (v *Vector[T]) Set(i int, x T) { v.buf[i] = x }

// Ptr returns a pointer to the element at i, valid until the buffer changes.
func (v *Vector[T]) Ptr(i int) *T { return &v.buf[i] }

// Slice returns the elements. The slice aliases the buffer and is valid
// until the next call which changes the capacity.
func (v *Vector[T]) Slice() []T { return v.buf }

// Inline reports whether the elements live in the inline buffer.
func (v *Vector[T]) Inline() bool { return v.alloc.IsInline(v.buf) }

// realloc moves the elements into a new buffer of capacity n >= Len.
func (v *Vector[T]) realloc(n int) error {
	nb, err := v.alloc.Allocate(n)
	if err != nil {
		return err
	}
	if v.alloc.IsInline(nb) && v.alloc.IsInline(v.buf) {
		v.buf = nb[:len(v.buf)]
		return nil
	}
	copy(nb, v.buf)
	old := v.buf
	v.buf = nb[:len(old)]
	v.alloc.Deallocate(old)
	return nil
}

// grow makes room for n elements, at least doubling the capacity.
func (v *Vector[T]) grow(n int) error {
	if n <= cap(v.buf) {
		return nil
	}
	return v.realloc(max(n, 2*cap(v.buf)))
}

// Reserve makes the capacity at least n, reallocating to exactly n if needed.
func (v *Vector[T]) Reserve(n int) error {
	if n <= cap(v.buf) {
		return nil
	}
	return v.realloc(n)
}

// PushBack appends x.
func (v *Vector[T]) PushBack(x T) error {
	if err := v.grow(len(v.buf) + 1); err != nil {
		return err
	}
	v.buf = append(v.buf, x)
	return nil
}

// PopBack removes and returns the last element.
func (v *Vector[T]) PopBack() (x T, ok bool) {
	n := len(v.buf)
	if n == 0 {
		return x, false
	}
	x = v.buf[n-1]
	v.Truncate(n - 1)
	return x, true
}

// Resize sets the length to n, appending zero values or truncating.
func (v *Vector[T]) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("slabvec: negative length %d", n)
	}
	if n <= len(v.buf) {
		v.Truncate(n)
		return nil
	}
	if err := v.grow(n); err != nil {
		return err
	}
	v.buf = v.buf[:n]
	return nil
}

// Truncate drops the elements from n on. The capacity is kept.
func (v *Vector[T]) Truncate(n int) {
	if n >= len(v.buf) {
		return
	}
	clear(v.buf[n:])
	v.buf = v.buf[:n]
}

// Clear removes every element. The capacity is kept.
func (v *Vector[T]) Clear() { v.Truncate(0) }

// Exchange swaps the contents of v and o.
//
// Both vectors are first moved onto heap buffers with Reserve(StackSize+1),
// so the exchange itself swaps buffers and never copies inline storage
// between allocators. If the vectors account to different pools, each
// buffer's accounting follows it to its new pool.
// On error neither vector changes content.
func (v *Vector[T]) Exchange(o *Vector[T]) error {
	if v == o {
		return nil
	}
	if err := v.Reserve(v.alloc.StackSize() + 1); err != nil {
		return err
	}
	if err := o.Reserve(o.alloc.StackSize() + 1); err != nil {
		return err
	}
	if err := v.alloc.Adopt(o.alloc, o.buf); err != nil {
		return err
	}
	if err := o.alloc.Adopt(v.alloc, v.buf); err != nil {
		if uerr := o.alloc.Adopt(v.alloc, o.buf); uerr != nil {
			log.Panicf("slabvec: cannot restore accounting after failed exchange: %v (exchange: %v)", uerr, err)
		}
		return err
	}
	v.buf, o.buf = o.buf, v.buf
	return nil
}

// CopyFrom replaces the elements of v with those of o.
func (v *Vector[T]) CopyFrom(o *Vector[T]) error {
	if v == o {
		return nil
	}
	v.Clear()
	if err := v.Reserve(len(o.buf)); err != nil {
		return err
	}
	v.buf = append(v.buf, o.buf...)
	return nil
}

// Clone returns a copy of v with its own allocator, configured like the one of v.
func (v *Vector[T]) Clone() (*Vector[T], error) {
	c, err := New[T](v.cfg)
	if err != nil {
		return nil, err
	}
	if err := c.CopyFrom(v); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the buffer and the allocator. The vector must not be used afterwards.
func (v *Vector[T]) Close() {
	v.alloc.Deallocate(v.buf)
	v.buf = nil
	v.alloc.Close()
}

// StackSize returns the capacity of the inline buffer.
func (v *Vector[T]) StackSize() int { return v.alloc.StackSize() }

// Pool returns the pool the vector accounts to.
func (v *Vector[T]) Pool() *mempool.Pool { return v.cfg.Pool }
