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

package slab

import (
	"fmt"
	"unsafe"

	"github.com/cloudwego/slabkit/cache/mempool"
)

// VectorAllocator serves the single live buffer of a contiguous sequence.
// Requests up to StackSize elements get the inline buffer, bigger ones get a
// heap buffer of exactly the requested size. There is no batching: the
// sequence's own growth policy decides every request size.
type VectorAllocator[T any] struct {
	pool     *mempool.Pool
	inline   []T
	elemSize uintptr
	closed   bool
}

// NewVector creates a VectorAllocator with an inline buffer of stackSize
// elements, accounted as one non-heap slab of pool (a private pool if nil).
func NewVector[T any](pool *mempool.Pool, stackSize int) (*VectorAllocator[T], error) {
	if stackSize < 0 {
		return nil, fmt.Errorf("stack size must be >= 0, got %d", stackSize)
	}
	if pool == nil {
		pool = mempool.NewPool("")
	}
	var v T
	a := &VectorAllocator[T]{pool: pool, elemSize: unsafe.Sizeof(v)}
	if err := pool.RequestStorage(0, a.elemSize, stackSize, false); err != nil {
		return nil, err
	}
	a.inline = make([]T, stackSize)
	return a, nil
}

// Allocate returns a buffer with len and cap n.
// The inline buffer is returned if n <= StackSize; the caller must not hold
// two inline buffers at once.
func (a *VectorAllocator[T]) Allocate(n int) ([]T, error) {
	a.checkOpen()
	if n < 0 {
		return nil, fmt.Errorf("slab: negative vector size %d", n)
	}
	if n <= len(a.inline) {
		return a.inline[:n:n], nil
	}
	if err := a.pool.RequestStorage(0, a.elemSize, n, true); err != nil {
		return nil, err
	}
	a.pool.NoteItemsAllocated(a.elemSize, n)
	return make([]T, n), nil
}

// Deallocate clears buf and, unless it is the inline buffer, releases it.
// buf must be a full-capacity reslice of a buffer returned by Allocate.
func (a *VectorAllocator[T]) Deallocate(buf []T) {
	a.checkOpen()
	buf = buf[:cap(buf)]
	clear(buf)
	if a.IsInline(buf) || cap(buf) == 0 {
		return
	}
	n := cap(buf)
	a.pool.NoteItemsFreed(a.elemSize, n)
	a.pool.ReleaseStorage(0, a.elemSize, n, true)
}

// Adopt moves the accounting of buf, a heap buffer returned by from, to the
// pool of a, so that a may deallocate it. On error nothing changes.
func (a *VectorAllocator[T]) Adopt(from *VectorAllocator[T], buf []T) error {
	a.checkOpen()
	from.checkOpen()
	if from.IsInline(buf) {
		panic("slab: an inline vector buffer cannot change allocator")
	}
	if a.pool == from.pool {
		return nil
	}
	n := cap(buf)
	if err := a.pool.RequestStorage(0, a.elemSize, n, true); err != nil {
		return err
	}
	a.pool.NoteItemsAllocated(a.elemSize, n)
	from.pool.NoteItemsFreed(from.elemSize, n)
	from.pool.ReleaseStorage(0, from.elemSize, n, true)
	return nil
}

// IsInline reports whether buf starts at the inline buffer.
func (a *VectorAllocator[T]) IsInline(buf []T) bool {
	if cap(buf) == 0 || cap(a.inline) == 0 {
		return cap(buf) == 0
	}
	return &buf[:1][0] == &a.inline[:1][0]
}

// StackSize returns the size of the inline buffer.
func (a *VectorAllocator[T]) StackSize() int { return len(a.inline) }

func (a *VectorAllocator[T]) Pool() *mempool.Pool { return a.pool }

// Close releases the inline buffer. Heap buffers must be deallocated first.
func (a *VectorAllocator[T]) Close() {
	a.checkOpen()
	a.pool.ReleaseStorage(0, a.elemSize, len(a.inline), false)
	a.inline = nil
	a.closed = true
}

func (a *VectorAllocator[T]) checkOpen() {
	if a.closed {
		panic("slab: use of closed vector allocator")
	}
}
