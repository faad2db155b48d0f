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

// Package slab implements allocators handing out fixed-size slots from
// batches (slabs) instead of one allocation per element.
//
// Every node allocator owns one inline slab, created with the allocator and
// released only by Close, plus any number of heap slabs which are obtained
// when no free slot is left and released as soon as all their slots are free.
// Slots never move between slabs or between allocators: a Ref is only
// meaningful to the allocator which returned it.
//
// Allocators are not safe for concurrent use.
// Broken invariants (double free, foreign Ref, closing with live slots) are
// programmer errors and panic. The only error returned is a failed storage
// request, see mempool.ErrOutOfMemory.
package slab

import (
	"log"
	"unsafe"

	"github.com/cloudwego/slabkit/cache/mempool"
)

// Config configures a node allocator.
type Config struct {
	// Pool receives the accounting of the allocator.
	// A private unnamed pool is used if nil.
	Pool *mempool.Pool

	// StackSize is the number of slots of the inline slab.
	// If a container never holds more elements, no heap slab is ever requested.
	StackSize int

	// HeapSize is the number of slots requested at once when no free slot is left.
	// DefaultHeapSizeOf[T](0) is used if <= 0; containers pass their own default.
	HeapSize int
}

const allocatedSlot = int32(-2)

// slot holds either a live value or, while free, the index of the next free
// slot of its slab in `next`.
type slot[T any] struct {
	value T
	next  int32  // allocatedSlot while value is live
	slab  uint32 // owning slab
}

type typedStorage[T any] struct {
	slabs [][]slot[T]
}

func (s *typedStorage[T]) obtain(id uint32, n int) error {
	for int(id) >= len(s.slabs) {
		s.slabs = append(s.slabs, nil)
	}
	s.slabs[id] = make([]slot[T], n)
	return nil
}

func (s *typedStorage[T]) release(id uint32) {
	s.slabs[id] = nil
}

func (s *typedStorage[T]) push(id uint32, i, next int32) {
	var zero T
	p := &s.slabs[id][i]
	p.value = zero
	p.next = next
	p.slab = id
}

func (s *typedStorage[T]) pop(id uint32, i int32) int32 {
	p := &s.slabs[id][i]
	next := p.next
	p.next = allocatedSlot
	return next
}

func (s *typedStorage[T]) next(id uint32, i int32) int32 {
	return s.slabs[id][i].next
}

func (s *typedStorage[T]) owner(id uint32, i int32) (uint32, bool) {
	p := &s.slabs[id][i]
	return p.slab, p.next == allocatedSlot
}

// Allocator hands out slots holding one T each.
type Allocator[T any] struct {
	t     table
	store typedStorage[T]
}

// New creates an Allocator and its inline slab.
func New[T any](cfg Config) (*Allocator[T], error) {
	pool := cfg.Pool
	if pool == nil {
		pool = mempool.NewPool("")
	}
	heapSize := cfg.HeapSize
	if heapSize <= 0 {
		heapSize = DefaultHeapSizeOf[T](0)
	}
	a := &Allocator[T]{}
	// the slot size is captured once here and trusted afterwards
	if err := a.t.init(&a.store, pool, unsafe.Sizeof(slot[T]{}), cfg.StackSize, heapSize); err != nil {
		return nil, err
	}
	return a, nil
}

// Allocate returns a free slot, requesting one heap slab of HeapSize slots
// if none is left. The slot holds the zero value of T.
func (a *Allocator[T]) Allocate() (Ref, error) {
	return a.t.allocate()
}

// Deallocate returns the slot to its slab and zeroes it.
// The slab is released if it is a heap slab and all its slots are free.
// It panics if r was not allocated by a, or was already freed.
func (a *Allocator[T]) Deallocate(r Ref) {
	a.t.deallocate(r)
}

// Reserve makes sure at least n slots can be allocated without any further
// storage request. If fewer slots are free, one heap slab sized to the
// difference is requested.
func (a *Allocator[T]) Reserve(n int) error {
	return a.t.reserve(n)
}

// Get returns the value held by the allocated slot r.
// The pointer stays valid until r is deallocated.
func (a *Allocator[T]) Get(r Ref) *T {
	id, i := a.t.checkRef(r)
	return &a.store.slabs[id][i].value
}

// Close releases the inline slab and any idle heap slab.
// It panics if any slot is still allocated.
func (a *Allocator[T]) Close() {
	a.t.close()
	a.store.slabs = nil
}

// Validate walks all slabs and panics if the bookkeeping is inconsistent.
// It is O(capacity), meant for tests and debugging.
func (a *Allocator[T]) Validate() {
	a.t.validate()
	for id, s := range a.store.slabs {
		if h := &a.t.slabs[id]; h.live && len(s) != int(h.capacity) {
			log.Panicf("slab: slab %d has %d slots, header says %d", id, len(s), h.capacity)
		}
	}
}

// Stats returns the current shape of the allocator.
func (a *Allocator[T]) Stats() Stats { return a.t.stats() }

// FreeSlots returns the number of slots which can be allocated without a storage request.
func (a *Allocator[T]) FreeSlots() int { return a.t.freeSlotCount }

// InUse returns the number of allocated slots.
func (a *Allocator[T]) InUse() int { return a.t.capacity - a.t.freeSlotCount }

// Capacity returns the number of slots of all live slabs.
func (a *Allocator[T]) Capacity() int { return a.t.capacity }

// Slabs returns the number of live slabs, the inline one included.
func (a *Allocator[T]) Slabs() int { return a.Stats().Slabs }

// StackSize returns the number of slots of the inline slab.
func (a *Allocator[T]) StackSize() int { return a.Stats().StackSize }

// HeapSize returns the number of slots of a default heap slab.
func (a *Allocator[T]) HeapSize() int { return a.t.heapSize }

// SlotSize returns the accounted size of one slot.
func (a *Allocator[T]) SlotSize() uintptr { return a.t.slotSize }

// Pool returns the pool the allocator accounts to.
func (a *Allocator[T]) Pool() *mempool.Pool { return a.t.pool }
