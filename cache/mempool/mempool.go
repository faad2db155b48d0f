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

// Package mempool keeps byte and item accounting for named memory pools.
//
// A Pool does not hand out memory itself. Allocators report every storage
// request and release to the pool they were created with, and every item
// they hand out or take back, so that the pool can answer how much memory
// is held, how much of it is in use and how many slabs back it.
package mempool

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrOutOfMemory is returned when a storage request cannot be satisfied.
var ErrOutOfMemory = errors.New("mempool: out of memory")

// Pool aggregates the accounting of all allocators bound to it.
// Counters are updated atomically, so allocators living in different
// goroutines may share one Pool.
type Pool struct {
	name  string
	limit atomic.Int64 // max allocated bytes, 0 for unlimited

	slabs        atomic.Int64 // live slabs, inline ones included
	heapSlabs    atomic.Int64 // live slabs obtained on demand
	heapRequests atomic.Int64 // heap storage requests ever made

	allocatedBytes atomic.Int64
	allocatedItems atomic.Int64
	inuseBytes     atomic.Int64
	inuseItems     atomic.Int64
}

// NewPool creates a Pool which is not registered anywhere.
func NewPool(name string) *Pool {
	return &Pool{name: name}
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// SetLimit caps the number of bytes the pool may hold. 0 removes the cap.
// Lowering the limit below AllocatedBytes only affects later requests.
func (p *Pool) SetLimit(bytes int64) {
	if bytes < 0 {
		bytes = 0
	}
	p.limit.Store(bytes)
}

// Limit returns the byte limit, 0 if unlimited.
func (p *Pool) Limit() int64 {
	return p.limit.Load()
}

// RequestStorage accounts one slab of `count` slots of `slotSize` bytes plus a
// header of `headerSize` bytes. All slots of a new slab are free.
// `heap` tells whether the storage is obtained on demand or is the inline
// storage of an allocator.
// It fails with ErrOutOfMemory, leaving every counter unchanged, if the
// request would exceed the limit.
func (p *Pool) RequestStorage(headerSize, slotSize uintptr, count int, heap bool) error {
	sz := storageBytes(headerSize, slotSize, count)
	if err := p.reserveBytes(sz); err != nil {
		return err
	}
	p.allocatedItems.Add(int64(count))
	p.slabs.Inc()
	if heap {
		p.heapSlabs.Inc()
		p.heapRequests.Inc()
	}
	return nil
}

func (p *Pool) reserveBytes(sz int64) error {
	limit := p.limit.Load()
	if limit <= 0 {
		p.allocatedBytes.Add(sz)
		return nil
	}
	for {
		curr := p.allocatedBytes.Load()
		if curr+sz > limit {
			return errors.Wrapf(ErrOutOfMemory, "pool %q: %d bytes requested, %d of %d held", p.name, sz, curr, limit)
		}
		if p.allocatedBytes.CompareAndSwap(curr, curr+sz) {
			return nil
		}
	}
}

// ReleaseStorage reverses a RequestStorage call made with the same arguments.
// The released slots must all be free.
func (p *Pool) ReleaseStorage(headerSize, slotSize uintptr, count int, heap bool) {
	sz := storageBytes(headerSize, slotSize, count)
	if p.allocatedBytes.Sub(sz) < 0 || p.allocatedItems.Sub(int64(count)) < 0 || p.slabs.Dec() < 0 {
		log.Panicf("mempool: pool %q released more storage than requested\n%s", p.name, p.Stats())
	}
	if heap && p.heapSlabs.Dec() < 0 {
		log.Panicf("mempool: pool %q released more heap slabs than requested\n%s", p.name, p.Stats())
	}
}

// NoteItemAllocated moves one free slot of `slotSize` bytes to in-use.
func (p *Pool) NoteItemAllocated(slotSize uintptr) {
	p.NoteItemsAllocated(slotSize, 1)
}

// NoteItemFreed moves one in-use slot of `slotSize` bytes back to free.
func (p *Pool) NoteItemFreed(slotSize uintptr) {
	p.NoteItemsFreed(slotSize, 1)
}

// NoteItemsAllocated moves n free slots to in-use at once,
// as done for a vector buffer handed out whole.
func (p *Pool) NoteItemsAllocated(slotSize uintptr, n int) {
	p.inuseItems.Add(int64(n))
	p.inuseBytes.Add(int64(slotSize) * int64(n))
}

// NoteItemsFreed moves n in-use slots back to free.
func (p *Pool) NoteItemsFreed(slotSize uintptr, n int) {
	if p.inuseItems.Sub(int64(n)) < 0 || p.inuseBytes.Sub(int64(slotSize)*int64(n)) < 0 {
		log.Panicf("mempool: pool %q freed more items than allocated\n%s", p.name, p.Stats())
	}
}

// AllocatedBytes returns the bytes of all live slabs, headers included.
func (p *Pool) AllocatedBytes() int64 { return p.allocatedBytes.Load() }

// AllocatedItems returns the number of slots of all live slabs.
func (p *Pool) AllocatedItems() int64 { return p.allocatedItems.Load() }

// InuseBytes returns the bytes of the slots currently handed out.
func (p *Pool) InuseBytes() int64 { return p.inuseBytes.Load() }

// InuseItems returns the number of slots currently handed out.
func (p *Pool) InuseItems() int64 { return p.inuseItems.Load() }

// FreeBytes returns AllocatedBytes - InuseBytes.
func (p *Pool) FreeBytes() int64 { return p.AllocatedBytes() - p.InuseBytes() }

// FreeItems returns AllocatedItems - InuseItems.
func (p *Pool) FreeItems() int64 { return p.AllocatedItems() - p.InuseItems() }

// Slabs returns the number of live slabs, inline ones included.
func (p *Pool) Slabs() int64 { return p.slabs.Load() }

// HeapSlabs returns the number of live slabs obtained on demand.
func (p *Pool) HeapSlabs() int64 { return p.heapSlabs.Load() }

// HeapRequests returns the number of heap storage requests ever made.
func (p *Pool) HeapRequests() int64 { return p.heapRequests.Load() }

// Stats is a snapshot of the counters of a Pool.
type Stats struct {
	Name           string
	Slabs          int64
	HeapSlabs      int64
	HeapRequests   int64
	AllocatedBytes int64
	AllocatedItems int64
	FreeBytes      int64
	FreeItems      int64
	InuseBytes     int64
	InuseItems     int64
}

// Stats returns a snapshot of the counters.
// Counters are read one by one, the snapshot is only consistent if no
// allocator of the pool runs concurrently.
func (p *Pool) Stats() Stats {
	s := Stats{
		Name:           p.name,
		Slabs:          p.Slabs(),
		HeapSlabs:      p.HeapSlabs(),
		HeapRequests:   p.HeapRequests(),
		AllocatedBytes: p.AllocatedBytes(),
		AllocatedItems: p.AllocatedItems(),
		InuseBytes:     p.InuseBytes(),
		InuseItems:     p.InuseItems(),
	}
	s.FreeBytes = s.AllocatedBytes - s.InuseBytes
	s.FreeItems = s.AllocatedItems - s.InuseItems
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("pool %q: slabs=%d heap_slabs=%d heap_requests=%d bytes(free/inuse)=%d/%d items(free/inuse)=%d/%d",
		s.Name, s.Slabs, s.HeapSlabs, s.HeapRequests, s.FreeBytes, s.InuseBytes, s.FreeItems, s.InuseItems)
}

func storageBytes(headerSize, slotSize uintptr, count int) int64 {
	if count < 0 {
		panic("mempool: negative slot count")
	}
	return int64(headerSize) + int64(slotSize)*int64(count)
}
