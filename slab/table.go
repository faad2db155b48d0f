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
	"log"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/cloudwego/slabkit/cache/mempool"
)

const (
	// slab ids. 0 is the sentinel of the free-slab list and never holds slots.
	sentinel   uint32 = 0
	inlineSlab uint32 = 1

	nilSlot = int32(-1)

	// Ref layout: [16 bits table tag][24 bits slab id][24 bits slot]
	slotBits = 24
	slabBits = 24
	slotMask = 1<<slotBits - 1
	slabMask = 1<<slabBits - 1

	// MaxSlabSlots is the max number of slots of a single slab.
	MaxSlabSlots = slotMask

	// maxSlabs is the max number of slab ids of one allocator, sentinel included.
	maxSlabs = slabMask + 1
)

// tables hands out table tags. Tags wrap around after 65535 allocators, so
// a foreign Ref is caught unless its allocator shares the tag.
var tables atomic.Uint32

func nextTag() uint16 {
	for {
		if tag := uint16(tables.Inc()); tag != 0 {
			return tag
		}
	}
}

// HeaderSize is the accounted size of a slab header.
const HeaderSize = unsafe.Sizeof(header{})

// Ref is the handle of an allocated slot.
// It holds the tag of the allocator which returned it, the id of the owning
// slab and the slot index inside it. Other allocators reject it.
type Ref uint64

// NilRef is the zero Ref, never returned by Allocate.
const NilRef Ref = 0

func makeRef(tag uint16, id uint32, i int32) Ref {
	return Ref(uint64(tag)<<(slabBits+slotBits) | uint64(id&slabMask)<<slotBits | uint64(uint32(i))&slotMask)
}

// IsNil reports whether r is NilRef.
func (r Ref) IsNil() bool { return r == NilRef }

// Slab returns the id of the slab holding the slot.
func (r Ref) Slab() uint32 { return uint32(r>>slotBits) & slabMask }

// Slot returns the index of the slot inside its slab.
func (r Ref) Slot() int { return int(r & slotMask) }

func (r Ref) tag() uint16 { return uint16(r >> (slabBits + slotBits)) }

func (r Ref) String() string {
	if r.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d:%d", r.Slab(), r.Slot())
}

type header struct {
	capacity  int32
	freeSlots int32
	freeHead  int32  // first free slot, nilSlot if none
	prev      uint32 // free-slab list, valid while linked
	next      uint32
	linked    bool
	live      bool
}

// storage is the slot memory behind a table.
// Slot i of slab id is either free, holding the index of the next free slot
// of the same slab, or allocated, holding one element. Never both.
type storage interface {
	// obtain gets memory for n slots of slab id.
	obtain(id uint32, n int) error
	// release returns the memory of slab id, all its slots are free.
	release(id uint32)
	// push marks slot i free, records id as its owner and next as its link.
	push(id uint32, i, next int32)
	// pop marks slot i allocated and returns the link it held.
	pop(id uint32, i int32) int32
	// next returns the link held by free slot i.
	next(id uint32, i int32) int32
	// owner returns the slab id recorded in slot i and whether it is allocated.
	owner(id uint32, i int32) (uint32, bool)
}

// table is the slab bookkeeping shared by the node allocators.
type table struct {
	store    storage
	pool     *mempool.Pool
	tag      uint16
	slotSize uintptr
	heapSize int

	slabs []header // slabs[sentinel] is the list head
	spare []uint32 // ids of released heap slabs

	freeSlotCount int // sum of freeSlots of linked slabs
	capacity      int // sum of capacity of live slabs
	heapSlabs     int
	closed        bool
}

func (t *table) init(store storage, pool *mempool.Pool, slotSize uintptr, stackSize, heapSize int) error {
	if stackSize < 0 || stackSize > MaxSlabSlots {
		return fmt.Errorf("stack size must be in [0, %d], got %d", MaxSlabSlots, stackSize)
	}
	if heapSize <= 0 || heapSize > MaxSlabSlots {
		return fmt.Errorf("heap size must be in [1, %d], got %d", MaxSlabSlots, heapSize)
	}
	t.store = store
	t.pool = pool
	t.tag = nextTag()
	t.slotSize = slotSize
	t.heapSize = heapSize
	t.slabs = make([]header, 2, 4)
	t.slabs[sentinel].prev = sentinel
	t.slabs[sentinel].next = sentinel

	if err := store.obtain(inlineSlab, stackSize); err != nil {
		return err
	}
	if err := pool.RequestStorage(HeaderSize, slotSize, stackSize, false); err != nil {
		store.release(inlineSlab)
		return err
	}
	t.initSlab(inlineSlab, stackSize)
	return nil
}

// initSlab pushes every slot of a fresh slab, last one first,
// so that allocation hands out slot 0, 1, 2 ...
func (t *table) initSlab(id uint32, n int) {
	h := &t.slabs[id]
	*h = header{capacity: int32(n), freeHead: nilSlot, live: true}
	for i := int32(n) - 1; i >= 0; i-- {
		t.store.push(id, i, h.freeHead)
		h.freeHead = i
	}
	h.freeSlots = int32(n)
	t.freeSlotCount += n
	t.capacity += n
	if n > 0 {
		t.link(id)
	}
}

func (t *table) link(id uint32) {
	h := &t.slabs[id]
	s := &t.slabs[sentinel]
	h.prev = sentinel
	h.next = s.next
	t.slabs[s.next].prev = id
	s.next = id
	h.linked = true
}

func (t *table) unlink(id uint32) {
	h := &t.slabs[id]
	t.slabs[h.prev].next = h.next
	t.slabs[h.next].prev = h.prev
	h.prev, h.next = sentinel, sentinel
	h.linked = false
}

func (t *table) newID() uint32 {
	if n := len(t.spare); n > 0 {
		id := t.spare[n-1]
		t.spare = t.spare[:n-1]
		return id
	}
	if len(t.slabs) >= maxSlabs {
		log.Panicf("slab: too many slabs (%d)", len(t.slabs))
	}
	t.slabs = append(t.slabs, header{})
	return uint32(len(t.slabs) - 1)
}

// addSlab obtains one heap slab of n slots with a single request.
func (t *table) addSlab(n int) error {
	if n > MaxSlabSlots {
		return fmt.Errorf("slab: %d slots requested, max %d per slab", n, MaxSlabSlots)
	}
	id := t.newID()
	if err := t.store.obtain(id, n); err != nil {
		t.spare = append(t.spare, id)
		return err
	}
	if err := t.pool.RequestStorage(HeaderSize, t.slotSize, n, true); err != nil {
		t.store.release(id)
		t.spare = append(t.spare, id)
		return err
	}
	t.initSlab(id, n)
	t.heapSlabs++
	return nil
}

// reclaim releases an entirely free heap slab.
func (t *table) reclaim(id uint32) {
	h := &t.slabs[id]
	n := int(h.capacity)
	if h.linked {
		t.unlink(id)
	}
	t.freeSlotCount -= n
	t.capacity -= n
	t.heapSlabs--
	t.store.release(id)
	*h = header{}
	t.spare = append(t.spare, id)
	t.pool.ReleaseStorage(HeaderSize, t.slotSize, n, true)
}

func (t *table) allocate() (Ref, error) {
	t.checkOpen()
	if t.slabs[sentinel].next == sentinel {
		if err := t.addSlab(t.heapSize); err != nil {
			return NilRef, err
		}
	}
	id := t.slabs[sentinel].next
	h := &t.slabs[id]
	i := h.freeHead
	if h.freeSlots <= 0 || i == nilSlot {
		log.Panicf("slab: linked slab %d has no free slot (free=%d)", id, h.freeSlots)
	}
	h.freeHead = t.store.pop(id, i)
	h.freeSlots--
	if h.freeSlots == 0 {
		t.unlink(id)
	}
	t.freeSlotCount--
	t.pool.NoteItemAllocated(t.slotSize)
	return makeRef(t.tag, id, i), nil
}

func (t *table) deallocate(r Ref) {
	t.checkOpen()
	id, i := t.checkRef(r)
	h := &t.slabs[id]
	t.store.push(id, i, h.freeHead)
	h.freeHead = i
	h.freeSlots++
	t.freeSlotCount++
	t.pool.NoteItemFreed(t.slotSize)
	if h.freeSlots == 1 {
		t.link(id)
	}
	if h.freeSlots == h.capacity && id != inlineSlab {
		t.reclaim(id)
	}
}

// checkRef panics unless r is an allocated slot of this table.
func (t *table) checkRef(r Ref) (uint32, int32) {
	if r.tag() != t.tag {
		log.Panicf("slab: ref %v belongs to another allocator (tag %d, want %d)", r, r.tag(), t.tag)
	}
	id, i := r.Slab(), int32(r.Slot())
	if id == sentinel || int(id) >= len(t.slabs) || !t.slabs[id].live {
		log.Panicf("slab: ref %v does not belong to a live slab", r)
	}
	if i < 0 || i >= t.slabs[id].capacity {
		log.Panicf("slab: ref %v out of slab range [0, %d)", r, t.slabs[id].capacity)
	}
	owner, allocated := t.store.owner(id, i)
	if owner != id {
		log.Panicf("slab: ref %v found in slot owned by slab %d", r, owner)
	}
	if !allocated {
		log.Panicf("slab: ref %v is not allocated (double free?)", r)
	}
	return id, i
}

func (t *table) reserve(n int) error {
	t.checkOpen()
	if n <= t.freeSlotCount {
		return nil
	}
	return t.addSlab(n - t.freeSlotCount)
}

func (t *table) close() {
	t.checkOpen()
	// idle heap slabs, usually left over by reserve
	for id := inlineSlab + 1; int(id) < len(t.slabs); id++ {
		if h := &t.slabs[id]; h.live && h.freeSlots == h.capacity {
			t.reclaim(id)
		}
	}
	if t.freeSlotCount != t.capacity {
		log.Panicf("slab: closing allocator with %d slots still allocated, a node escaped its container or was leaked",
			t.capacity-t.freeSlotCount)
	}
	n := int(t.slabs[inlineSlab].capacity)
	t.store.release(inlineSlab)
	t.pool.ReleaseStorage(HeaderSize, t.slotSize, n, false)
	t.slabs = nil
	t.spare = nil
	t.freeSlotCount, t.capacity = 0, 0
	t.closed = true
}

func (t *table) checkOpen() {
	if t.closed {
		panic("slab: use of closed allocator")
	}
}

// validate walks every slab and panics on the first broken invariant.
func (t *table) validate() {
	t.checkOpen()
	linked := 0
	free := 0
	for id := t.slabs[sentinel].next; id != sentinel; id = t.slabs[id].next {
		h := &t.slabs[id]
		if !h.linked || !h.live || h.freeSlots <= 0 {
			log.Panicf("slab: slab %d in free-slab list with linked=%v live=%v free=%d", id, h.linked, h.live, h.freeSlots)
		}
		if t.slabs[h.next].prev != id {
			log.Panicf("slab: free-slab list broken after slab %d", id)
		}
		linked++
		free += int(h.freeSlots)
		if linked > len(t.slabs) {
			log.Panicf("slab: free-slab list loops")
		}
	}
	if free != t.freeSlotCount {
		log.Panicf("slab: free slot count %d, linked slabs hold %d", t.freeSlotCount, free)
	}
	capacity, heap := 0, 0
	for id := inlineSlab; int(id) < len(t.slabs); id++ {
		h := &t.slabs[id]
		if !h.live {
			continue
		}
		capacity += int(h.capacity)
		if id != inlineSlab {
			heap++
		}
		if h.linked != (h.freeSlots > 0) {
			log.Panicf("slab: slab %d linked=%v with %d free slots", id, h.linked, h.freeSlots)
		}
		n := int32(0)
		for i := h.freeHead; i != nilSlot; i = t.nextFree(id, i) {
			n++
			if n > h.freeSlots {
				break
			}
		}
		if n != h.freeSlots {
			log.Panicf("slab: slab %d free list holds %d slots, header says %d", id, n, h.freeSlots)
		}
		for i := int32(0); i < h.capacity; i++ {
			if owner, _ := t.store.owner(id, i); owner != id {
				log.Panicf("slab: slot %d:%d owned by slab %d", id, i, owner)
			}
		}
	}
	if capacity != t.capacity || heap != t.heapSlabs {
		log.Panicf("slab: capacity %d heap slabs %d, slabs hold %d in %d", t.capacity, t.heapSlabs, capacity, heap)
	}
}

// nextFree reads the link of a free slot without changing its state.
func (t *table) nextFree(id uint32, i int32) int32 {
	if _, allocated := t.store.owner(id, i); allocated {
		log.Panicf("slab: allocated slot %d:%d found in free list", id, i)
	}
	return t.store.next(id, i)
}

// Stats describes the slabs of one allocator.
type Stats struct {
	StackSize int     // slots of the inline slab
	HeapSize  int     // slots of a default heap slab
	SlotSize  uintptr // bytes per slot
	Slabs     int     // live slabs, the inline one included
	HeapSlabs int     // live heap slabs
	Capacity  int     // slots of all live slabs
	FreeSlots int
	InUse     int
}

func (t *table) stats() Stats {
	s := Stats{
		HeapSize:  t.heapSize,
		SlotSize:  t.slotSize,
		HeapSlabs: t.heapSlabs,
		Capacity:  t.capacity,
		FreeSlots: t.freeSlotCount,
		InUse:     t.capacity - t.freeSlotCount,
	}
	if !t.closed {
		s.StackSize = int(t.slabs[inlineSlab].capacity)
		s.Slabs = t.heapSlabs + 1
	}
	return s
}
