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

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/pkg/errors"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/unsafex"
)

// Byte slot layout:
//
//	[4 bytes owner][payload, RecordSize bytes][padding to 8]
//
// owner holds the slab id, with ownerAllocated set while the payload is live.
// While free, the first 4 payload bytes hold the index of the next free slot.
const (
	slotHeaderSize = 4
	slotAlign      = 8
	ownerAllocated = uint32(1) << 31
)

// ByteConfig configures a ByteAllocator.
type ByteConfig struct {
	// Pool receives the accounting of the allocator.
	// A private unnamed pool is used if nil.
	Pool *mempool.Pool

	// Source provides heap slabs. HeapSource{} if nil.
	Source Source

	// RecordSize is the payload size of every slot, at least 1.
	RecordSize int

	// StackSize and HeapSize as in Config.
	// HeapSize defaults to DefaultHeapSize(RecordSize, 0).
	StackSize int
	HeapSize  int
}

// byteStride returns the bytes taken by one slot holding a record of n bytes.
func byteStride(n int) int {
	if n < 4 {
		n = 4 // room for the free-list link
	}
	return (slotHeaderSize + n + slotAlign - 1) &^ (slotAlign - 1)
}

type byteStorage struct {
	src    Source
	stride int
	slabs  [][]byte
}

func (s *byteStorage) obtain(id uint32, n int) error {
	if id >= ownerAllocated {
		log.Panicf("slab: slab id %d overflows the owner word", id)
	}
	for int(id) >= len(s.slabs) {
		s.slabs = append(s.slabs, nil)
	}
	sz := n * s.stride
	if id == inlineSlab {
		s.slabs[id] = dirtmake.Bytes(sz, sz)
		return nil
	}
	b := s.src.Alloc(sz)
	if b == nil || len(b) < sz {
		if b != nil {
			s.src.Free(b)
		}
		return errors.Wrapf(mempool.ErrOutOfMemory, "slab: source cannot provide %d bytes", sz)
	}
	s.slabs[id] = b[:sz]
	return nil
}

func (s *byteStorage) release(id uint32) {
	if id != inlineSlab {
		s.src.Free(s.slabs[id])
	}
	s.slabs[id] = nil
}

func (s *byteStorage) ownerWord(id uint32, i int32) *uint32 {
	return unsafex.Uint32At(s.slabs[id], int(i)*s.stride)
}

func (s *byteStorage) nextWord(id uint32, i int32) *int32 {
	return unsafex.Int32At(s.slabs[id], int(i)*s.stride+slotHeaderSize)
}

func (s *byteStorage) push(id uint32, i, next int32) {
	*s.ownerWord(id, i) = id
	*s.nextWord(id, i) = next
}

func (s *byteStorage) pop(id uint32, i int32) int32 {
	next := s.next(id, i)
	*s.ownerWord(id, i) |= ownerAllocated
	return next
}

func (s *byteStorage) next(id uint32, i int32) int32 {
	return *s.nextWord(id, i)
}

func (s *byteStorage) owner(id uint32, i int32) (uint32, bool) {
	w := *s.ownerWord(id, i)
	return w &^ ownerAllocated, w&ownerAllocated != 0
}

// ByteAllocator hands out fixed-size byte records.
// Records are plain memory: they must not hold Go pointers.
type ByteAllocator struct {
	t          table
	store      byteStorage
	recordSize int
}

// NewByteAllocator creates a ByteAllocator and its inline slab.
func NewByteAllocator(cfg ByteConfig) (*ByteAllocator, error) {
	if cfg.RecordSize <= 0 || cfg.RecordSize > 1<<30 {
		return nil, fmt.Errorf("record size must be in [1, %d], got %d", 1<<30, cfg.RecordSize)
	}
	pool := cfg.Pool
	if pool == nil {
		pool = mempool.NewPool("")
	}
	src := cfg.Source
	if src == nil {
		src = HeapSource{}
	}
	heapSize := cfg.HeapSize
	if heapSize <= 0 {
		heapSize = DefaultHeapSize(uintptr(cfg.RecordSize), 0)
	}
	a := &ByteAllocator{recordSize: cfg.RecordSize}
	a.store.src = src
	a.store.stride = byteStride(cfg.RecordSize)
	if err := a.t.init(&a.store, pool, uintptr(a.store.stride), cfg.StackSize, heapSize); err != nil {
		return nil, err
	}
	return a, nil
}

// Allocate returns a zeroed record, requesting a heap slab from the Source
// if no free slot is left. An exhausted Source fails with mempool.ErrOutOfMemory.
func (a *ByteAllocator) Allocate() (Ref, error) {
	r, err := a.t.allocate()
	if err != nil {
		return NilRef, err
	}
	clear(a.Bytes(r))
	return r, nil
}

// Bytes returns the payload of the allocated record r.
// The slice has len and cap RecordSize and is valid until r is deallocated.
func (a *ByteAllocator) Bytes(r Ref) []byte {
	id, i := a.t.checkRef(r)
	off := int(i)*a.store.stride + slotHeaderSize
	return a.store.slabs[id][off : off+a.recordSize : off+a.recordSize]
}

// Deallocate returns the record to its slab, see Allocator.Deallocate.
func (a *ByteAllocator) Deallocate(r Ref) {
	a.t.deallocate(r)
}

// Reserve is Allocator.Reserve.
func (a *ByteAllocator) Reserve(n int) error {
	return a.t.reserve(n)
}

// Close releases every slab. It panics if any record is still allocated.
func (a *ByteAllocator) Close() {
	a.t.close()
	a.store.slabs = nil
}

// Validate is Allocator.Validate.
func (a *ByteAllocator) Validate() {
	a.t.validate()
	for id, s := range a.store.slabs {
		if h := &a.t.slabs[id]; h.live && len(s) != int(h.capacity)*a.store.stride {
			log.Panicf("slab: slab %d holds %d bytes, want %d", id, len(s), int(h.capacity)*a.store.stride)
		}
	}
}

func (a *ByteAllocator) Stats() Stats { return a.t.stats() }

func (a *ByteAllocator) FreeSlots() int { return a.t.freeSlotCount }

func (a *ByteAllocator) InUse() int { return a.t.capacity - a.t.freeSlotCount }

// RecordSize returns the payload size of every record.
func (a *ByteAllocator) RecordSize() int { return a.recordSize }

// SlotSize returns the bytes taken by one record and its header.
func (a *ByteAllocator) SlotSize() uintptr { return a.t.slotSize }

func (a *ByteAllocator) Pool() *mempool.Pool { return a.t.pool }
