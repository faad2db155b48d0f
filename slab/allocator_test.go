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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cloudwego/slabkit/cache/mempool"
)

func newTestAllocator(t *testing.T, stack, heap int) (*Allocator[int], *mempool.Pool) {
	p := mempool.NewPool(t.Name())
	a, err := New[int](Config{Pool: p, StackSize: stack, HeapSize: heap})
	require.NoError(t, err)
	return a, p
}

func TestNewConfig(t *testing.T) {
	a, err := New[int](Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, a.StackSize())
	assert.Equal(t, DefaultHeapSizeOf[int](0), a.HeapSize())
	assert.NotNil(t, a.Pool())
	assert.Equal(t, 1, a.Slabs())
	a.Close()

	_, err = New[int](Config{StackSize: -1})
	assert.Error(t, err)
	_, err = New[int](Config{HeapSize: MaxSlabSlots + 1})
	assert.Error(t, err)
}

func TestInitialLayout(t *testing.T) {
	a, p := newTestAllocator(t, 4, 4)
	assert.Equal(t, int64(1), p.Slabs())
	assert.Equal(t, int64(0), p.HeapSlabs())
	assert.Equal(t, int64(4), p.FreeItems())
	assert.Equal(t, int64(SlabBytes(a.SlotSize(), 4)), p.AllocatedBytes())

	var refs []Ref
	for i := 0; i < 5; i++ {
		r, err := a.Allocate()
		require.NoError(t, err)
		refs = append(refs, r)
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, uint32(1), refs[i].Slab())
		assert.Equal(t, i, refs[i].Slot())
	}
	assert.Equal(t, "2:0", refs[4].String())
	assert.Equal(t, "nil", NilRef.String())
	assert.Equal(t, 3, a.FreeSlots())
	assert.Equal(t, 5, a.InUse())
	assert.Equal(t, int64(1), p.HeapSlabs())

	for _, r := range refs {
		a.Deallocate(r)
	}
	a.Close()
	assert.Equal(t, mempool.Stats{Name: p.Name(), HeapRequests: 1}, p.Stats())
}

func TestRefsAreBoundToTheirAllocator(t *testing.T) {
	a, _ := newTestAllocator(t, 4, 4)
	b, _ := newTestAllocator(t, 4, 4)
	ra, err := a.Allocate()
	require.NoError(t, err)
	rb, err := b.Allocate()
	require.NoError(t, err)

	// same slab and slot, still different handles
	assert.Equal(t, ra.String(), rb.String())
	assert.NotEqual(t, ra, rb)
	*a.Get(ra) = 1
	*b.Get(rb) = 99

	assert.Panics(t, func() { a.Deallocate(rb) })
	assert.Panics(t, func() { a.Get(rb) })
	assert.Equal(t, 1, *a.Get(ra))
	assert.Equal(t, 1, a.InUse())

	a.Deallocate(ra)
	b.Deallocate(rb)
	a.Close()
	b.Close()
}

func TestGetZeroesReusedSlots(t *testing.T) {
	a, _ := newTestAllocator(t, 2, 2)
	r, err := a.Allocate()
	require.NoError(t, err)
	*a.Get(r) = 42
	assert.Equal(t, 42, *a.Get(r))
	a.Deallocate(r)

	r2, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, r, r2)
	assert.Equal(t, 0, *a.Get(r2))
	a.Deallocate(r2)
	a.Close()
}

func TestReserve(t *testing.T) {
	a, p := newTestAllocator(t, 4, 4)

	require.NoError(t, a.Reserve(3)) // enough free slots already
	assert.Equal(t, int64(0), p.HeapRequests())

	require.NoError(t, a.Reserve(10))
	assert.Equal(t, int64(1), p.HeapRequests())
	assert.Equal(t, 10, a.FreeSlots())
	assert.Equal(t, 2, a.Slabs())

	refs := make([]Ref, 0, 10)
	for i := 0; i < 10; i++ {
		r, err := a.Allocate()
		require.NoError(t, err)
		refs = append(refs, r)
	}
	assert.Equal(t, int64(1), p.HeapRequests())
	assert.Equal(t, 0, a.FreeSlots())

	// reserve never shrinks
	require.NoError(t, a.Reserve(0))
	assert.Equal(t, 10, a.Capacity())

	for _, r := range refs {
		a.Deallocate(r)
	}
	a.Validate()
	a.Close()
}

func TestInlineSlabSurvives(t *testing.T) {
	a, p := newTestAllocator(t, 2, 1)
	for round := 0; round < 50; round++ {
		refs := make([]Ref, 0, 5)
		for i := 0; i < 5; i++ {
			r, err := a.Allocate()
			require.NoError(t, err)
			refs = append(refs, r)
		}
		for _, r := range refs {
			a.Deallocate(r)
		}
		s := a.Stats()
		assert.Equal(t, 2, s.StackSize)
		assert.Equal(t, 1, s.Slabs)
		assert.Equal(t, 2, s.FreeSlots)
		assert.Equal(t, int64(1), p.Slabs())
	}
	a.Close()
}

func TestReclaim(t *testing.T) {
	a, p := newTestAllocator(t, 2, 2)
	inline := p.AllocatedBytes()

	var refs []Ref
	for i := 0; i < 4; i++ {
		r, err := a.Allocate()
		require.NoError(t, err)
		refs = append(refs, r)
	}
	assert.Equal(t, int64(1), p.HeapSlabs())

	a.Deallocate(refs[3])
	assert.Equal(t, int64(1), p.HeapSlabs(), "slab with a live slot must stay")
	a.Deallocate(refs[2])
	assert.Equal(t, int64(0), p.HeapSlabs())
	assert.Equal(t, inline, p.AllocatedBytes())
	assert.Equal(t, int64(2), p.InuseItems())
	assert.Equal(t, int64(0), p.FreeItems())

	// recycled id
	r, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), r.Slab())
	a.Deallocate(r)

	a.Deallocate(refs[0])
	a.Deallocate(refs[1])
	a.Validate()
	a.Close()
}

func TestCloseWithLiveSlots(t *testing.T) {
	a, _ := newTestAllocator(t, 4, 4)
	_, err := a.Allocate()
	require.NoError(t, err)
	assert.PanicsWithValue(t,
		"slab: closing allocator with 1 slots still allocated, a node escaped its container or was leaked",
		func() { a.Close() })
}

func TestCloseReleasesReservedSlabs(t *testing.T) {
	a, p := newTestAllocator(t, 4, 4)
	require.NoError(t, a.Reserve(20))
	a.Close()
	assert.Equal(t, int64(0), p.Slabs())
	assert.Equal(t, int64(0), p.AllocatedBytes())

	assert.PanicsWithValue(t, "slab: use of closed allocator", func() { _, _ = a.Allocate() })
	assert.Panics(t, func() { a.Close() })
}

func TestInvalidRefs(t *testing.T) {
	tests := []struct {
		name string
		f    func(a *Allocator[int], live Ref)
	}{
		{"nil", func(a *Allocator[int], _ Ref) { a.Deallocate(NilRef) }},
		{"unknown_slab", func(a *Allocator[int], _ Ref) { a.Deallocate(makeRef(a.t.tag, 7, 0)) }},
		{"out_of_range", func(a *Allocator[int], _ Ref) { a.Deallocate(makeRef(a.t.tag, inlineSlab, 4)) }},
		{"negative_slot", func(a *Allocator[int], _ Ref) { a.Deallocate(makeRef(a.t.tag, inlineSlab, -1)) }},
		{"free_slot", func(a *Allocator[int], _ Ref) { a.Deallocate(makeRef(a.t.tag, inlineSlab, 3)) }},
		{"double_free", func(a *Allocator[int], r Ref) { a.Deallocate(r); a.Deallocate(r) }},
		{"get_free", func(a *Allocator[int], r Ref) { a.Deallocate(r); a.Get(r) }},
		{"foreign", func(a *Allocator[int], r Ref) {
			b, _ := New[int](Config{StackSize: 4})
			b.Deallocate(makeRef(b.t.tag, 2, 0))
		}},
		{"other_allocator", func(a *Allocator[int], r Ref) {
			b, _ := New[int](Config{StackSize: 4})
			rb, _ := b.Allocate()
			a.Deallocate(rb)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAllocator(t, 4, 4)
			r, err := a.Allocate()
			require.NoError(t, err)
			assert.Panics(t, func() { tt.f(a, r) })
		})
	}
}

func TestOutOfMemory(t *testing.T) {
	p := mempool.NewPool("oom")
	a, err := New[int](Config{Pool: p, StackSize: 2, HeapSize: 2})
	require.NoError(t, err)
	p.SetLimit(p.AllocatedBytes() + int64(SlabBytes(a.SlotSize(), 2)) - 1)

	r1, err := a.Allocate()
	require.NoError(t, err)
	r2, err := a.Allocate()
	require.NoError(t, err)

	before, pbefore := a.Stats(), p.Stats()
	_, err = a.Allocate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mempool.ErrOutOfMemory))
	assert.Equal(t, before, a.Stats())
	assert.Equal(t, pbefore, p.Stats())

	err = a.Reserve(5)
	assert.True(t, errors.Is(err, mempool.ErrOutOfMemory))
	assert.Equal(t, before, a.Stats())
	a.Validate()

	p.SetLimit(0)
	r3, err := a.Allocate()
	require.NoError(t, err)

	for _, r := range []Ref{r1, r2, r3} {
		a.Deallocate(r)
	}
	a.Close()

	p.SetLimit(10)
	_, err = New[int](Config{Pool: p, StackSize: 100})
	assert.True(t, errors.Is(err, mempool.ErrOutOfMemory))
	assert.Equal(t, int64(0), p.Slabs())
}

// allocatorMachine checks the allocator against a plain map of live slots.
type allocatorMachine struct {
	a    *Allocator[int]
	p    *mempool.Pool
	live map[Ref]int
	refs []Ref
	seq  int
}

func (m *allocatorMachine) init(t *rapid.T) {
	m.p = mempool.NewPool("machine")
	a, err := New[int](Config{
		Pool:      m.p,
		StackSize: rapid.IntRange(0, 8).Draw(t, "stack"),
		HeapSize:  rapid.IntRange(1, 8).Draw(t, "heap"),
	})
	require.NoError(t, err)
	m.a = a
	m.live = map[Ref]int{}
}

func (m *allocatorMachine) Allocate(t *rapid.T) {
	r, err := m.a.Allocate()
	require.NoError(t, err)
	_, dup := m.live[r]
	require.False(t, dup, "slot %v handed out twice", r)
	m.seq++
	*m.a.Get(r) = m.seq
	m.live[r] = m.seq
	m.refs = append(m.refs, r)
}

func (m *allocatorMachine) Deallocate(t *rapid.T) {
	if len(m.refs) == 0 {
		t.SkipNow()
	}
	i := rapid.IntRange(0, len(m.refs)-1).Draw(t, "i")
	r := m.refs[i]
	require.Equal(t, m.live[r], *m.a.Get(r))
	m.a.Deallocate(r)
	delete(m.live, r)
	m.refs[i] = m.refs[len(m.refs)-1]
	m.refs = m.refs[:len(m.refs)-1]
}

func (m *allocatorMachine) Reserve(t *rapid.T) {
	n := rapid.IntRange(0, 20).Draw(t, "n")
	requests := m.p.HeapRequests()
	capacity := m.a.Capacity()
	require.NoError(t, m.a.Reserve(n))
	require.GreaterOrEqual(t, m.a.FreeSlots(), n)
	require.GreaterOrEqual(t, m.a.Capacity(), capacity)
	// n allocations must not ask for more storage
	for i := 0; i < n; i++ {
		m.Allocate(t)
	}
	require.LessOrEqual(t, m.p.HeapRequests(), requests+1)
}

func (m *allocatorMachine) Check(t *rapid.T) {
	m.a.Validate()
	s := m.a.Stats()
	require.Equal(t, len(m.live), s.InUse)
	require.Equal(t, s.Capacity-s.FreeSlots, s.InUse)
	require.Equal(t, int64(s.InUse), m.p.InuseItems())
	require.Equal(t, int64(s.Capacity), m.p.AllocatedItems())
	require.Equal(t, int64(s.Slabs), m.p.Slabs())
	for r, v := range m.live {
		require.Equal(t, v, *m.a.Get(r))
	}
}

func TestAllocatorStateMachine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := allocatorMachine{}
		m.init(t)
		t.Repeat(rapid.StateMachineActions(&m))
		for _, r := range m.refs {
			m.a.Deallocate(r)
		}
		m.a.Close()
		require.Equal(t, int64(0), m.p.Slabs())
		require.Equal(t, int64(0), m.p.AllocatedBytes())
	})
}

func BenchmarkAllocateDeallocate(b *testing.B) {
	a, _ := New[[4]int](Config{StackSize: 16})
	refs := make([]Ref, 64)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range refs {
			refs[j], _ = a.Allocate()
		}
		for _, r := range refs {
			a.Deallocate(r)
		}
	}
}
