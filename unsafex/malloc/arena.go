package malloc

import (
	"fmt"
	"math/bits"
	"unsafe"

	"golang.org/x/exp/slices"

	"github.com/cloudwego/slabkit/unsafex"
)

const (
	// headerSize is the size of the header added to each allocation.
	headerSize = 8

	// magic marks allocated blocks, to detect double-free/invalid blocks.
	magic uint32 = 0x5AB5AB00

	// DefaultMinBlockSize is the default minimum block size (256B).
	DefaultMinBlockSize = 256

	// DefaultMaxBlockSize is the default maximum block size (64KB).
	DefaultMaxBlockSize = 64 * 1024
)

// Arena is a buddy allocator over a fixed byte slice.
// It never grows: once the slice is used up, Alloc returns nil.
// Freed blocks are merged with their buddy right away.
//
// Arena is not safe for concurrent use.
type Arena struct {
	buf  []byte
	base unsafe.Pointer

	// free[o] holds the offsets of free blocks of order o, sorted.
	// Order 0 is minBlock, order maxOrder is maxBlock.
	free [][]int

	minBlock int
	minShift int
	maxBlock int
	maxOrder int

	inuse int // bytes of allocated blocks, headers included
}

// NewArena creates an Arena managing buf.
// minBlock and maxBlock must be powers of two with headerSize < minBlock <= maxBlock,
// len(buf) must be a non-zero multiple of maxBlock.
func NewArena(buf []byte, minBlock, maxBlock int) (*Arena, error) {
	if minBlock <= 0 || minBlock&(minBlock-1) != 0 {
		return nil, fmt.Errorf("minBlock must be a power of two, got %d", minBlock)
	}
	if maxBlock <= 0 || maxBlock&(maxBlock-1) != 0 {
		return nil, fmt.Errorf("maxBlock must be a power of two, got %d", maxBlock)
	}
	if minBlock > maxBlock {
		return nil, fmt.Errorf("minBlock (%d) must be <= maxBlock (%d)", minBlock, maxBlock)
	}
	if minBlock <= headerSize {
		return nil, fmt.Errorf("minBlock must be > headerSize (%d), got %d", headerSize, minBlock)
	}
	if len(buf) < maxBlock || len(buf)%maxBlock != 0 {
		return nil, fmt.Errorf("arena size must be a non-zero multiple of %d, got %d", maxBlock, len(buf))
	}
	minShift := bits.TrailingZeros(uint(minBlock))
	a := &Arena{
		buf:      buf,
		base:     unsafe.Pointer(&buf[0]),
		minBlock: minBlock,
		minShift: minShift,
		maxBlock: maxBlock,
		maxOrder: bits.TrailingZeros(uint(maxBlock)) - minShift,
	}
	a.free = make([][]int, a.maxOrder+1)
	a.Reset()
	return a, nil
}

// Alloc returns a block of len n, or nil if n is out of range or no block
// is left. The block must be returned with Free, unsliced.
func (a *Arena) Alloc(n int) []byte {
	if n <= 0 || n > a.maxBlock-headerSize {
		return nil
	}
	order := a.orderOf(n + headerSize)
	o := order
	for o <= a.maxOrder && len(a.free[o]) == 0 {
		o++
	}
	if o > a.maxOrder {
		return nil
	}
	// lowest offset first, keeps the low end of the arena dense
	offset := a.free[o][0]
	a.free[o] = slices.Delete(a.free[o], 0, 1)
	for o > order {
		o--
		a.insert(o, offset+(a.minBlock<<o))
	}

	*unsafex.Uint32At(a.buf, offset) = magic
	*unsafex.Uint32At(a.buf, offset+4) = uint32(order)
	size := a.minBlock << order
	a.inuse += size
	return unsafex.BytesAt(a.base, offset+headerSize, size-headerSize)[:n]
}

// Free returns a block obtained from Alloc.
// It panics if the block does not belong to a, or was already freed.
func (a *Arena) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	offset := int(unsafex.DataAddr(b)-uintptr(a.base)) - headerSize
	if offset < 0 || offset >= len(a.buf) {
		panic("arena: block not in arena")
	}
	hdr := unsafex.Uint32At(a.buf, offset)
	if *hdr != magic {
		panic("arena: double free or invalid block")
	}
	order := int(*unsafex.Uint32At(a.buf, offset+4))
	size := a.minBlock << order
	if order > a.maxOrder || offset&(size-1) != 0 || cap(b) != size-headerSize {
		panic("arena: corrupted block header")
	}
	*hdr = 0
	a.inuse -= size

	for order < a.maxOrder {
		buddy := offset ^ (a.minBlock << order)
		i, found := slices.BinarySearch(a.free[order], buddy)
		if !found {
			break
		}
		a.free[order] = slices.Delete(a.free[order], i, i+1)
		offset &^= a.minBlock << order
		order++
	}
	a.insert(order, offset)
}

func (a *Arena) insert(order, offset int) {
	i, _ := slices.BinarySearch(a.free[order], offset)
	a.free[order] = slices.Insert(a.free[order], i, offset)
}

// Available returns the total payload bytes of all free blocks.
func (a *Arena) Available() int {
	total := 0
	for o, l := range a.free {
		total += len(l) * ((a.minBlock << o) - headerSize)
	}
	return total
}

// InUse returns the bytes taken by allocated blocks, headers included.
func (a *Arena) InUse() int { return a.inuse }

// Size returns the size of the managed slice.
func (a *Arena) Size() int { return len(a.buf) }

// Reset forgets every allocation.
func (a *Arena) Reset() {
	for o := range a.free {
		a.free[o] = a.free[o][:0]
	}
	for off := 0; off < len(a.buf); off += a.maxBlock {
		a.free[a.maxOrder] = append(a.free[a.maxOrder], off)
	}
	a.inuse = 0
}

// orderOf returns the smallest order whose blocks hold size bytes.
func (a *Arena) orderOf(size int) int {
	if size <= a.minBlock {
		return 0
	}
	return bits.Len(uint(size-1)) - a.minShift
}
