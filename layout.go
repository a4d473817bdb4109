package splitcounter

import (
	"fmt"
	"sync/atomic"
)

// maxLayoutBytes caps the size of a single layout, cells and flags included.
var maxLayoutBytes int64 = 1 << 40

// liveLayouts counts layouts that have been allocated and not yet freed.
var liveLayouts atomic.Int64

// allocLayout allocates a layout. Tests swap it to inject failures.
var allocLayout = newLayout

// LiveLayouts returns the number of cell storages currently allocated by
// all counters in the process.
func LiveLayouts() int64 {
	return liveLayouts.Load()
}

// cellArray is a fixed-size array of signed cells supporting atomic access.
type cellArray interface {
	load(i int64) int64
	compareAndSwap(i int64, old, new int64) bool
	store(i int64, v int64)
}

// layout is the storage of one shard, or of the global sum.
type layout struct {
	cells     cellArray
	overflow  bitmap
	underflow bitmap
	nr        int64
}

func layoutBytes(w Width, nr int64) int64 {
	flags := 2 * ((nr + 63) / 64) * 8
	if w == Width64 {
		return nr*8 + flags
	}
	return (nr*int64(w)+31)/32*4 + flags
}

func newLayout(w Width, nr int64) (*layout, error) {
	if nr <= 0 || nr > maxLayoutBytes {
		return nil, fmt.Errorf("%w: %d cells", ErrAllocation, nr)
	}
	if size := layoutBytes(w, nr); size > maxLayoutBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrAllocation, size, maxLayoutBytes)
	}

	l := &layout{
		overflow:  newBitmap(nr),
		underflow: newBitmap(nr),
		nr:        nr,
	}
	if w == Width64 {
		l.cells = make(wideCells, nr)
	} else {
		l.cells = newPackedCells(w, nr)
	}
	liveLayouts.Add(1)
	return l, nil
}

func (l *layout) free() {
	if l == nil || l.cells == nil {
		return
	}
	l.cells = nil
	l.overflow = nil
	l.underflow = nil
	liveLayouts.Add(-1)
}

// mark records an overflow or underflow for cell i. Flags are never cleared
// here.
func (l *layout) mark(i int64, overflow, underflow bool) {
	if overflow {
		l.overflow.set(i)
	} else if underflow {
		l.underflow.set(i)
	}
}

func (l *layout) reset(i int64) {
	l.cells.store(i, 0)
	l.overflow.clear(i)
	l.underflow.clear(i)
}

// wideCells holds 64-bit cells.
type wideCells []atomic.Int64

func (c wideCells) load(i int64) int64 {
	return c[i].Load()
}

func (c wideCells) compareAndSwap(i int64, old, new int64) bool {
	return c[i].CompareAndSwap(old, new)
}

func (c wideCells) store(i int64, v int64) {
	c[i].Store(v)
}

// packedCells holds 8, 16 or 32-bit cells packed into 32-bit words. A cell
// is updated by swapping its whole word with only that cell's lane changed.
type packedCells struct {
	words []atomic.Uint32
	w     Width
	lanes int64
	mask  uint32
}

func newPackedCells(w Width, nr int64) *packedCells {
	lanes := int64(32 / w)
	return &packedCells{
		words: make([]atomic.Uint32, (nr+lanes-1)/lanes),
		w:     w,
		lanes: lanes,
		mask:  uint32(uint64(1)<<w - 1),
	}
}

func (c *packedCells) locate(i int64) (*atomic.Uint32, uint) {
	return &c.words[i/c.lanes], uint(i%c.lanes) * uint(c.w)
}

func (c *packedCells) load(i int64) int64 {
	word, shift := c.locate(i)
	return c.w.wrap(int64((word.Load() >> shift) & c.mask))
}

func (c *packedCells) compareAndSwap(i int64, old, new int64) bool {
	word, shift := c.locate(i)
	lane := c.mask << shift
	want := (uint32(old) & c.mask) << shift
	next := (uint32(new) & c.mask) << shift
	for {
		cur := word.Load()
		if cur&lane != want {
			return false
		}
		// A failed swap with our lane intact means a neighbour moved.
		if word.CompareAndSwap(cur, cur&^lane|next) {
			return true
		}
	}
}

func (c *packedCells) store(i int64, v int64) {
	word, shift := c.locate(i)
	lane := c.mask << shift
	next := (uint32(v) & c.mask) << shift
	for {
		cur := word.Load()
		if word.CompareAndSwap(cur, cur&^lane|next) {
			return
		}
	}
}

// bitmap is a set of sticky flags, one bit per cell.
type bitmap []atomic.Uint64

func newBitmap(nr int64) bitmap {
	return make(bitmap, (nr+63)/64)
}

func bitOf(i int64) (int64, uint64) {
	return i >> 6, uint64(1) << (uint64(i) & 63)
}

func (b bitmap) test(i int64) bool {
	w, bit := bitOf(i)
	return b[w].Load()&bit != 0
}

func (b bitmap) set(i int64) {
	w, bit := bitOf(i)
	if b[w].Load()&bit == 0 {
		b[w].Or(bit)
	}
}

func (b bitmap) clear(i int64) {
	w, bit := bitOf(i)
	b[w].And(^bit)
}
