package splitcounter

import (
	"fmt"
	"math/bits"
	"runtime"

	"go.uber.org/zap"
)

// Width is the size in bits of a single counter cell.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// hostWordBits is the native word size. 64-bit cells require a 64-bit host.
var hostWordBits = bits.UintSize

func (w Width) valid() bool {
	switch w {
	case Width8, Width16, Width32, Width64:
		return true
	}
	return false
}

// Max returns the largest value a cell of this width can hold.
func (w Width) Max() int64 {
	return int64(uint64(1)<<(w-1) - 1)
}

// Min returns the smallest value a cell of this width can hold.
func (w Width) Min() int64 {
	return -w.Max() - 1
}

// wrap reinterprets the low w bits of v as a signed integer of width w.
func (w Width) wrap(v int64) int64 {
	shift := 64 - uint(w)
	return int64(uint64(v)<<shift) >> shift
}

// add returns old+delta with two's complement wraparound at width w.
func (w Width) add(old, delta int64) int64 {
	return w.wrap(int64(uint64(old) + uint64(delta)))
}

// classify reports whether an update of old by delta that left stored in
// the cell went out of range. A positive delta overflows when the stored
// value is not above old, which includes a stored value lowered by a
// migration, or when delta alone spans the whole width. Underflow mirrors
// it for negative deltas.
func (w Width) classify(old, delta, stored int64) (overflow, underflow bool) {
	switch {
	case delta > 0:
		return stored <= old || w.spans(delta), false
	case delta < 0:
		return false, stored >= old || w.spans(delta)
	}
	return false, false
}

// spans reports whether |delta| is at least 2^w-1, past which the stored
// value alone cannot tell a wrap apart. Never true at 64 bits.
func (w Width) spans(delta int64) bool {
	if w == Width64 {
		return false
	}
	limit := int64(1)<<w - 1
	return delta >= limit || delta <= -limit
}

func (w Width) String() string {
	return fmt.Sprintf("%d-bit", uint8(w))
}

// AllocMode selects where cells live.
type AllocMode uint8

const (
	// AllocPerShard allocates one layout per shard plus the global layout.
	AllocPerShard AllocMode = iota
	// AllocGlobalOnly allocates the global layout only.
	AllocGlobalOnly
)

func (a AllocMode) String() string {
	switch a {
	case AllocPerShard:
		return "per-shard"
	case AllocGlobalOnly:
		return "global"
	}
	return fmt.Sprintf("AllocMode(%d)", uint8(a))
}

// SyncMode selects the update discipline for shard-local cells.
type SyncMode uint8

const (
	// SyncShardLocal updates shard cells with migration into the global cell.
	SyncShardLocal SyncMode = iota
	// SyncGlobal updates shard cells without migration.
	SyncGlobal
)

func (s SyncMode) String() string {
	switch s {
	case SyncShardLocal:
		return "shard-local"
	case SyncGlobal:
		return "global"
	}
	return fmt.Sprintf("SyncMode(%d)", uint8(s))
}

// Arithmetic selects what happens when a cell leaves its range.
type Arithmetic uint8

const (
	// ArithmeticWrap wraps around and records the event in a sticky flag.
	ArithmeticWrap Arithmetic = iota
	// ArithmeticSaturate is recognized but not supported.
	ArithmeticSaturate
)

func (a Arithmetic) String() string {
	switch a {
	case ArithmeticWrap:
		return "overflow"
	case ArithmeticSaturate:
		return "saturate"
	}
	return fmt.Sprintf("Arithmetic(%d)", uint8(a))
}

// Config defines the shape of a counter.
type Config struct {
	Width      Width
	Alloc      AllocMode
	Sync       SyncMode
	Arithmetic Arithmetic

	// Shards is the number of shard layouts. Ignored for AllocGlobalOnly.
	Shards int

	// Optional logger
	Logger *zap.Logger
}

// DefaultConfig returns a per-shard 64-bit configuration with one shard per CPU.
func DefaultConfig() Config {
	return Config{
		Width:      Width64,
		Alloc:      AllocPerShard,
		Sync:       SyncShardLocal,
		Arithmetic: ArithmeticWrap,
		Shards:     runtime.NumCPU(),
	}
}

func (c Config) validate() error {
	if !c.Width.valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedWidth, uint8(c.Width))
	}
	if c.Width == Width64 && hostWordBits < 64 {
		return fmt.Errorf("%w: %s cells need a 64-bit host, have %d-bit", ErrUnsupportedWidth, c.Width, hostWordBits)
	}
	switch c.Arithmetic {
	case ArithmeticWrap:
	case ArithmeticSaturate:
		return fmt.Errorf("%w: %s", ErrUnsupportedArithmetic, c.Arithmetic)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Arithmetic)
	}
	switch c.Alloc {
	case AllocPerShard:
		if c.Shards <= 0 {
			return fmt.Errorf("%w: per-shard allocation needs at least one shard, got %d", ErrInvalidConfig, c.Shards)
		}
	case AllocGlobalOnly:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Alloc)
	}
	if c.Sync != SyncShardLocal && c.Sync != SyncGlobal {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Sync)
	}
	return nil
}

// checkSumStep verifies that step is non-negative and fits a cell of width w.
func checkSumStep(w Width, step int64) error {
	if step < 0 || step > w.Max() {
		return fmt.Errorf("%w: %d does not fit a %s cell", ErrInvalidSumStep, step, w)
	}
	return nil
}
