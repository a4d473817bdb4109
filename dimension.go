package splitcounter

import (
	"fmt"
	"math"
)

// sentinelSlots is the number of extra slots per dimension: one for indexes
// below zero and one for indexes at or above MaxNrElem.
const sentinelSlots = 2

// Dimension describes one axis of a counter.
type Dimension struct {
	// MaxNrElem is the number of caller-addressable elements.
	MaxNrElem int64
	// Stride is the flat-offset multiplier for an index on this axis.
	Stride int64
}

func (d Dimension) allocated() int64 {
	return d.MaxNrElem + sentinelSlots
}

func (d Dimension) underflowIndex() int64 {
	return d.MaxNrElem
}

func (d Dimension) overflowIndex() int64 {
	return d.MaxNrElem + 1
}

// makeDimensions builds the dimension table for maxNrElem and returns it
// together with the total number of cells, sentinels included.
func makeDimensions(maxNrElem []int64) ([]Dimension, int64, error) {
	dims := make([]Dimension, len(maxNrElem))
	for i, n := range maxNrElem {
		if n < 0 || n > math.MaxInt64-sentinelSlots {
			return nil, 0, fmt.Errorf("%w: dimension %d has %d elements", ErrInvalidDimensions, i, n)
		}
		dims[i].MaxNrElem = n
	}

	stride := int64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		dims[i].Stride = stride
		size := dims[i].allocated()
		if stride > math.MaxInt64/size {
			return nil, 0, fmt.Errorf("%w: cell count overflows at dimension %d", ErrInvalidDimensions, i)
		}
		stride *= size
	}
	return dims, stride, nil
}
