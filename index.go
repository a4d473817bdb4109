package splitcounter

import "go.uber.org/zap"

// offset maps dimension indexes to a flat cell offset. Indexes below zero
// select the dimension's underflow sentinel and indexes at or past
// MaxNrElem select its overflow sentinel, so any input resolves to a cell.
// indices is not modified.
func (c *Counter) offset(indices []int64) (int64, error) {
	if len(indices) != len(c.dims) {
		return 0, ErrIndexCount
	}
	var off int64
	for i, d := range c.dims {
		idx := indices[i]
		if idx < 0 {
			idx = d.underflowIndex()
		} else if idx >= d.MaxNrElem {
			idx = d.overflowIndex()
		}
		off += idx * d.Stride
	}
	if off < 0 || off >= c.nrElem {
		// Strides are wrong if we get here.
		if c.violations.Add(1) == 1 {
			c.logger.Error("resolved offset outside allocated cells",
				zap.Int64("offset", off),
				zap.Int64("cells", c.nrElem),
				zap.Int64s("indexes", indices),
				zap.Stack("stack"))
		}
		return 0, ErrIndexOutOfRange
	}
	return off, nil
}
