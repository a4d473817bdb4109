package splitcounter

import "fmt"

// Reading is the value of a cell together with its sticky flags.
type Reading struct {
	Value     int64
	Overflow  bool
	Underflow bool
}

func (l *layout) read(off int64) Reading {
	return Reading{
		Value:     l.cells.load(off),
		Overflow:  l.overflow.test(off),
		Underflow: l.underflow.test(off),
	}
}

// layoutFor returns the layout selected by shard, GlobalShard meaning the
// global layout.
func (c *Counter) layoutFor(shard int) (*layout, error) {
	if shard == GlobalShard {
		return c.global, nil
	}
	if c.cfg.Alloc == AllocGlobalOnly {
		return nil, fmt.Errorf("%w: %d on a global-only counter", ErrInvalidShard, shard)
	}
	if shard < 0 || shard >= len(c.shards) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidShard, shard, len(c.shards))
	}
	return c.shards[shard].layout, nil
}

// Read returns a single cell of one shard, or of the global layout when
// shard is GlobalShard. The load does not synchronize with concurrent
// updates beyond being atomic.
func (c *Counter) Read(shard int, indices []int64) (Reading, error) {
	if c.destroyed.Load() {
		return Reading{}, ErrDestroyed
	}
	off, err := c.offset(indices)
	if err != nil {
		return Reading{}, fmt.Errorf("read %v: %w", indices, err)
	}
	l, err := c.layoutFor(shard)
	if err != nil {
		return Reading{}, err
	}
	return l.read(off), nil
}

// Aggregate sums the global cell and every shard cell at indices with 64-bit
// wraparound, and ORs all sticky flags together. Shards are read one after
// the other, so the result is not a consistent snapshot when updates run
// concurrently.
func (c *Counter) Aggregate(indices []int64) (Reading, error) {
	if c.destroyed.Load() {
		return Reading{}, ErrDestroyed
	}
	off, err := c.offset(indices)
	if err != nil {
		return Reading{}, fmt.Errorf("aggregate %v: %w", indices, err)
	}

	sum := c.global.read(off)
	for i := range c.shards {
		r := c.shards[i].layout.read(off)
		total := Width64.add(sum.Value, r.Value)
		overflow, underflow := Width64.classify(sum.Value, r.Value, total)
		sum.Value = total
		sum.Overflow = sum.Overflow || r.Overflow || overflow
		sum.Underflow = sum.Underflow || r.Underflow || underflow
	}
	return sum, nil
}

// Clear zeroes the cell at indices in every layout and resets its sticky
// flags. Updates running concurrently with Clear may survive it.
func (c *Counter) Clear(indices []int64) error {
	if c.destroyed.Load() {
		return ErrDestroyed
	}
	off, err := c.offset(indices)
	if err != nil {
		return fmt.Errorf("clear %v: %w", indices, err)
	}
	for i := range c.shards {
		c.shards[i].layout.reset(off)
	}
	c.global.reset(off)
	return nil
}
