package splitcounter

import "sync/atomic"

// Add adds delta to the cell at indices in the given shard.
//
// For per-shard counters the shard-local cell absorbs the update; once its
// magnitude passes the global sum step, half a step is moved into the
// global cell. For global-only counters shard is ignored and the global
// cell is updated directly.
//
// Add never fails from the caller's point of view: an invalid shard or
// index count drops the update and is reported through Stats and the
// logger.
func (c *Counter) Add(shard int, indices []int64, delta int64) {
	if c.destroyed.Load() {
		c.drop("counter destroyed", ErrDestroyed)
		return
	}
	off, err := c.offset(indices)
	if err != nil {
		c.drop("unresolvable index", err)
		return
	}

	if c.cfg.Alloc == AllocGlobalOnly {
		c.apply(c.global, off, delta, false, &c.globalRetries)
		return
	}
	if shard < 0 || shard >= len(c.shards) {
		c.drop("shard out of range", ErrInvalidShard)
		return
	}
	s := &c.shards[shard]
	moved := c.apply(s.layout, off, delta, c.cfg.Sync == SyncShardLocal, &s.retries)
	if moved != 0 {
		s.migrations.Add(1)
		c.apply(c.global, off, moved, false, &c.globalRetries)
	}
}

// Inc adds one to the cell at indices in the given shard.
func (c *Counter) Inc(shard int, indices []int64) {
	c.Add(shard, indices, 1)
}

// Dec subtracts one from the cell at indices in the given shard.
func (c *Counter) Dec(shard int, indices []int64) {
	c.Add(shard, indices, -1)
}

// AddAny is Add with the shard chosen by PickShard.
func (c *Counter) AddAny(indices []int64, delta int64) {
	c.Add(c.PickShard(), indices, delta)
}

// IncAny is Inc with the shard chosen by PickShard.
func (c *Counter) IncAny(indices []int64) {
	c.AddAny(indices, 1)
}

// DecAny is Dec with the shard chosen by PickShard.
func (c *Counter) DecAny(indices []int64) {
	c.AddAny(indices, -1)
}

// apply adds delta to cell off of l with a compare-and-swap loop and returns
// the amount the caller must carry into the global cell. Carrying is only
// considered when migrate is set and the counter has a nonzero sum step.
func (c *Counter) apply(l *layout, off, delta int64, migrate bool, retries *atomic.Uint64) int64 {
	w := c.cfg.Width
	step := c.sumStep
	if !migrate {
		step = 0
	}

	var moved, n int64
	old := l.cells.load(off)
	for {
		n = w.add(old, delta)
		moved = 0
		if step != 0 {
			if n > step {
				moved = step / 2
			} else if n < -step {
				moved = -(step / 2)
			}
			n -= moved
		}
		if l.cells.compareAndSwap(off, old, n) {
			break
		}
		retries.Add(1)
		old = l.cells.load(off)
	}

	overflow, underflow := w.classify(old, delta, n)
	l.mark(off, overflow, underflow)
	return moved
}
