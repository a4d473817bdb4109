package splitcounter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// GlobalShard selects the global layout in Read.
const GlobalShard = -1

// shard is the per-shard state. Padding keeps the statistics of
// neighbouring shards on separate cache lines.
type shard struct {
	layout     *layout
	migrations atomic.Uint64
	retries    atomic.Uint64
	_          cpu.CacheLinePad
}

// Counter is a multi-dimensional split counter.
//
// Updates go to a shard-local cell and overflow into a shared global cell
// once the shard-local magnitude passes the global sum step. All updates
// are lock-free.
type Counter struct {
	cfg     Config
	dims    []Dimension
	nrElem  int64
	sumStep int64
	logger  *zap.Logger

	global *layout
	shards []shard

	globalRetries atomic.Uint64
	dropped       atomic.Uint64
	violations    atomic.Uint64
	warnOnce      sync.Once
	destroyed     atomic.Bool
}

// New creates a counter with one dimension per entry of maxNrElem.
// All storage is allocated up front; on any failure nothing is retained.
func New(cfg Config, maxNrElem []int64, globalSumStep int64) (*Counter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkSumStep(cfg.Width, globalSumStep); err != nil {
		return nil, err
	}
	dims, nrElem, err := makeDimensions(maxNrElem)
	if err != nil {
		return nil, err
	}

	c := &Counter{
		cfg:     cfg,
		dims:    dims,
		nrElem:  nrElem,
		sumStep: globalSumStep,
		logger:  logger,
	}
	if cfg.Alloc == AllocGlobalOnly {
		c.cfg.Shards = 0
	}
	if err := c.allocate(); err != nil {
		logger.Warn("counter allocation failed",
			zap.Int64("cells", nrElem),
			zap.Int("shards", c.cfg.Shards),
			zap.Error(err))
		return nil, err
	}

	logger.Debug("counter created",
		zap.Stringer("width", cfg.Width),
		zap.Stringer("alloc", cfg.Alloc),
		zap.Stringer("sync", cfg.Sync),
		zap.Int("dimensions", len(dims)),
		zap.Int64("cells", nrElem),
		zap.Int("shards", c.cfg.Shards),
		zap.Int64("global_sum_step", globalSumStep))
	return c, nil
}

func (c *Counter) allocate() (err error) {
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	if c.global, err = allocLayout(c.cfg.Width, c.nrElem); err != nil {
		return fmt.Errorf("global layout: %w", err)
	}
	if c.cfg.Alloc != AllocPerShard {
		return nil
	}
	c.shards = make([]shard, c.cfg.Shards)
	for i := range c.shards {
		if c.shards[i].layout, err = allocLayout(c.cfg.Width, c.nrElem); err != nil {
			return fmt.Errorf("shard %d layout: %w", i, err)
		}
	}
	return nil
}

func (c *Counter) release() {
	for i := range c.shards {
		c.shards[i].layout.free()
	}
	c.global.free()
}

// Destroy releases all storage. It must not run concurrently with other
// operations on c. Updates after Destroy are dropped and queries return
// ErrDestroyed.
func (c *Counter) Destroy() {
	if c.destroyed.Swap(true) {
		return
	}
	c.release()
	c.logger.Debug("counter destroyed", zap.Int64("cells", c.nrElem))
}

// Config returns the configuration the counter was created with.
func (c *Counter) Config() Config {
	return c.cfg
}

// Dimensions returns a copy of the dimension table.
func (c *Counter) Dimensions() []Dimension {
	return append([]Dimension(nil), c.dims...)
}

// Shards returns the number of shard layouts; zero for global-only counters.
func (c *Counter) Shards() int {
	return len(c.shards)
}

// AllocatedElems returns the number of cells per layout, sentinels included.
func (c *Counter) AllocatedElems() int64 {
	return c.nrElem
}

// GlobalSumStep returns the migration threshold; zero means no migration.
func (c *Counter) GlobalSumStep() int64 {
	return c.sumStep
}

// drop records an update that could not be applied. The first one per
// counter is logged with a stack trace.
func (c *Counter) drop(reason string, err error) {
	c.dropped.Add(1)
	c.warnOnce.Do(func() {
		c.logger.Error("counter update dropped",
			zap.String("reason", reason),
			zap.Error(err),
			zap.Stack("stack"))
	})
}
