package splitcounter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func perShardConfig(w Width, shards int) Config {
	return Config{
		Width:      w,
		Alloc:      AllocPerShard,
		Sync:       SyncShardLocal,
		Arithmetic: ArithmeticWrap,
		Shards:     shards,
	}
}

func globalConfig(w Width) Config {
	return Config{
		Width:      w,
		Alloc:      AllocGlobalOnly,
		Sync:       SyncGlobal,
		Arithmetic: ArithmeticWrap,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		dims []int64
		step int64
		err  error
	}{
		{"width", Config{Width: 12, Shards: 1}, []int64{1}, 0, ErrUnsupportedWidth},
		{"zero width", Config{Shards: 1}, []int64{1}, 0, ErrUnsupportedWidth},
		{"saturate", Config{Width: Width32, Arithmetic: ArithmeticSaturate, Shards: 1}, []int64{1}, 0, ErrUnsupportedArithmetic},
		{"no shards", perShardConfig(Width32, 0), []int64{1}, 0, ErrInvalidConfig},
		{"alloc mode", Config{Width: Width32, Alloc: 7, Shards: 1}, []int64{1}, 0, ErrInvalidConfig},
		{"sync mode", Config{Width: Width32, Sync: 7, Shards: 1}, []int64{1}, 0, ErrInvalidConfig},
		{"negative step", perShardConfig(Width32, 1), []int64{1}, -1, ErrInvalidSumStep},
		{"step too wide for 8-bit", perShardConfig(Width8, 1), []int64{1}, 128, ErrInvalidSumStep},
		{"step too wide for 16-bit", perShardConfig(Width16, 1), []int64{1}, 1 << 15, ErrInvalidSumStep},
		{"step too wide for 32-bit", perShardConfig(Width32, 1), []int64{1}, 1 << 31, ErrInvalidSumStep},
		{"negative dimension", perShardConfig(Width32, 1), []int64{4, -1}, 0, ErrInvalidDimensions},
		{"cell count overflow", perShardConfig(Width32, 1), []int64{1 << 40, 1 << 40}, 0, ErrInvalidDimensions},
	}
	before := LiveLayouts()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := New(test.cfg, test.dims, test.step)
			require.ErrorIs(t, err, test.err)
			require.Nil(t, c)
		})
	}
	require.Equal(t, before, LiveLayouts())
}

func TestNewAcceptsStepAtWidthMax(t *testing.T) {
	for _, w := range []Width{Width8, Width16, Width32, Width64} {
		c, err := New(perShardConfig(w, 1), []int64{1}, w.Max())
		require.NoError(t, err, w.String())
		require.Equal(t, w.Max(), c.GlobalSumStep())
		c.Destroy()
	}
}

func TestNewRejects64BitOnNarrowHost(t *testing.T) {
	saved := hostWordBits
	hostWordBits = 32
	t.Cleanup(func() { hostWordBits = saved })

	_, err := New(perShardConfig(Width64, 1), []int64{1}, 0)
	require.ErrorIs(t, err, ErrUnsupportedWidth)

	c, err := New(perShardConfig(Width32, 1), []int64{1}, 0)
	require.NoError(t, err)
	c.Destroy()
}

func TestNewRollsBackOnAllocationFailure(t *testing.T) {
	const shards = 4
	before := LiveLayouts()

	calls := 0
	allocLayout = func(w Width, nr int64) (*layout, error) {
		calls++
		// global first, then shards: the last call is the last shard
		if calls == 1+shards {
			return nil, fmt.Errorf("%w: injected", ErrAllocation)
		}
		return newLayout(w, nr)
	}
	t.Cleanup(func() { allocLayout = newLayout })

	c, err := New(perShardConfig(Width64, shards), []int64{8, 8}, 0)
	require.ErrorIs(t, err, ErrAllocation)
	require.Nil(t, c)
	require.Equal(t, 1+shards, calls)
	require.Equal(t, before, LiveLayouts())
}

func TestNewFailsOnOversizedLayout(t *testing.T) {
	saved := maxLayoutBytes
	maxLayoutBytes = 1024
	t.Cleanup(func() { maxLayoutBytes = saved })
	before := LiveLayouts()

	_, err := New(perShardConfig(Width64, 2), []int64{1000}, 0)
	require.ErrorIs(t, err, ErrAllocation)
	require.Equal(t, before, LiveLayouts())
}

func TestNewAllocatesEveryLayout(t *testing.T) {
	before := LiveLayouts()

	c, err := New(perShardConfig(Width16, 3), []int64{4, 3}, 0)
	require.NoError(t, err)
	require.Equal(t, before+4, LiveLayouts())
	require.Equal(t, 3, c.Shards())
	require.Equal(t, int64(30), c.AllocatedElems())

	g, err := New(globalConfig(Width16), []int64{4, 3}, 0)
	require.NoError(t, err)
	require.Equal(t, before+5, LiveLayouts())
	require.Equal(t, 0, g.Shards())

	c.Destroy()
	g.Destroy()
	require.Equal(t, before, LiveLayouts())
}

func TestDimensionStrides(t *testing.T) {
	c, err := New(globalConfig(Width32), []int64{4, 3, 2}, 0)
	require.NoError(t, err)
	defer c.Destroy()

	require.Equal(t, []Dimension{
		{MaxNrElem: 4, Stride: 5 * 4},
		{MaxNrElem: 3, Stride: 4},
		{MaxNrElem: 2, Stride: 1},
	}, c.Dimensions())
	require.Equal(t, int64(6*5*4), c.AllocatedElems())

	// the table handed out is a copy
	dims := c.Dimensions()
	dims[0].Stride = 0
	require.Equal(t, int64(20), c.Dimensions()[0].Stride)
}

func TestScalarCounter(t *testing.T) {
	c, err := New(perShardConfig(Width64, 2), nil, 0)
	require.NoError(t, err)
	defer c.Destroy()

	require.Equal(t, int64(1), c.AllocatedElems())
	c.Inc(0, nil)
	c.Inc(1, nil)
	r, err := c.Aggregate(nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), r.Value)
}

func TestDestroy(t *testing.T) {
	before := LiveLayouts()
	c, err := New(perShardConfig(Width32, 2), []int64{2}, 0)
	require.NoError(t, err)

	c.Destroy()
	c.Destroy()
	require.Equal(t, before, LiveLayouts())

	c.Inc(0, []int64{1})
	require.Equal(t, uint64(1), c.Stats().Dropped)

	_, err = c.Read(0, []int64{1})
	require.ErrorIs(t, err, ErrDestroyed)
	_, err = c.Aggregate([]int64{1})
	require.ErrorIs(t, err, ErrDestroyed)
	require.ErrorIs(t, c.Clear([]int64{1}), ErrDestroyed)
}

func TestLoggerReceivesCreation(t *testing.T) {
	cfg := perShardConfig(Width32, 1)
	cfg.Logger = zaptest.NewLogger(t)
	c, err := New(cfg, []int64{1}, 0)
	require.NoError(t, err)
	c.Destroy()
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrUnsupportedWidth, ErrUnsupportedArithmetic, ErrInvalidSumStep,
		ErrInvalidDimensions, ErrInvalidConfig, ErrAllocation,
		ErrInvalidShard, ErrIndexCount, ErrIndexOutOfRange, ErrDestroyed,
		ErrTransportExists, ErrUnknownTransport,
	}
	for i, a := range all {
		for j, b := range all {
			require.Equal(t, i == j, errors.Is(a, b))
		}
	}
}
