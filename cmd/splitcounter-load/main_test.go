package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/nikiz24/splitcounter"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunConservesIncrements(t *testing.T) {
	var out bytes.Buffer
	opts := options{width: 32, shards: 2, dims: []int64{3}, step: 16, workers: 4, ops: 1000}
	require.NoError(t, run(context.Background(), opts, &out, zaptest.NewLogger(t)))
	require.Contains(t, out.String(), "total 4000 of 4000")
}

func TestRunPickAnyGlobalOnly(t *testing.T) {
	var out bytes.Buffer
	opts := options{width: 16, globalOnly: true, dims: []int64{2, 2}, workers: 3, ops: 100, pickAny: true}
	require.NoError(t, run(context.Background(), opts, &out, zaptest.NewLogger(t)))
	require.Contains(t, out.String(), "total 300 of 300")
	require.Contains(t, out.String(), "layouts 1 ")
}

func TestRunRejectsBadOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var out bytes.Buffer
	err := run(context.Background(), options{width: 12, shards: 1, dims: []int64{1}, workers: 1}, &out, logger)
	require.ErrorIs(t, err, splitcounter.ErrUnsupportedWidth)

	err = run(context.Background(), options{width: 32, shards: 1, workers: 0}, &out, logger)
	require.Error(t, err)

	err = run(context.Background(), options{transport: "no-such-transport", workers: 1}, &out, logger)
	require.ErrorIs(t, err, splitcounter.ErrUnknownTransport)
}

func TestReportWalksEveryCell(t *testing.T) {
	cfg := splitcounter.DefaultConfig()
	cfg.Shards = 1
	c, err := splitcounter.New(cfg, []int64{2, 3}, 0)
	require.NoError(t, err)
	defer c.Destroy()

	c.Add(0, []int64{1, 2}, 5)
	c.Add(0, []int64{0, 0}, 2)

	var out bytes.Buffer
	total, err := report(&out, c, []int64{2, 3})
	require.NoError(t, err)
	require.Equal(t, int64(7), total)
	require.Equal(t, "[0 0] 2\n[1 2] 5\n", out.String())
}

func TestNewCounterFromTransport(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	c, err := newCounter(options{transport: "counter-per-shard-32-overflow", shards: 3, dims: []int64{2}, step: 8}, logger)
	require.NoError(t, err)
	defer c.Destroy()

	require.Equal(t, splitcounter.Width32, c.Config().Width)
	require.Equal(t, 3, c.Shards())
	require.Same(t, logger, c.Config().Logger)
	require.Equal(t, 1, logs.FilterMessage("counter created").Len())

	g, err := newCounter(options{transport: "counter-global-64-overflow", shards: 3, dims: []int64{2}}, logger)
	require.NoError(t, err)
	defer g.Destroy()
	require.Zero(t, g.Shards())
	require.Equal(t, splitcounter.AllocGlobalOnly, g.Config().Alloc)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--transport", "counter-global-32-overflow", "--dims", "2", "--workers", "2", "--ops", "50"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "total 100 of 100")
}
