package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/nikiz24/splitcounter"
	"github.com/nikiz24/splitcounter/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	transport      string
	width          int
	shards         int
	globalOnly     bool
	syncGlobal     bool
	dims           []int64
	step           int64
	workers        int
	ops            int
	pickAny        bool
	remoteWriteURL string
	service        string
	dev            bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	rootCmd := &cobra.Command{
		Use:           "splitcounter-load",
		Short:         "Drive a split counter from concurrent workers",
		Long:          "Creates a split counter, increments random cells from pinned workers and prints the aggregated cells together with engine statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.dev)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return run(cmd.Context(), opts, cmd.OutOrStdout(), logger)
		},
	}

	rootCmd.Flags().StringVar(&opts.transport, "transport", "", "start from a registered transport configuration instead of --width")
	rootCmd.Flags().IntVar(&opts.width, "width", 64, "cell width in bits: 8, 16, 32 or 64")
	rootCmd.Flags().IntVar(&opts.shards, "shards", splitcounter.DefaultConfig().Shards, "number of shard layouts")
	rootCmd.Flags().BoolVar(&opts.globalOnly, "global-only", false, "allocate only the global layout")
	rootCmd.Flags().BoolVar(&opts.syncGlobal, "sync-global", false, "never migrate shard values into the global layout")
	rootCmd.Flags().Int64SliceVar(&opts.dims, "dims", []int64{4}, "elements per dimension")
	rootCmd.Flags().Int64Var(&opts.step, "step", 1<<10, "global sum step")
	rootCmd.Flags().IntVar(&opts.workers, "workers", 4, "number of concurrent workers")
	rootCmd.Flags().IntVar(&opts.ops, "ops", 100000, "increments per worker")
	rootCmd.Flags().BoolVar(&opts.pickAny, "any", false, "let the counter pick the shard instead of pinning workers")
	rootCmd.Flags().StringVar(&opts.remoteWriteURL, "remote-write-url", "", "push engine statistics to this Prometheus remote write endpoint")
	rootCmd.Flags().StringVar(&opts.service, "service", "splitcounter-load", "service label for pushed statistics")
	rootCmd.Flags().BoolVar(&opts.dev, "dev", false, "human readable debug logging")
	return rootCmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newCounter(opts options, logger *zap.Logger) (*splitcounter.Counter, error) {
	cfg := splitcounter.DefaultConfig()
	cfg.Width = splitcounter.Width(opts.width)
	if opts.transport != "" {
		t, ok := splitcounter.LookupTransport(opts.transport)
		if !ok {
			return nil, fmt.Errorf("%w: %q", splitcounter.ErrUnknownTransport, opts.transport)
		}
		cfg = t.Config
	}
	cfg.Shards = opts.shards
	cfg.Logger = logger
	if opts.globalOnly {
		cfg.Alloc = splitcounter.AllocGlobalOnly
	}
	if opts.syncGlobal {
		cfg.Sync = splitcounter.SyncGlobal
	}
	return splitcounter.New(cfg, opts.dims, opts.step)
}

func run(ctx context.Context, opts options, out io.Writer, logger *zap.Logger) error {
	if opts.workers <= 0 || opts.ops < 0 {
		return fmt.Errorf("workers must be positive and ops not negative")
	}

	c, err := newCounter(opts, logger)
	if err != nil {
		return fmt.Errorf("creating counter: %w", err)
	}
	defer c.Destroy()

	if opts.remoteWriteURL != "" {
		cfg := monitor.DefaultConfig()
		cfg.ServiceName = opts.service
		cfg.RemoteWriteURL = opts.remoteWriteURL
		cfg.Logger = logger
		if err := monitor.Init(cfg); err != nil {
			return err
		}
		defer monitor.Shutdown()
		monitor.Track("load", c)
	}

	logger.Info("starting load",
		zap.Stringer("width", c.Config().Width),
		zap.Int("shards", c.Shards()),
		zap.Int64s("dims", opts.dims),
		zap.Int("workers", opts.workers),
		zap.Int("ops", opts.ops))

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.workers; w++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))
			shard := splitcounter.GlobalShard
			if c.Shards() > 0 {
				shard = w % c.Shards()
			}
			idx := make([]int64, len(opts.dims))
			for i := 0; i < opts.ops; i++ {
				if i%4096 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				for d, n := range opts.dims {
					idx[d] = rng.Int64N(max(n, 1))
				}
				if opts.pickAny {
					c.IncAny(idx)
				} else {
					c.Inc(shard, idx)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total, err := report(out, c, opts.dims)
	if err != nil {
		return err
	}
	st := c.Stats()
	fmt.Fprintf(out, "total %d of %d in %s\n", total, int64(opts.workers)*int64(opts.ops), elapsed)
	fmt.Fprintf(out, "migrations %d retries %d dropped %d layouts %d bytes %d\n",
		st.Migrations(), st.Retries(), st.Dropped, st.Layouts, st.Bytes)

	if opts.remoteWriteURL != "" {
		if err := monitor.Flush(context.Background()); err != nil {
			logger.Warn("Failed to push engine statistics", zap.Error(err))
		}
	}
	return nil
}

// report prints every non-zero aggregated cell and returns their sum
func report(out io.Writer, c *splitcounter.Counter, dims []int64) (int64, error) {
	idx := make([]int64, len(dims))
	var total int64
	for {
		r, err := c.Aggregate(idx)
		if err != nil {
			return 0, err
		}
		if r.Value != 0 || r.Overflow || r.Underflow {
			fmt.Fprintf(out, "%v %d", idx, r.Value)
			if r.Overflow {
				fmt.Fprint(out, " overflow")
			}
			if r.Underflow {
				fmt.Fprint(out, " underflow")
			}
			fmt.Fprintln(out)
		}
		total += r.Value

		// odometer over the index space, last dimension fastest
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < dims[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return total, nil
		}
	}
}
