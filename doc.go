// Package splitcounter provides multi-dimensional counters built for very
// frequent concurrent updates and rare reads.
//
// Design goals:
//   - No locks on the update path, only per-cell compare-and-swap
//   - Updates land in shard-local storage to avoid contention
//   - Shard-local magnitude is carried into a global cell in half-steps
//   - Sticky overflow and underflow flags per cell
//   - Out-of-range indexes are folded into per-dimension sentinel cells
//
// Basic usage:
//
//	cfg := splitcounter.DefaultConfig()
//	cfg.Width = splitcounter.Width32
//
//	c, err := splitcounter.New(cfg, []int64{16, 4}, 1024)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Destroy()
//
//	c.Inc(worker, []int64{syscallNr, errClass})
//
//	r, err := c.Aggregate([]int64{syscallNr, errClass})
package splitcounter
