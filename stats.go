package splitcounter

// ShardStats describes the activity of one shard.
type ShardStats struct {
	// Migrations is the number of times the shard carried into the global layout.
	Migrations uint64
	// Retries is the number of failed compare-and-swap attempts.
	Retries uint64
}

// Stats is an approximate view of a counter's internal activity.
type Stats struct {
	Shards           []ShardStats
	GlobalRetries    uint64
	Dropped          uint64
	BoundsViolations uint64
	Layouts          int
	Bytes            int64
}

// Migrations returns the total number of migrations over all shards.
func (s Stats) Migrations() uint64 {
	var n uint64
	for _, sh := range s.Shards {
		n += sh.Migrations
	}
	return n
}

// Retries returns the total number of failed compare-and-swap attempts.
func (s Stats) Retries() uint64 {
	n := s.GlobalRetries
	for _, sh := range s.Shards {
		n += sh.Retries
	}
	return n
}

// Stats returns the counter's activity statistics.
func (c *Counter) Stats() Stats {
	st := Stats{
		Shards:           make([]ShardStats, len(c.shards)),
		GlobalRetries:    c.globalRetries.Load(),
		Dropped:          c.dropped.Load(),
		BoundsViolations: c.violations.Load(),
	}
	for i := range c.shards {
		st.Shards[i] = ShardStats{
			Migrations: c.shards[i].migrations.Load(),
			Retries:    c.shards[i].retries.Load(),
		}
	}
	if !c.destroyed.Load() {
		st.Layouts = 1 + len(c.shards)
		st.Bytes = int64(st.Layouts) * layoutBytes(c.cfg.Width, c.nrElem)
	}
	return st
}
