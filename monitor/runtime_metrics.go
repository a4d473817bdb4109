package monitor

import (
	"runtime"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// RuntimeCollector reports Go runtime gauges of the process hosting the
// counters.
type RuntimeCollector struct {
	BaseCollector
}

// NewRuntimeCollector creates a new runtime collector
func NewRuntimeCollector(logger *zap.Logger) *RuntimeCollector {
	return &RuntimeCollector{
		BaseCollector: NewBaseCollector("runtime", logger),
	}
}

type runtimeValue struct {
	name string
	v    uint64
	kind MetricType
}

// Collect implements Collector interface
func (r *RuntimeCollector) Collect() []Metric {
	now := time.Now()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	values := []runtimeValue{
		{"memory_heap_alloc_bytes", ms.HeapAlloc, Gauge},
		{"memory_heap_inuse_bytes", ms.HeapInuse, Gauge},
		{"memory_sys_bytes", ms.Sys, Gauge},
		{"goroutines_num", uint64(runtime.NumGoroutine()), Gauge},
		{"gomaxprocs", uint64(runtime.GOMAXPROCS(0)), Gauge},
		{"gc_runs_total", uint64(ms.NumGC), Counter},
		{"gc_pause_total_ns", ms.PauseTotalNs, Counter},
	}
	if rss := processRSS(); rss > 0 {
		values = append(values, runtimeValue{"memory_rss_bytes", rss, Gauge})
	}

	metrics := make([]Metric, 0, len(values))
	for _, v := range values {
		metrics = append(metrics, Metric{
			Name:       v.name,
			Value:      float64(v.v),
			Labels:     map[string]string{},
			MetricType: v.kind,
			Timestamp:  now,
		})
	}
	return metrics
}

// processRSS returns the resident set size in bytes, or 0 when procfs is
// not mounted.
func processRSS() uint64 {
	self, err := procfs.Self()
	if err != nil {
		return 0
	}
	stat, err := self.Stat()
	if err != nil {
		return 0
	}
	return uint64(max(stat.ResidentMemory(), 0))
}
