package monitor

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nikiz24/splitcounter"
	"go.uber.org/zap"
)

// BaseCollector provides basic collector functionality
type BaseCollector struct {
	name   string
	logger *zap.Logger
}

// Name implements Collector interface
func (b *BaseCollector) Name() string {
	return b.name
}

// NewBaseCollector creates a base collector
func NewBaseCollector(name string, logger *zap.Logger) BaseCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return BaseCollector{
		name:   name,
		logger: logger,
	}
}

// EngineCollector reports the activity statistics of tracked counters.
// Cell values are never exported.
type EngineCollector struct {
	BaseCollector
	counters map[string]*splitcounter.Counter
	mutex    sync.RWMutex
}

// NewEngineCollector creates a new engine collector
func NewEngineCollector(name string, logger *zap.Logger) *EngineCollector {
	return &EngineCollector{
		BaseCollector: NewBaseCollector(name, logger),
		counters:      make(map[string]*splitcounter.Counter),
	}
}

// Track starts reporting c under name, replacing any counter already
// tracked under that name.
func (e *EngineCollector) Track(name string, c *splitcounter.Counter) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, exists := e.counters[name]; exists {
		e.logger.Warn("Replacing tracked counter", zap.String("counter", name))
	}
	e.counters[name] = c
}

// Untrack stops reporting the counter tracked under name
func (e *EngineCollector) Untrack(name string) {
	e.mutex.Lock()
	delete(e.counters, name)
	e.mutex.Unlock()
}

// Tracked returns the tracked counter names in order
func (e *EngineCollector) Tracked() []string {
	e.mutex.RLock()
	names := make([]string, 0, len(e.counters))
	for name := range e.counters {
		names = append(names, name)
	}
	e.mutex.RUnlock()
	sort.Strings(names)
	return names
}

// Collect implements Collector interface
func (e *EngineCollector) Collect() []Metric {
	now := time.Now()

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	metrics := []Metric{{
		Name:       "live_layouts",
		Value:      float64(splitcounter.LiveLayouts()),
		Labels:     map[string]string{},
		MetricType: Gauge,
		Timestamp:  now,
	}}
	for name, c := range e.counters {
		st := c.Stats()
		counterOnly := map[string]string{"counter": name}
		metrics = append(metrics,
			Metric{Name: "global_cas_retries_total", Value: float64(st.GlobalRetries), Labels: counterOnly, MetricType: Counter, Timestamp: now},
			Metric{Name: "dropped_updates_total", Value: float64(st.Dropped), Labels: counterOnly, MetricType: Counter, Timestamp: now},
			Metric{Name: "bounds_violations_total", Value: float64(st.BoundsViolations), Labels: counterOnly, MetricType: Counter, Timestamp: now},
			Metric{Name: "layouts", Value: float64(st.Layouts), Labels: counterOnly, MetricType: Gauge, Timestamp: now},
			Metric{Name: "layout_bytes", Value: float64(st.Bytes), Labels: counterOnly, MetricType: Gauge, Timestamp: now},
		)
		for i, sh := range st.Shards {
			labels := map[string]string{"counter": name, "shard": strconv.Itoa(i)}
			metrics = append(metrics,
				Metric{Name: "migrations_total", Value: float64(sh.Migrations), Labels: labels, MetricType: Counter, Timestamp: now},
				Metric{Name: "cas_retries_total", Value: float64(sh.Retries), Labels: labels, MetricType: Counter, Timestamp: now},
			)
		}
	}
	return metrics
}
