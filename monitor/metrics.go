package monitor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/eryajf/promwrite"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config configures the engine monitor. Zero durations fall back to
// defaults.
type Config struct {
	// Metric names are prefixed with Namespace_Subsystem_
	Namespace   string
	Subsystem   string
	ServiceName string

	// Push target; empty disables pushing
	RemoteWriteURL string
	PushInterval   time.Duration
	WriteTimeout   time.Duration

	// Attached to every pushed series
	InstanceIP  string
	Version     string
	ExtraLabels map[string]string

	Logger *zap.Logger

	// Resolution of the push target host
	DNS ResolverConfig
}

// DefaultConfig returns the configuration used by the load generator
func DefaultConfig() Config {
	instance, _ := GetOutboundIPv4()
	return Config{
		Namespace:    "splitcounter",
		ServiceName:  "splitcounter",
		PushInterval: 15 * time.Second,
		WriteTimeout: 10 * time.Second,
		InstanceIP:   instance,
		ExtraLabels:  map[string]string{},
	}
}

// Manager gathers metrics from its collectors and ships them
type Manager interface {
	Start() error
	Stop()
	RegisterCollector(c Collector)
	GetMetrics() []Metric
	Flush(ctx context.Context) error
}

// Collector produces a batch of metrics on demand
type Collector interface {
	Collect() []Metric
	Name() string
}

// Metric is one sample
type Metric struct {
	Name       string
	Value      float64
	Labels     map[string]string
	MetricType MetricType
	Timestamp  time.Time
}

// MetricType distinguishes monotonic counters from gauges
type MetricType int

const (
	Counter MetricType = iota
	Gauge
)

func (t MetricType) String() string {
	if t == Counter {
		return "counter"
	}
	return "gauge"
}

type manager struct {
	config Config
	logger *zap.Logger

	mu         sync.RWMutex
	collectors []Collector

	ctx    context.Context
	stop   context.CancelFunc
	loops  sync.WaitGroup
	target target
}

// target is the push endpoint and what its host last resolved to
type target struct {
	mu       sync.Mutex
	client   *promwrite.Client
	url      string
	host     string
	ips      []string
	resolved time.Time
	resolver ResolverConfig
	cache    map[string]dnsCacheEntry
}

// NewManager validates config and returns a stopped manager
func NewManager(config Config) (Manager, error) {
	if config.ServiceName == "" {
		return nil, fmt.Errorf("monitor: empty service name")
	}
	if config.InstanceIP == "" {
		instance, err := GetOutboundIPv4()
		if err != nil {
			return nil, fmt.Errorf("monitor: detecting instance address: %w", err)
		}
		config.InstanceIP = instance
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &manager{config: config, logger: logger}
	m.ctx, m.stop = context.WithCancel(context.Background())
	m.target.resolver = config.DNS.withDefaults()
	m.target.cache = map[string]dnsCacheEntry{}
	if config.RemoteWriteURL != "" {
		u, err := url.Parse(config.RemoteWriteURL)
		if err != nil {
			return nil, fmt.Errorf("monitor: remote write url: %w", err)
		}
		m.target.url = config.RemoteWriteURL
		m.target.host = u.Hostname()
		m.target.client = promwrite.NewClient(config.RemoteWriteURL)
	}
	return m, nil
}

func pickDuration(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func (m *manager) RegisterCollector(c Collector) {
	m.mu.Lock()
	m.collectors = append(m.collectors, c)
	m.mu.Unlock()
	m.logger.Debug("collector registered", zap.String("collector", c.Name()))
}

// Start launches the push loop and, for named hosts with a resolver
// enabled, the periodic re-resolution loop. Without a push target it only
// logs.
func (m *manager) Start() error {
	if m.target.current() == nil {
		m.logger.Warn("engine monitor started without remote write url")
		return nil
	}

	m.loops.Add(1)
	go m.every(pickDuration(m.config.PushInterval, 15*time.Second), func() {
		if err := m.Flush(m.ctx); err != nil {
			m.logger.Error("pushing engine metrics", zap.Error(err))
		}
	})

	if m.config.DNS.Enable && m.target.named() {
		m.loops.Add(1)
		go m.every(m.target.resolver.RefreshInterval, func() {
			m.target.refresh(m.ctx, m.logger, false)
		})
	}
	return nil
}

func (m *manager) every(interval time.Duration, fn func()) {
	defer m.loops.Done()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-tick.C:
			fn()
		}
	}
}

func (m *manager) Stop() {
	m.stop()
	m.loops.Wait()
}

func (m *manager) GetMetrics() []Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Metric
	for _, c := range m.collectors {
		all = append(all, c.Collect()...)
	}
	return all
}

// Flush pushes one snapshot now. When the write fails and re-resolving the
// target replaced the client, the write is tried once more.
func (m *manager) Flush(ctx context.Context) error {
	client := m.target.current()
	if client == nil {
		return fmt.Errorf("monitor: no remote write url")
	}
	snapshot := m.GetMetrics()
	if len(snapshot) == 0 {
		return nil
	}
	req := &promwrite.WriteRequest{TimeSeries: m.convertToTimeSeries(snapshot)}

	ctx, cancel := context.WithTimeout(ctx, pickDuration(m.config.WriteTimeout, 10*time.Second))
	defer cancel()

	_, err := client.Write(ctx, req)
	if err == nil {
		return nil
	}
	if !m.target.refresh(ctx, m.logger, true) {
		return fmt.Errorf("monitor: remote write: %w", err)
	}
	if _, retryErr := m.target.current().Write(ctx, req); retryErr != nil {
		return fmt.Errorf("monitor: remote write after re-resolve: %w", multierr.Append(err, retryErr))
	}
	return nil
}

// metricName joins namespace, subsystem and name with underscores,
// skipping empty parts.
func metricName(config Config, name string) string {
	full := name
	for _, part := range []string{config.Subsystem, config.Namespace} {
		if part != "" {
			full = part + "_" + full
		}
	}
	return full
}

// convertToTimeSeries builds one series per metric. Extra labels come
// first, then instance/service/version, then the metric's own labels; the
// result is ordered by label name after __name__.
func (m *manager) convertToTimeSeries(metrics []Metric) []promwrite.TimeSeries {
	series := make([]promwrite.TimeSeries, 0, len(metrics))
	for _, metric := range metrics {
		set := make(map[string]string, len(m.config.ExtraLabels)+len(metric.Labels)+3)
		for name, value := range m.config.ExtraLabels {
			set[name] = value
		}
		set["instance"] = m.config.InstanceIP
		set["service"] = m.config.ServiceName
		if m.config.Version != "" {
			set["version"] = m.config.Version
		}
		for name, value := range metric.Labels {
			set[name] = value
		}

		labels := make([]promwrite.Label, 0, len(set)+1)
		for name, value := range set {
			labels = append(labels, promwrite.Label{Name: name, Value: value})
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
		labels = append([]promwrite.Label{{Name: "__name__", Value: metricName(m.config, metric.Name)}}, labels...)

		series = append(series, promwrite.TimeSeries{
			Labels: labels,
			Sample: promwrite.Sample{Time: metric.Timestamp, Value: metric.Value},
		})
	}
	return series
}

// GetOutboundIPv4 returns the local address used to reach the internet.
// No packet is sent.
func GetOutboundIPv4() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
