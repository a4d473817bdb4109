package monitor

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricSource yields a snapshot of metrics; Manager satisfies it
type MetricSource interface {
	GetMetrics() []Metric
}

// Exporter adapts a MetricSource to a prometheus.Collector so engine
// statistics can be scraped as well as pushed. It is an unchecked
// collector: metric descriptions are only known at collection time.
type Exporter struct {
	config Config
	source MetricSource
	logger *zap.Logger
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter creates an exporter naming metrics with the namespace and
// subsystem of config
func NewExporter(config Config, source MetricSource) *Exporter {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{config: config, source: source, logger: logger}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, m := range e.source.GetMetrics() {
		names := make([]string, 0, len(m.Labels))
		for k := range m.Labels {
			names = append(names, k)
		}
		sort.Strings(names)
		values := make([]string, len(names))
		for i, k := range names {
			values[i] = m.Labels[k]
		}

		desc := prometheus.NewDesc(metricName(e.config, m.Name), "splitcounter engine "+m.MetricType.String()+" "+m.Name, names, e.constLabels())
		vt := prometheus.GaugeValue
		if m.MetricType == Counter {
			vt = prometheus.CounterValue
		}
		pm, err := prometheus.NewConstMetric(desc, vt, m.Value, values...)
		if err != nil {
			e.logger.Warn("Skipping metric", zap.String("metric", m.Name), zap.Error(err))
			continue
		}
		ch <- pm
	}
}

func (e *Exporter) constLabels() prometheus.Labels {
	labels := prometheus.Labels{"service": e.config.ServiceName}
	for k, v := range e.config.ExtraLabels {
		labels[k] = v
	}
	return labels
}
