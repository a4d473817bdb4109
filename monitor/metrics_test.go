package monitor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eryajf/promwrite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticCollector []Metric

func (s staticCollector) Collect() []Metric { return s }
func (s staticCollector) Name() string      { return "static" }

func testConfig(t *testing.T) Config {
	return Config{
		Namespace:   "splitcounter",
		ServiceName: "test",
		InstanceIP:  "10.0.0.1",
		Logger:      zaptest.NewLogger(t),
	}
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(Config{InstanceIP: "10.0.0.1"})
	require.Error(t, err)

	cfg := testConfig(t)
	cfg.RemoteWriteURL = "://bad"
	_, err = NewManager(cfg)
	require.Error(t, err)
}

func TestMetricName(t *testing.T) {
	require.Equal(t, "x", metricName(Config{}, "x"))
	require.Equal(t, "ns_x", metricName(Config{Namespace: "ns"}, "x"))
	require.Equal(t, "sub_x", metricName(Config{Subsystem: "sub"}, "x"))
	require.Equal(t, "ns_sub_x", metricName(Config{Namespace: "ns", Subsystem: "sub"}, "x"))
}

func TestConvertToTimeSeries(t *testing.T) {
	cfg := testConfig(t)
	cfg.Subsystem = "load"
	cfg.Version = "v1"
	cfg.ExtraLabels = map[string]string{"zone": "a", "service": "overridden"}
	m := &manager{config: cfg}

	now := time.Unix(1700000000, 0)
	ts := m.convertToTimeSeries([]Metric{{
		Name:       "migrations_total",
		Value:      7,
		Labels:     map[string]string{"counter": "requests", "shard": "1"},
		MetricType: Counter,
		Timestamp:  now,
	}})
	require.Len(t, ts, 1)
	require.Equal(t, []promwrite.Label{
		{Name: "__name__", Value: "splitcounter_load_migrations_total"},
		{Name: "counter", Value: "requests"},
		{Name: "instance", Value: "10.0.0.1"},
		{Name: "service", Value: "test"},
		{Name: "shard", Value: "1"},
		{Name: "version", Value: "v1"},
		{Name: "zone", Value: "a"},
	}, ts[0].Labels)
	require.Equal(t, promwrite.Sample{Time: now, Value: 7}, ts[0].Sample)
}

func TestFlushPushesRemoteWrite(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method == http.MethodPost && len(body) > 0 {
			requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.RemoteWriteURL = srv.URL
	mgr, err := NewManager(cfg)
	require.NoError(t, err)

	// nothing to send yet
	require.NoError(t, mgr.Flush(context.Background()))
	require.Zero(t, requests.Load())

	mgr.RegisterCollector(staticCollector{{Name: "layouts", Value: 3, MetricType: Gauge, Timestamp: time.Now()}})
	require.NoError(t, mgr.Flush(context.Background()))
	require.Equal(t, int32(1), requests.Load())
}

func TestFlushReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.RemoteWriteURL = srv.URL
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	mgr.RegisterCollector(staticCollector{{Name: "layouts", Value: 3, MetricType: Gauge, Timestamp: time.Now()}})
	require.Error(t, mgr.Flush(context.Background()))

	noURL, err := NewManager(testConfig(t))
	require.NoError(t, err)
	require.Error(t, noURL.Flush(context.Background()))
}

func TestStartStop(t *testing.T) {
	mgr, err := NewManager(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, mgr.Start())
	mgr.Stop()

	cfg := testConfig(t)
	cfg.RemoteWriteURL = "http://127.0.0.1:1/api/v1/write"
	cfg.PushInterval = time.Hour
	mgr, err = NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.Start())
	mgr.Stop()
}
