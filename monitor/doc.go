// Package monitor reports what split counters are doing internally:
// shard migrations, compare-and-swap retries, dropped updates and live
// storage, together with Go runtime gauges.
//
// Metrics are pushed with Prometheus Remote Write and can also be scraped
// through an Exporter registered with a prometheus.Registerer. Counter cell
// values are never exported; read them with Counter.Aggregate.
//
// Basic usage:
//
//	config := monitor.Config{
//	  Namespace:      "splitcounter",
//	  ServiceName:    "ingest",
//	  RemoteWriteURL: "http://prometheus:9090/api/v1/write",
//	  PushInterval:   15 * time.Second,
//	}
//
//	if err := monitor.Init(config); err != nil {
//	  log.Fatal(err)
//	}
//	defer monitor.Shutdown()
//
//	monitor.Track("requests", counter)
//	prometheus.MustRegister(monitor.NewExporter(config, monitor.Global()))
package monitor
