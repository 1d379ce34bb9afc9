package swarm

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics mirrors the teacher's storage/prometheus.go: a handful of
// package-scoped gauges/counters registered once and updated inline by
// the operations that change them.
type storeMetrics struct {
	records  prometheus.Gauge
	hosts    prometheus.Gauge
	rejected prometheus.Counter
}

var metricsOnce = struct {
	records  prometheus.Gauge
	hosts    prometheus.Gauge
	rejected prometheus.Counter
}{
	records: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_registry_records",
		Help: "Current number of non-tombstone records in the registry.",
	}),
	hosts: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_registry_hosts",
		Help: "Current number of distinct hosts known to the registry.",
	}),
	rejected: prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_registry_store_rejected_total",
		Help: "Number of Store calls rejected because the registry was at capacity.",
	}),
}

func init() {
	prometheus.MustRegister(metricsOnce.records, metricsOnce.hosts, metricsOnce.rejected)
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		records:  metricsOnce.records,
		hosts:    metricsOnce.hosts,
		rejected: metricsOnce.rejected,
	}
}
