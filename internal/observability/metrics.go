package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outage_reports"

// Metrics holds the Prometheus counters and gauges for the report store and registry.
type Metrics struct {
	StoreOperations  *prometheus.CounterVec // labels: op={read,upsert,delete}, outcome={success,error,corrupted}
	RegistryMutation *prometheus.CounterVec // labels: op={add,update,remove}, outcome={success,error}
	RegistryRecords  prometheus.Gauge
	AddressLookups   *prometheus.CounterVec // labels: result={hit,miss,not_found,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StoreOperations,
		m.RegistryMutation,
		m.RegistryRecords,
		m.AddressLookups,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Persistence store operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		RegistryMutation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_mutations_total",
			Help:      "Registry mutations by kind and outcome.",
		}, []string{"op", "outcome"}),
		RegistryRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_records",
			Help:      "Number of incident records currently held in memory.",
		}),
		AddressLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_lookups_total",
			Help:      "Postal code lookups by result.",
		}, []string{"result"}),
	}
}
