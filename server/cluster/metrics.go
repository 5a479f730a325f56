package cluster

import "github.com/prometheus/client_golang/prometheus"

type RegistryMetrics struct {
	// Topics is the number of topics with at least one local publisher.
	Topics prometheus.Gauge

	// Publishers is the number of registered local publishers.
	Publishers prometheus.Gauge
}

func newRegistryMetrics() *RegistryMetrics {
	return &RegistryMetrics{
		Topics: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshmaster",
				Subsystem: "registry",
				Name:      "topics",
				Help:      "Number of topics with a local publisher",
			},
		),
		Publishers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshmaster",
				Subsystem: "registry",
				Name:      "publishers",
				Help:      "Number of registered local publishers",
			},
		),
	}
}

func (m *RegistryMetrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.Topics,
		m.Publishers,
	)
}

type DirectoryMetrics struct {
	// Peers is the number of remote peers in the directory.
	Peers prometheus.Gauge

	// Merges is the number of received peer updates, labelled by whether
	// the update was applied or rejected as stale.
	Merges *prometheus.CounterVec

	// Evictions is the number of peers removed from the directory.
	Evictions prometheus.Counter
}

func newDirectoryMetrics() *DirectoryMetrics {
	return &DirectoryMetrics{
		Peers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshmaster",
				Subsystem: "directory",
				Name:      "peers",
				Help:      "Number of remote peers in the directory",
			},
		),
		Merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "directory",
				Name:      "merges_total",
				Help:      "Number of received peer updates",
			},
			[]string{"result"},
		),
		Evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "directory",
				Name:      "evictions_total",
				Help:      "Number of peers evicted from the directory",
			},
		),
	}
}

func (m *DirectoryMetrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.Peers,
		m.Merges,
		m.Evictions,
	)
}
