package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Connections is the number of open peer connections.
	Connections prometheus.Gauge

	// ConnectionsInbound is the total number of accepted peer connections.
	ConnectionsInbound prometheus.Counter

	// ConnectionsOutbound is the total number of dialed peer connections.
	ConnectionsOutbound prometheus.Counter

	// ConnectionsClosed is the total number of closed peer connections,
	// labelled by reason.
	ConnectionsClosed *prometheus.CounterVec

	// DialFailures is the total number of failed attempts to resolve or
	// connect to a peer.
	DialFailures prometheus.Counter

	// MessagesInbound is the total number of messages received.
	MessagesInbound prometheus.Counter

	// MessagesOutbound is the total number of messages sent.
	MessagesOutbound prometheus.Counter

	// MalformedMessages is the total number of received messages that could
	// not be decoded.
	MalformedMessages prometheus.Counter

	// BytesInbound is the total number of frame bytes received.
	BytesInbound prometheus.Counter

	// BytesOutbound is the total number of frame bytes sent.
	BytesOutbound prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "connections",
				Help:      "Number of open peer connections",
			},
		),
		ConnectionsInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "connections_inbound_total",
				Help:      "Total number of accepted peer connections",
			},
		),
		ConnectionsOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "connections_outbound_total",
				Help:      "Total number of dialed peer connections",
			},
		),
		ConnectionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "connections_closed_total",
				Help:      "Total number of closed peer connections",
			},
			[]string{"reason"},
		),
		DialFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "dial_failures_total",
				Help:      "Total number of failed attempts to connect to a peer",
			},
		),
		MessagesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "messages_inbound_total",
				Help:      "Total number of messages received",
			},
		),
		MessagesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "messages_outbound_total",
				Help:      "Total number of messages sent",
			},
		),
		MalformedMessages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "malformed_messages_total",
				Help:      "Total number of received messages that could not be decoded",
			},
		),
		BytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "bytes_inbound_total",
				Help:      "Total number of frame bytes received",
			},
		),
		BytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshmaster",
				Subsystem: "gossip",
				Name:      "bytes_outbound_total",
				Help:      "Total number of frame bytes sent",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.Connections,
		m.ConnectionsInbound,
		m.ConnectionsOutbound,
		m.ConnectionsClosed,
		m.DialFailures,
		m.MessagesInbound,
		m.MessagesOutbound,
		m.MalformedMessages,
		m.BytesInbound,
		m.BytesOutbound,
	)
}
