// Package metrics exposes prometheus collectors for websocket connections
// and the subscriptions running on them. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graphql_ws"

type Metrics struct {
	ConnectionsActive   *prometheus.GaugeVec
	ConnectionsTotal    *prometheus.CounterVec
	MessagesReceived    *prometheus.CounterVec
	MessagesSent        *prometheus.CounterVec
	MessagesDropped     *prometheus.CounterVec
	SubscriptionsActive *prometheus.GaugeVec
	ProtocolErrors      *prometheus.CounterVec
	CloseCodes          *prometheus.CounterVec
}

// New creates the collectors without registering them
func New() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connections",
				Name:      "active",
				Help:      "Number of open websocket connections",
			},
			[]string{"subprotocol"},
		),

		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connections",
				Name:      "total",
				Help:      "Total number of accepted websocket connections",
			},
			[]string{"subprotocol"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of protocol messages received",
			},
			[]string{"subprotocol", "type"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total number of protocol messages sent",
			},
			[]string{"subprotocol", "type"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Total number of inbound frames that could not be decoded",
			},
			[]string{"subprotocol", "reason"},
		),

		SubscriptionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscriptions",
				Name:      "active",
				Help:      "Number of running operations",
			},
			[]string{"subprotocol"},
		),

		ProtocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "errors_total",
				Help:      "Total number of error messages sent to clients",
			},
			[]string{"subprotocol"},
		),

		CloseCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connections",
				Name:      "closed_total",
				Help:      "Total number of server initiated closes by code",
			},
			[]string{"subprotocol", "code"},
		),
	}
}

// Register registers all collectors with r
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all collectors with r and panics on failure
func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.collectors()...)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.MessagesReceived,
		m.MessagesSent,
		m.MessagesDropped,
		m.SubscriptionsActive,
		m.ProtocolErrors,
		m.CloseCodes,
	}
}

func (m *Metrics) ConnectionOpened(subprotocol string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(subprotocol).Inc()
	m.ConnectionsTotal.WithLabelValues(subprotocol).Inc()
}

func (m *Metrics) ConnectionClosed(subprotocol string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(subprotocol).Dec()
}

func (m *Metrics) MessageReceived(subprotocol, messageType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(subprotocol, messageType).Inc()
}

func (m *Metrics) MessageSent(subprotocol, messageType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(subprotocol, messageType).Inc()
}

func (m *Metrics) MessageDropped(subprotocol, reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(subprotocol, reason).Inc()
}

func (m *Metrics) SubscriptionStarted(subprotocol string) {
	if m == nil {
		return
	}
	m.SubscriptionsActive.WithLabelValues(subprotocol).Inc()
}

func (m *Metrics) SubscriptionEnded(subprotocol string) {
	if m == nil {
		return
	}
	m.SubscriptionsActive.WithLabelValues(subprotocol).Dec()
}

func (m *Metrics) ProtocolError(subprotocol string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(subprotocol).Inc()
}

func (m *Metrics) Closed(subprotocol, code string) {
	if m == nil {
		return
	}
	m.CloseCodes.WithLabelValues(subprotocol, code).Inc()
}
