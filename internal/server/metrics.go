// Package server exposes Prometheus metrics for the board session.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "syncboard"

// Reasons an inbound frame was dropped, used as the "reason" label.
const (
	dropInvalidJSON    = "invalid_json"
	dropUnknownType    = "unknown_type"
	dropMissingID      = "missing_id"
	dropInvalidMessage = "invalid_message"
	dropRejected       = "rejected"
	dropRateLimited    = "rate_limited"
)

// Metrics holds the board's Prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	MessagesLive      prometheus.Gauge
	MessagesAppended  *prometheus.CounterVec
	EventsBroadcast   *prometheus.CounterVec
	PeersDropped      prometheus.Counter
	InboundDropped    *prometheus.CounterVec
	BlobsStored       prometheus.Gauge
	BlobBytes         prometheus.Gauge
	BlobsEvicted      prometheus.Counter
	Uploads           prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them with registry. A nil
// registry gets a private one, which keeps tests independent.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of registered WebSocket clients",
		}),
		MessagesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "messages_live",
			Help:      "Number of messages currently in the log",
		}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to the log by kind",
		}, []string{"kind"}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_broadcast_total",
			Help:      "Events fanned out to clients by type",
		}, []string{"type"}),
		PeersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "peers_dropped_total",
			Help:      "Clients removed because a delivery failed",
		}),
		InboundDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound frames dropped without effect by reason",
		}, []string{"reason"}),
		BlobsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "files",
			Name:      "blobs_stored",
			Help:      "Number of uploaded files held in memory",
		}),
		BlobBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "files",
			Name:      "blob_bytes",
			Help:      "Total size of uploaded files held in memory",
		}),
		BlobsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "files",
			Name:      "blobs_evicted_total",
			Help:      "Uploaded files removed by the TTL sweep",
		}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "files",
			Name:      "uploads_total",
			Help:      "Files accepted by the upload endpoint",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.ConnectionsActive,
		m.MessagesLive,
		m.MessagesAppended,
		m.EventsBroadcast,
		m.PeersDropped,
		m.InboundDropped,
		m.BlobsStored,
		m.BlobBytes,
		m.BlobsEvicted,
		m.Uploads,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
