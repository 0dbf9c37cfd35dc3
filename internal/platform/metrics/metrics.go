// Package metrics Prometheus 指標
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupchat"

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted, by kind (user, system, shared).",
		},
		[]string{"kind"},
	)

	MessagesDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Soft-deleted messages, by deleter role.",
		},
		[]string{"by"},
	)

	Reactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reaction operations (add, replace, noop, remove).",
		},
		[]string{"op"},
	)

	RealtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime events published, by event and result.",
		},
		[]string{"event", "result"},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open websocket sessions on this instance.",
		},
	)

	RealtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_sessions_total",
			Help:      "Sessions dropped because their send buffer was full.",
		},
	)

	EnrichmentFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Degraded read enrichment steps.",
		},
		[]string{"step"},
	)

	ReconcileRewritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_rewritten_total",
			Help:      "Dangling user references rewritten to the sentinel user.",
		},
		[]string{"target"},
	)

	ReconcileFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Reconciliation targets that failed during a pass.",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		MessagesDeleted,
		Reactions,
		RealtimeEvents,
		RealtimeConnections,
		RealtimeDropped,
		EnrichmentFailures,
		ReconcileRewritten,
		ReconcileFailures,
	)
}

// Handler /metrics 端點
func Handler() http.Handler {
	return promhttp.Handler()
}
