// Package metrics provides Prometheus instrumentation for the signaling
// relay. It exposes gauges for connection, queue, and pairing counts, and
// counters for relayed messages and moderation actions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of live WebSocket connections",
	})

	// WaitingTotal tracks the current number of identities in the matchmaking queue.
	WaitingTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_waiting_total",
		Help: "Current number of identities waiting for a partner",
	})

	// ActivePairs tracks the current number of active pairings.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_pairs",
		Help: "Current number of active pairings",
	})

	// RelayedTotal counts relayed messages, labeled by kind: "signal" or "chat".
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_relayed_total",
		Help: "Total number of messages relayed between paired peers",
	}, []string{"kind"})

	// RejectedConnectsTotal counts rejected connection attempts, labeled by
	// reason: "banned" or "country_blocked".
	RejectedConnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_rejected_connects_total",
		Help: "Total number of rejected connection attempts",
	}, []string{"reason"})

	// BansTotal counts issued bans, labeled by origin: "manual" or "auto".
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bans_total",
		Help: "Total number of bans issued",
	}, []string{"origin"})

	// ReportsTotal counts accepted abuse reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_reports_total",
		Help: "Total number of accepted abuse reports",
	})

	// SnapshotDuration records the time spent building and pushing admin snapshots.
	SnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_snapshot_duration_seconds",
		Help:    "Time spent building and pushing admin snapshots",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingTotal,
		ActivePairs,
		RelayedTotal,
		RejectedConnectsTotal,
		BansTotal,
		ReportsTotal,
		SnapshotDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
