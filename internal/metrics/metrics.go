// Package metrics provides Prometheus metrics for volt.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Power source ───────────────────────────────────────────────────────────

// Notifications counts OS power-status notifications received.
var Notifications = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "volt",
	Name:      "notifications_total",
	Help:      "Power-status-change notifications received.",
})

// Transitions counts observed power source changes by new state.
var Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "volt",
	Name:      "transitions_total",
	Help:      "Power source transitions by target state.",
}, []string{"state"})

// PowerState is 1 on AC, 0 on battery and -1 before the first reading.
var PowerState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "volt",
	Name:      "power_state",
	Help:      "Observed power source (1 = AC, 0 = battery, -1 = unknown).",
})

// ─── Plans ──────────────────────────────────────────────────────────────────

// Activations counts plan activations by origin and result.
var Activations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "volt",
	Name:      "activations_total",
	Help:      "Plan activations by origin (transition, user, startup) and result.",
}, []string{"origin", "result"})

// ActivationLatency tracks how long the switch command takes.
var ActivationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "volt",
	Name:      "activation_latency_seconds",
	Help:      "Duration of the plan switch command.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})

// PreferenceWrites counts preference file writes by result.
var PreferenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "volt",
	Name:      "preference_writes_total",
	Help:      "Preference updates by result.",
}, []string{"result"})

// ─── Status feed ────────────────────────────────────────────────────────────

// FeedClients tracks connected status-feed websocket clients.
var FeedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "volt",
	Name:      "feed_clients",
	Help:      "Connected status feed clients.",
})

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
