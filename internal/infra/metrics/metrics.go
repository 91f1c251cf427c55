// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IntentTransitions counts membership intent transitions by target state and failure reason.
var IntentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forumcore",
	Subsystem: "membership",
	Name:      "intent_transitions_total",
	Help:      "Total membership intent transitions by resulting state and reason.",
}, []string{"state", "reason"})

var ReconcileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forumcore",
	Subsystem: "membership",
	Name:      "reconcile_attempts_total",
	Help:      "Total entitlement reconciliation attempts by outcome.",
}, []string{"outcome"})

// ReconciliationsPending is set by the reconcile job after each sweep.
var ReconciliationsPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "forumcore",
	Subsystem: "membership",
	Name:      "reconciliations_pending",
	Help:      "Captured payments whose entitlement has not been recorded yet.",
})

var GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "forumcore",
	Subsystem: "gateway",
	Name:      "request_seconds",
	Help:      "Payment gateway call latency by operation.",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

var ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forumcore",
	Subsystem: "moderation",
	Name:      "actions_total",
	Help:      "Total moderation actions by action and outcome.",
}, []string{"action", "outcome"})

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
