package docsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docsync_reconnect_attempts_total",
		Help: "Scheduled realtime reconnect attempts that fired.",
	})

	metricReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_reconcile_runs_total",
		Help: "Reconciliation ticks by outcome.",
	}, []string{"result"})

	metricActiveTier = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docsync_active_tier",
		Help: "Currently authoritative sync tier (1 for the active tier).",
	}, []string{"tier"})

	metricBootstrapApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docsync_bootstrap_applied_total",
		Help: "Persisted snapshots applied into fresh shared documents.",
	})
)
