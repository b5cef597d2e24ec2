package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pocket_ledger"

// ApplyDelta outcomes.
const (
	OutcomeApplied           = "applied"
	OutcomeReplayed          = "replayed"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeContention        = "contention"
	OutcomeRejected          = "rejected"
	OutcomeError             = "error"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// Ledger
	ApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_delta_total",
			Help:      "ApplyDelta calls by outcome",
		},
		[]string{"outcome"},
	)
	VersionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Versioned writes that lost a race",
		},
	)
	ApplyRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_retries_total",
			Help:      "ApplyDelta attempts after the first",
		},
	)
	WalletsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_created_total",
			Help:      "Wallets created",
		},
	)
	LockFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_lock_failures_total",
			Help:      "Per-user lock acquisitions that failed; the apply continued unlocked",
		},
		[]string{"backend"},
	)

	// Audit worker queue
	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Current audit worker queue depth",
		},
	)
	AuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit records dropped because the queue was full or stopped",
		},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestLatency,
			ApplyTotal,
			VersionConflicts,
			ApplyRetries,
			WalletsCreated,
			LockFailures,
			AuditQueueDepth,
			AuditDropped,
		)
	})
}
