package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database connection
	// ============================================
	DBConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_db_connections_open",
		Help: "Number of open database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject", "result"},
	)

	// ============================================
	// Batch ingestion
	// ============================================
	BatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_batches_created_total",
		Help: "Total number of batches registered and persisted",
	})

	NotesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_notes_created_total",
		Help: "Total number of notes created",
	})

	IngestionLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payroll_ingestion_lock_wait_seconds",
		Help:    "Time spent waiting for the batch ingestion lock",
		Buckets: prometheus.DefBuckets,
	})

	// ============================================
	// Claims
	// ============================================
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_claims_total",
			Help: "Claims by status transition (submitted, confirmed, failed, rejected)",
		},
		[]string{"status"},
	)

	ClaimCompensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_claim_compensations_total",
			Help: "Reservation cancellations issued by the coordinator",
		},
		[]string{"reason"},
	)

	ClaimPollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_claim_poll_attempts_total",
		Help: "Relayer status polls issued while confirming claims",
	})

	ClaimsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_claims_inflight",
		Help: "Claims with a confirmation task currently running in this process",
	})

	ClaimsAwaitingSettlement = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_claims_awaiting_settlement",
		Help: "Claims in submitted status across all instances",
	})

	// ============================================
	// External services
	// ============================================
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payroll_external_call_duration_seconds",
			Help:    "Duration of calls to ledger, prover and relayer",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "op"},
	)

	ExternalCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_external_call_errors_total",
			Help: "Failed calls to ledger, prover and relayer",
		},
		[]string{"service", "op"},
	)

	// ============================================
	// Balance
	// ============================================
	SignerBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payroll_signer_balance_wei",
			Help: "Native balance of the ledger transaction signer",
		},
		[]string{"address"},
	)
)

// ObserveExternal records one external call. Use as
// defer metrics.ObserveExternal("ledger", "reserve", time.Now(), &err).
func ObserveExternal(service, op string, start time.Time, errp *error) {
	ExternalCallDuration.WithLabelValues(service, op).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil {
		ExternalCallErrors.WithLabelValues(service, op).Inc()
	}
}
