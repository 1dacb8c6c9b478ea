package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Payment event metrics
	PaymentEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_payment_events_total",
			Help: "Total number of payment events by type and result",
		},
		[]string{"type", "result"},
	)

	CapacityConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registrar_capacity_conflicts_total",
			Help: "Confirmed payments that could not be fulfilled against remaining capacity",
		},
	)

	RefundRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_refund_requests_total",
			Help: "Outbound refund requests by result",
		},
		[]string{"result"},
	)

	// Seat ledger metrics
	SeatCASConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registrar_seat_cas_conflicts_total",
			Help: "Seat-count compare-and-swap attempts lost to a concurrent writer",
		},
	)

	// Reconciliation metrics
	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registrar_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles run",
		},
	)

	ReconcilePatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_reconcile_patches_total",
			Help: "Published Listing mutations by operation",
		},
		[]string{"op"},
	)

	// Waitlist metrics
	WaitlistNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_waitlist_notifications_total",
			Help: "Waitlist notifications by result",
		},
		[]string{"result"},
	)

	// Job metrics
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_job_runs_total",
			Help: "Periodic job runs by job and result",
		},
		[]string{"job", "result"},
	)

	JobsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_jobs_skipped_total",
			Help: "Periodic job runs skipped because the previous run was still in progress",
		},
		[]string{"job"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registrar_job_duration_seconds",
			Help:    "Periodic job cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(PaymentEventsTotal)
	prometheus.MustRegister(CapacityConflictsTotal)
	prometheus.MustRegister(RefundRequestsTotal)
	prometheus.MustRegister(SeatCASConflictsTotal)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcilePatchesTotal)
	prometheus.MustRegister(WaitlistNotificationsTotal)
	prometheus.MustRegister(JobRunsTotal)
	prometheus.MustRegister(JobsSkippedTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
