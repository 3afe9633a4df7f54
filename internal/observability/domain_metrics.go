package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_asks_total",
			Help: "Total number of natural-language requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
	selfCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_self_corrections_total",
			Help: "Total number of self-correction attempts, split by whether the statement changed.",
		},
		[]string{"progressed"},
	)
	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_validation_failures_total",
			Help: "Total number of failed validations by reason.",
		},
		[]string{"reason"},
	)
	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_approvals_total",
			Help: "Total number of approval tickets resolved by action.",
		},
		[]string{"action"},
	)
	pendingApprovals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlpilot_pending_approvals",
			Help: "Current count of approval tickets awaiting a decision.",
		},
	)
	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlpilot_execution_duration_seconds",
			Help:    "Statement execution latency against the target database.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		asksTotal,
		selfCorrectionsTotal,
		validationFailuresTotal,
		approvalsTotal,
		pendingApprovals,
		executionDurationSeconds,
	)
}

func ObserveAsk(outcome string) {
	asksTotal.WithLabelValues(outcome).Inc()
}

func ObserveSelfCorrection(progressed bool) {
	selfCorrectionsTotal.WithLabelValues(strconv.FormatBool(progressed)).Inc()
}

func ObserveValidationFailure(reason string) {
	validationFailuresTotal.WithLabelValues(reason).Inc()
}

func ObserveApproval(action string) {
	approvalsTotal.WithLabelValues(action).Inc()
}

func SetPendingApprovals(count int) {
	if count < 0 {
		count = 0
	}
	pendingApprovals.Set(float64(count))
}

func ObserveExecution(kind string, elapsed time.Duration) {
	executionDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}
