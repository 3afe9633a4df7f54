package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_maintenance_runs_total",
			Help: "Total number of maintenance sweeps by task and status.",
		},
		[]string{"task", "status"},
	)
	ticketsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_approval_tickets_expired_total",
			Help: "Total number of approval tickets auto-rejected after their deadline.",
		},
	)
	archivesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_archive_objects_deleted_total",
			Help: "Total number of archived result sets removed by retention.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		ticketsExpiredTotal,
		archivesDeletedTotal,
	)
}
