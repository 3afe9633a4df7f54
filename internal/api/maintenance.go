package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type maintenanceJob struct {
	name        string
	failureCode string
	run         func(context.Context, MaintenanceRunner) (any, error)
}

var (
	expiryJob = maintenanceJob{
		name:        "approval_expiry",
		failureCode: "EXPIRY_FAILED",
		run: func(ctx context.Context, m MaintenanceRunner) (any, error) {
			return m.RunExpiryOnce(ctx)
		},
	}
	retentionJob = maintenanceJob{
		name:        "archive_retention",
		failureCode: "RETENTION_FAILED",
		run: func(ctx context.Context, m MaintenanceRunner) (any, error) {
			return m.RunRetentionOnce(ctx)
		},
	}
)

// runMaintenanceJob triggers one pass of job outside its ticker schedule.
// Failures still return the partial summary so operators can see how far the
// pass got.
func runMaintenanceJob(deps Dependencies, job maintenanceJob, w http.ResponseWriter, r *http.Request) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MAINTENANCE_NOT_CONFIGURED", "maintenance service is not configured", false, nil)
		return
	}

	started := time.Now()
	summary, err := job.run(r.Context(), deps.Maintenance)
	elapsed := time.Since(started)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.LogAttrs(r.Context(), slog.LevelError, "manual maintenance run failed",
				slog.String("job", job.name),
				slog.Duration("duration", elapsed),
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, job.failureCode, job.name+" run failed", true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job":         job.name,
		"status":      "completed",
		"duration_ms": elapsed.Milliseconds(),
		"summary":     summary,
	})
}
