package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlpilot/sqlpilot/internal/approval"
	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/maintenance"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/workflow"
)

type ReadinessCheck func(ctx context.Context) error

// Workflow is the slice of the orchestrator the HTTP surface drives.
type Workflow interface {
	Ask(ctx context.Context, req workflow.AskRequest) (workflow.Outcome, error)
	ListPending() []approval.Summary
	Decide(ctx context.Context, ticketID string, req workflow.DecideRequest) (workflow.DecideResult, error)
	Session(ctx context.Context, sessionID string) (session.State, error)
	ReloadSchema(target string) error
	TargetNames() []string
}

type MaintenanceRunner interface {
	RunExpiryOnce(ctx context.Context) (maintenance.ExpirySummary, error)
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
}

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	AuthMiddleware   func(http.Handler) http.Handler
	DependencyTimout time.Duration
	Workflow         Workflow
	Maintenance      MaintenanceRunner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	guarded := authGate(cfg, deps)
	approver := auth.RequireRole(cfg.Auth.ApproverRole)
	for _, rt := range protectedRoutes {
		handle := rt.handle
		var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
		if rt.approverOnly {
			h = approver(h)
		}
		mux.Handle(rt.pattern, guarded(h))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

type route struct {
	pattern      string
	approverOnly bool
	handle       func(Dependencies, http.ResponseWriter, *http.Request)
}

// protectedRoutes sit behind the auth middleware when auth is required.
var protectedRoutes = []route{
	{pattern: "POST /v1/sql/ask", handle: handleAsk},
	{pattern: "GET /v1/sql/approvals", handle: handleListApprovals},
	{pattern: "POST /v1/sql/approvals/{id}", approverOnly: true, handle: handleDecide},
	{pattern: "GET /v1/sql/sessions/{id}", handle: handleGetSession},
	{pattern: "GET /v1/targets", handle: handleListTargets},
	{pattern: "POST /v1/schema/reload", handle: handleSchemaReload},
	{pattern: "POST /v1/maintenance/expiry/run", approverOnly: true, handle: func(deps Dependencies, w http.ResponseWriter, r *http.Request) {
		runMaintenanceJob(deps, expiryJob, w, r)
	}},
	{pattern: "POST /v1/maintenance/retention/run", approverOnly: true, handle: func(deps Dependencies, w http.ResponseWriter, r *http.Request) {
		runMaintenanceJob(deps, retentionJob, w, r)
	}},
}

// authGate fails closed when auth is required but no middleware was wired.
func authGate(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	switch {
	case !cfg.Auth.Required:
		return func(next http.Handler) http.Handler { return next }
	case deps.AuthMiddleware != nil:
		return deps.AuthMiddleware
	}
	if deps.Logger != nil {
		deps.Logger.Error("auth required but auth middleware missing")
	}
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
}

func CheckTargetConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Target.DSN == "" {
			return errors.New("target dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
