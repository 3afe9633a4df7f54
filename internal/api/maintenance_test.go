package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/maintenance"
)

func TestExpiryRunEndpointRequiresApproverRole(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{
		"SQLPILOT_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("asker:alice:asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	runner := &fakeMaintenanceRunner{}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Maintenance:    runner,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/maintenance/expiry/run", nil)
	req.Header.Set("X-API-Key", "asker")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if runner.expiryCalls != 0 {
		t.Fatalf("expiry calls = %d", runner.expiryCalls)
	}
}

func TestExpiryRunEndpointReturnsSummary(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{
		"SQLPILOT_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("ops:bob:approver")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	runner := &fakeMaintenanceRunner{
		expirySummary: maintenance.ExpirySummary{TicketsExpired: 2, StillPending: 1},
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Maintenance:    runner,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/maintenance/expiry/run", nil)
	req.Header.Set("X-API-Key", "ops")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if runner.expiryCalls != 1 {
		t.Fatalf("expiry calls = %d", runner.expiryCalls)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["status"] != "completed" || body["job"] != "approval_expiry" {
		t.Fatalf("body = %v", body)
	}
	summary, ok := body["summary"].(map[string]any)
	if !ok || summary["tickets_expired"] != float64(2) {
		t.Fatalf("summary = %v", body["summary"])
	}
}

func TestRetentionRunEndpointNotConfigured(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/maintenance/retention/run", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestRetentionRunEndpointReportsFailure(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	runner := &fakeMaintenanceRunner{
		retentionSummary: maintenance.RetentionSummary{TargetsScanned: 1, Failures: 1},
		retentionErr:     errors.New("list denied"),
	}

	h := NewHandler(cfg, Dependencies{Maintenance: runner})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/maintenance/retention/run", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "RETENTION_FAILED" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

type fakeMaintenanceRunner struct {
	expirySummary    maintenance.ExpirySummary
	expiryErr        error
	retentionSummary maintenance.RetentionSummary
	retentionErr     error
	expiryCalls      int
	retentionCalls   int
}

func (f *fakeMaintenanceRunner) RunExpiryOnce(context.Context) (maintenance.ExpirySummary, error) {
	f.expiryCalls++
	return f.expirySummary, f.expiryErr
}

func (f *fakeMaintenanceRunner) RunRetentionOnce(context.Context) (maintenance.RetentionSummary, error) {
	f.retentionCalls++
	return f.retentionSummary, f.retentionErr
}
