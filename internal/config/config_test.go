package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("sqlpilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Auth.ApproverRole != "approver" {
		t.Fatalf("Auth.ApproverRole = %q", cfg.Auth.ApproverRole)
	}
	if cfg.Target.Driver != "pgx" {
		t.Fatalf("Target.Driver = %q", cfg.Target.Driver)
	}
	if cfg.Target.MaxOpenConns != 15 || cfg.Target.MaxIdleConns != 5 {
		t.Fatalf("Target pool = %d/%d", cfg.Target.MaxOpenConns, cfg.Target.MaxIdleConns)
	}
	if cfg.Target.ConnMaxLifetime != time.Hour {
		t.Fatalf("Target.ConnMaxLifetime = %s", cfg.Target.ConnMaxLifetime)
	}
	if cfg.SessionStore.Kind != "memory" {
		t.Fatalf("SessionStore.Kind = %q", cfg.SessionStore.Kind)
	}
	if cfg.Workflow.MaxRetries != 3 {
		t.Fatalf("Workflow.MaxRetries = %d", cfg.Workflow.MaxRetries)
	}
	if cfg.Workflow.RowLimit != 1000 {
		t.Fatalf("Workflow.RowLimit = %d", cfg.Workflow.RowLimit)
	}
	if cfg.Workflow.ApprovalTTL != 24*time.Hour {
		t.Fatalf("Workflow.ApprovalTTL = %s", cfg.Workflow.ApprovalTTL)
	}
	if cfg.Workflow.ArchiveRetention != 720*time.Hour {
		t.Fatalf("Workflow.ArchiveRetention = %s", cfg.Workflow.ArchiveRetention)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.ClassifierEnabled {
		t.Fatal("AI.ClassifierEnabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"SQLPILOT_PROFILE": "prod"})
	cfg, err := Load("sqlpilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadTestProfileDisablesAuditLog(t *testing.T) {
	cfg, err := Load("sqlpilot-api", mapLookup(map[string]string{"SQLPILOT_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workflow.AuditDir != "" {
		t.Fatalf("Workflow.AuditDir = %q", cfg.Workflow.AuditDir)
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"SQLPILOT_PROFILE":                    "test",
		"SQLPILOT_HTTP_ADDR":                  ":9999",
		"SQLPILOT_HTTP_READ_TIMEOUT":          "2s",
		"SQLPILOT_LOG_LEVEL":                  "error",
		"SQLPILOT_AUTH_REQUIRED":              "true",
		"SQLPILOT_AUTH_STATIC_KEYS":           "k1:t1:asker|approver",
		"SQLPILOT_AUTH_APPROVER_ROLE":         "dba",
		"SQLPILOT_SERVICE_NAME":               "sqlpilot-custom",
		"SQLPILOT_TARGET_NAME":                "analytics",
		"SQLPILOT_TARGET_DRIVER":              "sqlite",
		"SQLPILOT_TARGET_DSN":                 "file:/tmp/a.db",
		"SQLPILOT_TARGET_MAX_OPEN_CONNS":      "4",
		"SQLPILOT_TARGET_STATEMENT_TIMEOUT":   "7s",
		"SQLPILOT_SESSION_STORE":              "postgres",
		"SQLPILOT_SESSION_STORE_DSN":          "postgres://sessions",
		"SQLPILOT_OBJECTSTORE_BUCKET":         "results",
		"SQLPILOT_OBJECTSTORE_USE_SSL":        "true",
		"SQLPILOT_AI_PROVIDER":                "openai",
		"SQLPILOT_AI_BASE_URL":                "https://api.example.com",
		"SQLPILOT_AI_API_KEY":                 "secret-key",
		"SQLPILOT_AI_MODEL":                   "gpt-4.1",
		"SQLPILOT_AI_TEMPERATURE":             "0.3",
		"SQLPILOT_AI_TIMEOUT":                 "21s",
		"SQLPILOT_AI_CLASSIFIER_ENABLED":      "true",
		"SQLPILOT_WORKFLOW_MAX_RETRIES":       "5",
		"SQLPILOT_WORKFLOW_ROW_LIMIT":         "250",
		"SQLPILOT_WORKFLOW_APPROVAL_TTL":      "90m",
		"SQLPILOT_WORKFLOW_SWEEP_INTERVAL":    "15s",
		"SQLPILOT_WORKFLOW_SCHEMA_CACHE_SIZE": "16",
		"SQLPILOT_WORKFLOW_AUDIT_DIR":         "/var/log/sqlpilot",
		"SQLPILOT_WORKFLOW_ARCHIVE_RESULTS":   "true",
		"SQLPILOT_WORKFLOW_ARCHIVE_RETENTION": "48h",
	})
	cfg, err := Load("sqlpilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "sqlpilot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.ApproverRole != "dba" {
		t.Fatalf("Auth.ApproverRole = %q", cfg.Auth.ApproverRole)
	}
	if cfg.Target.Name != "analytics" || cfg.Target.Driver != "sqlite" || cfg.Target.DSN != "file:/tmp/a.db" {
		t.Fatalf("Target = %+v", cfg.Target)
	}
	if cfg.Target.MaxOpenConns != 4 {
		t.Fatalf("Target.MaxOpenConns = %d", cfg.Target.MaxOpenConns)
	}
	if cfg.Target.StatementTimeout != 7*time.Second {
		t.Fatalf("Target.StatementTimeout = %s", cfg.Target.StatementTimeout)
	}
	if cfg.SessionStore.Kind != "postgres" || cfg.SessionStore.DSN != "postgres://sessions" {
		t.Fatalf("SessionStore = %+v", cfg.SessionStore)
	}
	if cfg.ObjectStore.Bucket != "results" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-4.1" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if !cfg.AI.ClassifierEnabled {
		t.Fatal("AI.ClassifierEnabled = false, want true")
	}
	if cfg.Workflow.MaxRetries != 5 || cfg.Workflow.RowLimit != 250 {
		t.Fatalf("Workflow = %+v", cfg.Workflow)
	}
	if cfg.Workflow.ApprovalTTL != 90*time.Minute {
		t.Fatalf("Workflow.ApprovalTTL = %s", cfg.Workflow.ApprovalTTL)
	}
	if cfg.Workflow.SweepInterval != 15*time.Second {
		t.Fatalf("Workflow.SweepInterval = %s", cfg.Workflow.SweepInterval)
	}
	if cfg.Workflow.SchemaCacheSize != 16 {
		t.Fatalf("Workflow.SchemaCacheSize = %d", cfg.Workflow.SchemaCacheSize)
	}
	if cfg.Workflow.AuditDir != "/var/log/sqlpilot" {
		t.Fatalf("Workflow.AuditDir = %q", cfg.Workflow.AuditDir)
	}
	if !cfg.Workflow.ArchiveResults {
		t.Fatal("Workflow.ArchiveResults = false, want true")
	}
	if cfg.Workflow.ArchiveRetention != 48*time.Hour {
		t.Fatalf("Workflow.ArchiveRetention = %s", cfg.Workflow.ArchiveRetention)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"SQLPILOT_PROFILE": "oops"},
		{"SQLPILOT_HTTP_READ_TIMEOUT": "NaN"},
		{"SQLPILOT_TARGET_MAX_OPEN_CONNS": "oops"},
		{"SQLPILOT_TARGET_DRIVER": "oracle"},
		{"SQLPILOT_SESSION_STORE": "redis"},
		{"SQLPILOT_SESSION_STORE": "postgres"},
		{"SQLPILOT_WORKFLOW_MAX_RETRIES": "-1"},
		{"SQLPILOT_WORKFLOW_ROW_LIMIT": "0"},
		{"SQLPILOT_WORKFLOW_APPROVAL_TTL": "0s"},
		{"SQLPILOT_WORKFLOW_ARCHIVE_RETENTION": "-1h"},
		{"SQLPILOT_AI_TEMPERATURE": "bad"},
		{"SQLPILOT_AUTH_REQUIRED": "not-bool"},
		{"SQLPILOT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("sqlpilot-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
