package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "pgx"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]Dialect{
		"pgx":      DialectPostgres,
		"postgres": DialectPostgres,
		"mysql":    DialectMySQL,
		"sqlite":   DialectSQLite,
		"sqlite3":  DialectSQLite,
		"DuckDB":   DialectDuckDB,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil {
			t.Fatalf("DialectForDriver(%q) error = %v", driver, err)
		}
		if got != want {
			t.Fatalf("DialectForDriver(%q) = %q, want %q", driver, got, want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := DialectPostgres.QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("postgres QuoteIdent() = %s", got)
	}
	if got := DialectMySQL.QuoteIdent("orders"); got != "`orders`" {
		t.Fatalf("mysql QuoteIdent() = %s", got)
	}
}

func TestOpenTargetSQLite(t *testing.T) {
	target, err := OpenTarget(context.Background(), "local", Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "target.db"),
	})
	if err != nil {
		t.Fatalf("OpenTarget() error = %v", err)
	}
	defer func() { _ = target.DB.Close() }()
	if target.Dialect != DialectSQLite || target.Name != "local" {
		t.Fatalf("target = %+v", target)
	}
}

func TestTargetBoundAppliesQueryTimeout(t *testing.T) {
	ctx, cancel := Target{}.Bound(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("Bound() without QueryTimeout set a deadline")
	}

	ctx, cancel = Target{QueryTimeout: time.Minute}.Bound(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > time.Minute {
		t.Fatalf("Bound() deadline = %v, %v", deadline, ok)
	}
}
