package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

// DialectForDriver maps a database/sql driver name to the SQL dialect it speaks.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "duckdb":
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) String() string {
	return string(d)
}

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Target is an explicit handle on one queryable database. Workflows receive
// targets by value; nothing in the process holds a global connection.
type Target struct {
	Name    string
	DB      *sql.DB
	Dialect Dialect

	// QueryTimeout bounds the metadata and planning queries run against the
	// target. Zero leaves the caller's context alone.
	QueryTimeout time.Duration
}

// Bound derives a context limited by QueryTimeout.
func (t Target) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.QueryTimeout)
}

func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	if cfg.DSN == "" {
		return nil, "", fmt.Errorf("database dsn is required")
	}
	dialect, err := DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driverName(dialect), cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open %s db: %w", dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s db: %w", dialect, err)
	}

	return db, dialect, nil
}

func OpenTarget(ctx context.Context, name string, cfg Config) (Target, error) {
	db, dialect, err := Open(ctx, cfg)
	if err != nil {
		return Target{}, err
	}
	return Target{Name: name, DB: db, Dialect: dialect}, nil
}

func driverName(dialect Dialect) string {
	switch dialect {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "duckdb"
	}
}
