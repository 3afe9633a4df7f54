package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "sqlpilot_schema_migrations"

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Up applies pending migrations in version order. steps <= 0 applies all of
// them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, item := range known {
		if applied[item.Version] {
			continue
		}
		if steps > 0 && done == steps {
			break
		}
		if err := runStep(ctx, db, item, true); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Down reverts the newest applied migrations. steps <= 0 reverts one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	steps = max(steps, 1)

	byVersion := make(map[int64]migration, len(known))
	for _, item := range known {
		byVersion[item.Version] = item
	}
	versions := slices.Sorted(maps.Keys(applied))
	slices.Reverse(versions)

	done := 0
	for _, version := range versions[:min(steps, len(versions))] {
		item, ok := byVersion[version]
		if !ok {
			return done, fmt.Errorf("applied migration %d is missing from source", version)
		}
		if err := runStep(ctx, db, item, false); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Status pairs every known migration with whether it has been applied.
type Status struct {
	Version int64  `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(known))
	for _, item := range known {
		out = append(out, Status{Version: item.Version, Name: item.Name, Applied: applied[item.Version]})
	}
	return out, nil
}

// prepare loads the migration sources and the set of versions already
// recorded in the bookkeeping table, creating the table on first use.
func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]migration, map[int64]bool, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	applied := map[int64]bool{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read applied versions: %w", err)
	}
	return known, applied, nil
}

// runStep executes one migration script and its bookkeeping row change in a
// single transaction.
func runStep(ctx context.Context, db *sql.DB, item migration, up bool) error {
	script, bookkeeping, verb := item.DownSQL, `DELETE FROM `+migrationTable+` WHERE version = $1`, "revert"
	if up {
		script, bookkeeping, verb = item.UpSQL, `INSERT INTO `+migrationTable+` (version) VALUES ($1)`, "apply"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s migration %06d_%s: begin: %w", verb, item.Version, item.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %06d_%s: %w", verb, item.Version, item.Name, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, item.Version); err != nil {
		return fmt.Errorf("%s migration %06d_%s: record version: %w", verb, item.Version, item.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s migration %06d_%s: commit: %w", verb, item.Version, item.Name, err)
	}
	return nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, entry := range entries {
		matches := migrationNamePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || matches == nil {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", entry.Name(), err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &migration{Version: version, Name: matches[2]}
			byVersion[version] = item
		} else if item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, item.Name, matches[2])
		}
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, version := range slices.Sorted(maps.Keys(byVersion)) {
		item := byVersion[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", version)
		}
		migrations = append(migrations, *item)
	}
	return migrations, nil
}
