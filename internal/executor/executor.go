package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

const DefaultRowLimit = 1000

var (
	limitClause    = regexp.MustCompile(`(?i)\bLIMIT\b`)
	// Clauses that must stay last, so LIMIT cannot simply be appended.
	trailingClause = regexp.MustCompile(`(?i)\b(?:FOR\s+(?:UPDATE|SHARE|NO\s+KEY\s+UPDATE|KEY\s+SHARE)|LOCK\s+IN\s+SHARE\s+MODE|OFFSET|FETCH\s+(?:FIRST|NEXT))\b`)
	quotedText     = regexp.MustCompile("'(?:[^']|'')*'|\"(?:[^\"]|\"\")*\"|`[^`]*`")
)

type Config struct {
	RowLimit         int
	StatementTimeout time.Duration
}

// Executor runs vetted statements against one target with a row ceiling.
type Executor struct {
	db       *sql.DB
	rowLimit int
	timeout  time.Duration
	logger   *slog.Logger
}

func New(target database.Target, cfg Config, logger *slog.Logger) *Executor {
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: target.DB, rowLimit: rowLimit, timeout: cfg.StatementTimeout, logger: logger}
}

// Request carries the statement and whether a human approved it. The
// executor classifies the statement itself and does not trust the caller's
// kind.
type Request struct {
	SQL      string
	Approved bool
}

// Execute never returns an error. Failures are reported through
// ExecutionResult.Error with Success false.
func (e *Executor) Execute(ctx context.Context, req Request) session.ExecutionResult {
	statement := stripTrailingSemicolons(req.SQL)
	if statement == "" {
		return failed(pipeline.ExecutionError(fmt.Errorf("sql is required")))
	}
	kind := sqlkind.Detect(statement)
	if kind == sqlkind.DDL {
		return failed(pipeline.SecurityViolation("DDL statements are never executed"))
	}
	if kind.IsMutation() && !req.Approved {
		return failed(pipeline.SecurityViolation(fmt.Sprintf("refusing to run unapproved %s statement", kind)))
	}
	if e.db == nil {
		return failed(pipeline.ExecutionError(fmt.Errorf("no database connection")))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	var result session.ExecutionResult
	if kind.IsMutation() {
		result = e.exec(ctx, statement)
	} else {
		result = e.query(ctx, e.withLimit(statement, kind))
	}
	elapsed := time.Since(start)
	result.ElapsedSeconds = elapsed.Seconds()
	observability.ObserveExecution(string(kind), elapsed)

	if !result.Success {
		e.logger.WarnContext(ctx, "statement failed", "kind", kind, "error", result.Error)
	}
	return result
}

func (e *Executor) exec(ctx context.Context, statement string) session.ExecutionResult {
	res, err := e.db.ExecContext(ctx, statement)
	if err != nil {
		return failed(pipeline.ExecutionError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return session.ExecutionResult{
		Success:      true,
		Columns:      []string{},
		Rows:         []map[string]any{},
		RowCount:     int(affected),
		RowsAffected: affected,
	}
}

func (e *Executor) query(ctx context.Context, statement string) session.ExecutionResult {
	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return failed(pipeline.ExecutionError(err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return failed(pipeline.ExecutionError(fmt.Errorf("query columns: %w", err)))
	}

	result := session.ExecutionResult{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if len(result.Rows) >= e.rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return failed(pipeline.ExecutionError(fmt.Errorf("scan row: %w", err)))
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return failed(pipeline.ExecutionError(fmt.Errorf("iterate rows: %w", err)))
	}
	result.Success = true
	result.RowCount = len(result.Rows)
	return result
}

// withLimit caps a select that has no top-level LIMIT of its own. The clause
// is appended so duplicate column names and ORDER BY reach the client as
// written; only a statement ending in a locking or OFFSET/FETCH clause is
// wrapped in a derived table.
func (e *Executor) withLimit(statement string, kind sqlkind.Kind) string {
	if kind != sqlkind.Select {
		return statement
	}
	top := topLevel(quotedText.ReplaceAllString(statement, "''"))
	if limitClause.MatchString(top) {
		return statement
	}
	if trailingClause.MatchString(top) {
		return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", statement, e.rowLimit)
	}
	return fmt.Sprintf("%s LIMIT %d", statement, e.rowLimit)
}

// topLevel keeps the text outside parentheses. Each parenthesized group
// becomes a single space.
func topLevel(statement string) string {
	var b strings.Builder
	depth := 0
	for _, r := range statement {
		switch {
		case r == '(':
			if depth == 0 {
				b.WriteByte(' ')
			}
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func failed(err error) session.ExecutionResult {
	return session.ExecutionResult{
		Success: false,
		Columns: []string{},
		Rows:    []map[string]any{},
		Error:   err.Error(),
	}
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
