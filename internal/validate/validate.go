package validate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

const (
	MaxCost     = 1000
	DefaultCost = 50
)

// Validator checks a candidate statement against one target database.
type Validator struct {
	db      *sql.DB
	dialect database.Dialect
	bound   func(context.Context) (context.Context, context.CancelFunc)
	logger  *slog.Logger
}

func New(target database.Target, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{db: target.DB, dialect: target.Dialect, bound: target.Bound, logger: logger}
}

// Validate runs the checks in order: emptiness, kind consistency, security
// scan, EXPLAIN syntax check, cost estimate, approval determination. Only an empty
// statement stops validation early. Statements blocked by the security scan
// are never sent to the database.
func (v *Validator) Validate(ctx context.Context, statement string, declared sqlkind.Kind, metadata schema.Metadata) session.ValidationResult {
	result := session.ValidationResult{
		Errors:        []string{},
		Warnings:      []string{},
		EstimatedCost: DefaultCost,
	}

	statement = strings.TrimSpace(statement)
	if statement == "" {
		result.Errors = append(result.Errors, "SQL statement is empty")
		return result
	}

	detected := sqlkind.Detect(statement)
	if declared != "" && declared != detected {
		result.Warnings = append(result.Warnings, fmt.Sprintf("declared kind %s does not match detected kind %s", declared, detected))
	}

	for _, violation := range securityViolations(statement, detected) {
		result.Errors = append(result.Errors, pipeline.SecurityViolation(violation).Error())
		result.Blocked = true
	}

	if !metadata.Empty() {
		for _, table := range referencedTables(statement) {
			if !metadata.HasTable(table) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("table %s is not in the schema snapshot", table))
			}
		}
	}

	if !result.Blocked {
		planRows, err := v.explain(ctx, statement)
		if err != nil {
			result.Errors = append(result.Errors, pipeline.SyntaxError(err).Error())
		} else {
			result.EstimatedCost = estimateCost(planRows, statement)
		}
	}

	if detected.IsMutation() {
		result.RequiresApproval = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s statements change data and require human approval", detected))
	}

	result.IsValid = len(result.Errors) == 0
	if !result.IsValid {
		v.logger.DebugContext(ctx, "sql validation failed", "kind", detected, "errors", result.Errors)
	}
	return result
}

func securityViolations(statement string, kind sqlkind.Kind) []string {
	violations := make([]string, 0)
	bare := stripLiterals(statement)
	for _, rule := range denyRules {
		if rule.pattern.MatchString(bare) {
			violations = append(violations, "statement matches "+rule.name)
		}
	}
	if kind == sqlkind.DDL {
		violations = append(violations, "DDL statements are not allowed")
	}
	if stackedStmt.MatchString(bare) {
		violations = append(violations, "multiple statements are not allowed")
	}
	if systemCatalog.MatchString(bare) {
		violations = append(violations, "system catalogs may not be referenced")
	}
	return violations
}

// explain asks the database to plan the statement without running it and
// returns the number of plan rows.
func (v *Validator) explain(ctx context.Context, statement string) (int, error) {
	if v.db == nil {
		return 0, fmt.Errorf("no database connection")
	}
	prefix := "EXPLAIN "
	if v.dialect == database.DialectSQLite {
		prefix = "EXPLAIN QUERY PLAN "
	}
	ctx, cancel := v.bound(ctx)
	defer cancel()
	rows, err := v.db.QueryContext(ctx, prefix+strings.TrimRight(statement, "; "))
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func estimateCost(planRows int, statement string) int {
	cost := planRows * 10
	if !whereClause.MatchString(stripLiterals(statement)) {
		cost *= 2
	}
	if cost > MaxCost {
		cost = MaxCost
	}
	return cost
}
