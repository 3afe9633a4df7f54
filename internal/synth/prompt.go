package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/schema"
)

const systemPrompt = "You are a SQL expert. You translate questions about a relational database into exactly one SQL statement. " +
	"Return ONLY SQL. No markdown, no explanation."

func generationPrompt(question string, in intent.Intent, metadata schema.Metadata, dialect database.Dialect) string {
	intentJSON, err := json.Marshal(in)
	if err != nil {
		intentJSON = []byte("{}")
	}
	return fmt.Sprintf(
		"Database schema:\n%s\nUser question:\n%s\n\nParsed intent (JSON):\n%s\n\nRules:\n"+
			"- Prefer SELECT unless the user explicitly asks to change data.\n"+
			"- Follow %s syntax.\n"+
			"- Use only the tables and columns listed above.\n"+
			"- Use JOIN and WHERE conditions where they apply.\n"+
			"- Name the columns you need instead of SELECT *.\n"+
			"- Use WITH clauses or subqueries for complex questions.\n"+
			"- Output a single SQL statement only.",
		FormatSchema(metadata),
		strings.TrimSpace(question),
		string(intentJSON),
		dialectLabel(dialect),
	)
}

func correctionPrompt(sql string, errs []string, metadata schema.Metadata, dialect database.Dialect) string {
	return fmt.Sprintf(
		"The following SQL statement failed.\n\nOriginal SQL:\n%s\n\nErrors:\n%s\n\nDatabase schema:\n%s\nRules:\n"+
			"- Keep the intent of the original statement.\n"+
			"- Fix every listed error.\n"+
			"- Follow %s syntax.\n"+
			"- Output the corrected SQL statement only.",
		strings.TrimSpace(sql),
		strings.Join(errs, "\n"),
		FormatSchema(metadata),
		dialectLabel(dialect),
	)
}

// FormatSchema renders metadata as the plain-text table listing given to the
// model.
func FormatSchema(metadata schema.Metadata) string {
	if metadata.Empty() {
		return "No table structure available.\n"
	}
	var b strings.Builder
	for _, name := range metadata.TableNames() {
		table := metadata.Tables[name]
		fmt.Fprintf(&b, "Table: %s\n", name)
		if len(table.Columns) > 0 {
			b.WriteString("Columns:\n")
			for _, column := range table.Columns {
				nullable := "NOT NULL"
				if column.Nullable {
					nullable = "NULL"
				}
				fmt.Fprintf(&b, "  - %s: %s %s", column.Name, column.Type, nullable)
				if column.Default != "" {
					fmt.Fprintf(&b, " DEFAULT %s", column.Default)
				}
				if column.Comment != "" {
					fmt.Fprintf(&b, " COMMENT '%s'", column.Comment)
				}
				b.WriteString("\n")
			}
		}
		if len(table.PrimaryKeys) > 0 {
			fmt.Fprintf(&b, "Primary key: %s\n", strings.Join(table.PrimaryKeys, ", "))
		}
		for _, fk := range table.ForeignKeys {
			fmt.Fprintf(&b, "Foreign key: (%s) -> %s(%s)\n", strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
		}
		fmt.Fprintf(&b, "Rows: %d\n\n", table.RowCount)
	}
	return b.String()
}

func dialectLabel(dialect database.Dialect) string {
	switch dialect {
	case database.DialectPostgres:
		return "PostgreSQL"
	case database.DialectMySQL:
		return "MySQL"
	case database.DialectSQLite:
		return "SQLite"
	case database.DialectDuckDB:
		return "DuckDB"
	default:
		return "ANSI SQL"
	}
}
