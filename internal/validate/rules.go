package validate

import (
	"regexp"

	"github.com/sqlpilot/sqlpilot/internal/pipeline"
)

// SecurityMarker prefixes every blocking error raised by the deny-list.
const SecurityMarker = string(pipeline.StageSecurity)

type denyRule struct {
	name    string
	pattern *regexp.Regexp
}

var denyRules = []denyRule{
	{name: "DROP TABLE/DATABASE/INDEX", pattern: regexp.MustCompile(`(?is)\bDROP\s+(TABLE|DATABASE|INDEX)\b`)},
	{name: "TRUNCATE TABLE", pattern: regexp.MustCompile(`(?is)\bTRUNCATE\s+TABLE\b`)},
	{name: "ALTER TABLE ... DROP", pattern: regexp.MustCompile(`(?is)\bALTER\s+TABLE\b.*\bDROP\b`)},
	{name: "GRANT ... TO", pattern: regexp.MustCompile(`(?is)\bGRANT\s+.*\bTO\b`)},
	{name: "REVOKE ... FROM", pattern: regexp.MustCompile(`(?is)\bREVOKE\s+.*\bFROM\b`)},
	{name: "comment-terminated statement", pattern: regexp.MustCompile(`;\s*--`)},
	{name: "SQL comment", pattern: regexp.MustCompile(`--|/\*`)},
	{name: "UNION SELECT", pattern: regexp.MustCompile(`(?is)\bUNION\s+(ALL\s+)?SELECT\b.*\bFROM\b`)},
}

var (
	systemCatalog = regexp.MustCompile(`(?i)\b(information_schema|pg_catalog|pg_shadow|pg_authid|sqlite_master|sqlite_schema|performance_schema)\b|\b(mysql|sys)\.`)
	quotedLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)
	stackedStmt   = regexp.MustCompile(`;\s*\S`)
	tableRef      = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+([A-Za-z_][A-Za-z0-9_$]*(?:\.[A-Za-z_][A-Za-z0-9_$]*)?)`)
	whereClause   = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// stripLiterals blanks single-quoted strings so punctuation inside values is
// not mistaken for statement structure.
func stripLiterals(sql string) string {
	return quotedLiteral.ReplaceAllString(sql, "''")
}

func referencedTables(sql string) []string {
	matches := tableRef.FindAllStringSubmatch(stripLiterals(sql), -1)
	out := make([]string, 0, len(matches))
	seen := map[string]struct{}{}
	for _, match := range matches {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
