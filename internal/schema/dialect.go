package schema

import (
	"fmt"

	"github.com/sqlpilot/sqlpilot/internal/database"
)

// catalogQueries hold the per-dialect introspection statements. Every dialect
// returns the same column shapes so one scanner serves them all:
//
//	tables:      name
//	columns:     name, type, nullable, default, comment
//	primaryKeys: column
//	foreignKeys: constraint, column, referenced table, referenced column
//	indexes:     name, column, unique, definition
type catalogQueries struct {
	tables      string
	columns     string
	primaryKeys string
	foreignKeys string
	indexes     string
}

const postgresForeignKeys = `
SELECT kcu.constraint_name, kcu.column_name, ukcu.table_name, ukcu.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = rc.constraint_name AND kcu.constraint_schema = rc.constraint_schema
JOIN information_schema.key_column_usage ukcu
  ON ukcu.constraint_name = rc.unique_constraint_name
 AND ukcu.constraint_schema = rc.unique_constraint_schema
 AND ukcu.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = current_schema() AND kcu.table_name = %s
ORDER BY kcu.constraint_name, kcu.ordinal_position`

const postgresPrimaryKeys = `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = %s
ORDER BY kcu.ordinal_position`

func queriesFor(dialect database.Dialect) (catalogQueries, error) {
	switch dialect {
	case database.DialectPostgres:
		return catalogQueries{
			tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			columns: `SELECT column_name, data_type, is_nullable = 'YES', COALESCE(column_default, ''),
COALESCE(col_description((quote_ident(table_schema) || '.' || quote_ident(table_name))::regclass, ordinal_position), '')
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
			primaryKeys: fmt.Sprintf(postgresPrimaryKeys, "$1"),
			foreignKeys: fmt.Sprintf(postgresForeignKeys, "$1"),
			indexes: `SELECT indexname, '', indexdef LIKE 'CREATE UNIQUE%', indexdef
FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1 ORDER BY indexname`,
		}, nil
	case database.DialectDuckDB:
		return catalogQueries{
			tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			columns: `SELECT column_name, data_type, is_nullable = 'YES', COALESCE(column_default, ''), ''
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position`,
			primaryKeys: fmt.Sprintf(postgresPrimaryKeys, "?"),
			foreignKeys: fmt.Sprintf(postgresForeignKeys, "?"),
			indexes: `SELECT index_name, '', is_unique, COALESCE(sql, '')
FROM duckdb_indexes() WHERE schema_name = current_schema() AND table_name = ? ORDER BY index_name`,
		}, nil
	case database.DialectMySQL:
		return catalogQueries{
			tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			columns: `SELECT column_name, column_type, is_nullable = 'YES', COALESCE(column_default, ''), column_comment
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`,
			primaryKeys: `SELECT column_name FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY' ORDER BY ordinal_position`,
			foreignKeys: `SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
ORDER BY constraint_name, ordinal_position`,
			indexes: `SELECT index_name, column_name, non_unique = 0, ''
FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = ? ORDER BY index_name, seq_in_index`,
		}, nil
	case database.DialectSQLite:
		return catalogQueries{
			tables: `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
			columns: `SELECT name, type, "notnull" = 0, COALESCE(dflt_value, ''), ''
FROM pragma_table_info(?) ORDER BY cid`,
			primaryKeys: `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`,
			foreignKeys: `SELECT CAST(id AS TEXT), "from", "table", COALESCE("to", '')
FROM pragma_foreign_key_list(?) ORDER BY id, seq`,
			indexes: `SELECT il.name, COALESCE(ii.name, ''), il."unique" = 1, ''
FROM pragma_index_list(?) AS il
JOIN pragma_index_info(il.name) AS ii
ORDER BY il.name, ii.seqno`,
		}, nil
	default:
		return catalogQueries{}, fmt.Errorf("unsupported dialect %q", dialect)
	}
}
