package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
)

const defaultCacheSize = 128

// Inspector introspects one target database. Snapshots are cached by target
// identity and requested table subset until Reload is called.
type Inspector struct {
	target  database.Target
	queries catalogQueries
	cache   *lru.Cache[string, Metadata]
	logger  *slog.Logger
}

func NewInspector(target database.Target, cacheSize int, logger *slog.Logger) (*Inspector, error) {
	if target.DB == nil {
		return nil, fmt.Errorf("target db is required")
	}
	queries, err := queriesFor(target.Dialect)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, Metadata](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &Inspector{target: target, queries: queries, cache: cache, logger: logger}, nil
}

// Reload drops every cached snapshot for this target.
func (i *Inspector) Reload() {
	i.cache.Purge()
}

func (i *Inspector) TableNames(ctx context.Context) ([]string, error) {
	names, err := i.listTables(ctx)
	if err != nil {
		return nil, pipeline.SchemaIntrospectionError(err)
	}
	return names, nil
}

// Inspect returns metadata for the requested tables, or for every table when
// tables is empty. Tables that cannot be read are skipped and reported in
// Metadata.Warnings; only an unreachable database is an error.
func (i *Inspector) Inspect(ctx context.Context, tables []string) (Metadata, error) {
	key := i.cacheKey(tables)
	if cached, ok := i.cache.Get(key); ok {
		return cached.Clone(), nil
	}

	available, err := i.listTables(ctx)
	if err != nil {
		return Metadata{}, pipeline.SchemaIntrospectionError(err)
	}

	selected, warnings := selectTables(available, tables)
	metadata := Metadata{Tables: make(map[string]Table, len(selected)), Warnings: warnings}
	for _, name := range selected {
		table, tableWarnings, err := i.inspectTable(ctx, name)
		metadata.Warnings = append(metadata.Warnings, tableWarnings...)
		if err != nil {
			metadata.Warnings = append(metadata.Warnings, fmt.Sprintf("table %s skipped: %v", name, err))
			continue
		}
		metadata.Tables[name] = table
	}

	if len(metadata.Warnings) == 0 {
		i.cache.Add(key, metadata.Clone())
	} else if i.logger != nil {
		i.logger.WarnContext(ctx, "partial schema introspection",
			slog.String("target", i.target.Name),
			slog.Any("warnings", metadata.Warnings),
		)
	}
	return metadata, nil
}

func (i *Inspector) cacheKey(tables []string) string {
	normalized := make([]string, 0, len(tables))
	for _, table := range tables {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(table)))
	}
	sort.Strings(normalized)
	return i.target.Name + "|" + string(i.target.Dialect) + "|" + strings.Join(normalized, ",")
}

func selectTables(available, requested []string) ([]string, []string) {
	if len(requested) == 0 {
		return available, nil
	}
	byLower := make(map[string]string, len(available))
	for _, name := range available {
		byLower[strings.ToLower(name)] = name
	}
	seen := map[string]struct{}{}
	var selected, warnings []string
	for _, name := range requested {
		actual, ok := byLower[strings.ToLower(unqualified(name))]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("table %s not found", name))
			continue
		}
		if _, dup := seen[actual]; dup {
			continue
		}
		seen[actual] = struct{}{}
		selected = append(selected, actual)
	}
	return selected, warnings
}

func (i *Inspector) inspectTable(ctx context.Context, name string) (Table, []string, error) {
	ctx, cancel := i.target.Bound(ctx)
	defer cancel()
	columns, err := i.columns(ctx, name)
	if err != nil {
		return Table{}, nil, err
	}
	table := Table{Name: name, Columns: columns}

	var warnings []string
	if table.PrimaryKeys, err = i.stringColumn(ctx, i.queries.primaryKeys, name); err != nil {
		warnings = append(warnings, fmt.Sprintf("table %s primary keys: %v", name, err))
	}
	if table.ForeignKeys, err = i.foreignKeys(ctx, name); err != nil {
		warnings = append(warnings, fmt.Sprintf("table %s foreign keys: %v", name, err))
	}
	if table.Indexes, err = i.indexes(ctx, name); err != nil {
		warnings = append(warnings, fmt.Sprintf("table %s indexes: %v", name, err))
	}
	if table.RowCount, err = i.rowCount(ctx, name); err != nil {
		warnings = append(warnings, fmt.Sprintf("table %s row count: %v", name, err))
	}
	return table, warnings, nil
}

func (i *Inspector) listTables(ctx context.Context) ([]string, error) {
	ctx, cancel := i.target.Bound(ctx)
	defer cancel()
	rows, err := i.target.DB.QueryContext(ctx, i.queries.tables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

func (i *Inspector) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.target.DB.QueryContext(ctx, i.queries.columns, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.Name, &column.Type, &column.Nullable, &column.Default, &column.Comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no readable columns")
	}
	return columns, nil
}

func (i *Inspector) stringColumn(ctx context.Context, query, table string) ([]string, error) {
	rows, err := i.target.DB.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (i *Inspector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := i.target.DB.QueryContext(ctx, i.queries.foreignKeys, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []ForeignKey
	index := map[string]int{}
	for rows.Next() {
		var constraint, column, refTable, refColumn string
		if err := rows.Scan(&constraint, &column, &refTable, &refColumn); err != nil {
			return nil, err
		}
		pos, ok := index[constraint]
		if !ok {
			pos = len(keys)
			index[constraint] = pos
			keys = append(keys, ForeignKey{Name: constraint, ReferencedTable: refTable})
		}
		keys[pos].Columns = append(keys[pos].Columns, column)
		if refColumn != "" {
			keys[pos].ReferencedColumns = append(keys[pos].ReferencedColumns, refColumn)
		}
	}
	return keys, rows.Err()
}

func (i *Inspector) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := i.target.DB.QueryContext(ctx, i.queries.indexes, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var indexes []Index
	position := map[string]int{}
	for rows.Next() {
		var name, column, definition string
		var unique bool
		if err := rows.Scan(&name, &column, &unique, &definition); err != nil {
			return nil, err
		}
		pos, ok := position[name]
		if !ok {
			pos = len(indexes)
			position[name] = pos
			indexes = append(indexes, Index{Name: name, Unique: unique, Definition: definition})
		}
		if column != "" {
			indexes[pos].Columns = append(indexes[pos].Columns, column)
		}
	}
	return indexes, rows.Err()
}

func (i *Inspector) rowCount(ctx context.Context, table string) (int64, error) {
	var count sql.NullInt64
	query := "SELECT COUNT(*) FROM " + i.target.Dialect.QuoteIdent(table)
	if err := i.target.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count.Int64, nil
}
