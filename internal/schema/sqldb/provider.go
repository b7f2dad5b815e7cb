// Package sqldb reads table and column metadata over database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/schema"
)

type catalogQueries struct {
	listTables string
	columns    string
}

var queriesByDialect = map[database.Dialect]catalogQueries{
	database.DialectMSSQL: {
		listTables: `
SELECT TABLE_NAME
FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY TABLE_NAME`,
		columns: `
SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
ORDER BY ORDINAL_POSITION`,
	},
	database.DialectPostgres: {
		listTables: `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE' AND table_schema = current_schema()
ORDER BY table_name`,
		columns: `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`,
	},
	database.DialectMySQL: {
		listTables: `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE()
ORDER BY table_name`,
		columns: `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`,
	},
	database.DialectDuckDB: {
		listTables: `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE' AND table_schema = current_schema()
ORDER BY table_name`,
		columns: `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`,
	},
	database.DialectSQLite: {
		listTables: `
SELECT name
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`,
		columns: `
SELECT name, type, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END
FROM pragma_table_info(?)
ORDER BY cid`,
	},
}

type Provider struct {
	db      *sql.DB
	queries catalogQueries
}

func NewProvider(db *sql.DB, dialect database.Dialect) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	queries, ok := queriesByDialect[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Provider{db: db, queries: queries}, nil
}

func (p *Provider) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, p.queries.listTables)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (p *Provider) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := p.db.QueryContext(ctx, p.queries.columns, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column for %s: %w", table, err)
		}
		columns = append(columns, schema.Column{
			Name:     name,
			Type:     strings.ToLower(dataType),
			Nullable: strings.EqualFold(strings.TrimSpace(nullable), "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", schema.ErrTableNotFound, table)
	}
	return columns, nil
}
