// Package schema describes the tables and columns of the connected database.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrTableNotFound = errors.New("table not found")

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Provider reads the live catalog. Implementations return ErrTableNotFound
// from Columns for unknown tables.
type Provider interface {
	ListTables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]Column, error)
}

// Mapping is table name to ordered column names.
type Mapping map[string][]string

// Tables returns the table names in sorted order.
func (m Mapping) Tables() []string {
	tables := make([]string, 0, len(m))
	for table := range m {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// BuildMapping reads every table of the live database. A table that vanished
// between listing and describing maps to an empty column list; any other
// column error fails the whole mapping.
func BuildMapping(ctx context.Context, provider Provider) (Mapping, error) {
	if provider == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	tables, err := provider.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	mapping := make(Mapping, len(tables))
	for _, table := range tables {
		columns, err := provider.Columns(ctx, table)
		if errors.Is(err, ErrTableNotFound) {
			mapping[table] = []string{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		names := make([]string, 0, len(columns))
		for _, column := range columns {
			names = append(names, column.Name)
		}
		mapping[table] = names
	}
	return mapping, nil
}

type TableDescription struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Describe returns the columns of each requested table. Unknown tables carry
// an error marker instead of failing the whole call.
func Describe(ctx context.Context, provider Provider, tables []string) ([]TableDescription, error) {
	if provider == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	out := make([]TableDescription, 0, len(tables))
	for _, table := range tables {
		columns, err := provider.Columns(ctx, table)
		switch {
		case err == nil:
			out = append(out, TableDescription{Table: table, Columns: columns})
		case errors.Is(err, ErrTableNotFound):
			out = append(out, TableDescription{Table: table, Error: fmt.Sprintf("Table '%s' not found.", table)})
		default:
			return nil, fmt.Errorf("describe table %s: %w", table, err)
		}
	}
	return out, nil
}

// ParseTableList splits a comma-separated table list, dropping blanks.
func ParseTableList(raw string) []string {
	var tables []string
	for _, part := range strings.Split(raw, ",") {
		if table := strings.TrimSpace(part); table != "" {
			tables = append(tables, table)
		}
	}
	return tables
}
