// Package schema reads table structure from a live database and compares it
// against the static catalog. It is an operator check; prompts are always
// built from the catalog alone.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
)

// Table represents a live database table and its columns.
type Table struct {
	Name    string
	Columns []Column
}

// Column represents a live table column.
type Column struct {
	Name string
	Type string
}

// Problem describes a catalog entry the live database does not back.
type Problem string

const (
	MissingTable  Problem = "missing table"
	MissingColumn Problem = "missing column"
)

// Drift is one catalog entry with no live counterpart.
type Drift struct {
	Table   string
	Column  string
	Problem Problem
}

func (d Drift) String() string {
	if d.Column == "" {
		return fmt.Sprintf("%s: %s", d.Problem, d.Table)
	}
	return fmt.Sprintf("%s: %s.%s", d.Problem, d.Table, d.Column)
}

const postgresColumns = `
	SELECT c.table_name, c.column_name, c.data_type
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = 'public'
	  AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

const sqliteColumns = `
	SELECT m.name, p.name, p.type
	FROM sqlite_master m
	JOIN pragma_table_info(m.name) p
	WHERE m.type = 'table'
	  AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.cid`

// Inspect lists the tables and columns of db. driver is "postgres" or
// "sqlite".
func Inspect(ctx context.Context, db *sql.DB, driver string) ([]Table, error) {
	var query string
	switch driver {
	case "postgres":
		query = postgresColumns
	case "sqlite":
		query = sqliteColumns
	default:
		return nil, fmt.Errorf("schema: unsupported driver %q", driver)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("schema: load columns: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type); err != nil {
			return nil, err
		}
		if n := len(tables); n == 0 || tables[n-1].Name != tableName {
			tables = append(tables, Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}
	return tables, rows.Err()
}

// Diff reports every catalog table or column absent from live, in catalog
// order. Names compare case-insensitively. Live tables the catalog does not
// mention are ignored.
func Diff(cat *catalog.Catalog, live []Table) []Drift {
	index := make(map[string]map[string]bool, len(live))
	for _, t := range live {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			cols[strings.ToLower(c.Name)] = true
		}
		index[strings.ToLower(t.Name)] = cols
	}

	var drift []Drift
	for _, t := range cat.Tables {
		cols, ok := index[strings.ToLower(t.Name)]
		if !ok {
			drift = append(drift, Drift{Table: t.Name, Problem: MissingTable})
			continue
		}
		for _, c := range t.Columns {
			if !cols[strings.ToLower(c.Name)] {
				drift = append(drift, Drift{Table: t.Name, Column: c.Name, Problem: MissingColumn})
			}
		}
	}
	return drift
}
