// Package mysql introspects an existing MySQL/MariaDB/TiDB schema via
// information_schema and renders it back as K9db CREATE TABLE skeletons,
// for cmd/k9db-import. Adapted from the teacher's
// internal/introspect/mysql package, which did the equivalent
// information_schema walk to populate a dialect-neutral schema model; here
// the walk feeds a K9db DDL emitter instead of a migration-diff model.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// Column describes one introspected column.
type Column struct {
	Name          string
	RawType       string
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
}

// ForeignKey describes one introspected foreign key: Column in this table
// references RefTable(RefColumn).
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table describes one introspected base table.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Introspecter walks a live MySQL-family connection's information_schema.
type Introspecter struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB (opened via
// github.com/go-sql-driver/mysql) for introspection.
func New(db *sql.DB) *Introspecter {
	return &Introspecter{db: db}
}

// Introspect returns every base table in the connection's current schema,
// in table_name order, each with its columns and foreign keys populated.
func (i *Introspecter) Introspect(ctx context.Context) ([]Table, error) {
	names, err := introspectTableNames(ctx, i.db)
	if err != nil {
		return nil, fmt.Errorf("introspect: listing tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		t := Table{Name: name}
		if t.Columns, err = introspectColumns(ctx, i.db, name); err != nil {
			return nil, fmt.Errorf("introspect: table %s columns: %w", name, err)
		}
		if t.ForeignKeys, err = introspectForeignKeys(ctx, i.db, name); err != nil {
			return nil, fmt.Errorf("introspect: table %s foreign keys: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}
