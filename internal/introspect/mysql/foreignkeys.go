package mysql

import (
	"context"
	"database/sql"
)

// introspectForeignKeys finds every single-column foreign key declared on
// table, each a candidate K9db OWNED_BY/ACCESSED_BY annotation: a FK column
// referencing another table's primary key is exactly the shape the
// ownership graph (internal/shard) expects OWNED_BY to describe.
func introspectForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
			AND table_name = ?
			AND referenced_table_name IS NOT NULL
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var col, refTable, refCol sql.NullString
		if err := rows.Scan(&col, &refTable, &refCol); err != nil {
			return nil, err
		}
		fks = append(fks, ForeignKey{Column: col.String, RefTable: refTable.String, RefColumn: refCol.String})
	}
	return fks, rows.Err()
}
