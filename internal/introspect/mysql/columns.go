package mysql

import (
	"context"
	"database/sql"
	"strings"
)

func introspectColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.extra,
			c.column_key
		FROM information_schema.columns c
		WHERE c.table_schema = DATABASE() AND c.table_name = ?
		ORDER BY c.ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, colType, nullable, extra, colKey sql.NullString
		if err := rows.Scan(&name, &colType, &nullable, &extra, &colKey); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:          name.String,
			RawType:       colType.String,
			Nullable:      nullable.String == "YES",
			PrimaryKey:    colKey.String == "PRI",
			AutoIncrement: strings.Contains(extra.String, "auto_increment"),
		})
	}
	return cols, rows.Err()
}
