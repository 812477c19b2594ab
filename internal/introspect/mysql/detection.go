package mysql

import (
	"context"
	"database/sql"
	"strings"
)

// DetectFlavor reports which MySQL-protocol server the connection is
// talking to (MySQL, MariaDB or TiDB) and its version, purely for the
// status line k9db-import prints before introspecting (the emitted
// skeleton carries no header) — introspection itself runs the same
// information_schema queries against all three.
func DetectFlavor(ctx context.Context, db *sql.DB) (flavor, version string, err error) {
	var varName, comment string
	if err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'version_comment'").Scan(&varName, &comment); err != nil {
		return "", "", err
	}
	comment = strings.ToLower(comment)

	switch {
	case strings.Contains(comment, "mariadb"):
		flavor = "MariaDB"
	case strings.Contains(comment, "tidb"):
		flavor = "TiDB"
	default:
		flavor = "MySQL"
	}
	return flavor, serverVersion(ctx, db), nil
}

func serverVersion(ctx context.Context, db *sql.DB) string {
	var version string
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version)
	if idx := strings.Index(version, "-"); idx > 0 {
		version = version[:idx]
	}
	return version
}
