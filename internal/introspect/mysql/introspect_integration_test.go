package mysql

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestIntrospectIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, `
		CREATE TABLE customers (
			id INT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL
		)
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE orders (
			id INT PRIMARY KEY AUTO_INCREMENT,
			customer_id INT NOT NULL,
			amount DECIMAL(10,2) NOT NULL,
			FOREIGN KEY (customer_id) REFERENCES customers(id)
		)
	`)
	require.NoError(t, err)

	flavor, version, err := DetectFlavor(ctx, db)
	require.NoError(t, err)
	require.Equal(t, "MySQL", flavor)
	require.NotEmpty(t, version)

	introspecter := New(db)
	tables, err := introspecter.Introspect(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	var orders Table
	for _, tb := range tables {
		if tb.Name == "orders" {
			orders = tb
		}
	}
	require.Equal(t, "orders", orders.Name)
	require.Len(t, orders.ForeignKeys, 1)
	require.Equal(t, "customer_id", orders.ForeignKeys[0].Column)
	require.Equal(t, "customers", orders.ForeignKeys[0].RefTable)

	ddl := EmitDDL(tables)
	require.Contains(t, ddl, "CREATE TABLE orders")
	require.Contains(t, ddl, "OWNED_BY customers(id)")
}
