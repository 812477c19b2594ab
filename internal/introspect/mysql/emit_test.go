package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitDDLAnnotatesForeignKeys(t *testing.T) {
	tables := []Table{
		{
			Name: "orders",
			Columns: []Column{
				{Name: "id", RawType: "int(11)", PrimaryKey: true, AutoIncrement: true},
				{Name: "customer_id", RawType: "int(11)"},
				{Name: "amount", RawType: "decimal(10,2)"},
			},
			ForeignKeys: []ForeignKey{
				{Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			},
		},
	}

	ddl := EmitDDL(tables)
	require.True(t, strings.HasPrefix(ddl, "CREATE TABLE orders (\n"))
	require.Contains(t, ddl, "customer_id int(11)")
	require.Contains(t, ddl, "TODO: confirm ownership, e.g. OWNED_BY customers(id)")
	require.Contains(t, ddl, "id int(11) NOT NULL AUTO_INCREMENT PRIMARY KEY,")
}

func TestEmitDDLMultipleTables(t *testing.T) {
	tables := []Table{
		{Name: "a", Columns: []Column{{Name: "id", RawType: "int(11)", PrimaryKey: true}}},
		{Name: "b", Columns: []Column{{Name: "id", RawType: "int(11)", PrimaryKey: true}}},
	}
	ddl := EmitDDL(tables)
	require.Equal(t, 2, strings.Count(ddl, "CREATE TABLE"))
}
