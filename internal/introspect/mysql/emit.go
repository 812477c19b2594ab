package mysql

import (
	"fmt"
	"strings"
)

// EmitDDL renders tables as K9db CREATE TABLE skeletons. Every introspected
// foreign key becomes a commented-out OWNED_BY suggestion rather than a
// live annotation: K9db's ownership graph changes query semantics (which
// shard a row lands in), so an operator must confirm each one rather than
// have it applied automatically from a MySQL schema that never expressed
// that intent.
func EmitDDL(tables []Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		writeTable(&b, t)
	}
	return b.String()
}

func writeTable(b *strings.Builder, t Table) {
	fks := make(map[string]ForeignKey, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		fks[fk.Column] = fk
	}

	fmt.Fprintf(b, "CREATE TABLE %s (\n", t.Name)
	for i, c := range t.Columns {
		line := fmt.Sprintf("  %s %s", c.Name, c.RawType)
		if !c.Nullable {
			line += " NOT NULL"
		}
		if c.AutoIncrement {
			line += " AUTO_INCREMENT"
		}
		if c.PrimaryKey {
			line += " PRIMARY KEY"
		}
		if i < len(t.Columns)-1 {
			line += ","
		}
		b.WriteString(line)
		if fk, ok := fks[c.Name]; ok {
			fmt.Fprintf(b, "  -- TODO: confirm ownership, e.g. OWNED_BY %s(%s)", fk.RefTable, fk.RefColumn)
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n")
}
