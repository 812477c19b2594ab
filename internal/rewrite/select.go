package rewrite

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/sqlast"
)

// executeSelect is the ad hoc read path (component G.5): resolve rows
// directly from physical storage rather than through a materialized
// dataflow view, for queries the application issues outside of the
// declared view graph.
func (e *Engine) executeSelect(sql string) (Result, error) {
	parsed, err := sqlast.ParseDML(sql)
	if err != nil {
		return Result{}, err
	}
	sel, ok := parsed.(*sqlast.Select)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: expected SELECT statement")
	}

	st, ok := e.Shards.Table(sel.Table)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: unknown table %q", sel.Table)
	}
	phys, ok := e.tables[sel.Table]
	if !ok {
		return Result{}, fmt.Errorf("rewrite: table %q has no open storage", sel.Table)
	}

	rows, err := selectRows(st.Schema, phys, sel.Where)
	if err != nil {
		return Result{}, err
	}

	if len(sel.Columns) == 0 {
		return Result{RowsAffected: len(rows), Rows: rows}, nil
	}

	idx := make([]int, len(sel.Columns))
	cols := make([]core.Column, len(sel.Columns))
	for j, name := range sel.Columns {
		ci := st.Schema.ColumnIndex(name)
		if ci < 0 {
			return Result{}, fmt.Errorf("rewrite: unknown column %q in SELECT from %s", name, sel.Table)
		}
		idx[j] = ci
		cols[j] = st.Schema.Columns[ci]
	}
	projSchema := &core.Schema{Columns: cols}

	projected := make([]core.Record, len(rows))
	for i, rec := range rows {
		projected[i] = core.Record{Schema: projSchema, Values: rec.Project(idx), Positive: true}
	}
	return Result{RowsAffected: len(rows), Rows: projected}, nil
}
