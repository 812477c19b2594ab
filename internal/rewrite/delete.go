package rewrite

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/kv"
	"k9db/internal/shard"
	"k9db/internal/sqlast"
)

// executeDelete removes every matching row from all of its physical
// copies (one logical row may live in several owner/accessor shards) and
// emits a single retraction per row to the dataflow engine. Before
// touching storage it runs checkDeleteFKIntegrity against every row, following
// original_source/k9db/shards/sqlengine/delete.cc's CheckFKIntegrity: a
// DIRECT or TRANSITIVE dependent still referencing the row fails the whole
// statement rather than being silently relocated; only VARIABLE dependents
// (the reverse-direction OWNS/ACCESSES edges) are cascaded away.
func (e *Engine) executeDelete(sql string) (Result, error) {
	parsed, err := sqlast.ParseDML(sql)
	if err != nil {
		return Result{}, err
	}
	del, ok := parsed.(*sqlast.Delete)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: expected DELETE statement")
	}

	st, ok := e.Shards.Table(del.Table)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: unknown table %q", del.Table)
	}
	phys, ok := e.tables[del.Table]
	if !ok {
		return Result{}, fmt.Errorf("rewrite: table %q has no open storage", del.Table)
	}

	rows, err := selectRows(st.Schema, phys, del.Where)
	if err != nil {
		return Result{}, err
	}

	for _, rec := range rows {
		if err := e.checkDeleteFKIntegrity(st, rec); err != nil {
			return Result{}, err
		}
	}

	cp := e.Compliance.Begin()
	var batch core.Batch
	var retracted int
	err = e.KV.Update(func(txn *kv.Txn) error {
		for _, rec := range rows {
			pk := rec.Values[st.Schema.SinglePK()]
			shards := phys.Shards(pk)
			for _, s := range shards {
				if err := phys.DeleteTxn(txn, s, pk); err != nil {
					return err
				}
			}
			n, err := e.retractDependents(txn, cp, st, rec, shards)
			if err != nil {
				return err
			}
			retracted += n
			batch = append(batch, rec.Negate())
		}
		return nil
	})
	if err != nil {
		cp.Rollback()
		return Result{}, fmt.Errorf("rewrite: delete from %s: %w", del.Table, err)
	}
	cp.Commit()

	if st.IsDataSubject {
		for range rows {
			e.Shards.DecrementUsers(del.Table)
		}
	}

	if len(batch) > 0 {
		if err := e.Flows.ProcessRecords(del.Table, batch); err != nil {
			return Result{}, fmt.Errorf("rewrite: dataflow processing for %s: %w", del.Table, err)
		}
	}
	return Result{RowsAffected: len(rows), Cascaded: retracted}, nil
}

// checkDeleteFKIntegrity rejects deleting rec if any DIRECT or TRANSITIVE
// dependent row still references it — deleting the referenced row would
// otherwise silently orphan or relocate the dependent instead of failing
// the statement. VARIABLE dependents are exempt: those are cascaded away
// by retractDependents instead of blocking the delete.
func (e *Engine) checkDeleteFKIntegrity(st *shard.Table, rec core.Record) error {
	pk := rec.Values[st.Schema.SinglePK()]
	for _, dep := range st.Dependents {
		if dep.Descriptor.Type != shard.Direct && dep.Descriptor.Type != shard.Transitive {
			continue
		}
		depPhys, ok := e.tables[dep.Table]
		if !ok {
			continue
		}
		rows, err := depPhys.GetAll()
		if err != nil {
			return fmt.Errorf("rewrite: checking referential integrity of %s: %w", dep.Table, err)
		}
		for _, row := range rows {
			if row.Values[dep.Descriptor.ColumnIndex].Equal(pk) {
				return fmt.Errorf("rewrite: cannot delete %s row %s: %s.%s still references it", st.Name, pk, dep.Table, dep.Descriptor.Column)
			}
		}
	}
	return nil
}
