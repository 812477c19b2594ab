package rewrite

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/kv"
	"k9db/internal/sqlast"
	"k9db/internal/table"
)

// executeUpdate applies an UPDATE's SET clause to every matching row. The
// primary key may never be modified, but ownership columns can: changing one
// moves the row between shards exactly as original_source/k9db's update
// path does, re-resolving st.Owners against the updated values, cascading
// the move to dependents gained in the new shards, and retracting dependent
// copies from shards the row no longer belongs to.
func (e *Engine) executeUpdate(sql string) (Result, error) {
	parsed, err := sqlast.ParseDML(sql)
	if err != nil {
		return Result{}, err
	}
	upd, ok := parsed.(*sqlast.Update)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: expected UPDATE statement")
	}

	st, ok := e.Shards.Table(upd.Table)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: unknown table %q", upd.Table)
	}
	phys, ok := e.tables[upd.Table]
	if !ok {
		return Result{}, fmt.Errorf("rewrite: table %q has no open storage", upd.Table)
	}

	pkName := st.Schema.Columns[st.Schema.SinglePK()].Name
	um := core.UpdateMap{}
	for _, a := range upd.Set {
		if a.Column == pkName {
			return Result{}, fmt.Errorf("rewrite: UPDATE may not modify primary key column %q", a.Column)
		}
		ci := st.Schema.ColumnIndex(a.Column)
		if ci < 0 {
			return Result{}, fmt.Errorf("rewrite: unknown column %q in UPDATE of %s", a.Column, upd.Table)
		}
		um[ci] = a.Value
	}

	rows, err := selectRows(st.Schema, phys, upd.Where)
	if err != nil {
		return Result{}, err
	}

	cp := e.Compliance.Begin()
	var batch core.Batch
	var cascaded, retracted int
	err = e.KV.Update(func(txn *kv.Txn) error {
		for _, old := range rows {
			pk := old.Values[st.Schema.SinglePK()]
			updated := old.Update(um)

			oldShards := phys.Shards(pk)
			wasOrphan := len(oldShards) == 1 && oldShards[0] == table.DefaultShard

			resolved, err := e.resolveOwners(txn, st, updated)
			if err != nil {
				return err
			}
			newShards := resolved
			isOrphan := len(resolved) == 0
			if isOrphan {
				newShards = []string{table.DefaultShard}
			}

			removed := diffShards(oldShards, newShards)
			added := diffShards(newShards, oldShards)

			for _, s := range removed {
				if err := phys.DeleteTxn(txn, s, pk); err != nil {
					return err
				}
			}
			for _, s := range newShards {
				if err := phys.PutTxn(txn, s, updated); err != nil {
					return err
				}
			}

			if wasOrphan && !isOrphan {
				cp.ResolveOrphan(upd.Table, pk)
			} else if !wasOrphan && isOrphan {
				cp.AddOrphan(upd.Table, pk)
			}

			if len(added) > 0 {
				n, err := e.cascadeDependents(txn, cp, st, updated, added)
				if err != nil {
					return err
				}
				cascaded += n
			}
			if len(removed) > 0 {
				n, err := e.retractDependents(txn, cp, st, updated, removed)
				if err != nil {
					return err
				}
				retracted += n
			}

			batch = append(batch, old.Negate(), updated)
		}
		return nil
	})
	if err != nil {
		cp.Rollback()
		return Result{}, fmt.Errorf("rewrite: update %s: %w", upd.Table, err)
	}
	cp.Commit()

	if len(batch) > 0 {
		if err := e.Flows.ProcessRecords(upd.Table, batch); err != nil {
			return Result{}, fmt.Errorf("rewrite: dataflow processing for %s: %w", upd.Table, err)
		}
	}
	return Result{RowsAffected: len(rows), Cascaded: cascaded + retracted}, nil
}
