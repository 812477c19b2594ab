package rewrite

import (
	"fmt"

	"k9db/internal/compliance"
	"k9db/internal/core"
	"k9db/internal/kv"
	"k9db/internal/shard"
	"k9db/internal/sqlast"
	"k9db/internal/table"
)

// shardName joins a shard kind with its identifying value, so different
// data-subject tables never collide on the same raw id.
func shardName(kind string, id core.Value) string {
	return kind + ":" + id.AsUnquotedString()
}

// buildRow assembles a full, schema-ordered value row from an INSERT's
// (possibly partial) column list, filling AUTO_INCREMENT and DEFAULT
// values for anything the statement omitted — the original's
// AutoIncrementAndDefault step.
func buildRow(st *shard.Table, ins *sqlast.Insert) ([]core.Value, error) {
	row := make([]core.Value, len(st.Schema.Columns))
	have := make([]bool, len(row))

	cols := ins.Columns
	if len(cols) == 0 {
		if len(ins.Values) != len(row) {
			return nil, fmt.Errorf("rewrite: INSERT into %s supplies %d values for %d columns", st.Name, len(ins.Values), len(row))
		}
		for i, v := range ins.Values {
			row[i] = v
			have[i] = true
		}
	} else {
		if len(cols) != len(ins.Values) {
			return nil, fmt.Errorf("rewrite: INSERT into %s column/value count mismatch", st.Name)
		}
		for i, name := range cols {
			ci := st.Schema.ColumnIndex(name)
			if ci < 0 {
				return nil, fmt.Errorf("rewrite: unknown column %q in INSERT into %s", name, st.Name)
			}
			row[ci] = ins.Values[i]
			have[ci] = true
		}
	}

	for i, c := range st.Schema.Columns {
		if have[i] {
			continue
		}
		switch {
		case c.AutoInc:
			row[i] = core.UintValue(uint64(st.AutoIncrement.Add(1)))
		case c.HasDefault:
			row[i] = c.Default
		case c.NotNull:
			return nil, fmt.Errorf("rewrite: INSERT into %s omits required column %q", st.Name, c.Name)
		default:
			row[i] = core.NullValue()
		}
	}
	return row, nil
}

// resolveOwners determines which shard(s) record belongs in, per
// st.Owners: Direct and Transitive descriptors resolve eagerly from the
// row's own FK value; Variable descriptors contribute nothing here (per
// the original, a Variable-owned row only gains shards when the declaring
// origin row cascades it in).
func (e *Engine) resolveOwners(txn *kv.Txn, st *shard.Table, record core.Record) ([]string, error) {
	seen := make(map[string]bool)
	var shards []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			shards = append(shards, name)
		}
	}

	for _, desc := range st.Owners {
		switch desc.Type {
		case shard.Direct:
			val := record.Values[desc.ColumnIndex]
			if val.IsNull() {
				continue
			}
			if desc.NextTable == "" {
				// A data subject's own descriptor: the row is its own shard.
				add(shardName(desc.ShardKind, val))
				continue
			}
			target, ok := e.tables[desc.NextTable]
			if !ok {
				return nil, fmt.Errorf("rewrite: %s references unopened table %q", st.Name, desc.NextTable)
			}
			if !target.Exists(val) {
				return nil, fmt.Errorf("rewrite: foreign key violation: %s.%s references missing %s row %s", st.Name, desc.Column, desc.NextTable, val)
			}
			add(shardName(desc.ShardKind, val))
		case shard.Transitive:
			val := record.Values[desc.ColumnIndex]
			if val.IsNull() {
				continue
			}
			for _, s := range desc.ChainIndex.Shards([]core.Value{val}) {
				add(s)
			}
		case shard.Variable:
			// Resolved via cascade from the declaring table, not here.
		}
	}
	return shards, nil
}

// cascadeDependents propagates a row's newly gained shard placements to its
// dependents. A thin wrapper over cascadeShardMove for the insert path,
// which never has shards to remove.
func (e *Engine) cascadeDependents(txn *kv.Txn, cp *compliance.Checkpoint, st *shard.Table, record core.Record, addedShards []string) (int, error) {
	return e.cascadeShardMove(txn, cp, st, record, nil, addedShards)
}

// retractDependents undoes a row's dependents' placement in shards it has
// just left. A thin wrapper over cascadeShardMove for the delete/update
// path, which never has shards to add.
func (e *Engine) retractDependents(txn *kv.Txn, cp *compliance.Checkpoint, st *shard.Table, record core.Record, removedShards []string) (int, error) {
	return e.cascadeShardMove(txn, cp, st, record, removedShards, nil)
}

// cascadeShardMove propagates a change in record's shard placement — some
// shards removed, some added — to every table whose own placement
// (Transitive chain resolution) or row existence (Variable ownership)
// depends on it. This is the Go analogue of the original's per-relationship
// cascade, generalized to a single move instead of separate insert/delete
// cascades: an UPDATE that changes an ownership column is exactly a move
// with both a removed and an added side.
func (e *Engine) cascadeShardMove(txn *kv.Txn, cp *compliance.Checkpoint, st *shard.Table, record core.Record, removedShards, addedShards []string) (int, error) {
	moved := 0
	pk := record.Values[st.Schema.SinglePK()]

	for _, dep := range st.Dependents {
		switch dep.Descriptor.Type {
		case shard.Transitive:
			for _, s := range removedShards {
				dep.Descriptor.ChainIndex.Remove([]core.Value{pk}, s, pk)
			}
			for _, s := range addedShards {
				dep.Descriptor.ChainIndex.Add([]core.Value{pk}, s, pk)
			}
			if len(removedShards) == 0 {
				// No existing dependent rows can reference this key yet:
				// the chain-index update above is enough for future inserts.
				continue
			}
			n, err := e.relocateTransitive(txn, cp, dep, pk, removedShards)
			if err != nil {
				return moved, err
			}
			moved += n
		case shard.Variable:
			depTable, ok := e.Shards.Table(dep.Table)
			if !ok {
				continue
			}
			depPhys, ok := e.tables[dep.Table]
			if !ok {
				continue
			}
			fkVal := record.Values[dep.Descriptor.OriginColumnIndex]
			existing := depPhys.Shards(fkVal)
			if len(existing) == 0 {
				continue
			}
			row, ok, err := depPhys.GetTxn(txn, existing[0], fkVal)
			if err != nil {
				return moved, err
			}
			if !ok {
				continue
			}

			toRemove := intersectShards(existing, removedShards)
			for _, s := range toRemove {
				if err := depPhys.DeleteTxn(txn, s, fkVal); err != nil {
					return moved, err
				}
				moved++
			}
			remaining := diffShards(existing, toRemove)

			existingSet := make(map[string]bool, len(remaining))
			for _, s := range remaining {
				existingSet[s] = true
			}
			for _, s := range addedShards {
				if existingSet[s] {
					continue
				}
				if err := depPhys.PutTxn(txn, s, row); err != nil {
					return moved, err
				}
				moved++
				existingSet[s] = true
			}

			wasOrphan := len(existing) == 1 && existing[0] == table.DefaultShard
			if len(existingSet) == 0 {
				if err := depPhys.PutTxn(txn, table.DefaultShard, row); err != nil {
					return moved, err
				}
				cp.AddOrphan(dep.Table, fkVal)
			} else if wasOrphan && len(existingSet) > 1 {
				// Gained a real shard alongside the stale default copy.
				if err := depPhys.DeleteTxn(txn, table.DefaultShard, fkVal); err != nil {
					return moved, err
				}
				cp.ResolveOrphan(dep.Table, fkVal)
			}

			sub, err := e.cascadeShardMove(txn, cp, depTable, row, toRemove, addedShards)
			if err != nil {
				return moved, err
			}
			moved += sub
		}
	}
	return moved, nil
}

// relocateTransitive moves every existing row of a Transitive dependent
// table whose chain key equals pk out of removedShards, re-resolving each
// row's full owner set (the chain index has already been updated by the
// caller) so it lands wherever it belongs now, including the default shard
// if it no longer resolves anywhere.
func (e *Engine) relocateTransitive(txn *kv.Txn, cp *compliance.Checkpoint, dep shard.Dependent, pk core.Value, removedShards []string) (int, error) {
	depTable, ok := e.Shards.Table(dep.Table)
	if !ok {
		return 0, nil
	}
	depPhys, ok := e.tables[dep.Table]
	if !ok {
		return 0, nil
	}

	moved := 0
	for _, s := range removedShards {
		rows, err := depPhys.GetShardTxn(txn, s)
		if err != nil {
			return moved, err
		}
		for _, row := range rows {
			val := row.Values[dep.Descriptor.ColumnIndex]
			if val.IsNull() || !val.Equal(pk) {
				continue
			}

			childPK := row.Values[depTable.Schema.SinglePK()]
			oldShards := depPhys.Shards(childPK)
			resolved, err := e.resolveOwners(txn, depTable, row)
			if err != nil {
				return moved, err
			}
			newShards := resolved
			isOrphan := len(resolved) == 0
			if isOrphan {
				newShards = []string{table.DefaultShard}
			}

			childRemoved := diffShards(oldShards, newShards)
			childAdded := diffShards(newShards, oldShards)
			if len(childRemoved) == 0 && len(childAdded) == 0 {
				continue
			}
			for _, cs := range childRemoved {
				if err := depPhys.DeleteTxn(txn, cs, childPK); err != nil {
					return moved, err
				}
			}
			for _, cs := range childAdded {
				if err := depPhys.PutTxn(txn, cs, row); err != nil {
					return moved, err
				}
			}
			moved += len(childRemoved) + len(childAdded)

			wasOrphan := len(oldShards) == 1 && oldShards[0] == table.DefaultShard
			if wasOrphan && !isOrphan {
				cp.ResolveOrphan(dep.Table, childPK)
			} else if !wasOrphan && isOrphan {
				cp.AddOrphan(dep.Table, childPK)
			}

			sub, err := e.cascadeShardMove(txn, cp, depTable, row, childRemoved, childAdded)
			if err != nil {
				return moved, err
			}
			moved += sub
		}
	}
	return moved, nil
}

// diffShards returns the elements of a not present in b.
func diffShards(a, b []string) []string {
	exclude := make(map[string]bool, len(b))
	for _, s := range b {
		exclude[s] = true
	}
	var out []string
	for _, s := range a {
		if !exclude[s] {
			out = append(out, s)
		}
	}
	return out
}

// intersectShards returns the elements common to both a and b.
func intersectShards(a, b []string) []string {
	has := make(map[string]bool, len(b))
	for _, s := range b {
		has[s] = true
	}
	var out []string
	for _, s := range a {
		if has[s] {
			out = append(out, s)
		}
	}
	return out
}

// executeInsert implements INSERT and REPLACE, following
// original_source/k9db/shards/sqlengine/insert.cc's Exec(): build the full
// row, place it in every shard its owners resolve to (or the default shard
// as a tracked orphan if none resolve), cascade dependents, then hand the
// resulting record batch to the dataflow engine.
func (e *Engine) executeInsert(sql string) (Result, error) {
	parsed, err := sqlast.ParseDML(sql)
	if err != nil {
		return Result{}, err
	}
	ins, ok := parsed.(*sqlast.Insert)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: expected INSERT/REPLACE statement")
	}

	st, ok := e.Shards.Table(ins.Table)
	if !ok {
		return Result{}, fmt.Errorf("rewrite: unknown table %q", ins.Table)
	}
	phys, ok := e.tables[ins.Table]
	if !ok {
		return Result{}, fmt.Errorf("rewrite: table %q has no open storage", ins.Table)
	}

	values, err := buildRow(st, ins)
	if err != nil {
		return Result{}, err
	}
	record := core.NewRecord(st.Schema, values)
	pk := values[st.Schema.SinglePK()]

	wasPresent := phys.Exists(pk)
	if !ins.Replace && wasPresent {
		return Result{}, fmt.Errorf("rewrite: duplicate primary key %s in %s", pk, ins.Table)
	}

	cp := e.Compliance.Begin()
	var cascaded int
	var oldRecord core.Record
	var hadOldRecord bool
	var oldShards []string
	err = e.KV.Update(func(txn *kv.Txn) error {
		if ins.Replace && wasPresent {
			oldShards = phys.Shards(pk)
			if len(oldShards) > 0 {
				if rec, ok, err := phys.GetTxn(txn, oldShards[0], pk); err != nil {
					return err
				} else if ok {
					oldRecord, hadOldRecord = rec, true
				}
			}
			for _, s := range oldShards {
				if err := phys.DeleteTxn(txn, s, pk); err != nil {
					return err
				}
			}
		}
		wasOrphan := len(oldShards) == 1 && oldShards[0] == table.DefaultShard

		shards, err := e.resolveOwners(txn, st, record)
		if err != nil {
			return err
		}
		newUser := st.IsDataSubject && !wasPresent
		newShards := shards
		isOrphan := len(shards) == 0
		if isOrphan {
			newShards = []string{table.DefaultShard}
		}

		if isOrphan {
			if err := phys.PutTxn(txn, table.DefaultShard, record); err != nil {
				return err
			}
			cp.AddOrphan(ins.Table, pk)
		} else {
			for _, s := range shards {
				if err := phys.PutTxn(txn, s, record); err != nil {
					return err
				}
			}
		}
		if wasOrphan && !isOrphan {
			cp.ResolveOrphan(ins.Table, pk)
		}

		added := diffShards(newShards, oldShards)
		removed := diffShards(oldShards, newShards)

		if len(added) > 0 {
			n, err := e.cascadeDependents(txn, cp, st, record, added)
			if err != nil {
				return err
			}
			cascaded += n
		}
		if len(removed) > 0 {
			n, err := e.retractDependents(txn, cp, st, record, removed)
			if err != nil {
				return err
			}
			cascaded += n
		}

		if newUser {
			e.Shards.IncrementUsers(ins.Table)
		}
		return nil
	})
	if err != nil {
		cp.Rollback()
		return Result{}, fmt.Errorf("rewrite: insert into %s: %w", ins.Table, err)
	}
	cp.Commit()

	batch := core.Batch{record}
	if hadOldRecord {
		batch = core.Batch{oldRecord.Negate(), record}
	}
	if err := e.Flows.ProcessRecords(ins.Table, batch); err != nil {
		return Result{}, fmt.Errorf("rewrite: dataflow processing for %s: %w", ins.Table, err)
	}

	return Result{RowsAffected: 1, Cascaded: cascaded}, nil
}
