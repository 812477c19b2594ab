package rewrite

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/kv"
	"k9db/internal/shard"
	"k9db/internal/sqlast"
	"k9db/internal/table"
)

// executeGDPR implements the two GDPR statements: GET collects every row
// owned by or accessible to a data subject across the whole schema; FORGET
// additionally retracts or anonymizes those rows, following
// original_source/k9db/shards/sqlengine/gdpr_forget.cc's per-table walk.
func (e *Engine) executeGDPR(sql string) (Result, error) {
	g, err := sqlast.ParseGDPR(sql)
	if err != nil {
		return Result{}, err
	}
	if _, ok := e.Shards.Shard(g.DataSubject); !ok {
		return Result{}, fmt.Errorf("rewrite: %q is not a declared data subject", g.DataSubject)
	}
	target := shardName(g.DataSubject, g.ID)

	switch g.Op {
	case sqlast.GDPRGet:
		return e.gdprGet(g.DataSubject, target)
	case sqlast.GDPRForget:
		return e.gdprForget(g.DataSubject, g.ID, target)
	default:
		return Result{}, fmt.Errorf("rewrite: unknown GDPR operation")
	}
}

// gdprGet returns every row, from every table, currently stored under the
// subject's shard — whether the table owns those rows or merely has
// read access to them.
func (e *Engine) gdprGet(subject, target string) (Result, error) {
	var rows []core.Record
	for name, st := range e.Shards.Tables() {
		if !tableTouchesShard(st, subject) {
			continue
		}
		phys, ok := e.tables[name]
		if !ok {
			continue
		}
		recs, err := phys.GetShard(target)
		if err != nil {
			return Result{}, fmt.Errorf("rewrite: GDPR GET scanning %s: %w", name, err)
		}
		rows = append(rows, recs...)
	}
	return Result{RowsAffected: len(rows), Rows: rows}, nil
}

// tableTouchesShard reports whether table has an owner or accessor
// descriptor of kind subject, or a Variable descriptor (which carries no
// kind of its own: its rows follow the declaring row into any shard).
func tableTouchesShard(t *shard.Table, subject string) bool {
	for _, d := range t.Owners {
		if d.ShardKind == subject || d.Type == shard.Variable {
			return true
		}
	}
	for _, d := range t.Accessors {
		if d.ShardKind == subject || d.Type == shard.Variable {
			return true
		}
	}
	return false
}

// gdprForget deletes or anonymizes the subject's rows in every owning
// table, revokes the subject's copies in every accessor table, retires the
// shard's user count, destroys the shard's key material so no surviving
// ciphertext is ever recoverable, and tells the dataflow engine about every
// row that was actually removed or anonymized.
func (e *Engine) gdprForget(subject string, id core.Value, target string) (Result, error) {
	var affected int
	cp := e.Compliance.Begin()
	batches := make(map[string]core.Batch)

	err := e.KV.Update(func(txn *kv.Txn) error {
		for name, st := range e.Shards.Tables() {
			phys, ok := e.tables[name]
			if !ok {
				continue
			}

			owns := false
			for _, d := range st.Owners {
				if d.ShardKind == subject || d.Type == shard.Variable {
					owns = true
					break
				}
			}
			if owns {
				n, err := forgetOwnedRows(txn, st, phys, subject, target, batches)
				if err != nil {
					return fmt.Errorf("rewrite: GDPR FORGET on %s: %w", name, err)
				}
				affected += n
			}

			accesses := false
			for _, d := range st.Accessors {
				if d.ShardKind == subject || d.Type == shard.Variable {
					accesses = true
					break
				}
			}
			if accesses {
				rows, err := phys.GetShardTxn(txn, target)
				if err != nil {
					return err
				}
				for _, rec := range rows {
					pk := rec.Values[st.Schema.SinglePK()]
					if err := phys.DeleteTxn(txn, target, pk); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		cp.Rollback()
		return Result{}, err
	}
	cp.Commit()
	e.Shards.DecrementUsers(subject)

	if err := e.Crypto.ForgetUser(target); err != nil {
		return Result{}, fmt.Errorf("rewrite: GDPR FORGET destroying key material for %s: %w", target, err)
	}

	for name, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		if err := e.Flows.ProcessRecords(name, batch); err != nil {
			return Result{}, fmt.Errorf("rewrite: dataflow processing for %s: %w", name, err)
		}
	}

	return Result{RowsAffected: affected}, nil
}

// forgetOwnedRows retracts or anonymizes every row the subject's shard
// holds in one owning table, per any matching ON DEL rule, and stages the
// matching dataflow deltas into batches (keyed by table name).
//
// A row owned or accessed through more than one shard kind (e.g. two
// OWNED_BY columns) still has a live logical copy elsewhere after this
// shard's copy is gone, so a retraction is only staged once
// phys.CountShards reports the row has vanished from every shard — the
// two-hop rule. An anonymized row, by contrast, never leaves this shard
// (it's rewritten in place), so its negate+reinsert pair is always staged:
// that's a content change, not a disappearance.
func forgetOwnedRows(txn *kv.Txn, st *shard.Table, phys *table.Table, subject, target string, batches map[string]core.Batch) (int, error) {
	rows, err := phys.GetShardTxn(txn, target)
	if err != nil {
		return 0, err
	}

	var rule *shard.AnonymizationRule
	for i := range st.Rules {
		if !st.Rules[i].OnGet && st.Rules[i].DataSubject == subject {
			rule = &st.Rules[i]
			break
		}
	}

	for _, rec := range rows {
		pk := rec.Values[st.Schema.SinglePK()]
		if err := phys.DeleteTxn(txn, target, pk); err != nil {
			return 0, err
		}

		if rule != nil && !rule.DeleteRow {
			anon := rec.Copy()
			for _, col := range rule.Columns {
				ci := st.Schema.ColumnIndex(col)
				if ci >= 0 {
					anon.Values[ci] = core.NullValue()
				}
			}
			if err := phys.PutTxn(txn, target, anon); err != nil {
				return 0, err
			}
			batches[st.Name] = append(batches[st.Name], rec.Negate(), anon)
			continue
		}

		if phys.CountShards(pk) == 0 {
			batches[st.Name] = append(batches[st.Name], rec.Negate())
		}
	}
	return len(rows), nil
}
