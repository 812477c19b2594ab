package rewrite

import (
	"encoding/binary"
	"fmt"

	"k9db/internal/core"
	"k9db/internal/kv"
	"k9db/internal/shard"
	"k9db/internal/sqlast"
	"k9db/internal/table"
)

// statementsFamily is the reserved on-disk column family holding every
// CREATE TABLE statement this database has run, keyed by the order it was
// executed in, so a reopened database can replay its schema and rebuild
// the in-memory ownership graph before serving its first statement.
const statementsFamily = "__statements__"

func statementSeqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// executeCreateTable registers a table with the sharder (building its
// ownership graph), opens its physical storage, and persists the raw
// statement under statementsFamily for a later ReloadPersistedStatements.
func (e *Engine) executeCreateTable(sql string) error {
	ct, err := sqlast.ParseCreateTable(sql)
	if err != nil {
		return err
	}
	if err := e.applyCreateTable(ct); err != nil {
		return err
	}
	seq := e.stmtSeq.Add(1) - 1
	return e.KV.Update(func(txn *kv.Txn) error {
		return txn.Put(statementsFamily, statementSeqKey(seq), []byte(ct.RawSQL))
	})
}

// applyCreateTable does the in-memory and physical-storage work of a
// CREATE TABLE: it's shared between executing a fresh statement and
// replaying a persisted one on reopen, where AUTO_INCREMENT must be
// restored from whatever rows the table's storage already has on disk
// rather than starting back at zero.
func (e *Engine) applyCreateTable(ct *sqlast.CreateTable) error {
	if err := e.Shards.CreateTable(ct); err != nil {
		return err
	}
	st, ok := e.Shards.Table(ct.Name)
	if !ok {
		return fmt.Errorf("rewrite: table %q missing from sharder state immediately after creation", ct.Name)
	}
	phys := table.New(ct.Name, st.Schema, e.KV, e.Crypto)
	for _, c := range ct.Constraints {
		if c.Kind == "UNIQUE" && len(c.Columns) == 1 {
			phys.CreateIndex(c.Columns[0], true)
		}
		if c.Kind == "INDEX" && len(c.Columns) == 1 {
			phys.CreateIndex(c.Columns[0], false)
		}
	}
	for _, c := range ct.Columns {
		if c.Unique {
			phys.CreateIndex(c.Name, true)
		}
	}
	e.tables[ct.Name] = phys

	max, err := restoreAutoIncrement(phys, st)
	if err != nil {
		return fmt.Errorf("rewrite: restoring AUTO_INCREMENT for %s: %w", ct.Name, err)
	}
	st.AutoIncrement.Store(max)
	return nil
}

// restoreAutoIncrement scans every row already in phys's physical storage
// (non-empty only on reopen, where storage predates this process) and
// returns the maximum value held by the table's AUTO_INCREMENT column, so
// the next generated value never collides with one written before restart.
func restoreAutoIncrement(phys *table.Table, st *shard.Table) (int64, error) {
	autoCol := -1
	for i, c := range st.Schema.Columns {
		if c.AutoInc {
			autoCol = i
			break
		}
	}
	if autoCol < 0 {
		return 0, nil
	}
	rows, err := phys.GetAll()
	if err != nil {
		return 0, err
	}
	var max int64
	for _, r := range rows {
		var n int64
		switch v := r.Values[autoCol]; v.Kind() {
		case core.KindUint:
			n = int64(v.Uint())
		case core.KindInt:
			n = v.Int()
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}
