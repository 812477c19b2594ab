// Package table implements per-table physical storage (component D): rows
// keyed by (shard, primary key), encrypted at rest, with PK and secondary
// indices maintained alongside every write.
package table

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/crypto"
	"k9db/internal/index"
	"k9db/internal/kv"
)

// DefaultShard is the placeholder shard rows land in when a base-table
// insert finds no owning shard yet (an orphan, tracked by
// internal/compliance until a later statement assigns real ownership).
const DefaultShard = "__default__"

// Table is the physical storage for one base table. Every mutating method
// comes in a Txn-taking form, so a whole statement's row moves
// (internal/rewrite) can be staged inside a single KV transaction and
// commit or roll back atomically; the plain methods below open their own
// single-operation transaction for standalone callers such as tooling and
// tests.
type Table struct {
	Name   string
	Schema *core.Schema

	db     *kv.DB
	crypto *crypto.Manager
	family string

	pkIndex   *index.Index
	secondary map[string]*index.Index // column name -> index
}

// New opens physical storage for a table over db, encrypting rows with
// mgr.
func New(name string, schema *core.Schema, db *kv.DB, mgr *crypto.Manager) *Table {
	return &Table{
		Name:      name,
		Schema:    schema,
		db:        db,
		crypto:    mgr,
		family:    "table:" + name,
		pkIndex:   index.New(false),
		secondary: make(map[string]*index.Index),
	}
}

// CreateIndex registers a secondary index over one column.
func (t *Table) CreateIndex(name string, unique bool) *index.Index {
	idx := index.New(unique)
	t.secondary[name] = idx
	return idx
}

// DB exposes the underlying store so internal/rewrite can open a shared
// transaction spanning several tables within one statement.
func (t *Table) DB() *kv.DB { return t.db }

func (t *Table) userIDFor(shard string) string {
	// The user id a shard's encryption key is rooted on is the shard name
	// itself for ordinary per-user shards; the default shard has no
	// encryption key of its own and instead borrows a fixed well-known id,
	// since orphaned rows aren't yet owned by any user.
	if shard == DefaultShard {
		return "__default__"
	}
	return shard
}

func (t *Table) rowKey(shard string, pk core.Value) ([]byte, error) {
	shardCT, err := t.crypto.EncryptShardName(shard)
	if err != nil {
		return nil, err
	}
	pkBytes := core.NewKey(pk).Encode()
	pkCT, err := t.crypto.EncryptPK(t.userIDFor(shard), pkBytes)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 0, len(shardCT)+len(pkCT))
	key = append(key, shardCT...)
	key = append(key, pkCT...)
	return key, nil
}

func (t *Table) shardPrefix(shard string) ([]byte, error) {
	return t.crypto.EncryptShardName(shard)
}

func (t *Table) encodeRecord(r core.Record) []byte {
	return core.Key{Values: r.Values}.Encode()
}

func (t *Table) decodeRecord(data []byte) (core.Record, error) {
	vals, err := core.DecodeValues(data, len(t.Schema.Columns))
	if err != nil {
		return core.Record{}, err
	}
	return core.NewRecord(t.Schema, vals), nil
}

// PutTxn writes a row into shard under txn, updating in-memory indices
// immediately (badger's MVCC means the write is only durable once txn
// commits, but the indices are process-local bookkeeping the caller is
// responsible for reconciling on a failed commit).
func (t *Table) PutTxn(txn *kv.Txn, shard string, record core.Record) error {
	pk := record.Values[t.Schema.SinglePK()]
	key, err := t.rowKey(shard, pk)
	if err != nil {
		return err
	}
	plain := t.encodeRecord(record)
	ct, err := t.crypto.EncryptValue(t.userIDFor(shard), plain)
	if err != nil {
		return err
	}
	if err := txn.Put(t.family, key, ct); err != nil {
		return fmt.Errorf("table %s: put: %w", t.Name, err)
	}
	t.pkIndex.Add([]core.Value{pk}, shard, pk)
	for col, idx := range t.secondary {
		ci := t.Schema.MustColumnIndex(col)
		idx.Add([]core.Value{record.Values[ci]}, shard, pk)
	}
	return nil
}

// Put is PutTxn wrapped in its own transaction, for standalone callers.
func (t *Table) Put(shard string, record core.Record) error {
	return t.db.Update(func(txn *kv.Txn) error {
		return t.PutTxn(txn, shard, record)
	})
}

// GetTxn reads the row at (shard, pk) within txn.
func (t *Table) GetTxn(txn *kv.Txn, shard string, pk core.Value) (core.Record, bool, error) {
	key, err := t.rowKey(shard, pk)
	if err != nil {
		return core.Record{}, false, err
	}
	ct, err := txn.Get(t.family, key)
	if err == kv.ErrKeyNotFound {
		return core.Record{}, false, nil
	}
	if err != nil {
		return core.Record{}, false, fmt.Errorf("table %s: get: %w", t.Name, err)
	}
	plain, err := t.crypto.DecryptValue(t.userIDFor(shard), ct)
	if err != nil {
		return core.Record{}, false, err
	}
	rec, err := t.decodeRecord(plain)
	return rec, true, err
}

// Get is GetTxn wrapped in its own read-only transaction.
func (t *Table) Get(shard string, pk core.Value) (core.Record, bool, error) {
	var (
		rec core.Record
		ok  bool
	)
	err := t.db.View(func(txn *kv.Txn) error {
		var err error
		rec, ok, err = t.GetTxn(txn, shard, pk)
		return err
	})
	return rec, ok, err
}

// DeleteTxn removes the row at (shard, pk) within txn and prunes its index
// entries.
func (t *Table) DeleteTxn(txn *kv.Txn, shard string, pk core.Value) error {
	key, err := t.rowKey(shard, pk)
	if err != nil {
		return err
	}
	if err := txn.Delete(t.family, key); err != nil {
		return fmt.Errorf("table %s: delete: %w", t.Name, err)
	}
	t.pkIndex.Remove([]core.Value{pk}, shard, pk)
	return nil
}

// Delete is DeleteTxn wrapped in its own transaction.
func (t *Table) Delete(shard string, pk core.Value) error {
	return t.db.Update(func(txn *kv.Txn) error {
		return t.DeleteTxn(txn, shard, pk)
	})
}

// Exists reports whether any shard holds a copy of pk.
func (t *Table) Exists(pk core.Value) bool {
	return t.pkIndex.Exists([]core.Value{pk})
}

// CountShards returns the number of distinct shards currently holding a
// copy of pk — the basis for the "retract only when the last copy is gone"
// GDPR FORGET rule.
func (t *Table) CountShards(pk core.Value) int {
	return t.pkIndex.Count([]core.Value{pk})
}

// Shards returns every shard currently holding a copy of pk.
func (t *Table) Shards(pk core.Value) []string {
	return t.pkIndex.Shards([]core.Value{pk})
}

// GetShardTxn returns every row currently stored in shard within txn, by
// prefix-scanning the encrypted shard-name prefix. Used by GDPR GET/FORGET
// (component H) and by dataflow bootstrapping.
func (t *Table) GetShardTxn(txn *kv.Txn, shard string) ([]core.Record, error) {
	prefix, err := t.shardPrefix(shard)
	if err != nil {
		return nil, err
	}
	var out []core.Record
	it := txn.Iterator(t.family, prefix)
	defer it.Close()
	for it.Valid() {
		plain, err := t.crypto.DecryptValue(t.userIDFor(shard), it.Value())
		if err != nil {
			return nil, err
		}
		rec, err := t.decodeRecord(plain)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		it.Next()
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("table %s: scan shard %s: %w", t.Name, shard, err)
	}
	return out, nil
}

// GetShard is GetShardTxn wrapped in its own read-only transaction.
func (t *Table) GetShard(shard string) ([]core.Record, error) {
	var out []core.Record
	err := t.db.View(func(txn *kv.Txn) error {
		var err error
		out, err = t.GetShardTxn(txn, shard)
		return err
	})
	return out, err
}

// GetAll returns every row in the table across all shards. Row keys are
// encrypted, so a raw keyspace scan can't be decrypted without already
// knowing which shard produced a given key; instead this walks the
// process-local PK index, which records every (shard, pk) pair ever
// written, and re-reads each one. Reserved for the two places spec.md
// allows a table-wide scan: GDPR's access-dependent working-set walk, and
// dataflow's initial view population.
func (t *Table) GetAll() ([]core.Record, error) {
	return t.MultiGet(t.pkIndex.All())
}

// MultiGet reads several (shard, pk) pairs in one pass, skipping misses.
func (t *Table) MultiGet(pairs []index.ShardPK) ([]core.Record, error) {
	out := make([]core.Record, 0, len(pairs))
	err := t.db.View(func(txn *kv.Txn) error {
		for _, p := range pairs {
			r, ok, err := t.GetTxn(txn, p.Shard, p.PK)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}
