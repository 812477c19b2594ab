// Package index implements the in-memory (not KV-persisted) indices used by table
// storage (component D) and by the sharder's transitive chain lookups
// (component E): a PK index mapping a primary key to the set of shards
// holding a copy, and a value index mapping a column-value tuple to the
// set of (shard, pk) pairs matching it.
package index

import (
	"sync"

	"k9db/internal/core"
)

// ShardPK names one physical copy of a row: the shard it lives in and its
// primary key within that shard's table partition.
type ShardPK struct {
	Shard string
	PK    core.Value
}

// Index maps an ordered tuple of Values to a set of ShardPK entries. The
// same structure backs the per-table PK index (key = [pk], entries always
// length 1 per shard) and secondary/transitive-chain indices (key = the
// indexed column values).
type Index struct {
	mu     sync.RWMutex
	unique bool
	data   map[string][]ShardPK
}

// New creates an empty index. unique restricts each key to one entry
// (replacing rather than appending), matching a UNIQUE secondary index.
func New(unique bool) *Index {
	return &Index{unique: unique, data: make(map[string][]ShardPK)}
}

func encodeKey(values []core.Value) string {
	return string(core.Key{Values: values}.Encode())
}

// Add records that key maps to (shard, pk).
func (idx *Index) Add(key []core.Value, shard string, pk core.Value) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := encodeKey(key)
	entry := ShardPK{Shard: shard, PK: pk}
	if idx.unique {
		idx.data[k] = []ShardPK{entry}
		return
	}
	for _, e := range idx.data[k] {
		if e.Shard == shard && e.PK.Equal(pk) {
			return
		}
	}
	idx.data[k] = append(idx.data[k], entry)
}

// Remove deletes the (shard, pk) entry for key, if present.
func (idx *Index) Remove(key []core.Value, shard string, pk core.Value) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := encodeKey(key)
	entries := idx.data[k]
	out := entries[:0]
	for _, e := range entries {
		if e.Shard == shard && e.PK.Equal(pk) {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		delete(idx.data, k)
		return
	}
	idx.data[k] = out
}

// Lookup returns every (shard, pk) recorded for key.
func (idx *Index) Lookup(key []core.Value) []ShardPK {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entries := idx.data[encodeKey(key)]
	out := make([]ShardPK, len(entries))
	copy(out, entries)
	return out
}

// Shards returns the distinct set of shards recorded for key, deduplicated
// — the PK-index use case ("which shards hold a copy of this row").
func (idx *Index) Shards(key []core.Value) []string {
	entries := idx.Lookup(key)
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !seen[e.Shard] {
			seen[e.Shard] = true
			out = append(out, e.Shard)
		}
	}
	return out
}

// Count returns the number of distinct shards recorded for key — used to
// decide whether a GDPR FORGET's deletion of one copy should also emit a
// dataflow retraction (only once the last copy anywhere is gone).
func (idx *Index) Count(key []core.Value) int {
	return len(idx.Shards(key))
}

// All returns every (shard, pk) entry the index currently holds, across
// all keys — used for table-wide scans (spec.md allows these only for
// GDPR's access-dependent walk and dataflow bootstrap).
func (idx *Index) All() []ShardPK {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []ShardPK
	for _, entries := range idx.data {
		out = append(out, entries...)
	}
	return out
}

// Exists reports whether key has at least one entry.
func (idx *Index) Exists(key []core.Value) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.data[encodeKey(key)]) > 0
}
