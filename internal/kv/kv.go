// Package kv adapts github.com/dgraph-io/badger/v4, an embedded ordered
// key-value store, into the column-family-shaped engine component K9db's
// storage layer expects (component C). Badger has no native column-family
// concept, so families are modelled as a name prefix on every key — the
// same convention other badger-based systems in this codebase's retrieval
// pack use to multiplex several logical keyspaces over one store.
package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Txn.Get when the key is absent.
var ErrKeyNotFound = errors.New("kv: key not found")

// ErrConflict is returned when an Update transaction could not commit due
// to a concurrent conflicting write; callers should retry.
var ErrConflict = errors.New("kv: transaction conflict, retry")

// DefaultTxnTimeout bounds how long a write transaction may run before it
// is aborted and reported as a retryable conflict, mirroring the bounded
// row-lock hold time of the original storage engine.
const DefaultTxnTimeout = 10 * time.Second

// DB wraps a badger store.
type DB struct {
	bdb *badger.DB
}

// Open opens (creating if necessary) a KV store rooted at path. If
// inMemory is true, path is ignored and the store lives only in memory —
// used by tests.
func Open(path string, inMemory bool) (*DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = opts.WithInMemory(true)
	}
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: opening store: %w", err)
	}
	return &DB{bdb: bdb}, nil
}

// Close releases the underlying store.
func (d *DB) Close() error {
	if err := d.bdb.Close(); err != nil {
		return fmt.Errorf("kv: closing store: %w", err)
	}
	return nil
}

// familyKey namespaces key under family by prepending "<family>\x00".
func familyKey(family string, key []byte) []byte {
	out := make([]byte, 0, len(family)+1+len(key))
	out = append(out, family...)
	out = append(out, 0x00)
	out = append(out, key...)
	return out
}

// Txn is a single read or read-write transaction over the store.
type Txn struct {
	txn   *badger.Txn
	write bool
}

// View runs fn in a read-only snapshot transaction.
func (d *DB) View(fn func(txn *Txn) error) error {
	return d.bdb.View(func(t *badger.Txn) error {
		return fn(&Txn{txn: t, write: false})
	})
}

// Update runs fn in a read-write transaction bounded by DefaultTxnTimeout.
// A conflicting concurrent writer causes the commit to fail with
// ErrConflict. internal/rewrite does not retry: it wraps the error and
// returns it to its caller.
func (d *DB) Update(fn func(txn *Txn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTxnTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.bdb.Update(func(t *badger.Txn) error {
			return fn(&Txn{txn: t, write: true})
		})
	}()

	select {
	case err := <-done:
		if errors.Is(err, badger.ErrConflict) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("kv: transaction failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ErrConflict
	}
}

// Get reads a value by (family, key).
func (t *Txn) Get(family string, key []byte) ([]byte, error) {
	item, err := t.txn.Get(familyKey(family, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	var out []byte
	err = item.Value(func(v []byte) error {
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	return out, nil
}

// MultiGet reads several keys from the same family, returning
// ErrKeyNotFound entries as nil with no value rather than failing the
// whole batch.
func (t *Txn) MultiGet(family string, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := t.Get(family, k)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Put writes a value by (family, key).
func (t *Txn) Put(family string, key, value []byte) error {
	if !t.write {
		return fmt.Errorf("kv: Put called on read-only transaction")
	}
	if err := t.txn.Set(familyKey(family, key), value); err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

// Delete removes a key from family, if present.
func (t *Txn) Delete(family string, key []byte) error {
	if !t.write {
		return fmt.Errorf("kv: Delete called on read-only transaction")
	}
	if err := t.txn.Delete(familyKey(family, key)); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// Exists reports whether (family, key) is present.
func (t *Txn) Exists(family string, key []byte) (bool, error) {
	_, err := t.txn.Get(familyKey(family, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: exists: %w", err)
	}
	return true, nil
}

// Iterator walks all keys in family with the given prefix, in ascending
// byte order — the basis for shard-range scans (GetShard) and index
// lookups.
type Iterator struct {
	it       *badger.Iterator
	family   string
	prefix   []byte
	fullPfx  []byte
	err      error
}

// Iterator opens a prefix iterator over family, positioned at the first
// key >= prefix within that family.
func (t *Txn) Iterator(family string, prefix []byte) *Iterator {
	opts := badger.DefaultIteratorOptions
	fullPfx := familyKey(family, prefix)
	opts.Prefix = fullPfx
	it := t.txn.NewIterator(opts)
	it.Seek(fullPfx)
	return &Iterator{it: it, family: family, prefix: prefix, fullPfx: fullPfx}
}

// Valid reports whether the iterator is positioned at a matching entry.
func (i *Iterator) Valid() bool {
	return i.it.ValidForPrefix(i.fullPfx)
}

// Next advances the iterator.
func (i *Iterator) Next() { i.it.Next() }

// Key returns the current entry's key with the family prefix stripped.
func (i *Iterator) Key() []byte {
	full := i.it.Item().KeyCopy(nil)
	return full[bytes.IndexByte(full, 0x00)+1:]
}

// Value returns the current entry's value.
func (i *Iterator) Value() []byte {
	v, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		i.err = err
	}
	return v
}

// Err returns any error encountered while iterating.
func (i *Iterator) Err() error { return i.err }

// Close releases the iterator. Must be called when done.
func (i *Iterator) Close() { i.it.Close() }
