package ops

import (
	"sort"
	"sync"

	"k9db/internal/core"
)

// MatViewKind selects a MatView's backing store, mirroring the three
// variants original_source/k9db/dataflow/ops/matview_benchmark.cc
// benchmarks against a shared interface: spec.md §4.I names them
// unordered (hash-keyed), key-ordered (sorted on the key columns), and
// record-ordered (sorted on a separate column list).
type MatViewKind int

const (
	Unordered MatViewKind = iota
	KeyOrdered
	RecordOrdered
)

// MatView is the terminal operator of a flow graph (component I/J's
// "state" node): it keeps the current positive rowset for a declared view,
// indexed by a key (not necessarily the base table's primary key), so
// reads against the view never need to replay the graph.
type MatView struct {
	Schema    *core.Schema
	KeyCols   []int
	Kind      MatViewKind
	OrderCols []int // RecordOrdered only: columns each key's bucket is sorted by

	mu       sync.RWMutex
	rows     map[string][]core.Record
	keys     map[string]core.Key // decoded key per encoded string, for KeyOrdered iteration
	ordered  []string            // KeyOrdered only: encoded keys kept sorted by Key.Compare
}

// NewMatView builds an unordered (hash-keyed) MatView, keyed by keyCols.
func NewMatView(schema *core.Schema, keyCols []int) *MatView {
	return newMatView(schema, keyCols, Unordered, nil)
}

// NewKeyOrderedMatView builds a MatView whose buckets are additionally
// iterable in ascending key order (All walks keys low to high).
func NewKeyOrderedMatView(schema *core.Schema, keyCols []int) *MatView {
	return newMatView(schema, keyCols, KeyOrdered, nil)
}

// NewRecordOrderedMatView builds a MatView whose per-key bucket is kept
// sorted by orderCols rather than insertion order, so Lookup's LIMIT/OFFSET
// windows a stable, meaningful ordering (e.g. "most recent Note per User").
func NewRecordOrderedMatView(schema *core.Schema, keyCols, orderCols []int) *MatView {
	return newMatView(schema, keyCols, RecordOrdered, orderCols)
}

func newMatView(schema *core.Schema, keyCols []int, kind MatViewKind, orderCols []int) *MatView {
	return &MatView{
		Schema:    schema,
		KeyCols:   keyCols,
		Kind:      kind,
		OrderCols: orderCols,
		rows:      make(map[string][]core.Record),
		keys:      make(map[string]core.Key),
	}
}

func (m *MatView) keyOf(rec core.Record) core.Key {
	return core.Key{Values: rec.Project(m.KeyCols)}
}

func (m *MatView) key(rec core.Record) string {
	return string(m.keyOf(rec).Encode())
}

// Process applies a batch of deltas to the view's current state. It always
// returns the input batch unchanged, so a MatView can sit in the middle of
// a graph (feeding further operators) as well as at its tail.
func (m *MatView) Process(batch core.Batch) (core.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range batch {
		enc := m.key(rec)
		if rec.Positive {
			if _, seen := m.rows[enc]; !seen {
				m.keys[enc] = m.keyOf(rec)
				if m.Kind == KeyOrdered {
					m.insertOrderedKey(enc)
				}
			}
			m.rows[enc] = append(m.rows[enc], rec)
			if m.Kind == RecordOrdered {
				m.sortBucket(enc)
			}
			continue
		}
		m.rows[enc] = removeRecord(m.rows[enc], rec)
		if len(m.rows[enc]) == 0 {
			delete(m.rows, enc)
			delete(m.keys, enc)
			if m.Kind == KeyOrdered {
				m.removeOrderedKey(enc)
			}
		}
	}
	return batch, nil
}

func (m *MatView) insertOrderedKey(enc string) {
	k := m.keys[enc]
	i := sort.Search(len(m.ordered), func(i int) bool {
		return m.keys[m.ordered[i]].Compare(k) >= 0
	})
	m.ordered = append(m.ordered, "")
	copy(m.ordered[i+1:], m.ordered[i:])
	m.ordered[i] = enc
}

func (m *MatView) removeOrderedKey(enc string) {
	for i, k := range m.ordered {
		if k == enc {
			m.ordered = append(m.ordered[:i], m.ordered[i+1:]...)
			return
		}
	}
}

func (m *MatView) sortBucket(enc string) {
	rows := m.rows[enc]
	sort.SliceStable(rows, func(i, j int) bool {
		a := core.Key{Values: rows[i].Project(m.OrderCols)}
		b := core.Key{Values: rows[j].Project(m.OrderCols)}
		return a.Compare(b) < 0
	})
}

// Lookup returns rows whose key columns equal keyValues, windowed by an
// optional LIMIT/OFFSET: limitOffset may be omitted (return the whole
// bucket), given as a single limit (-1 means unlimited), or a limit
// followed by an offset. Matches spec.md §4.I's "bounded LIMIT and OFFSET
// lookups against a key value".
func (m *MatView) Lookup(keyValues []core.Value, limitOffset ...int) []core.Record {
	limit, offset := -1, 0
	if len(limitOffset) > 0 {
		limit = limitOffset[0]
	}
	if len(limitOffset) > 1 {
		offset = limitOffset[1]
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	key := string(core.Key{Values: keyValues}.Encode())
	rows := m.rows[key]

	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]core.Record, len(rows))
	copy(out, rows)
	return out
}

// All returns every row currently held by the view, across all keys. For a
// KeyOrdered view, keys are visited in ascending order; otherwise order is
// unspecified.
func (m *MatView) All() []core.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Record
	if m.Kind == KeyOrdered {
		for _, enc := range m.ordered {
			out = append(out, m.rows[enc]...)
		}
		return out
	}
	for _, rows := range m.rows {
		out = append(out, rows...)
	}
	return out
}

// Count returns the number of distinct keys currently populated.
func (m *MatView) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *MatView) OutputSchema() *core.Schema { return m.Schema }
