package rewrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"k9db/internal/core"
	"k9db/internal/crypto"
	"k9db/internal/kv"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := kv.Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := crypto.NewManager(db)
	require.NoError(t, err)

	return NewEngine(db, mgr, nil)
}

// spySink is a FlowSink that just records every batch it's handed, keyed by
// table, so a test can assert on exactly what the dataflow engine would have
// seen without standing up a real Flow.
type spySink struct {
	batches map[string]core.Batch
}

func (s *spySink) ProcessRecords(table string, batch core.Batch) error {
	if s.batches == nil {
		s.batches = make(map[string]core.Batch)
	}
	s.batches[table] = append(s.batches[table], batch...)
	return nil
}

func newTestEngineWithSink(t *testing.T) (*Engine, *spySink) {
	t.Helper()
	db, err := kv.Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := crypto.NewManager(db)
	require.NoError(t, err)

	sink := &spySink{}
	return NewEngine(db, mgr, sink), sink
}

// TestShardedInsertAndIsolation is seed scenario 1: a sharded insert must
// make each User's rows visible only via that User's own GDPR GET.
func TestShardedInsertAndIsolation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (2, 'B')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (10, 1, 'x')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (11, 2, 'y')`)
	require.NoError(t, err)

	res, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	res2, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 2)

	for _, rec := range res.Rows {
		if ci := rec.Schema.ColumnIndex("author"); ci >= 0 {
			require.Equal(t, int64(1), rec.Values[ci].Int())
		}
	}
}

// TestTransitiveOwnership is seed scenario 2: a row owned through a
// transitive OWNED_BY chain must surface in the same owner's GDPR GET.
func TestTransitiveOwnership(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Tag (id INT PRIMARY KEY, note INT OWNED_BY Note(id), label TEXT)`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (2, 'B')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (10, 1, 'x')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Tag (id, note, label) VALUES (100, 10, 'red')`)
	require.NoError(t, err)

	res, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3) // User(1), Note(10), Tag(100)

	res2, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 1) // User(2) only
}

// TestOrphanAndReclaim is seed scenario 6: a row whose owner column is
// NULL lands in the default shard as a tracked orphan, and a later UPDATE
// that assigns it an owner moves it out.
func TestOrphanAndReclaim(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT NULL OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (20, NULL, 'orphan')`)
	require.NoError(t, err)

	res, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1) // User(1) only; the orphan Note isn't User 1's

	_, err = e.Execute(`UPDATE Note SET author = 1 WHERE id = 20`)
	require.NoError(t, err)

	res2, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 2) // User(1) and the reclaimed Note(20)
}

// TestUpdateMovesShards is seed scenario 5: an UPDATE that changes an
// ownership column's value must move the row (and its transitive
// dependents) from the old owner's shard to the new owner's shard.
func TestUpdateMovesShards(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Tag (id INT PRIMARY KEY, note INT OWNED_BY Note(id), label TEXT)`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (2, 'B')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (10, 1, 'x')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Tag (id, note, label) VALUES (100, 10, 'red')`)
	require.NoError(t, err)

	res1, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res1.Rows, 3) // User(1), Note(10), Tag(100)

	res2, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 1) // User(2) only

	_, err = e.Execute(`UPDATE Note SET author = 2 WHERE id = 10`)
	require.NoError(t, err)

	res1b, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res1b.Rows, 1) // only User(1) remains

	res2b, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2b.Rows, 3) // User(2), Note(10), Tag(100) followed it
}

func TestSelectProjectsColumns(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)

	res, err := e.Execute(`SELECT name FROM User`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Rows[0].Values, 1)
	require.Equal(t, "A", res.Rows[0].Values[0].Text())
}

func TestDeleteRemovesRow(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)

	res, err := e.Execute(`DELETE FROM User WHERE id = 1`)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsAffected)

	sel, err := e.Execute(`SELECT id FROM User WHERE id = 1`)
	require.NoError(t, err)
	require.Empty(t, sel.Rows)
}

// TestVariableOwnershipCascade is seed scenario 3: a table declaring OWNS
// on a data-subject table must, once it lands in some other owner's shard
// itself, cascade a copy of the OWNS target into that same shard.
func TestVariableOwnershipCascade(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Team (gid INT PRIMARY KEY) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Membership (id INT PRIMARY KEY, uid INT OWNED_BY User(id), gid INT OWNS Team(gid))`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Team (gid) VALUES (7)`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Membership (id, uid, gid) VALUES (1, 1, 7)`)
	require.NoError(t, err)

	res, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3) // User(1), Membership(1), Team(7) cascaded in via OWNS
}

// TestGDPRForgetSharedRowViaReplace is seed scenario 4: a row owned through
// two independent paths must survive a FORGET that only removes one of
// them, and a REPLACE that changes which path shares it must move the
// shared copy rather than leaving a stale one behind.
func TestGDPRForgetSharedRowViaReplace(t *testing.T) {
	e, sink := newTestEngineWithSink(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Share (id INT PRIMARY KEY, viewer INT OWNED_BY User(id), note INT OWNS Note(id))`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (2, 'B')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (3, 'C')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (10, 1, 'x')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (12, 1, 'shared')`)
	require.NoError(t, err)

	// First REPLACE (PK doesn't exist yet, so it's an insert): shares Note
	// 12 into User 2's shard via the Variable OWNS cascade.
	_, err = e.Execute(`REPLACE INTO Share (id, viewer, note) VALUES (1, 2, 12)`)
	require.NoError(t, err)

	res2, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 3) // User(2), Share(1), Note(12) shared in

	// Second REPLACE re-targets the share at User 3: the Note 12 copy must
	// move out of User 2's shard and into User 3's.
	_, err = e.Execute(`REPLACE INTO Share (id, viewer, note) VALUES (1, 3, 12)`)
	require.NoError(t, err)

	res2b, err := e.Execute(`GDPR GET User 2`)
	require.NoError(t, err)
	require.Len(t, res2b.Rows, 1) // User(2) only; the shared Note/Share moved away

	res3, err := e.Execute(`GDPR GET User 3`)
	require.NoError(t, err)
	require.Len(t, res3.Rows, 3) // User(3), Share(1), Note(12)

	_, err = e.Execute(`GDPR FORGET User 1`)
	require.NoError(t, err)

	res1, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Empty(t, res1.Rows)

	res3b, err := e.Execute(`GDPR GET User 3`)
	require.NoError(t, err)
	require.Len(t, res3b.Rows, 3) // Note 12 is still reachable via User 3's share

	sel, err := e.Execute(`SELECT id FROM Note WHERE id = 10`)
	require.NoError(t, err)
	require.Empty(t, sel.Rows) // Note 10 had only the one owning path: fully gone

	// The dataflow engine must have seen exactly one retraction for Note,
	// covering row 10 (the two-hop rule: Note 12 is still live via User 3,
	// so it isn't retracted).
	noteBatch := sink.batches["Note"]
	var retracted []core.Value
	for _, rec := range noteBatch {
		if !rec.Positive {
			retracted = append(retracted, rec.Values[0])
		}
	}
	require.Len(t, retracted, 1)
	require.Equal(t, int64(10), retracted[0].Int())
}

// TestGDPRForgetDestroysKeyMaterialAndDataflow exercises a plain FORGET
// end to end: physical rows disappear, the shard's key material is
// destroyed, and the dataflow engine receives exactly the negative record
// for the forgotten row.
func TestGDPRForgetDestroysKeyMaterialAndDataflow(t *testing.T) {
	e, sink := newTestEngineWithSink(t)

	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	_, err = e.Execute(`CREATE TABLE Note (id INT PRIMARY KEY, author INT OWNED_BY User(id), body TEXT)`)
	require.NoError(t, err)

	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	_, err = e.Execute(`INSERT INTO Note (id, author, body) VALUES (20, 1, 'x')`)
	require.NoError(t, err)

	sink.batches = nil // drop the inserts' positive deltas; check only FORGET's
	res, err := e.Execute(`GDPR FORGET User 1`)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowsAffected) // User(1) and Note(20)

	sel, err := e.Execute(`SELECT id FROM Note WHERE id = 20`)
	require.NoError(t, err)
	require.Empty(t, sel.Rows)

	userBatch := sink.batches["User"]
	require.Len(t, userBatch, 1)
	require.False(t, userBatch[0].Positive)

	noteBatch := sink.batches["Note"]
	require.Len(t, noteBatch, 1)
	require.False(t, noteBatch[0].Positive)
	require.Equal(t, int64(20), noteBatch[0].Values[0].Int())

	// Reinserting a new User reusing id 1 must never see stale data, and
	// its key material must be fresh (ForgetUser destroyed the old key).
	_, err = e.Execute(`INSERT INTO User (id, name) VALUES (1, 'A2')`)
	require.NoError(t, err)
	res2, err := e.Execute(`GDPR GET User 1`)
	require.NoError(t, err)
	require.Len(t, res2.Rows, 1) // only the fresh User row; no leaked Note
}

func TestExplainDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(`CREATE TABLE User (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)

	res, err := e.Execute(`EXPLAIN INSERT INTO User (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)
	require.NotEmpty(t, res.Plan)

	sel, err := e.Execute(`SELECT id FROM User`)
	require.NoError(t, err)
	require.Empty(t, sel.Rows)
}
