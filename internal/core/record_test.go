package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"k9db/internal/core"
)

func userSchema(t *testing.T) *core.Schema {
	t.Helper()
	s, err := core.NewSchema([]core.Column{
		{Name: "id", Type: core.TypeUint, NotNull: true},
		{Name: "name", Type: core.TypeText},
	}, []string{"id"})
	require.NoError(t, err)
	return s
}

func TestRecordKeyAndUpdate(t *testing.T) {
	s := userSchema(t)
	r := core.NewRecord(s, []core.Value{core.UintValue(7), core.TextValue("alice")})

	key := r.Key()
	require.Len(t, key.Values, 1)
	require.True(t, key.Values[0].Equal(core.UintValue(7)))

	updated := r.Update(core.UpdateMap{1: core.TextValue("bob")})
	require.True(t, updated.Positive)
	require.Equal(t, "bob", updated.Values[1].Text())
	require.Equal(t, "alice", r.Values[1].Text(), "original record must not be mutated")

	neg := r.Negate()
	require.False(t, neg.Positive)
	require.True(t, r.Equal(neg.Negate()))
}

func TestValueCompatibilityAndOrdering(t *testing.T) {
	require.True(t, core.UintValue(3).Equal(core.IntValue(3)))
	require.False(t, core.IntValue(-1).Equal(core.UintValue(0)))
	require.Equal(t, -1, core.NullValue().Compare(core.UintValue(0)))
	require.Equal(t, 0, core.TextValue("a").Compare(core.DatetimeValue("a")))
}

func TestKeyEncodeDeterministic(t *testing.T) {
	k1 := core.NewKey(core.UintValue(1), core.TextValue("x"))
	k2 := core.NewKey(core.UintValue(1), core.TextValue("x"))
	require.Equal(t, k1.Encode(), k2.Encode())
	require.Equal(t, k1.Hash(), k2.Hash())

	k3 := core.NewKey(core.UintValue(2), core.TextValue("x"))
	require.NotEqual(t, k1.Encode(), k3.Encode())
}

func TestBatchSplit(t *testing.T) {
	s := userSchema(t)
	pos := core.NewRecord(s, []core.Value{core.UintValue(1), core.TextValue("a")})
	neg := pos.Negate()
	batch := core.Batch{pos, neg}
	require.Len(t, batch.Positives(), 1)
	require.Len(t, batch.Negatives(), 1)
}
