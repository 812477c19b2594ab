package ops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"k9db/internal/core"
)

func schemaUintUint(a, b string) *core.Schema {
	return &core.Schema{Columns: []core.Column{
		{Name: a, Type: core.TypeUint},
		{Name: b, Type: core.TypeUint},
	}, PK: []int{0}}
}

func rec(schema *core.Schema, positive bool, vals ...core.Value) core.Record {
	return core.Record{Schema: schema, Values: vals, Positive: positive}
}

func TestFilterGreaterOrEqual(t *testing.T) {
	schema := schemaUintUint("id", "age")
	f := NewFilter(schema)
	f.AddCondition(FilterCondition{Left: 1, Op: FilterGE, Literal: core.UintValue(18)})

	batch := core.Batch{
		rec(schema, true, core.UintValue(1), core.UintValue(10)),
		rec(schema, true, core.UintValue(2), core.UintValue(21)),
	}
	out, err := f.Process(batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(2), out[0].Values[0].Uint())
}

func TestProjectColumnAndLiteral(t *testing.T) {
	schema := schemaUintUint("id", "age")
	p := NewProject(schema)
	p.AddColumn("id", 0)
	p.AddLiteral("tag", core.TextValue("adult"), core.TypeText)

	out, err := p.Process(core.Batch{rec(schema, true, core.UintValue(5), core.UintValue(40))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(5), out[0].Values[0].Uint())
	require.Equal(t, "adult", out[0].Values[1].Text())
}

func TestAggregateCountIncremental(t *testing.T) {
	schema := schemaUintUint("group_id", "amount")
	agg := NewAggregate(schema, []int{0}, AggCount, 1, "cnt")

	out, err := agg.Process(core.Batch{
		rec(schema, true, core.UintValue(1), core.UintValue(10)),
		rec(schema, true, core.UintValue(1), core.UintValue(20)),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(2), out[0].Values[1].Uint())

	out, err = agg.Process(core.Batch{
		rec(schema, false, core.UintValue(1), core.UintValue(10)),
	})
	require.NoError(t, err)
	require.Len(t, out, 2) // retract old count(2), insert new count(1)
	require.False(t, out[0].Positive)
	require.True(t, out[1].Positive)
	require.Equal(t, uint64(1), out[1].Values[1].Uint())
}

func TestAggregateSumDepletesToZeroRemovesGroup(t *testing.T) {
	schema := schemaUintUint("group_id", "amount")
	agg := NewAggregate(schema, []int{0}, AggSum, 1, "total")

	_, err := agg.Process(core.Batch{rec(schema, true, core.UintValue(9), core.UintValue(5))})
	require.NoError(t, err)

	out, err := agg.Process(core.Batch{rec(schema, false, core.UintValue(9), core.UintValue(5))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Positive)
	_, tracked := agg.state[string(core.Key{Values: []core.Value{core.UintValue(9)}}.Encode())]
	require.False(t, tracked)
}

func TestAggregateSumGoingNegativeOnUnsignedColumnPanics(t *testing.T) {
	schema := schemaUintUint("group_id", "amount")
	agg := NewAggregate(schema, []int{0}, AggSum, 1, "total")

	_, err := agg.Process(core.Batch{rec(schema, true, core.UintValue(1), core.UintValue(5))})
	require.NoError(t, err)

	// A negative for a larger amount than the group ever positively saw:
	// the running uint sum would wrap around instead of going negative.
	require.Panics(t, func() {
		agg.Process(core.Batch{rec(schema, false, core.UintValue(1), core.UintValue(9))})
	})
}

func TestEquiJoinMatchesBothDirections(t *testing.T) {
	left := schemaUintUint("uid", "left_val")
	right := schemaUintUint("uid", "right_val")
	j := NewEquiJoin(left, right, 0, 0, JoinInner)

	out, err := j.ProcessLeft(core.Batch{rec(left, true, core.UintValue(1), core.UintValue(100))})
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = j.ProcessRight(core.Batch{rec(right, true, core.UintValue(1), core.UintValue(200))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(100), out[0].Values[1].Uint())
	require.Equal(t, uint64(200), out[0].Values[2].Uint())
}

func TestEquiJoinLeftNullPadsAndRetractsOnMatch(t *testing.T) {
	left := schemaUintUint("uid", "left_val")
	right := schemaUintUint("uid", "right_val")
	j := NewEquiJoin(left, right, 0, 0, JoinLeft)

	// Left row with no right match yet: emits one null-padded row.
	out, err := j.ProcessLeft(core.Batch{rec(left, true, core.UintValue(1), core.UintValue(100))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Positive)
	require.True(t, out[0].Values[2].IsNull())

	// A matching right row arrives: the null-padded row is retracted and the
	// real join row is emitted.
	out, err = j.ProcessRight(core.Batch{rec(right, true, core.UintValue(1), core.UintValue(200))})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[0].Positive)
	require.True(t, out[0].Values[2].IsNull())
	require.True(t, out[1].Positive)
	require.Equal(t, uint64(200), out[1].Values[2].Uint())

	// The right row leaves: the real join row retracts and a fresh
	// null-padded row replaces it.
	out, err = j.ProcessRight(core.Batch{rec(right, false, core.UintValue(1), core.UintValue(200))})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[0].Positive)
	require.Equal(t, uint64(200), out[0].Values[2].Uint())
	require.True(t, out[1].Positive)
	require.True(t, out[1].Values[2].IsNull())
}

func TestEquiJoinRightNullPadsUnmatchedRight(t *testing.T) {
	left := schemaUintUint("uid", "left_val")
	right := schemaUintUint("uid", "right_val")
	j := NewEquiJoin(left, right, 0, 0, JoinRight)

	out, err := j.ProcessRight(core.Batch{rec(right, true, core.UintValue(1), core.UintValue(200))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Positive)
	require.True(t, out[0].Values[0].IsNull())

	out, err = j.ProcessLeft(core.Batch{rec(left, true, core.UintValue(1), core.UintValue(100))})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[0].Positive)
	require.True(t, out[0].Values[0].IsNull())
	require.True(t, out[1].Positive)
	require.Equal(t, uint64(100), out[1].Values[1].Uint())
}

func TestMatViewLookupAndRetract(t *testing.T) {
	schema := schemaUintUint("uid", "val")
	mv := NewMatView(schema, []int{0})

	_, err := mv.Process(core.Batch{rec(schema, true, core.UintValue(1), core.UintValue(42))})
	require.NoError(t, err)
	require.Len(t, mv.Lookup([]core.Value{core.UintValue(1)}), 1)

	_, err = mv.Process(core.Batch{rec(schema, false, core.UintValue(1), core.UintValue(42))})
	require.NoError(t, err)
	require.Empty(t, mv.Lookup([]core.Value{core.UintValue(1)}))
}

func TestMatViewLookupLimitOffset(t *testing.T) {
	schema := schemaUintUint("uid", "val")
	mv := NewMatView(schema, []int{0})

	_, err := mv.Process(core.Batch{
		rec(schema, true, core.UintValue(1), core.UintValue(10)),
		rec(schema, true, core.UintValue(1), core.UintValue(20)),
		rec(schema, true, core.UintValue(1), core.UintValue(30)),
	})
	require.NoError(t, err)

	require.Len(t, mv.Lookup([]core.Value{core.UintValue(1)}), 3)
	require.Len(t, mv.Lookup([]core.Value{core.UintValue(1)}, 2), 2)
	require.Len(t, mv.Lookup([]core.Value{core.UintValue(1)}, 2, 2), 1)
	require.Empty(t, mv.Lookup([]core.Value{core.UintValue(1)}, 2, 10))
}

func TestKeyOrderedMatViewAllVisitsKeysAscending(t *testing.T) {
	schema := schemaUintUint("uid", "val")
	mv := NewKeyOrderedMatView(schema, []int{0})

	_, err := mv.Process(core.Batch{
		rec(schema, true, core.UintValue(3), core.UintValue(1)),
		rec(schema, true, core.UintValue(1), core.UintValue(2)),
		rec(schema, true, core.UintValue(2), core.UintValue(3)),
	})
	require.NoError(t, err)

	all := mv.All()
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Values[0].Uint())
	require.Equal(t, uint64(2), all[1].Values[0].Uint())
	require.Equal(t, uint64(3), all[2].Values[0].Uint())

	_, err = mv.Process(core.Batch{rec(schema, false, core.UintValue(2), core.UintValue(3))})
	require.NoError(t, err)
	all = mv.All()
	require.Len(t, all, 2)
	require.Equal(t, uint64(1), all[0].Values[0].Uint())
	require.Equal(t, uint64(3), all[1].Values[0].Uint())
}

func TestRecordOrderedMatViewSortsBucketByOrderCols(t *testing.T) {
	schema := schemaUintUint("uid", "val")
	mv := NewRecordOrderedMatView(schema, []int{0}, []int{1})

	_, err := mv.Process(core.Batch{
		rec(schema, true, core.UintValue(1), core.UintValue(30)),
		rec(schema, true, core.UintValue(1), core.UintValue(10)),
		rec(schema, true, core.UintValue(1), core.UintValue(20)),
	})
	require.NoError(t, err)

	rows := mv.Lookup([]core.Value{core.UintValue(1)})
	require.Len(t, rows, 3)
	require.Equal(t, uint64(10), rows[0].Values[1].Uint())
	require.Equal(t, uint64(20), rows[1].Values[1].Uint())
	require.Equal(t, uint64(30), rows[2].Values[1].Uint())

	rows = mv.Lookup([]core.Value{core.UintValue(1)}, 1, 1)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(20), rows[0].Values[1].Uint())
}

func TestExchangeRoutesByKey(t *testing.T) {
	schema := schemaUintUint("uid", "val")
	ex := NewExchange(schema, []int{0}, 4)
	batch := core.Batch{
		rec(schema, true, core.UintValue(1), core.UintValue(1)),
		rec(schema, true, core.UintValue(2), core.UintValue(2)),
	}
	routed := ex.Route(batch)
	total := 0
	for _, b := range routed {
		total += len(b)
	}
	require.Equal(t, 2, total)
}
