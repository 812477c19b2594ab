package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"k9db/internal/core"
	"k9db/internal/dataflow/ops"
)

func ordersSchema() *core.Schema {
	return &core.Schema{
		Columns: []core.Column{
			{Name: "order_id", Type: core.TypeUint},
			{Name: "customer_id", Type: core.TypeUint},
			{Name: "amount", Type: core.TypeUint},
		},
		PK: []int{0},
	}
}

func TestFlowFeedsInputThroughFilterAggregateToMatview(t *testing.T) {
	schema := ordersSchema()
	flow := NewFlow("customer_totals")
	in := flow.AddInputOperator("orders", schema)
	filterIdx, filter := flow.AddFilterOperator(in)
	filter.AddCondition(ops.FilterCondition{Left: 2, Op: ops.FilterGE, Literal: core.UintValue(10)})
	aggIdx := flow.AddAggregateOperator(filterIdx, []int{1}, ops.AggSum, 2, "total")
	flow.AddMatviewOperator(aggIdx, "totals", []int{0})

	batch := core.Batch{
		{Schema: schema, Positive: true, Values: []core.Value{core.UintValue(1), core.UintValue(100), core.UintValue(5)}},
		{Schema: schema, Positive: true, Values: []core.Value{core.UintValue(2), core.UintValue(100), core.UintValue(50)}},
		{Schema: schema, Positive: true, Values: []core.Value{core.UintValue(3), core.UintValue(200), core.UintValue(30)}},
	}
	require.NoError(t, flow.Feed("orders", batch))

	view, ok := flow.View("totals")
	require.True(t, ok)
	rows := view.Lookup([]core.Value{core.UintValue(100)})
	require.Len(t, rows, 1)
	require.Equal(t, uint64(50), rows[0].Values[1].Uint())

	rows = view.Lookup([]core.Value{core.UintValue(200)})
	require.Len(t, rows, 1)
	require.Equal(t, uint64(30), rows[0].Values[1].Uint())
}

func TestEngineRoutesToMultipleFlows(t *testing.T) {
	schema := ordersSchema()
	engine := NewEngine()

	f1 := NewFlow("flow1")
	in1 := f1.AddInputOperator("orders", schema)
	f1.AddMatviewOperator(in1, "raw", []int{0})
	engine.AddFlow(f1)

	f2 := NewFlow("flow2")
	in2 := f2.AddInputOperator("orders", schema)
	aggIdx := f2.AddAggregateOperator(in2, []int{1}, ops.AggCount, 2, "cnt")
	f2.AddMatviewOperator(aggIdx, "counts", []int{0})
	engine.AddFlow(f2)

	batch := core.Batch{
		{Schema: schema, Positive: true, Values: []core.Value{core.UintValue(1), core.UintValue(7), core.UintValue(1)}},
	}
	require.NoError(t, engine.ProcessRecords("orders", batch))

	rows, err := engine.Lookup("flow1", "raw", []core.Value{core.UintValue(1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = engine.Lookup("flow2", "counts", []core.Value{core.UintValue(7)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(1), rows[0].Values[1].Uint())
}
