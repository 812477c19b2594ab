// Package dataflow assembles and runs K9db's incremental-view-maintenance
// graphs (component J): it owns one Flow per declared view, wires its
// operators (internal/dataflow/ops) into a DAG, and routes every committed
// record batch from the rewriter into the flow(s) that read from the
// affected base table. Grounded on
// original_source/k9db/dataflow/{generator.h,graph.h,types.h}.
package dataflow

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/dataflow/ops"
)

// side identifies which input of a two-input operator (only EquiJoin today)
// an edge feeds.
type side int

const (
	sideDefault side = iota
	sideLeft
	sideRight
)

type edge struct {
	to   int
	side side
}

// Flow is one materialized view's dataflow graph: a DAG of operators rooted
// at one or more Input nodes and terminating in at least one MatView.
// Mirrors the original's DataFlowGraphPartition, built incrementally the
// way DataFlowGraphGenerator does (see generator.h) — AddXxxOperator
// methods append a node and return its index for wiring as a later node's
// parent.
type Flow struct {
	Name string

	nodes    []ops.Operator
	children map[int][]edge
	inputs   map[string]int // base table name -> input node index
	views    map[string]int // view name -> matview node index
}

// NewFlow starts an empty flow graph named name.
func NewFlow(name string) *Flow {
	return &Flow{
		Name:     name,
		children: make(map[int][]edge),
		inputs:   make(map[string]int),
		views:    make(map[string]int),
	}
}

func (f *Flow) addNode(op ops.Operator) int {
	f.nodes = append(f.nodes, op)
	return len(f.nodes) - 1
}

func (f *Flow) connect(parent, child int, s side) {
	f.children[parent] = append(f.children[parent], edge{to: child, side: s})
}

// AddInputOperator registers tableName as a base-table source for this
// flow and returns its node index.
func (f *Flow) AddInputOperator(tableName string, schema *core.Schema) int {
	idx := f.addNode(ops.NewInput(tableName, schema))
	f.inputs[tableName] = idx
	return idx
}

// AddUnionOperator merges several parents sharing a schema.
func (f *Flow) AddUnionOperator(schema *core.Schema, parents ...int) int {
	idx := f.addNode(ops.NewUnion(schema))
	for _, p := range parents {
		f.connect(p, idx, sideDefault)
	}
	return idx
}

// AddIdentityOperator inserts a pass-through node after parent.
func (f *Flow) AddIdentityOperator(parent int) int {
	idx := f.addNode(ops.NewIdentity(f.nodes[parent].OutputSchema()))
	f.connect(parent, idx, sideDefault)
	return idx
}

// AddFilterOperator attaches a Filter fed by parent; the returned *Filter
// is configured with AddCondition before the flow runs.
func (f *Flow) AddFilterOperator(parent int) (int, *ops.Filter) {
	filter := ops.NewFilter(f.nodes[parent].OutputSchema())
	idx := f.addNode(filter)
	f.connect(parent, idx, sideDefault)
	return idx, filter
}

// AddProjectOperator attaches a Project fed by parent; the returned
// *Project is configured with AddColumn/AddLiteral/AddArithmetic before the
// flow runs.
func (f *Flow) AddProjectOperator(parent int) (int, *ops.Project) {
	proj := ops.NewProject(f.nodes[parent].OutputSchema())
	idx := f.addNode(proj)
	f.connect(parent, idx, sideDefault)
	return idx, proj
}

// AddAggregateOperator attaches an Aggregate fed by parent.
func (f *Flow) AddAggregateOperator(parent int, groupCols []int, fn ops.AggregateFunction, aggCol int, aggColName string) int {
	agg := ops.NewAggregate(f.nodes[parent].OutputSchema(), groupCols, fn, aggCol, aggColName)
	idx := f.addNode(agg)
	f.connect(parent, idx, sideDefault)
	return idx
}

// AddJoinOperator attaches an EquiJoin fed by leftParent and rightParent on
// the given columns and join mode (ops.JoinInner/JoinLeft/JoinRight).
func (f *Flow) AddJoinOperator(leftParent, rightParent, leftCol, rightCol int, mode ops.JoinMode) int {
	join := ops.NewEquiJoin(f.nodes[leftParent].OutputSchema(), f.nodes[rightParent].OutputSchema(), leftCol, rightCol, mode)
	idx := f.addNode(join)
	f.connect(leftParent, idx, sideLeft)
	f.connect(rightParent, idx, sideRight)
	return idx
}

// AddMatviewOperator attaches an unordered MatView fed by parent, keyed by
// keyCols, and registers it as a named, queryable output view of this flow.
func (f *Flow) AddMatviewOperator(parent int, viewName string, keyCols []int) int {
	return f.addMatview(parent, viewName, ops.NewMatView(f.nodes[parent].OutputSchema(), keyCols))
}

// AddKeyOrderedMatviewOperator attaches a MatView whose keys are kept in
// ascending sorted order, for views that need an ordered key scan.
func (f *Flow) AddKeyOrderedMatviewOperator(parent int, viewName string, keyCols []int) int {
	return f.addMatview(parent, viewName, ops.NewKeyOrderedMatView(f.nodes[parent].OutputSchema(), keyCols))
}

// AddRecordOrderedMatviewOperator attaches a MatView whose per-key rows are
// kept sorted by orderCols (e.g. an ORDER BY clause), independent of the
// key columns themselves.
func (f *Flow) AddRecordOrderedMatviewOperator(parent int, viewName string, keyCols, orderCols []int) int {
	return f.addMatview(parent, viewName, ops.NewRecordOrderedMatView(f.nodes[parent].OutputSchema(), keyCols, orderCols))
}

func (f *Flow) addMatview(parent int, viewName string, mv *ops.MatView) int {
	idx := f.addNode(mv)
	f.connect(parent, idx, sideDefault)
	f.views[viewName] = idx
	return idx
}

// View returns the named matview, if this flow declares one by that name.
func (f *Flow) View(name string) (*ops.MatView, bool) {
	idx, ok := f.views[name]
	if !ok {
		return nil, false
	}
	mv, ok := f.nodes[idx].(*ops.MatView)
	return mv, ok
}

// Views returns every matview this flow declares, by name.
func (f *Flow) Views() map[string]*ops.MatView {
	out := make(map[string]*ops.MatView, len(f.views))
	for name, idx := range f.views {
		if mv, ok := f.nodes[idx].(*ops.MatView); ok {
			out[name] = mv
		}
	}
	return out
}

// Feed pushes a batch from base table tableName into the flow, if the flow
// reads from that table, propagating through every downstream operator.
func (f *Flow) Feed(tableName string, batch core.Batch) error {
	idx, ok := f.inputs[tableName]
	if !ok || len(batch) == 0 {
		return nil
	}
	return f.push(idx, sideDefault, batch)
}

func (f *Flow) push(nodeIdx int, s side, batch core.Batch) error {
	op := f.nodes[nodeIdx]
	var out core.Batch
	var err error
	if join, ok := op.(*ops.EquiJoin); ok {
		switch s {
		case sideLeft:
			out, err = join.ProcessLeft(batch)
		case sideRight:
			out, err = join.ProcessRight(batch)
		default:
			return fmt.Errorf("dataflow: join node %d fed without a declared side", nodeIdx)
		}
	} else {
		out, err = op.Process(batch)
	}
	if err != nil {
		return fmt.Errorf("dataflow: flow %s node %d: %w", f.Name, nodeIdx, err)
	}
	if len(out) == 0 {
		return nil
	}
	for _, e := range f.children[nodeIdx] {
		if err := f.push(e.to, e.side, out); err != nil {
			return err
		}
	}
	return nil
}
