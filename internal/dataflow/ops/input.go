package ops

import "k9db/internal/core"

// Input is the entry point of a flow graph: the rewriter (internal/rewrite)
// pushes every committed record batch for one base table through the
// graph's Input operator(s) matching that table. Grounded on
// original_source/k9db/dataflow/ops/input.h.
type Input struct {
	TableName string
	Schema    *core.Schema
}

// NewInput builds an Input operator bound to the given base table's schema.
func NewInput(tableName string, schema *core.Schema) *Input {
	return &Input{TableName: tableName, Schema: schema}
}

// Process passes the batch through unchanged: an Input operator's only job
// is to tag a flow graph with which base table feeds it.
func (in *Input) Process(batch core.Batch) (core.Batch, error) {
	return batch, nil
}

// OutputSchema returns the base table's schema.
func (in *Input) OutputSchema() *core.Schema { return in.Schema }
