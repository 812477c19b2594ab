package ops

import "k9db/internal/core"

// Union merges record batches from multiple parents sharing the same
// schema, passing every record through unchanged. Grounded on
// original_source/k9db/dataflow/ops/union.h; unlike the original's
// multi-parent Process(source, records) dispatch, the Go graph runner
// (internal/dataflow) calls Process once per parent batch and Union simply
// concatenates what it is given.
type Union struct {
	Schema *core.Schema
}

// NewUnion builds a Union operator over schema, shared by every parent.
func NewUnion(schema *core.Schema) *Union {
	return &Union{Schema: schema}
}

func (u *Union) Process(batch core.Batch) (core.Batch, error) {
	return batch, nil
}

func (u *Union) OutputSchema() *core.Schema { return u.Schema }
