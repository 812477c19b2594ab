package ops

import "k9db/internal/core"

// Identity passes records through unchanged. Used where the flow graph
// needs a stable node identity without transforming records — e.g. joining
// two branches of a DAG back together. Grounded on
// original_source/k9db/dataflow/ops/identity.h.
type Identity struct {
	Schema *core.Schema
}

// NewIdentity builds an Identity operator over schema.
func NewIdentity(schema *core.Schema) *Identity {
	return &Identity{Schema: schema}
}

func (id *Identity) Process(batch core.Batch) (core.Batch, error) {
	return batch, nil
}

func (id *Identity) OutputSchema() *core.Schema { return id.Schema }
