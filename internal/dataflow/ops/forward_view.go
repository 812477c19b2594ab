package ops

import "k9db/internal/core"

// ForwardView lets one flow graph consume another flow's matview as its
// own input, instead of a base table — composing declared views out of
// other declared views. Grounded on
// original_source/k9db/dataflow/ops/forward_view.h.
type ForwardView struct {
	Schema     *core.Schema
	ParentFlow string
	ParentNode int
}

// NewForwardView builds a ForwardView sourcing from parentFlow's node
// parentNode.
func NewForwardView(schema *core.Schema, parentFlow string, parentNode int) *ForwardView {
	return &ForwardView{Schema: schema, ParentFlow: parentFlow, ParentNode: parentNode}
}

func (f *ForwardView) Process(batch core.Batch) (core.Batch, error) {
	return batch, nil
}

func (f *ForwardView) OutputSchema() *core.Schema { return f.Schema }
