// Package ops implements the dataflow engine's operators (component I): the
// incremental-view-maintenance primitives a flow graph is built from. Every
// operator consumes a batch of positive/negative records and produces the
// batch of records its downstream operators (or the matview it feeds) should
// see, following original_source/k9db/dataflow/ops/*.h's Process() model —
// collapsed here into a single Go interface rather than a class hierarchy.
package ops

import "k9db/internal/core"

// Operator is one node of a dataflow graph. Process receives a batch
// produced by an upstream operator (or fed directly by the rewriter for an
// Input operator) and returns the batch this operator emits downstream.
// Operators are not safe for concurrent use by multiple goroutines without
// external synchronization, matching the original's single-threaded-per-
// partition execution model. internal/dataflow runs every flow on the
// calling goroutine; it does not partition flows across goroutines.
type Operator interface {
	// Process runs one batch through the operator, updating any internal
	// state (aggregate counters, join tables) and returning the records to
	// emit downstream.
	Process(batch core.Batch) (core.Batch, error)

	// OutputSchema returns the schema of records this operator emits.
	OutputSchema() *core.Schema
}
