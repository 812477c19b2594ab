package ops

import "k9db/internal/core"

// Exchange hash-partitions a batch by a key (outkey) into N partitions, so
// records route to whichever partition's operator state they belong to.
// Grounded on original_source/k9db/dataflow/ops/exchange.h. This type only
// computes the routing: internal/dataflow has no partitions, channels or
// worker goroutines, and its Flow does not add Exchange nodes.
type Exchange struct {
	Schema     *core.Schema
	OutKey     []int
	Partitions int
}

// NewExchange builds an Exchange routing by outKey across n partitions.
func NewExchange(schema *core.Schema, outKey []int, n int) *Exchange {
	return &Exchange{Schema: schema, OutKey: outKey, Partitions: n}
}

// Route assigns each record in batch to a partition index in [0,
// Partitions), grouping records that share a key so partitioned state
// (joins, aggregates) downstream only ever sees the rows it owns.
func (e *Exchange) Route(batch core.Batch) map[int]core.Batch {
	out := make(map[int]core.Batch)
	for _, rec := range batch {
		p := int(core.Key{Values: rec.Project(e.OutKey)}.Hash() % uint64(e.Partitions))
		out[p] = append(out[p], rec)
	}
	return out
}

// Process exists so Exchange satisfies Operator for graphs with a single
// partition (Partitions == 1), where no actual routing is needed.
func (e *Exchange) Process(batch core.Batch) (core.Batch, error) {
	return batch, nil
}

func (e *Exchange) OutputSchema() *core.Schema { return e.Schema }
