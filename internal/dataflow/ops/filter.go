package ops

import (
	"fmt"

	"k9db/internal/core"
)

// FilterOp is the comparison a filter condition applies, mirroring
// original_source/k9db/dataflow/ops/filter_enum.h's FilterOperationEnum.
type FilterOp int

const (
	FilterEQ FilterOp = iota
	FilterNE
	FilterLT
	FilterLE
	FilterGT
	FilterGE
	FilterIsNull
	FilterIsNotNull
)

// FilterCondition is one clause of a Filter operator's (implicitly ANDed)
// predicate: either column-vs-literal, column-vs-column, or a nullness
// check.
type FilterCondition struct {
	Left     int
	Op       FilterOp
	Literal  core.Value
	HasRight bool
	Right    int // column index, used when comparing two columns instead of a literal
}

// Filter drops records that don't satisfy every condition, emitting
// everything else (positive or negative) unchanged — retractions must flow
// through a filter exactly like insertions so downstream aggregates stay
// consistent. Grounded on
// original_source/k9db/dataflow/ops/filter.h.
type Filter struct {
	Schema     *core.Schema
	Conditions []FilterCondition
}

// NewFilter builds an empty Filter over schema; call AddCondition to add
// clauses before running it.
func NewFilter(schema *core.Schema) *Filter {
	return &Filter{Schema: schema}
}

// AddCondition appends one ANDed clause.
func (f *Filter) AddCondition(c FilterCondition) {
	f.Conditions = append(f.Conditions, c)
}

func (f *Filter) Process(batch core.Batch) (core.Batch, error) {
	out := make(core.Batch, 0, len(batch))
	for _, rec := range batch {
		ok, err := f.accept(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *Filter) accept(rec core.Record) (bool, error) {
	for _, c := range f.Conditions {
		v := rec.Values[c.Left]
		switch c.Op {
		case FilterIsNull:
			if !v.IsNull() {
				return false, nil
			}
			continue
		case FilterIsNotNull:
			if v.IsNull() {
				return false, nil
			}
			continue
		}
		other := c.Literal
		if c.HasRight {
			other = rec.Values[c.Right]
		}
		if v.IsNull() || other.IsNull() {
			return false, nil
		}
		switch c.Op {
		case FilterEQ:
			if !v.Equal(other) {
				return false, nil
			}
		case FilterNE:
			if v.Equal(other) {
				return false, nil
			}
		case FilterLT:
			if v.Compare(other) >= 0 {
				return false, nil
			}
		case FilterLE:
			if v.Compare(other) > 0 {
				return false, nil
			}
		case FilterGT:
			if v.Compare(other) <= 0 {
				return false, nil
			}
		case FilterGE:
			if v.Compare(other) < 0 {
				return false, nil
			}
		default:
			return false, fmt.Errorf("ops: unknown filter operation %v", c.Op)
		}
	}
	return true, nil
}

func (f *Filter) OutputSchema() *core.Schema { return f.Schema }
