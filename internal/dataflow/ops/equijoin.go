package ops

import "k9db/internal/core"

// JoinMode mirrors original_source/k9db/dataflow/ops/equijoin_enum.h's
// JoinModeEnum, minus FULL: K9db's declared views only ever need INNER,
// LEFT, or RIGHT.
type JoinMode int

const (
	JoinInner JoinMode = iota
	JoinLeft
	JoinRight
)

// EquiJoin incrementally maintains a join on left.Values[leftCol] ==
// right.Values[rightCol], keeping both sides' rows in memory so that a new
// record on either side can be matched against everything already seen on
// the other — the standard stateful-join shape for incremental view
// maintenance. LEFT/RIGHT modes additionally track, per outer-side key,
// whether a null-padded row is currently standing in for "no match yet";
// that row is retracted the moment a real match appears, and re-emitted
// the moment the last real match disappears. Grounded on
// original_source/k9db/dataflow/ops/equijoin.h.
type EquiJoin struct {
	LeftSchema  *core.Schema
	RightSchema *core.Schema
	Schema      *core.Schema

	leftCol  int
	rightCol int
	mode     JoinMode

	leftRows  map[string][]core.Record
	rightRows map[string][]core.Record

	// leftPadded/rightPadded record, per key, which outer-side rows are
	// currently represented in output only by a null-padded row (LEFT mode
	// tracks left rows with no right match; RIGHT mode tracks right rows
	// with no left match).
	leftPadded  map[string][]core.Record
	rightPadded map[string][]core.Record
}

// NewEquiJoin builds an EquiJoin over the given schemas, join columns, and
// mode. The output schema concatenates left and right columns, dropping
// the right side's join column (it is redundant with the left's), matching
// the original's documented output-schema convention.
func NewEquiJoin(left, right *core.Schema, leftCol, rightCol int, mode JoinMode) *EquiJoin {
	cols := append([]core.Column{}, left.Columns...)
	for i, c := range right.Columns {
		if i == rightCol {
			continue
		}
		cols = append(cols, c)
	}
	return &EquiJoin{
		LeftSchema:  left,
		RightSchema: right,
		Schema:      &core.Schema{Columns: cols},
		leftCol:     leftCol,
		rightCol:    rightCol,
		mode:        mode,
		leftRows:    make(map[string][]core.Record),
		rightRows:   make(map[string][]core.Record),
		leftPadded:  make(map[string][]core.Record),
		rightPadded: make(map[string][]core.Record),
	}
}

func joinKey(v core.Value) string {
	return string(core.Key{Values: []core.Value{v}}.Encode())
}

// ProcessLeft feeds a batch of records arriving from the left parent.
func (j *EquiJoin) ProcessLeft(batch core.Batch) (core.Batch, error) {
	var out core.Batch
	for _, rec := range batch {
		key := joinKey(rec.Values[j.leftCol])
		matches := j.rightRows[key]

		if rec.Positive {
			hadLeft := len(j.leftRows[key]) > 0
			j.leftRows[key] = append(j.leftRows[key], rec)
			if j.mode == JoinRight && !hadLeft {
				for _, r := range j.rightPadded[key] {
					out = append(out, j.emitNullLeft(r, false))
				}
				delete(j.rightPadded, key)
			}
			if len(matches) > 0 {
				for _, r := range matches {
					out = append(out, j.emit(rec, r, true))
				}
			} else if j.mode == JoinLeft {
				out = append(out, j.emitNullRight(rec, true))
				j.leftPadded[key] = append(j.leftPadded[key], rec)
			}
			continue
		}

		j.leftRows[key] = removeRecord(j.leftRows[key], rec)
		if len(matches) > 0 {
			for _, r := range matches {
				out = append(out, j.emit(rec, r, false))
			}
		} else if j.mode == JoinLeft {
			if removed, ok := extractRecord(j.leftPadded[key], rec); ok {
				j.leftPadded[key] = removed
				out = append(out, j.emitNullRight(rec, false))
			}
		}
		if j.mode == JoinRight && len(j.leftRows[key]) == 0 {
			for _, r := range matches {
				out = append(out, j.emitNullLeft(r, true))
				j.rightPadded[key] = append(j.rightPadded[key], r)
			}
		}
	}
	return out, nil
}

// ProcessRight feeds a batch of records arriving from the right parent.
func (j *EquiJoin) ProcessRight(batch core.Batch) (core.Batch, error) {
	var out core.Batch
	for _, rec := range batch {
		key := joinKey(rec.Values[j.rightCol])

		if rec.Positive {
			hadMatch := len(j.rightRows[key]) > 0
			j.rightRows[key] = append(j.rightRows[key], rec)
			if j.mode == JoinLeft && !hadMatch {
				for _, l := range j.leftPadded[key] {
					out = append(out, j.emitNullRight(l, false))
				}
				delete(j.leftPadded, key)
			}
			for _, l := range j.leftRows[key] {
				out = append(out, j.emit(l, rec, true))
			}
			if j.mode == JoinRight && len(j.leftRows[key]) == 0 {
				out = append(out, j.emitNullLeft(rec, true))
				j.rightPadded[key] = append(j.rightPadded[key], rec)
			}
			continue
		}

		j.rightRows[key] = removeRecord(j.rightRows[key], rec)
		for _, l := range j.leftRows[key] {
			out = append(out, j.emit(l, rec, false))
		}
		if j.mode == JoinLeft && len(j.rightRows[key]) == 0 {
			for _, l := range j.leftRows[key] {
				out = append(out, j.emitNullRight(l, true))
				j.leftPadded[key] = append(j.leftPadded[key], l)
			}
		}
		if j.mode == JoinRight {
			if removed, ok := extractRecord(j.rightPadded[key], rec); ok {
				j.rightPadded[key] = removed
				out = append(out, j.emitNullLeft(rec, false))
			}
		}
	}
	return out, nil
}

func (j *EquiJoin) emit(left, right core.Record, positive bool) core.Record {
	vals := make([]core.Value, 0, len(j.Schema.Columns))
	vals = append(vals, left.Values...)
	for i, v := range right.Values {
		if i == j.rightCol {
			continue
		}
		vals = append(vals, v)
	}
	return core.Record{Schema: j.Schema, Values: vals, Positive: positive}
}

// emitNullRight builds a LEFT-join row for left with every right-side
// column null-padded, used while left has no matching right row.
func (j *EquiJoin) emitNullRight(left core.Record, positive bool) core.Record {
	vals := make([]core.Value, 0, len(j.Schema.Columns))
	vals = append(vals, left.Values...)
	for i := range j.RightSchema.Columns {
		if i == j.rightCol {
			continue
		}
		vals = append(vals, core.NullValue())
	}
	return core.Record{Schema: j.Schema, Values: vals, Positive: positive}
}

// emitNullLeft builds a RIGHT-join row for right with every left-side
// column null-padded, used while right has no matching left row.
func (j *EquiJoin) emitNullLeft(right core.Record, positive bool) core.Record {
	vals := make([]core.Value, 0, len(j.Schema.Columns))
	for range j.LeftSchema.Columns {
		vals = append(vals, core.NullValue())
	}
	for i, v := range right.Values {
		if i == j.rightCol {
			continue
		}
		vals = append(vals, v)
	}
	return core.Record{Schema: j.Schema, Values: vals, Positive: positive}
}

func removeRecord(rows []core.Record, target core.Record) []core.Record {
	out, _ := extractRecord(rows, target)
	return out
}

// extractRecord removes target's first match from rows (by value, ignoring
// sign) and reports whether anything was removed.
func extractRecord(rows []core.Record, target core.Record) ([]core.Record, bool) {
	for i, r := range rows {
		if r.Equal(core.Record{Schema: r.Schema, Values: target.Values, Positive: true}) {
			return append(rows[:i:i], rows[i+1:]...), true
		}
	}
	return rows, false
}

// Process satisfies Operator for callers that don't distinguish sides (a
// join bound to a single upstream, e.g. in tests); production flow
// assembly (internal/dataflow) calls ProcessLeft/ProcessRight directly,
// tagging each batch by its originating parent edge.
func (j *EquiJoin) Process(batch core.Batch) (core.Batch, error) {
	return j.ProcessLeft(batch)
}

func (j *EquiJoin) OutputSchema() *core.Schema { return j.Schema }
