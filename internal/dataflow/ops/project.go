package ops

import (
	"fmt"

	"k9db/internal/core"
)

// ProjectArith is an arithmetic operator usable between two projected
// operands, mirroring original_source/k9db/dataflow/ops/project_enum.h's
// ProjectOperationEnum.
type ProjectArith int

const (
	ArithNone ProjectArith = iota
	ArithPlus
	ArithMinus
	ArithTimes
)

// projectOperand is either a source column or a literal value.
type projectOperand struct {
	isColumn bool
	column   int
	literal  core.Value
}

// Projection is one output column of a Project operator: a straight column
// copy, a literal, or an arithmetic combination of two operands.
type Projection struct {
	Name string
	Type core.ColumnType

	left  projectOperand
	op    ProjectArith
	right projectOperand
}

// Project implements component I's projection/renaming operator: each
// output record is built column-by-column from the Projections list.
// Grounded on original_source/k9db/dataflow/ops/project.h.
type Project struct {
	InputSchema *core.Schema
	Schema      *core.Schema
	projections []Projection
}

// NewProject builds an empty Project operator over input's schema; call
// AddColumn/AddLiteral/AddArithmetic to populate its output columns.
func NewProject(input *core.Schema) *Project {
	return &Project{InputSchema: input, Schema: &core.Schema{}}
}

// AddColumn appends a projection copying input column ci through as name.
func (p *Project) AddColumn(name string, ci int) {
	col := p.InputSchema.Columns[ci]
	p.projections = append(p.projections, Projection{
		Name: name,
		Type: col.Type,
		left: projectOperand{isColumn: true, column: ci},
	})
	p.Schema.Columns = append(p.Schema.Columns, core.Column{Name: name, Type: col.Type})
}

// AddLiteral appends a projection emitting the constant v as name.
func (p *Project) AddLiteral(name string, v core.Value, t core.ColumnType) {
	p.projections = append(p.projections, Projection{
		Name: name,
		Type: t,
		left: projectOperand{literal: v},
	})
	p.Schema.Columns = append(p.Schema.Columns, core.Column{Name: name, Type: t})
}

// AddArithmetic appends a projection computing left <op> right, where each
// operand is either a column index (col=true) or a literal value.
func (p *Project) AddArithmetic(name string, t core.ColumnType, leftCol int, leftIsCol bool, leftLit core.Value, op ProjectArith, rightCol int, rightIsCol bool, rightLit core.Value) {
	proj := Projection{
		Name:  name,
		Type:  t,
		left:  projectOperand{isColumn: leftIsCol, column: leftCol, literal: leftLit},
		op:    op,
		right: projectOperand{isColumn: rightIsCol, column: rightCol, literal: rightLit},
	}
	p.projections = append(p.projections, proj)
	p.Schema.Columns = append(p.Schema.Columns, core.Column{Name: name, Type: t})
}

func (p *Project) Process(batch core.Batch) (core.Batch, error) {
	out := make(core.Batch, 0, len(batch))
	for _, rec := range batch {
		vals := make([]core.Value, len(p.projections))
		for i, proj := range p.projections {
			v, err := p.eval(proj, rec)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out = append(out, core.Record{Schema: p.Schema, Values: vals, Positive: rec.Positive})
	}
	return out, nil
}

func (p *Project) eval(proj Projection, rec core.Record) (core.Value, error) {
	left := p.operandValue(proj.left, rec)
	if proj.op == ArithNone {
		return left, nil
	}
	right := p.operandValue(proj.right, rec)
	if left.IsNull() || right.IsNull() {
		return core.NullValue(), nil
	}
	var l, r int64
	switch left.Kind() {
	case core.KindUint:
		l = int64(left.Uint())
	case core.KindInt:
		l = left.Int()
	default:
		return core.Value{}, fmt.Errorf("ops: arithmetic projection on non-numeric column")
	}
	switch right.Kind() {
	case core.KindUint:
		r = int64(right.Uint())
	case core.KindInt:
		r = right.Int()
	default:
		return core.Value{}, fmt.Errorf("ops: arithmetic projection on non-numeric column")
	}
	var result int64
	switch proj.op {
	case ArithPlus:
		result = l + r
	case ArithMinus:
		result = l - r
	case ArithTimes:
		result = l * r
	default:
		return core.Value{}, fmt.Errorf("ops: unknown arithmetic projection operator %v", proj.op)
	}
	if proj.Type == core.TypeUint {
		return core.UintValue(uint64(result)), nil
	}
	return core.IntValue(result), nil
}

func (p *Project) operandValue(o projectOperand, rec core.Record) core.Value {
	if o.isColumn {
		return rec.Values[o.column]
	}
	return o.literal
}

func (p *Project) OutputSchema() *core.Schema { return p.Schema }
