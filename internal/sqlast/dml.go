package sqlast

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"k9db/internal/core"
)

// ParseDML parses an INSERT, REPLACE, UPDATE, DELETE or SELECT statement.
// The concrete type of the returned value is *Insert, *Update, *Delete or
// *Select.
func ParseDML(sql string) (any, error) {
	p := parser.New()
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("sqlast: parsing statement: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("sqlast: expected exactly one statement, got %d", len(stmts))
	}
	switch s := stmts[0].(type) {
	case *ast.InsertStmt:
		return convertInsert(s)
	case *ast.UpdateStmt:
		return convertUpdate(s)
	case *ast.DeleteStmt:
		return convertDelete(s)
	case *ast.SelectStmt:
		return convertSelect(s)
	default:
		return nil, fmt.Errorf("sqlast: unsupported statement type %T", stmts[0])
	}
}

func tableNameOf(src *ast.TableRefsClause) (string, error) {
	join, ok := src.TableRefs.(*ast.Join)
	if !ok || join.Left == nil {
		return "", fmt.Errorf("sqlast: missing table reference")
	}
	tn, ok := join.Left.(*ast.TableSource)
	if !ok {
		return "", fmt.Errorf("sqlast: unsupported table reference %T", join.Left)
	}
	name, ok := tn.Source.(*ast.TableName)
	if !ok {
		return "", fmt.Errorf("sqlast: unsupported table source %T", tn.Source)
	}
	return name.Name.O, nil
}

func convertInsert(s *ast.InsertStmt) (*Insert, error) {
	name, err := tableNameOf(s.Table)
	if err != nil {
		return nil, err
	}
	ins := &Insert{Table: name, Replace: s.IsReplace}
	for _, c := range s.Columns {
		ins.Columns = append(ins.Columns, c.Name.O)
	}
	if len(s.Lists) != 1 {
		return nil, fmt.Errorf("sqlast: only single-row INSERT is supported")
	}
	for _, expr := range s.Lists[0] {
		v, err := literalValue(expr)
		if err != nil {
			return nil, err
		}
		ins.Values = append(ins.Values, v)
	}
	return ins, nil
}

func convertUpdate(s *ast.UpdateStmt) (*Update, error) {
	name, err := tableNameOf(s.TableRefs)
	if err != nil {
		return nil, err
	}
	upd := &Update{Table: name}
	for _, a := range s.List {
		v, err := literalValue(a.Expr)
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, Assignment{Column: a.Column.Name.O, Value: v})
	}
	conds, err := whereConditions(s.Where)
	if err != nil {
		return nil, err
	}
	upd.Where = conds
	return upd, nil
}

func convertDelete(s *ast.DeleteStmt) (*Delete, error) {
	name, err := tableNameOf(s.TableRefs)
	if err != nil {
		return nil, err
	}
	conds, err := whereConditions(s.Where)
	if err != nil {
		return nil, err
	}
	return &Delete{Table: name, Where: conds}, nil
}

func convertSelect(s *ast.SelectStmt) (*Select, error) {
	name, err := tableNameOf(s.From)
	if err != nil {
		return nil, err
	}
	sel := &Select{Table: name}
	if s.Fields != nil {
		for _, f := range s.Fields.Fields {
			if f.WildCard != nil {
				sel.Columns = nil
				break
			}
			if col, ok := f.Expr.(*ast.ColumnNameExpr); ok {
				sel.Columns = append(sel.Columns, col.Name.Name.O)
			}
		}
	}
	conds, err := whereConditions(s.Where)
	if err != nil {
		return nil, err
	}
	sel.Where = conds
	return sel, nil
}

// whereConditions flattens a WHERE clause of ANDed equality/IN predicates
// into Conditions. Richer predicates (OR, ranges, subqueries) are rejected:
// spec.md scopes the rewriter's WHERE support to what index selection
// needs, with residual filtering left to the dataflow/session layer for
// anything beyond equality.
func whereConditions(expr ast.ExprNode) ([]Condition, error) {
	if expr == nil {
		return nil, nil
	}
	var out []Condition
	var walk func(ast.ExprNode) error
	walk = func(e ast.ExprNode) error {
		switch n := e.(type) {
		case *ast.BinaryOperationExpr:
			if n.Op == opcode.LogicAnd {
				if err := walk(n.L); err != nil {
					return err
				}
				return walk(n.R)
			}
			if n.Op == opcode.EQ {
				col, ok := n.L.(*ast.ColumnNameExpr)
				if !ok {
					return fmt.Errorf("sqlast: unsupported WHERE predicate shape")
				}
				v, err := literalValue(n.R)
				if err != nil {
					return err
				}
				out = append(out, Condition{Column: col.Name.Name.O, Values: []core.Value{v}})
				return nil
			}
			return fmt.Errorf("sqlast: unsupported WHERE operator %v", n.Op)
		case *ast.PatternInExpr:
			col, ok := n.Expr.(*ast.ColumnNameExpr)
			if !ok {
				return fmt.Errorf("sqlast: unsupported IN predicate shape")
			}
			cond := Condition{Column: col.Name.Name.O}
			for _, ve := range n.List {
				v, err := literalValue(ve)
				if err != nil {
					return err
				}
				cond.Values = append(cond.Values, v)
			}
			out = append(out, cond)
			return nil
		default:
			return fmt.Errorf("sqlast: unsupported WHERE clause shape %T", e)
		}
	}
	if err := walk(expr); err != nil {
		return nil, err
	}
	return out, nil
}

func literalValue(expr ast.ExprNode) (core.Value, error) {
	switch n := expr.(type) {
	case ast.ValueExpr:
		val := n.GetValue()
		if val == nil {
			return core.NullValue(), nil
		}
		switch v := val.(type) {
		case int64:
			return core.IntValue(v), nil
		case uint64:
			return core.UintValue(v), nil
		case string:
			return core.TextValue(v), nil
		default:
			return core.TextValue(fmt.Sprintf("%v", v)), nil
		}
	default:
		return core.Value{}, fmt.Errorf("sqlast: unsupported literal expression %T", expr)
	}
}
