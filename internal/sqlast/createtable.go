package sqlast

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"k9db/internal/core"
)

var (
	dataSubjectRE  = regexp.MustCompile(`(?i)\bDATA\s+SUBJECT\b`)
	annotationRE   = regexp.MustCompile(`(?i)\b(OWNED_BY|OWNS|ACCESSED_BY|ACCESSES)\s+(\w+)\s*\(\s*(\w+)\s*\)`)
	referencesOnly = regexp.MustCompile(`(?i)\bREFERENCES\s+ONLY\b`)
	anonRuleRE     = regexp.MustCompile(`(?i)\bON\s+(GET|DEL)\s+(\w+)\s+(ANONYMIZE\s*\(([^)]*)\)|DELETE_ROW)`)
)

// ParseCreateTable parses a K9db CREATE TABLE statement: standard MySQL DDL
// (parsed by the real grammar) plus K9db's ownership-annotation extension
// (stripped out by regex before parsing, then re-attached to the resulting
// column/table metadata by name).
func ParseCreateTable(sql string) (*CreateTable, error) {
	clean := sql

	isDataSubject := dataSubjectRE.MatchString(clean)
	clean = dataSubjectRE.ReplaceAllString(clean, "")

	annotations, referenceOnlyCols, clean := extractColumnAnnotations(clean)

	rules, clean := extractAnonymizationRules(clean)

	p := parser.New()
	stmts, _, err := p.Parse(clean, "", "")
	if err != nil {
		return nil, fmt.Errorf("sqlast: parsing CREATE TABLE: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("sqlast: expected exactly one statement, got %d", len(stmts))
	}
	createStmt, ok := stmts[0].(*ast.CreateTableStmt)
	if !ok {
		return nil, fmt.Errorf("sqlast: expected CREATE TABLE, got %T", stmts[0])
	}

	table := &CreateTable{
		Name:        createStmt.Table.Name.O,
		DataSubject: isDataSubject,
		Rules:       rules,
		RawSQL:      sql,
	}

	for _, opt := range createStmt.Options {
		if opt.Tp == ast.TableOptionEngine {
			table.Engine = opt.StrValue
		}
	}

	for _, col := range createStmt.Cols {
		cd, err := convertColumn(col)
		if err != nil {
			return nil, err
		}
		if ann, ok := annotations[cd.Name]; ok {
			cd.Annotation = ann.kind
			cd.RefTable = ann.refTable
			cd.RefColumn = ann.refColumn
		}
		if referenceOnlyCols[cd.Name] {
			cd.ReferenceOnly = true
		}
		table.Columns = append(table.Columns, cd)
	}

	for _, c := range createStmt.Constraints {
		tc, err := convertConstraint(c)
		if err != nil {
			return nil, err
		}
		table.Constraints = append(table.Constraints, tc)
	}

	return table, nil
}

type annotation struct {
	kind      AnnotationKind
	refTable  string
	refColumn string
}

// extractColumnAnnotations removes every OWNED_BY/OWNS/ACCESSED_BY/
// ACCESSES(...) clause from the column-definition list and records which
// column each one was attached to, keyed by scanning the column chunk the
// clause appeared in (columns are split on top-level commas, respecting
// nested parens so a column's own type arguments, e.g. DECIMAL(10,2),
// aren't mistaken for a separator).
func extractColumnAnnotations(sql string) (map[string]annotation, map[string]bool, string) {
	open := strings.IndexByte(sql, '(')
	if open < 0 {
		return nil, nil, sql
	}
	close := matchingParen(sql, open)
	if close < 0 {
		return nil, nil, sql
	}
	body := sql[open+1 : close]
	chunks := splitTopLevel(body, ',')

	result := make(map[string]annotation)
	referenceOnly := make(map[string]bool)
	for i, chunk := range chunks {
		name := strings.Fields(strings.TrimSpace(chunk))
		if len(name) == 0 {
			continue
		}
		colName := strings.Trim(name[0], "`")

		if referencesOnly.MatchString(chunk) {
			referenceOnly[colName] = true
			chunk = referencesOnly.ReplaceAllString(chunk, "REFERENCES")
		}

		if m := annotationRE.FindStringSubmatch(chunk); m != nil {
			var kind AnnotationKind
			switch strings.ToUpper(m[1]) {
			case "OWNED_BY":
				kind = AnnotationOwnedBy
			case "OWNS":
				kind = AnnotationOwns
			case "ACCESSED_BY":
				kind = AnnotationAccessedBy
			case "ACCESSES":
				kind = AnnotationAccesses
			}
			result[colName] = annotation{kind: kind, refTable: m[2], refColumn: m[3]}
			chunk = annotationRE.ReplaceAllString(chunk, "")
		}

		chunks[i] = chunk
	}

	newBody := strings.Join(chunks, ",")
	return result, referenceOnly, sql[:open+1] + newBody + sql[close:]
}

// extractAnonymizationRules strips every trailing `ON GET|DEL <subject>
// ANONYMIZE(cols...)|DELETE_ROW` clause and returns them as structured
// rules.
func extractAnonymizationRules(sql string) ([]AnonymizationRule, string) {
	matches := anonRuleRE.FindAllStringSubmatch(sql, -1)
	var rules []AnonymizationRule
	for _, m := range matches {
		r := AnonymizationRule{
			OnGet:       strings.EqualFold(m[1], "GET"),
			DataSubject: m[2],
		}
		if strings.EqualFold(strings.TrimSpace(m[3]), "DELETE_ROW") {
			r.DeleteRow = true
		} else {
			for _, c := range strings.Split(m[4], ",") {
				c = strings.TrimSpace(strings.Trim(c, "`"))
				if c != "" {
					r.Columns = append(r.Columns, c)
				}
			}
		}
		rules = append(rules, r)
	}
	clean := anonRuleRE.ReplaceAllString(sql, "")
	return rules, clean
}

// matchingParen returns the index of the ')' matching the '(' at open.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep, ignoring separators nested inside parens.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func convertColumn(col *ast.ColumnDef) (ColumnDef, error) {
	colType := mapColumnType(col.Tp.GetType())
	if colType == core.TypeInt && col.Tp.GetFlag()&mysql.UnsignedFlag != 0 {
		colType = core.TypeUint
	}
	cd := ColumnDef{Name: col.Name.Name.O, Type: colType}
	for _, opt := range col.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull, ast.ColumnOptionPrimaryKey:
			cd.NotNull = true
		case ast.ColumnOptionAutoIncrement:
			cd.AutoInc = true
			cd.NotNull = true
		case ast.ColumnOptionUniqKey:
			cd.Unique = true
		case ast.ColumnOptionDefaultValue:
			v, err := exprToValue(opt.Expr, cd.Type)
			if err != nil {
				return cd, err
			}
			cd.HasDefault = true
			cd.Default = v
		case ast.ColumnOptionReference:
			if opt.Refer != nil && opt.Refer.Table != nil {
				cd.RefTable = opt.Refer.Table.Name.O
				if len(opt.Refer.IndexPartSpecifications) > 0 {
					cd.RefColumn = opt.Refer.IndexPartSpecifications[0].Column.Name.O
				}
			}
		}
	}
	return cd, nil
}

func convertConstraint(c *ast.Constraint) (TableConstraint, error) {
	tc := TableConstraint{}
	switch c.Tp {
	case ast.ConstraintPrimaryKey:
		tc.Kind = "PRIMARY KEY"
	case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
		tc.Kind = "UNIQUE"
	case ast.ConstraintForeignKey:
		tc.Kind = "FOREIGN KEY"
		if c.Refer != nil && c.Refer.Table != nil {
			tc.RefTable = c.Refer.Table.Name.O
			if len(c.Refer.IndexPartSpecifications) > 0 {
				tc.RefColumn = c.Refer.IndexPartSpecifications[0].Column.Name.O
			}
		}
	default:
		tc.Kind = "INDEX"
	}
	for _, k := range c.Keys {
		if k.Column != nil {
			tc.Columns = append(tc.Columns, k.Column.Name.O)
		}
	}
	return tc, nil
}

func mapColumnType(tp byte) core.ColumnType {
	switch tp {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong:
		return core.TypeInt
	case mysql.TypeDatetime, mysql.TypeTimestamp, mysql.TypeDate, mysql.TypeNewDate:
		return core.TypeDatetime
	case mysql.TypeVarchar, mysql.TypeString, mysql.TypeVarString, mysql.TypeBlob,
		mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		return core.TypeText
	default:
		return core.TypeInt
	}
}

func exprToValue(expr ast.ExprNode, t core.ColumnType) (core.Value, error) {
	vexpr, ok := expr.(ast.ValueExpr)
	if !ok {
		return core.Value{}, fmt.Errorf("sqlast: unsupported DEFAULT expression %T", expr)
	}
	return core.ParseLiteral(fmt.Sprintf("%v", vexpr.GetValue()), t)
}

