// Package sqlast turns SQL statement text into the typed statement AST the
// rewriting engine (internal/rewrite) consumes. Standard DDL/DML is parsed
// by the real MySQL-dialect grammar in github.com/pingcap/tidb/pkg/parser
// (following the pattern in the teacher's internal/parser/mysql package);
// the small set of K9db-specific extensions — ownership annotations on
// CREATE TABLE, and the non-standard GDPR GET/FORGET and EXPLAIN
// statements — are handled by lightweight text preprocessing/lexing
// layered on top, since no general-purpose SQL grammar recognizes them.
package sqlast

import "k9db/internal/core"

// AnnotationKind classifies a column-level ownership annotation.
type AnnotationKind int

const (
	AnnotationNone AnnotationKind = iota
	AnnotationOwnedBy
	AnnotationOwns
	AnnotationAccessedBy
	AnnotationAccesses
)

// ColumnDef is one column of a CREATE TABLE statement, including any
// ownership annotation attached to it.
type ColumnDef struct {
	Name       string
	Type       core.ColumnType
	NotNull    bool
	AutoInc    bool
	Unique     bool
	HasDefault bool
	Default    core.Value

	Annotation  AnnotationKind
	RefTable    string
	RefColumn   string
	ReferenceOnly bool // "REFERENCES ONLY" — ownership edge without a value FK constraint
}

// TableConstraint is a table-level PRIMARY KEY/UNIQUE/INDEX/FOREIGN KEY
// clause.
type TableConstraint struct {
	Kind    string // "PRIMARY KEY", "UNIQUE", "INDEX", "FOREIGN KEY"
	Columns []string

	// FOREIGN KEY only.
	RefTable  string
	RefColumn string
}

// AnonymizationRule is one ON GET/DEL <subject> ANONYMIZE(...)/DELETE_ROW
// clause trailing a CREATE TABLE statement.
type AnonymizationRule struct {
	OnGet       bool
	DataSubject string
	DeleteRow   bool
	Columns     []string
}

// CreateTable is the parsed form of a K9db CREATE TABLE statement.
type CreateTable struct {
	Name          string
	Columns       []ColumnDef
	Constraints   []TableConstraint
	DataSubject   bool
	Rules         []AnonymizationRule
	Engine        string
	RawSQL        string
}

// Assignment is one `col = expr` pair in an UPDATE's SET clause.
type Assignment struct {
	Column string
	Value  core.Value
}

// Condition is one `col = value` equality in a WHERE clause. K9db's
// rewriter only needs equality/IN predicates on indexed/PK columns to
// select a physical plan (spec.md's index-selection rule); richer
// predicates are rejected by the parser (see whereConditions).
type Condition struct {
	Column string
	Values []core.Value // multiple values encode an IN(...) predicate
}

// Insert is a parsed INSERT or REPLACE statement.
type Insert struct {
	Table       string
	Columns     []string // empty means "all columns, in schema order"
	Values      []core.Value
	Replace     bool
}

// Update is a parsed UPDATE statement.
type Update struct {
	Table string
	Set   []Assignment
	Where []Condition
}

// Delete is a parsed DELETE statement.
type Delete struct {
	Table string
	Where []Condition
}

// Select is a parsed SELECT statement (ad hoc read path, component G.5).
type Select struct {
	Table   string
	Columns []string // empty means "*"
	Where   []Condition
}

// GDPROp distinguishes GDPR GET from GDPR FORGET.
type GDPROp int

const (
	GDPRGet GDPROp = iota
	GDPRForget
)

// GDPR is a parsed `GDPR GET <subject> <id>` / `GDPR FORGET <subject> <id>`
// statement.
type GDPR struct {
	Op          GDPROp
	DataSubject string
	ID          core.Value
}

// Explain is a parsed `EXPLAIN ...` statement wrapping the inner query
// text, used to print the physical/dataflow plan instead of executing it.
type Explain struct {
	Inner string
}
