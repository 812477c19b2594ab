package core

import "fmt"

// ColumnType is the scalar type of a schema column.
type ColumnType int

const (
	TypeInvalid ColumnType = iota
	TypeUint
	TypeInt
	TypeText
	TypeDatetime
)

func (t ColumnType) String() string {
	switch t {
	case TypeUint:
		return "UINT"
	case TypeInt:
		return "INT"
	case TypeText:
		return "TEXT"
	case TypeDatetime:
		return "DATETIME"
	default:
		return "INVALID"
	}
}

// Column describes one column of a Schema.
type Column struct {
	Name        string
	Type        ColumnType
	NotNull     bool
	AutoInc     bool
	HasDefault  bool
	Default     Value
}

// Schema is an ordered set of columns plus the index of the primary key
// column. K9db, like the original, requires a single-column primary key on
// every base table (composite PKs are expressed as a PRIMARY KEY(a,b)
// clause without a single designated PK index — see Key for the general
// case used by indices and dataflow keys).
type Schema struct {
	Columns []Column
	// PK lists the column indices making up the primary key, in order.
	// Len 1 for the common case of a single-column PK.
	PK []int
}

// NewSchema builds a Schema from columns and primary-key column names.
func NewSchema(cols []Column, pkNames []string) (*Schema, error) {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := idx[c.Name]; dup {
			return nil, fmt.Errorf("core: duplicate column %q", c.Name)
		}
		idx[c.Name] = i
	}
	pk := make([]int, 0, len(pkNames))
	for _, name := range pkNames {
		i, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("core: primary key column %q not found", name)
		}
		pk = append(pk, i)
	}
	return &Schema{Columns: cols, PK: pk}, nil
}

// ColumnIndex returns the index of a column by name, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// MustColumnIndex is ColumnIndex but panics on miss; schema lookups after
// validation should never fail.
func (s *Schema) MustColumnIndex(name string) int {
	i := s.ColumnIndex(name)
	if i < 0 {
		panic(fmt.Sprintf("core: column %q not in schema", name))
	}
	return i
}

// IsPK reports whether column i participates in the primary key.
func (s *Schema) IsPK(i int) bool {
	for _, p := range s.PK {
		if p == i {
			return true
		}
	}
	return false
}

// SinglePK returns the sole PK column index; panics if the PK isn't
// exactly one column (most K9db tables, like the original, declare a
// single-column PK so that per-row sharding has one key to hash on).
func (s *Schema) SinglePK() int {
	if len(s.PK) != 1 {
		panic(fmt.Sprintf("core: schema does not have a single-column primary key (has %d)", len(s.PK)))
	}
	return s.PK[0]
}
