// Package shard maintains the sharder state: the ownership graph that maps
// every table to the shard(s) its rows live in, and the Table/ShardDescriptor
// model the SQL rewriter (internal/rewrite) consults to route every
// statement. Grounded on original_source/k9db/shards/types.h.
package shard

import (
	"sync"
	"sync/atomic"

	"k9db/internal/core"
	"k9db/internal/index"
)

// InfoType is the kind of a ShardDescriptor, mirroring the original's
// DirectInfo/TransitiveInfo/VariableInfo variant.
type InfoType int

const (
	// Direct: the table itself is a data subject, or holds a column that is
	// a foreign key directly into a data-subject table.
	Direct InfoType = iota
	// Transitive: the table reaches a data-subject table through one or
	// more intermediate OWNED_BY hops; a chain index resolves the FK value
	// to the set of owning user ids.
	Transitive
	// Variable: the table is the *target* of a reverse-direction OWNS/
	// ACCESSES annotation declared on another table; its shard placement
	// depends on where the declaring row currently lives.
	Variable
)

func (t InfoType) String() string {
	switch t {
	case Direct:
		return "DIRECT"
	case Transitive:
		return "TRANSITIVE"
	case Variable:
		return "VARIABLE"
	default:
		return "UNKNOWN"
	}
}

// ShardDescriptor describes one way a table's rows are owned by or
// accessible to a shard kind. A table may carry several (one per
// OWNED_BY/ACCESSED_BY annotation, plus any Variable descriptors lifted in
// from OWNS/ACCESSES declared on other tables).
type ShardDescriptor struct {
	ShardKind string
	Type      InfoType
	Accessor  bool // true if this is an ACCESSED_BY/ACCESSES relationship rather than ownership

	// Direct/Transitive: the column in this table holding the FK value.
	Column      string
	ColumnIndex int

	// Transitive only: the intermediate table the FK points into, and the
	// chain index resolving this table's column value to the set of user
	// ids reached through that table.
	NextTable       string
	NextColumn      string
	NextColumnIndex int
	ChainIndex      *index.Index

	// Variable only: the table and column that declared the OWNS/ACCESSES
	// annotation targeting this table, and the column on THIS table (its
	// PK, typically) the annotation's FK referenced.
	OriginTable       string
	OriginColumn      string
	OriginColumnIndex int
}

// IsTransitive reports whether the descriptor requires a chain-index
// lookup to resolve to a shard.
func (d *ShardDescriptor) IsTransitive() bool { return d.Type == Transitive }

// IsVariable reports whether the descriptor's shard placement depends on
// another table's current row placement.
func (d *ShardDescriptor) IsVariable() bool { return d.Type == Variable }

// AnonymizationRule is one ON GET/DEL ... ANONYMIZE/DELETE_ROW clause.
type AnonymizationRule struct {
	OnGet       bool // true for "ON GET", false for "ON DEL"
	DataSubject string
	DeleteRow   bool
	Columns     []string
}

// Dependent is a back-edge: a (table, descriptor) pair recorded on the
// table that a Variable/Transitive relationship's placement depends on, so
// that an insert/update there knows which dependents to cascade.
type Dependent struct {
	Table      string
	Descriptor *ShardDescriptor
}

// Table is the sharding-relevant metadata for one base table: its schema,
// its ownership/accessor descriptors, and the dependents that must be
// cascaded when its rows move between shards.
type Table struct {
	Name            string
	Schema          *core.Schema
	CreateSQL       string
	IsDataSubject   bool

	Owners           []*ShardDescriptor
	Accessors        []*ShardDescriptor
	Dependents       []Dependent
	AccessDependents []Dependent
	Rules            []AnonymizationRule

	AutoIncrement atomic.Int64
	Defaults      map[string]core.Value
}

// NewTable creates an empty Table descriptor for schema.
func NewTable(name string, schema *core.Schema, createSQL string) *Table {
	return &Table{
		Name:      name,
		Schema:    schema,
		CreateSQL: createSQL,
		Defaults:  make(map[string]core.Value),
	}
}

// Shard is the metadata for one shard kind (one data-subject table): the
// column identifying a shard instance, and which tables have rows placed
// in it.
type Shard struct {
	Kind            string
	IDColumn        string
	IDColumnIndex   int
	OwnedTables     map[string]bool
	AccessorTables  map[string]bool
	userCount       atomic.Int64
}

func newShard(kind, idCol string, idColIdx int) *Shard {
	return &Shard{
		Kind:           kind,
		IDColumn:       idCol,
		IDColumnIndex:  idColIdx,
		OwnedTables:    make(map[string]bool),
		AccessorTables: make(map[string]bool),
	}
}

// UserCount returns the number of distinct users currently sharded under
// this kind.
func (s *Shard) UserCount() int64 { return s.userCount.Load() }

// State holds the full ownership graph: every table's descriptor and every
// shard kind's bookkeeping. One State is shared by the whole open database.
type State struct {
	mu     sync.RWMutex
	tables map[string]*Table
	shards map[string]*Shard
}

// NewState returns an empty sharder state.
func NewState() *State {
	return &State{
		tables: make(map[string]*Table),
		shards: make(map[string]*Shard),
	}
}

// Table looks up a table descriptor by name.
func (s *State) Table(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns all table descriptors, for dataflow graph bootstrapping
// and introspection tools.
func (s *State) Tables() map[string]*Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Table, len(s.tables))
	for k, v := range s.tables {
		out[k] = v
	}
	return out
}

// Shard looks up a shard kind's bookkeeping by name.
func (s *State) Shard(kind string) (*Shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[kind]
	return sh, ok
}

// IncrementUsers records that a new distinct user id was seen under kind.
func (s *State) IncrementUsers(kind string) {
	s.mu.RLock()
	sh := s.shards[kind]
	s.mu.RUnlock()
	if sh != nil {
		sh.userCount.Add(1)
	}
}

// DecrementUsers records that a user id was removed from kind (GDPR
// FORGET).
func (s *State) DecrementUsers(kind string) {
	s.mu.RLock()
	sh := s.shards[kind]
	s.mu.RUnlock()
	if sh != nil {
		sh.userCount.Add(-1)
	}
}
