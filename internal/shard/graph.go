package shard

import (
	"fmt"

	"k9db/internal/core"
	"k9db/internal/index"
	"k9db/internal/sqlast"
)

// CreateTable validates and registers a new table against the ownership
// graph: it classifies every OWNED_BY/OWNS/ACCESSED_BY/ACCESSES annotation,
// builds this table's own ShardDescriptors, and lifts the right descriptor
// onto any table it transitively or variably affects. Grounded on the
// shard-graph construction implied by original_source/k9db/shards/types.h
// (ShardDescriptor variants) together with spec.md §4.F.
func (s *State) CreateTable(ct *sqlast.CreateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[ct.Name]; exists {
		return fmt.Errorf("shard: table %q already exists", ct.Name)
	}

	cols := make([]core.Column, len(ct.Columns))
	for i, c := range ct.Columns {
		cols[i] = core.Column{
			Name:       c.Name,
			Type:       c.Type,
			NotNull:    c.NotNull,
			AutoInc:    c.AutoInc,
			HasDefault: c.HasDefault,
			Default:    c.Default,
		}
	}
	pkNames := primaryKeyNames(ct)
	if len(pkNames) == 0 {
		return fmt.Errorf("shard: table %q declares no primary key", ct.Name)
	}
	schema, err := core.NewSchema(cols, pkNames)
	if err != nil {
		return fmt.Errorf("shard: table %q: %w", ct.Name, err)
	}

	table := NewTable(ct.Name, schema, ct.RawSQL)
	table.IsDataSubject = ct.DataSubject

	if err := s.validateAnnotations(ct); err != nil {
		return err
	}

	if ct.DataSubject {
		table.Owners = append(table.Owners, &ShardDescriptor{
			ShardKind:   ct.Name,
			Type:        Direct,
			Column:      schema.Columns[schema.SinglePK()].Name,
			ColumnIndex: schema.SinglePK(),
		})
		s.shards[ct.Name] = newShard(ct.Name, schema.Columns[schema.SinglePK()].Name, schema.SinglePK())
	}

	explicitOwner := false
	for _, c := range ct.Columns {
		switch c.Annotation {
		case sqlast.AnnotationOwnedBy, sqlast.AnnotationAccessedBy:
			explicitOwner = explicitOwner || c.Annotation == sqlast.AnnotationOwnedBy
			descs, err := s.buildDescriptor(table, schema, c, c.Annotation == sqlast.AnnotationAccessedBy)
			if err != nil {
				return err
			}
			if len(descs) == 0 {
				continue // target not sharded (e.g. not a data subject, not yet owned): table row lands in the default shard
			}
			if c.Annotation == sqlast.AnnotationOwnedBy {
				table.Owners = append(table.Owners, descs...)
			} else {
				table.Accessors = append(table.Accessors, descs...)
			}
		}
	}
	_ = explicitOwner // reserved for the "explicit annotation disables auto-inference" rule; no implicit inference is attempted in this implementation

	for _, c := range ct.Columns {
		if c.Annotation != sqlast.AnnotationOwns && c.Annotation != sqlast.AnnotationAccesses {
			continue
		}
		if err := s.addVariableDescriptor(table, schema, c); err != nil {
			return err
		}
	}

	for _, r := range ct.Rules {
		table.Rules = append(table.Rules, AnonymizationRule{
			OnGet:       r.OnGet,
			DataSubject: r.DataSubject,
			DeleteRow:   r.DeleteRow,
			Columns:     r.Columns,
		})
	}

	s.tables[ct.Name] = table
	return nil
}

func primaryKeyNames(ct *sqlast.CreateTable) []string {
	for _, c := range ct.Constraints {
		if c.Kind == "PRIMARY KEY" {
			return c.Columns
		}
	}
	for _, c := range ct.Columns {
		if c.NotNull && c.AutoInc {
			return []string{c.Name}
		}
	}
	return nil
}

// validateAnnotations enforces spec.md §4.F's rules: OWNED_BY/ACCESSED_BY
// must target an existing table's primary key; OWNS/ACCESSES may not be
// self-referential; a DEL rule may not anonymize the primary key or an
// ownership column.
func (s *State) validateAnnotations(ct *sqlast.CreateTable) error {
	for _, c := range ct.Columns {
		switch c.Annotation {
		case sqlast.AnnotationOwnedBy, sqlast.AnnotationAccessedBy:
			target, ok := s.tables[c.RefTable]
			if !ok {
				return fmt.Errorf("shard: %s references unknown table %q", c.Name, c.RefTable)
			}
			if target.Schema.ColumnIndex(c.RefColumn) != target.Schema.SinglePK() {
				return fmt.Errorf("shard: %s.%s must reference %s's primary key", ct.Name, c.Name, c.RefTable)
			}
		case sqlast.AnnotationOwns, sqlast.AnnotationAccesses:
			if c.RefTable == ct.Name {
				return fmt.Errorf("shard: %s may not OWNS/ACCESSES its own table", c.Name)
			}
		}
	}
	ownedColumns := make(map[string]bool)
	for _, c := range ct.Columns {
		if c.Annotation == sqlast.AnnotationOwnedBy {
			ownedColumns[c.Name] = true
		}
	}
	pk := primaryKeyNames(ct)
	for _, r := range ct.Rules {
		if r.DeleteRow {
			continue
		}
		for _, col := range r.Columns {
			if ownedColumns[col] {
				return fmt.Errorf("shard: ANONYMIZE rule may not target ownership column %q", col)
			}
			for _, p := range pk {
				if p == col {
					return fmt.Errorf("shard: ANONYMIZE rule may not target primary key column %q", col)
				}
			}
		}
	}
	return nil
}

// buildDescriptor constructs this table's own Direct/Transitive
// descriptor(s) for an OWNED_BY/ACCESSED_BY column, and records a reverse
// dependent edge on the target table for each one so its cascades reach
// here. A target reached through more than one parent (a multiply-owned
// intermediate table) lifts one Transitive descriptor per distinct shard
// kind its parents reach, collapsing parents that reach the same kind —
// per the original's per-relationship ShardDescriptor lifting in
// original_source/k9db/shards/sqlengine/create_table.cc.
func (s *State) buildDescriptor(table *Table, schema *core.Schema, c sqlast.ColumnDef, accessor bool) ([]*ShardDescriptor, error) {
	target, ok := s.tables[c.RefTable]
	if !ok {
		return nil, fmt.Errorf("shard: unknown reference target %q", c.RefTable)
	}

	colIdx := schema.ColumnIndex(c.Name)

	if target.IsDataSubject {
		desc := &ShardDescriptor{
			ShardKind:   target.Name,
			Type:        Direct,
			Accessor:    accessor,
			Column:      c.Name,
			ColumnIndex: colIdx,
			NextTable:   target.Name,
			NextColumn:  c.RefColumn,
		}
		addDependent(target, table.Name, desc, accessor)
		return []*ShardDescriptor{desc}, nil
	}

	// Lift through the target's own owners/accessors to build one
	// Transitive descriptor per distinct shard kind the target reaches.
	sources := target.Owners
	if accessor {
		sources = append(append([]*ShardDescriptor{}, target.Owners...), target.Accessors...)
	}
	seenKinds := make(map[string]bool)
	var lifted []*ShardDescriptor
	for _, parent := range sources {
		if seenKinds[parent.ShardKind] {
			continue
		}
		seenKinds[parent.ShardKind] = true

		chain := index.New(false)
		desc := &ShardDescriptor{
			ShardKind:       parent.ShardKind,
			Type:            Transitive,
			Accessor:        accessor,
			Column:          c.Name,
			ColumnIndex:     colIdx,
			NextTable:       target.Name,
			NextColumn:      c.RefColumn,
			NextColumnIndex: parent.ColumnIndex,
			ChainIndex:      chain,
		}
		addDependent(target, table.Name, desc, accessor)
		lifted = append(lifted, desc)
	}
	return lifted, nil
}

// addVariableDescriptor handles a table-level OWNS/ACCESSES annotation: the
// *target* table gains a Variable ShardDescriptor whose placement depends
// on wherever the declaring (origin) row currently lives, and the origin
// table records a dependent edge so inserts there cascade into the target.
func (s *State) addVariableDescriptor(origin *Table, schema *core.Schema, c sqlast.ColumnDef) error {
	target, ok := s.tables[c.RefTable]
	if !ok {
		return fmt.Errorf("shard: OWNS/ACCESSES references unknown table %q", c.RefTable)
	}
	colIdx := schema.ColumnIndex(c.Name)
	accessor := c.Annotation == sqlast.AnnotationAccesses

	desc := &ShardDescriptor{
		Type:              Variable,
		Accessor:          accessor,
		Column:            c.RefColumn,
		ColumnIndex:       target.Schema.ColumnIndex(c.RefColumn),
		OriginTable:       origin.Name,
		OriginColumn:      c.Name,
		OriginColumnIndex: colIdx,
	}
	if accessor {
		target.Accessors = append(target.Accessors, desc)
		origin.AccessDependents = append(origin.AccessDependents, Dependent{Table: target.Name, Descriptor: desc})
	} else {
		target.Owners = append(target.Owners, desc)
		origin.Dependents = append(origin.Dependents, Dependent{Table: target.Name, Descriptor: desc})
	}
	return nil
}

func addDependent(target *Table, depTable string, desc *ShardDescriptor, accessor bool) {
	if accessor {
		target.AccessDependents = append(target.AccessDependents, Dependent{Table: depTable, Descriptor: desc})
	} else {
		target.Dependents = append(target.Dependents, Dependent{Table: depTable, Descriptor: desc})
	}
}
