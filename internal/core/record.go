package core

import "fmt"

// Record is a schema-bound row flowing through the storage and dataflow
// layers. Positive records represent insertions/current state; negative
// records represent retractions, following the original's positive/negative
// record-batch model (see original_source/k9db/dataflow/record.h) rather
// than a separate delete-record type.
type Record struct {
	Schema   *Schema
	Values   []Value
	Positive bool
}

// NewRecord builds a positive record. Values must match the schema's column
// count; mismatches are a programming error and panic, mirroring the
// original's fatal SetData() type checks.
func NewRecord(schema *Schema, values []Value) Record {
	if len(values) != len(schema.Columns) {
		panic(fmt.Sprintf("core: record has %d values, schema has %d columns", len(values), len(schema.Columns)))
	}
	return Record{Schema: schema, Values: values, Positive: true}
}

// Copy returns an independent copy of the record (Values is a fresh slice;
// Go's garbage collector makes the original's explicit move-only Record
// unnecessary, but dataflow operators still need a value they can mutate
// without aliasing the input batch).
func (r Record) Copy() Record {
	vs := make([]Value, len(r.Values))
	copy(vs, r.Values)
	return Record{Schema: r.Schema, Values: vs, Positive: r.Positive}
}

// Negate returns a copy of the record with the opposite sign, used to turn
// a stored row into a retraction during UPDATE/DELETE processing.
func (r Record) Negate() Record {
	c := r.Copy()
	c.Positive = !c.Positive
	return c
}

// Key extracts the record's primary key as a Key.
func (r Record) Key() Key {
	vs := make([]Value, len(r.Schema.PK))
	for i, c := range r.Schema.PK {
		vs[i] = r.Values[c]
	}
	return Key{Values: vs}
}

// Project extracts the values named by column indices cols, in order; used
// by dataflow Project/Aggregate/EquiJoin operators and by Exchange
// partitioning.
func (r Record) Project(cols []int) []Value {
	vs := make([]Value, len(cols))
	for i, c := range cols {
		vs[i] = r.Values[c]
	}
	return vs
}

// HashOn returns the FNV hash of the values at cols, used for
// hash-partitioning (Exchange) and equi-join probe-side hashing.
func (r Record) HashOn(cols []int) uint64 {
	return Key{Values: r.Project(cols)}.Hash()
}

// UpdateMap maps column index to the new Value to install for that column;
// unmentioned columns are carried over unchanged. Mirrors the original's
// UpdateMap used by Record::Update.
type UpdateMap map[int]Value

// Update applies an UpdateMap and returns a new positive record. The
// caller is responsible for rejecting updates that touch the primary key
// before calling this (see internal/rewrite).
func (r Record) Update(m UpdateMap) Record {
	vs := make([]Value, len(r.Values))
	copy(vs, r.Values)
	for col, v := range m {
		vs[col] = v
	}
	return Record{Schema: r.Schema, Values: vs, Positive: true}
}

// Equal compares two records' values and sign (not schema identity).
func (r Record) Equal(o Record) bool {
	if r.Positive != o.Positive || len(r.Values) != len(o.Values) {
		return false
	}
	for i := range r.Values {
		if !r.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// Batch is a slice of records flowing together through the dataflow graph,
// mixing positive and negative entries.
type Batch []Record

// Positives returns only the positive records in the batch.
func (b Batch) Positives() Batch {
	out := make(Batch, 0, len(b))
	for _, r := range b {
		if r.Positive {
			out = append(out, r)
		}
	}
	return out
}

// Negatives returns only the negative records in the batch.
func (b Batch) Negatives() Batch {
	out := make(Batch, 0, len(b))
	for _, r := range b {
		if !r.Positive {
			out = append(out, r)
		}
	}
	return out
}
