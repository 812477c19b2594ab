package rewrite

import (
	"k9db/internal/core"
	"k9db/internal/sqlast"
	"k9db/internal/table"
)

// matches reports whether record satisfies every WHERE condition (an
// implicit AND of equality/IN predicates — see sqlast.whereConditions).
func matches(schema *core.Schema, record core.Record, where []sqlast.Condition) bool {
	for _, c := range where {
		ci := schema.ColumnIndex(c.Column)
		if ci < 0 {
			return false
		}
		v := record.Values[ci]
		found := false
		for _, want := range c.Values {
			if v.Equal(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// selectRows finds every row in phys matching where. When where pins the
// primary key to a fixed set of values, this resolves directly through
// the PK index instead of a full scan — the common case for UPDATE/DELETE/
// SELECT by id; anything else falls back to a full-table scan, which
// spec.md's index-selection rule treats as the conservative fallback when
// no more specific index applies.
func selectRows(schema *core.Schema, phys *table.Table, where []sqlast.Condition) ([]core.Record, error) {
	pkName := schema.Columns[schema.SinglePK()].Name
	for _, c := range where {
		if c.Column != pkName {
			continue
		}
		var out []core.Record
		for _, pk := range c.Values {
			for _, s := range phys.Shards(pk) {
				rec, ok, err := phys.Get(s, pk)
				if err != nil {
					return nil, err
				}
				if ok && matches(schema, rec, where) {
					out = append(out, rec)
				}
			}
		}
		return out, nil
	}

	all, err := phys.GetAll()
	if err != nil {
		return nil, err
	}
	var out []core.Record
	for _, rec := range all {
		if matches(schema, rec, where) {
			out = append(out, rec)
		}
	}
	return out, nil
}
