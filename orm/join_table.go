package orm

import (
	"context"
	"fmt"
)

// Link inserts one through-table row per target, connecting i with each of
// them over the many-to-many relation. A loaded collection is updated too.
func (i *Instance) Link(ctx context.Context, relation string, targets ...*Instance) error {
	f, err := i.manyToMany(relation, targets)
	if err != nil {
		return err
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return err
	}
	d := q.dialect()
	rel := f.Relation

	for _, t := range targets {
		stmt := insertStatement(d, rel.Through,
			[]string{rel.ThroughSource, rel.ThroughTarget},
			[]any{i.PK(), t.PK()},
		)
		if _, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		if list, ok := i.related[relation].([]*Instance); ok {
			i.related[relation] = append(list, t)
		}
	}
	return nil
}

// Unlink deletes the through-table rows connecting i with targets and
// returns the number of rows removed.
func (i *Instance) Unlink(ctx context.Context, relation string, targets ...*Instance) (int64, error) {
	f, err := i.manyToMany(relation, targets)
	if err != nil {
		return 0, err
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return 0, err
	}
	d := q.dialect()
	rel := f.Relation

	var total int64
	for _, t := range targets {
		stmt := deleteStatement(d, rel.Through,
			whereClause{clause: d.QuoteIdent(rel.ThroughSource) + " = ?", args: []any{i.PK()}},
			whereClause{clause: d.QuoteIdent(rel.ThroughTarget) + " = ?", args: []any{t.PK()}},
		)
		result, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return total, err //nolint:wrapcheck // pass through
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err //nolint:wrapcheck // pass through
		}
		total += n
		if list, ok := i.related[relation].([]*Instance); ok {
			i.related[relation] = removeByPK(list, t.PK())
		}
	}
	return total, nil
}

// LinkedKeys reads the primary keys of the targets linked to i over the
// many-to-many relation, in through-table order.
func (i *Instance) LinkedKeys(ctx context.Context, relation string) ([]any, error) {
	f, err := i.manyToMany(relation, nil)
	if err != nil {
		return nil, err
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return nil, err
	}
	d := q.dialect()
	rel := f.Relation

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		d.QuoteIdent(rel.ThroughTarget),
		qualifiedTable(d, rel.Through),
		d.QuoteIdent(rel.ThroughSource),
	)
	rows, err := q.QueryContext(ctx, rewritePlaceholders(d, query), i.PK())
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var keys []any
	for rows.Next() {
		var k any
		if err := rows.Scan(&k); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		keys = append(keys, k)
	}
	return keys, rows.Err() //nolint:wrapcheck // pass through
}

func (i *Instance) manyToMany(relation string, targets []*Instance) (*Field, error) {
	f, err := i.def.relation(relation)
	if err != nil {
		return nil, err
	}
	if f.Relation.Kind != ManyToMany {
		return nil, mappingErr(i.def.Name, relation, "%s relation cannot be linked", f.Relation.Kind)
	}
	if isNil(i.PK()) {
		return nil, fmt.Errorf("%w for %s.%s", ErrNoPrimaryKey, i.def.Name, relation)
	}
	for _, t := range targets {
		if t == nil || t.def != f.Relation.Target {
			return nil, mappingErr(i.def.Name, relation, "expects %s instances", f.Relation.Target.Name)
		}
		if isNil(t.PK()) {
			return nil, fmt.Errorf("%w for linked %s", ErrNoPrimaryKey, t.def.Name)
		}
	}
	return f, nil
}

func removeByPK(list []*Instance, pk any) []*Instance {
	out := list[:0:0]
	for _, it := range list {
		if pkKey(it.PK()) != pkKey(pk) {
			out = append(out, it)
		}
	}
	return out
}
