package orm

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// Save inserts i as a new row. An unset autoincrement primary key is left
// out of the INSERT and filled from the database afterwards; unset fields
// with a default get it. Save returns i to allow chaining.
func (i *Instance) Save(ctx context.Context) (*Instance, error) {
	q, err := i.def.querier(ctx)
	if err != nil {
		return nil, err
	}
	d := q.dialect()
	pk := i.def.pk
	omitPK := pk.Autoincrement && isUnset(i.values[pk.Name])

	filled := make(map[string]any)
	var columns []string
	var values []any
	for _, f := range i.def.Columns() {
		if f == pk && omitPK {
			continue
		}
		v := i.values[f.Name]
		if isNil(v) && f.HasDefault() {
			v = f.defaultValue(ctx)
			filled[f.Name] = v
		}
		columns = append(columns, f.Column)
		values = append(values, v)
	}

	stmt := insertStatement(d, i.def, columns, values)
	if omitPK && d.UseReturning() {
		stmt.SQL += d.ReturningClause(pk.Column)
		row, err := fetchOne(ctx, q, stmt)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, errors.New("orm: INSERT RETURNING returned no rows")
		}
		maps.Copy(i.values, filled)
		i.values[pk.Name] = row[pk.Column]
		return i, nil
	}

	result, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	maps.Copy(i.values, filled)
	if omitPK {
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		// some drivers report 0 when the key was not generated
		if id != 0 {
			i.values[pk.Name] = id
		}
	}
	return i, nil
}

// Update writes every own column of i except the primary key, filtered by
// primary key equality. When overrides are given they are merged over the
// current field snapshot and all fields are reassigned from the result
// before the UPDATE is issued.
func (i *Instance) Update(ctx context.Context, overrides map[string]any) (*Instance, error) {
	if len(overrides) > 0 {
		merged := i.Snapshot()
		maps.Copy(merged, overrides)
		if err := i.assign(merged); err != nil {
			return nil, err
		}
	}

	pkVal := i.PK()
	if isNil(pkVal) {
		return nil, fmt.Errorf("%w for %s.Update", ErrNoPrimaryKey, i.def.Name)
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return nil, err
	}
	d := q.dialect()

	var setCols []string
	var setVals []any
	for _, f := range i.def.Columns() {
		if f.PrimaryKey {
			continue
		}
		setCols = append(setCols, f.Column)
		setVals = append(setVals, i.values[f.Name])
	}
	if len(setCols) == 0 {
		return i, nil
	}

	stmt := updateStatement(d, i.def, setCols, setVals, pkEquals(d, i.def, pkVal))
	if _, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return i, nil
}

// Delete removes the row of i and returns the number of rows affected.
// The in-memory instance is left as it is.
func (i *Instance) Delete(ctx context.Context) (int64, error) {
	pkVal := i.PK()
	if isNil(pkVal) {
		return 0, fmt.Errorf("%w for %s.Delete", ErrNoPrimaryKey, i.def.Name)
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return 0, err
	}
	d := q.dialect()

	stmt := deleteStatement(d, i.def, pkEquals(d, i.def, pkVal))
	result, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return result.RowsAffected() //nolint:wrapcheck // pass through
}

// Load re-reads the row of i by primary key and overwrites its own columns.
// Loaded to-one relations whose key did not change are kept. Returns
// ErrGone when the row no longer exists.
func (i *Instance) Load(ctx context.Context) (*Instance, error) {
	pkVal := i.PK()
	if isNil(pkVal) {
		return nil, fmt.Errorf("%w for %s.Load", ErrNoPrimaryKey, i.def.Name)
	}
	q, err := i.def.querier(ctx)
	if err != nil {
		return nil, err
	}
	d := q.dialect()

	row, err := fetchOne(ctx, q, selectOwnStatement(d, i.def, pkEquals(d, i.def, pkVal)))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %v", ErrGone, i.def.Name, pkVal)
	}

	for _, f := range i.def.Columns() {
		v := row[f.Column]
		if r, ok := i.related[f.Name].(*Instance); ok && r != nil && pkKey(r.PK()) == pkKey(v) {
			i.values[f.Name] = v
			continue
		}
		if err := i.Set(f.Name, v); err != nil {
			return nil, err
		}
	}
	return i, nil
}
