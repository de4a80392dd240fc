package orm

import "database/sql"

// Row is one flat result row. Root table columns are keyed by their bare
// name, joined columns by "{prefix}_{column}".
type Row interface {
	Value(key string) (any, bool)
}

// MapRow is a Row backed by a map.
type MapRow map[string]any

// Value implements Row.
func (r MapRow) Value(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// scanMapRow reads the current row of rows into a MapRow, keeping driver
// values as they are.
func scanMapRow(rows *sql.Rows) (MapRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	row := make(MapRow, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	return row, nil
}
