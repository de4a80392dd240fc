package orm

import (
	"fmt"
	"strings"
)

// Statement is one SQL statement with its bind arguments, placeholders
// already rewritten for the dialect.
type Statement struct {
	SQL  string
	Args []any
}

type whereClause struct {
	clause string
	args   []any
}

// pkEquals filters on the primary key of def.
func pkEquals(d Dialect, def *Definition, pk any) whereClause {
	return whereClause{clause: d.QuoteIdent(def.pk.Column) + " = ?", args: []any{pk}}
}

// qualifiedTable quotes the table of def, with its schema if any.
func qualifiedTable(d Dialect, def *Definition) string {
	return qualifiedName(d, def.Schema, def.Table)
}

func qualifiedName(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// quoteColumns joins column names with dialect-aware quoting.
func quoteColumns(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func insertStatement(d Dialect, def *Definition, columns []string, values []any) Statement {
	table := qualifiedTable(d, def)
	if len(columns) == 0 {
		if d.Name() == "mysql" {
			return Statement{SQL: "INSERT INTO " + table + " () VALUES ()"}
		}
		return Statement{SQL: "INSERT INTO " + table + " DEFAULT VALUES"}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		quoteColumns(d, columns),
		repeatPlaceholders(len(columns)),
	)
	return Statement{SQL: rewritePlaceholders(d, query), Args: values}
}

func updateStatement(d Dialect, def *Definition, setCols []string, setVals []any, where whereClause) Statement {
	sets := make([]string, len(setCols))
	for i, col := range setCols {
		sets[i] = d.QuoteIdent(col) + " = ?"
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s",
		qualifiedTable(d, def),
		strings.Join(sets, ", "),
		where.clause,
	)
	args := append(append([]any(nil), setVals...), where.args...)
	return Statement{SQL: rewritePlaceholders(d, query), Args: args}
}

func deleteStatement(d Dialect, def *Definition, wheres ...whereClause) Statement {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(qualifiedTable(d, def))
	args := appendWhere(&b, wheres)
	return Statement{SQL: rewritePlaceholders(d, b.String()), Args: args}
}

// selectOwnStatement selects the own columns of def, unprefixed.
func selectOwnStatement(d Dialect, def *Definition, wheres ...whereClause) Statement {
	cols := def.Columns()
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Column
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteColumns(d, names))
	b.WriteString(" FROM ")
	b.WriteString(qualifiedTable(d, def))
	args := appendWhere(&b, wheres)
	return Statement{SQL: rewritePlaceholders(d, b.String()), Args: args}
}

func appendWhere(b *strings.Builder, wheres []whereClause) []any {
	if len(wheres) == 0 {
		return nil
	}

	var args []any
	b.WriteString(" WHERE ")
	for i, w := range wheres {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(w.clause)
		args = append(args, w.args...)
	}
	return args
}

func repeatPlaceholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

// rewritePlaceholders converts ? to dialect-specific placeholders ($1, $2, …).
func rewritePlaceholders(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
