package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mickamy/relmap/scope"
)

// Query represents a pending SELECT against one definition, optionally
// joining related definitions in.
// All builder methods return a new Query; the receiver is never modified.
type Query struct {
	def *Definition
	db  Querier

	wheres   []whereClause
	orderBys []string
	related  []string
	limit    *int
	offset   *int
}

// NewQuery starts a query over def.
func NewQuery(def *Definition) *Query {
	return &Query{def: def}
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (q *Query) clone() *Query {
	q2 := *q
	q2.wheres = append([]whereClause(nil), q.wheres...)
	q2.orderBys = append([]string(nil), q.orderBys...)
	q2.related = append([]string(nil), q.related...)
	return &q2
}

// --- Builder methods ---

// Using runs the query through db instead of the context or registry
// querier.
func (q *Query) Using(db Querier) *Query {
	q2 := q.clone()
	q2.db = db
	return q2
}

func (q *Query) Where(clause string, args ...any) *Query {
	q2 := q.clone()
	q2.wheres = append(q2.wheres, whereClause{clause, args})
	return q2
}

func (q *Query) OrderBy(clause string) *Query {
	q2 := q.clone()
	q2.orderBys = append(q2.orderBys, clause)
	return q2
}

func (q *Query) Limit(n int) *Query {
	q2 := q.clone()
	q2.limit = &n
	return q2
}

func (q *Query) Offset(n int) *Query {
	q2 := q.clone()
	q2.offset = &n
	return q2
}

// SelectRelated joins the relations named by paths ("album",
// "tracks__genres") into the query and materializes them with each row.
func (q *Query) SelectRelated(paths ...string) *Query {
	q2 := q.clone()
	q2.related = append(q2.related, paths...)
	return q2
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query) Scopes(scopes ...scope.Scope) *Query {
	q2 := q.clone()
	for _, s := range scopes {
		s.Apply(q2)
	}
	return q2
}

// --- scope.Applier implementation ---

func (q *Query) ApplyWhere(clause string, args []any) {
	q.wheres = append(q.wheres, whereClause{clause, args})
}

func (q *Query) ApplyOrderBy(clause string) {
	q.orderBys = append(q.orderBys, clause)
}

func (q *Query) ApplyLimit(n int)  { q.limit = &n }
func (q *Query) ApplyOffset(n int) { q.offset = &n }

func (q *Query) ApplyRelated(paths []string) {
	q.related = append(q.related, paths...)
}

var _ scope.Applier = (*Query)(nil)

// --- Terminal methods ---

// All executes the SELECT and returns the materialized instances. Rows of
// the same root (produced by to-many joins) are merged into one instance.
func (q *Query) All(ctx context.Context) ([]*Instance, error) {
	db, err := q.querier(ctx)
	if err != nil {
		return nil, err
	}
	p, err := q.plan(db.dialect())
	if err != nil {
		return nil, err
	}
	stmt := p.selectStatement(q)

	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	m := NewMaterializer(p.aliases)
	var result []*Instance
	for rows.Next() {
		row, err := scanMapRow(rows)
		if err != nil {
			return nil, err
		}
		inst, err := m.Materialize(q.def, row, p.tree, nil)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			result = append(result, inst)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return MergeInstances(result), nil
}

// First executes a SELECT with LIMIT 1 and returns the first instance.
// Returns ErrNotFound if no rows match. With to-many relations selected,
// LIMIT applies to joined rows, so only the first child is attached.
func (q *Query) First(ctx context.Context) (*Instance, error) {
	items, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// Get returns the instance whose primary key equals pk.
// Returns ErrNotFound if there is none.
func (q *Query) Get(ctx context.Context, pk any) (*Instance, error) {
	db, err := q.querier(ctx)
	if err != nil {
		return nil, err
	}
	col := db.dialect().QuoteIdent(aliasBase(q.def.TableID())) + "." + db.dialect().QuoteIdent(q.def.pk.Column)
	items, err := q.Where(col+" = ?", pk).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// Count returns the number of root rows matching the current conditions.
func (q *Query) Count(ctx context.Context) (int64, error) {
	db, err := q.querier(ctx)
	if err != nil {
		return 0, err
	}
	p, err := q.plan(db.dialect())
	if err != nil {
		return 0, err
	}
	stmt := p.countStatement(q)

	var count int64
	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

// Exists returns true if at least one row matches the current conditions.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *Query) querier(ctx context.Context) (Querier, error) {
	if q.db != nil {
		return q.db, nil
	}
	return q.def.querier(ctx)
}

// --- SQL building ---

// selectPlan is the FROM/JOIN layout of one query. Its alias context is
// sealed once planned and handed to the materializer, so columns are read
// under exactly the prefixes they were selected as.
type selectPlan struct {
	d       Dialect
	tree    RelationTree
	aliases *Aliases
	from    string
	rootPK  string
	columns []string
	joins   []string
}

func (q *Query) plan(d Dialect) (*selectPlan, error) {
	p := &selectPlan{
		d:       d,
		tree:    GroupRelations(q.related),
		aliases: NewAliases(),
	}
	qi := d.QuoteIdent

	root := q.def
	rootAlias := p.aliases.Root(root.TableID())
	p.from = qualifiedTable(d, root) + " AS " + qi(rootAlias)
	p.rootPK = qi(rootAlias) + "." + qi(root.pk.Column)
	for _, f := range root.Columns() {
		p.columns = append(p.columns, qi(rootAlias)+"."+qi(f.Column)+" AS "+qi(f.Column))
	}

	if err := p.walk(root, root.TableID(), rootAlias, p.tree); err != nil {
		return nil, err
	}
	p.aliases.Seal()
	return p, nil
}

// walk plans one LEFT JOIN per relation edge, depth first in tree order.
func (p *selectPlan) walk(def *Definition, occurrence, sqlAlias string, tree RelationTree) error {
	qi := p.d.QuoteIdent
	for _, name := range tree.Keys() {
		f, err := def.relation(name)
		if err != nil {
			return err
		}
		rel := f.Relation
		target := rel.Target

		from := occurrence
		fromAlias := sqlAlias
		var on string
		switch rel.Kind {
		case ManyToMany:
			through, err := p.aliases.Resolve(JoinEdge{From: occurrence, Relation: name, To: rel.Through.TableID()})
			if err != nil {
				return err
			}
			p.joins = append(p.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				qualifiedTable(p.d, rel.Through), qi(through),
				qi(through), qi(rel.ThroughSource),
				qi(sqlAlias), qi(def.pk.Column),
			))
			from, fromAlias = through, through
		}

		prefix, err := p.aliases.Resolve(JoinEdge{From: from, Relation: name, To: target.TableID()})
		if err != nil {
			return err
		}
		switch rel.Kind {
		case ForeignKey:
			on = fmt.Sprintf("%s.%s = %s.%s", qi(prefix), qi(target.pk.Column), qi(fromAlias), qi(f.Column))
		case ReverseForeignKey:
			on = fmt.Sprintf("%s.%s = %s.%s", qi(prefix), qi(rel.RemoteColumn), qi(fromAlias), qi(def.pk.Column))
		case ManyToMany:
			on = fmt.Sprintf("%s.%s = %s.%s", qi(prefix), qi(target.pk.Column), qi(fromAlias), qi(rel.ThroughTarget))
		}
		p.joins = append(p.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s", qualifiedTable(p.d, target), qi(prefix), on))

		for _, tf := range target.Columns() {
			p.columns = append(p.columns, qi(prefix)+"."+qi(tf.Column)+" AS "+qi(prefix+"_"+tf.Column))
		}

		sub, _ := tree.Sub(name)
		if err := p.walk(target, prefix, prefix, sub); err != nil {
			return err
		}
	}
	return nil
}

func (p *selectPlan) selectStatement(q *Query) Statement {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(p.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(p.from)
	for _, j := range p.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}

	args := appendWhere(&b, q.wheres)

	if len(q.orderBys) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBys, ", "))
	}

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}

	return Statement{SQL: rewritePlaceholders(p.d, b.String()), Args: args}
}

func (p *selectPlan) countStatement(q *Query) Statement {
	var b strings.Builder
	if len(p.joins) == 0 {
		b.WriteString("SELECT COUNT(*) FROM ")
	} else {
		b.WriteString("SELECT COUNT(DISTINCT " + p.rootPK + ") FROM ")
	}
	b.WriteString(p.from)
	for _, j := range p.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}
	args := appendWhere(&b, q.wheres)
	return Statement{SQL: rewritePlaceholders(p.d, b.String()), Args: args}
}
