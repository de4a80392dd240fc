package orm

// JoinParent is the join position a nested entity is materialized from:
// the parent's occurrence identity and the relation field followed.
type JoinParent struct {
	Occurrence string
	Field      *Field
}

// Materializer turns flat rows into nested Instances. One Materializer
// serves one query; its Aliases must be the context the query was planned
// with, if any.
type Materializer struct {
	aliases *Aliases
}

// NewMaterializer returns a Materializer resolving prefixes through a.
// A nil a starts a fresh alias context.
func NewMaterializer(a *Aliases) *Materializer {
	if a == nil {
		a = NewAliases()
	}
	return &Materializer{aliases: a}
}

// Aliases returns the alias context of m.
func (m *Materializer) Aliases() *Aliases { return m.aliases }

// FromRow materializes def from row, loading the relations named by
// relationPaths (e.g. "album", "tracks__genres"). It returns nil when the
// row carries no primary key for def.
func FromRow(def *Definition, row Row, relationPaths []string, a *Aliases) (*Instance, error) {
	return NewMaterializer(a).Materialize(def, row, GroupRelations(relationPaths), nil)
}

// Materialize builds an Instance of def from row. parent is nil for the
// root entity. Relations in tree are materialized first, in tree order,
// then def's own columns are read under the prefix of this join position.
//
// A missing or NULL primary key yields (nil, nil): the join found no row.
func (m *Materializer) Materialize(def *Definition, row Row, tree RelationTree, parent *JoinParent) (*Instance, error) {
	prefix, occurrence, err := m.position(def, parent)
	if err != nil {
		return nil, err
	}

	b := newInstanceBuilder(def)
	for _, name := range tree.Keys() {
		f, err := def.relation(name)
		if err != nil {
			return nil, err
		}
		sub, _ := tree.Sub(name)
		child, err := m.Materialize(f.Relation.Target, row, sub, &JoinParent{Occurrence: occurrence, Field: f})
		if err != nil {
			return nil, err
		}
		if f.Relation.Kind.ToMany() {
			list := []*Instance{}
			if child != nil {
				list = append(list, child)
			}
			err = b.set(name, list)
		} else {
			err = b.set(name, child)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, f := range def.Columns() {
		if b.has(f.Name) {
			continue
		}
		key := f.Column
		if prefix != "" {
			key = prefix + "_" + f.Column
		}
		v, ok := row.Value(key)
		if !ok {
			return nil, mappingErr(def.Name, f.Name, "column %q missing from row", key)
		}
		if err := b.set(f.Name, v); err != nil {
			return nil, err
		}
	}

	if !b.pkSet() {
		return nil, nil
	}
	return b.build(), nil
}

// position resolves the column prefix and occurrence identity of def at
// parent. A many-to-many relation is joined through its associative table,
// so the target's edge starts at the through table's occurrence.
func (m *Materializer) position(def *Definition, parent *JoinParent) (prefix, occurrence string, err error) {
	if parent == nil {
		m.aliases.Root(def.TableID())
		return "", def.TableID(), nil
	}

	rel := parent.Field.Relation
	from := parent.Occurrence
	if rel.Kind == ManyToMany {
		from, err = m.aliases.Resolve(JoinEdge{From: from, Relation: parent.Field.Name, To: rel.Through.TableID()})
		if err != nil {
			return "", "", err
		}
	}
	prefix, err = m.aliases.Resolve(JoinEdge{From: from, Relation: parent.Field.Name, To: def.TableID()})
	if err != nil {
		return "", "", err
	}
	return prefix, prefix, nil
}

// MergeInstances collapses instances sharing a primary key into the first
// one, concatenating their to-many relations recursively. A query joining
// a to-many relation yields one row per child; merging restores one parent
// holding all children.
func MergeInstances(items []*Instance) []*Instance {
	out := make([]*Instance, 0, len(items))
	index := make(map[any]int, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		key := pkKey(it.PK())
		if n, ok := index[key]; ok {
			out[n].mergeFrom(it)
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out
}

func (i *Instance) mergeFrom(o *Instance) {
	for name, v := range o.related {
		switch cur := i.related[name].(type) {
		case []*Instance:
			if more, ok := v.([]*Instance); ok {
				i.related[name] = MergeInstances(append(cur, more...))
			}
		case *Instance:
			if more, ok := v.(*Instance); ok && cur != nil && more != nil && pkKey(cur.PK()) == pkKey(more.PK()) {
				cur.mergeFrom(more)
			}
		default:
			if _, ok := i.related[name]; !ok {
				i.related[name] = v
			}
		}
	}
}

// pkKey makes a primary key usable as a map key.
func pkKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
