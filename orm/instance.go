package orm

import (
	"maps"
	"reflect"
)

// Instance is one live row of a Definition: its own column values plus any
// relations loaded with it.
//
// A loaded to-one relation holds a *Instance (nil when the join found no
// row); a loaded to-many relation holds a []*Instance. A foreign key that was
// not loaded keeps its raw key value.
type Instance struct {
	def     *Definition
	values  map[string]any
	related map[string]any
}

// New builds an Instance of d from values keyed by field name. Unknown
// field names are rejected with a mapping error.
func (d *Definition) New(values map[string]any) (*Instance, error) {
	b := newInstanceBuilder(d)
	for name, v := range values {
		if err := b.set(name, v); err != nil {
			return nil, err
		}
	}
	return b.build(), nil
}

// Definition returns the definition of i.
func (i *Instance) Definition() *Definition { return i.def }

// PK returns the primary key value, nil when unset.
func (i *Instance) PK() any { return i.values[i.def.pk.Name] }

// Value returns the stored value of a column field. For a foreign key this
// is the key of the related row.
func (i *Instance) Value(name string) (any, bool) {
	v, ok := i.values[name]
	return v, ok
}

// Get returns the loaded relation for name if there is one, else the
// stored column value.
func (i *Instance) Get(name string) any {
	if r, ok := i.related[name]; ok {
		return r
	}
	return i.values[name]
}

// Set assigns one field, validating the name against the definition.
func (i *Instance) Set(name string, v any) error {
	return setField(i.def, i.values, i.related, name, v)
}

// IsLoaded reports whether the relation name was materialized or assigned.
func (i *Instance) IsLoaded(name string) bool {
	_, ok := i.related[name]
	return ok
}

// Related returns the to-one relation name. When it was not loaded, a
// placeholder holding only the primary key is returned; call Load on it to
// fetch the rest.
func (i *Instance) Related(name string) (*Instance, error) {
	f, err := i.def.relation(name)
	if err != nil {
		return nil, err
	}
	if f.Relation.Kind != ForeignKey {
		return nil, mappingErr(i.def.Name, name, "%s relation is not to-one", f.Relation.Kind)
	}
	if r, ok := i.related[name]; ok {
		inst, _ := r.(*Instance)
		return inst, nil
	}
	key := i.values[name]
	if key == nil {
		return nil, nil
	}
	target := f.Relation.Target
	return &Instance{
		def:     target,
		values:  map[string]any{target.pk.Name: key},
		related: make(map[string]any),
	}, nil
}

// RelatedList returns a copy of the loaded to-many relation name, or nil
// when it was not loaded. Use Set to replace the collection.
func (i *Instance) RelatedList(name string) ([]*Instance, error) {
	f, err := i.def.relation(name)
	if err != nil {
		return nil, err
	}
	if !f.Relation.Kind.ToMany() {
		return nil, mappingErr(i.def.Name, name, "%s relation is not to-many", f.Relation.Kind)
	}
	list, ok := i.related[name].([]*Instance)
	if !ok {
		return nil, nil
	}
	return append([]*Instance{}, list...), nil
}

// Snapshot returns a copy of every assigned field keyed by field name.
// Loaded relations appear as instances.
func (i *Instance) Snapshot() map[string]any {
	out := make(map[string]any, len(i.values)+len(i.related))
	maps.Copy(out, i.values)
	for k, v := range i.related {
		if list, ok := v.([]*Instance); ok {
			out[k] = append([]*Instance(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}

// ToMap converts i into plain maps, recursing into loaded relations.
func (i *Instance) ToMap() map[string]any {
	if i == nil {
		return nil
	}
	out := make(map[string]any, len(i.values)+len(i.related))
	maps.Copy(out, i.values)
	for k, v := range i.related {
		switch r := v.(type) {
		case *Instance:
			if r == nil {
				out[k] = nil
			} else {
				out[k] = r.ToMap()
			}
		case []*Instance:
			list := make([]map[string]any, len(r))
			for n, c := range r {
				list[n] = c.ToMap()
			}
			out[k] = list
		}
	}
	return out
}

// assign replaces every field of i with values, all or nothing.
func (i *Instance) assign(values map[string]any) error {
	b := newInstanceBuilder(i.def)
	for name, v := range values {
		if err := b.set(name, v); err != nil {
			return err
		}
	}
	i.values, i.related = b.values, b.related
	return nil
}

// instanceBuilder assembles the field map of an Instance, rejecting names
// the definition does not declare.
type instanceBuilder struct {
	def     *Definition
	values  map[string]any
	related map[string]any
}

func newInstanceBuilder(def *Definition) *instanceBuilder {
	return &instanceBuilder{
		def:     def,
		values:  make(map[string]any),
		related: make(map[string]any),
	}
}

func (b *instanceBuilder) set(name string, v any) error {
	return setField(b.def, b.values, b.related, name, v)
}

func (b *instanceBuilder) has(name string) bool {
	if _, ok := b.related[name]; ok {
		return true
	}
	_, ok := b.values[name]
	return ok
}

func (b *instanceBuilder) pkSet() bool {
	return !isNil(b.values[b.def.pk.Name])
}

func (b *instanceBuilder) build() *Instance {
	return &Instance{def: b.def, values: b.values, related: b.related}
}

func setField(def *Definition, values, related map[string]any, name string, v any) error {
	f, ok := def.byName[name]
	if !ok {
		return mappingErr(def.Name, name, "unknown field")
	}
	if f.Relation == nil {
		values[name] = v
		return nil
	}

	switch f.Relation.Kind {
	case ForeignKey:
		inst, isInst := v.(*Instance)
		if !isInst {
			values[name] = v
			delete(related, name)
			return nil
		}
		if inst == nil {
			values[name] = nil
			related[name] = inst
			return nil
		}
		if t := f.Relation.Target; t != nil && inst.def != t {
			return mappingErr(def.Name, name, "expects %s, got %s", t.Name, inst.def.Name)
		}
		values[name] = inst.PK()
		related[name] = inst
	default:
		switch list := v.(type) {
		case nil:
			related[name] = []*Instance{}
		case []*Instance:
			related[name] = append([]*Instance{}, list...)
		default:
			return mappingErr(def.Name, name, "%s relation expects []*Instance, got %T", f.Relation.Kind, v)
		}
	}
	return nil
}

// isNil reports whether v is nil or a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// isUnset reports whether an auto-generated key still needs a value.
func isUnset(v any) bool {
	if isNil(v) {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
