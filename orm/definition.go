package orm

import (
	"context"
	"fmt"
)

// Definition is the static metadata of one mapped entity: its table, its
// fields and its primary key. A Definition must not be modified once it is
// registered.
type Definition struct {
	Name   string
	Table  string
	Schema string

	fields   []*Field
	byName   map[string]*Field
	byColumn map[string]*Field
	pk       *Field
	reg      *Registry
}

// NewDefinition declares an entity named name stored in table.
func NewDefinition(name, table string, fields ...*Field) *Definition {
	return &Definition{Name: name, Table: table, fields: fields}
}

// InSchema sets the database schema of the table and returns d.
func (d *Definition) InSchema(schema string) *Definition {
	d.Schema = schema
	return d
}

// TableID returns the schema-qualified table identity.
func (d *Definition) TableID() string {
	if d.Schema == "" {
		return d.Table
	}
	return d.Schema + "." + d.Table
}

// PrimaryKey returns the primary key field.
func (d *Definition) PrimaryKey() *Field { return d.pk }

// Field looks a field up by name.
func (d *Definition) Field(name string) (*Field, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// Fields returns all fields in declaration order, generated reverse
// relations last.
func (d *Definition) Fields() []*Field {
	return append([]*Field(nil), d.fields...)
}

// Columns returns the fields stored in the definition's own table.
func (d *Definition) Columns() []*Field {
	out := make([]*Field, 0, len(d.fields))
	for _, f := range d.fields {
		if f.HasColumn() {
			out = append(out, f)
		}
	}
	return out
}

// Relations returns the relation fields.
func (d *Definition) Relations() []*Field {
	var out []*Field
	for _, f := range d.fields {
		if f.IsRelation() {
			out = append(out, f)
		}
	}
	return out
}

// Registry returns the registry d belongs to, or nil before registration.
func (d *Definition) Registry() *Registry { return d.reg }

// relation returns the relation field called name or a mapping error.
func (d *Definition) relation(name string) (*Field, error) {
	f, ok := d.byName[name]
	if !ok {
		return nil, mappingErr(d.Name, name, "unknown field")
	}
	if !f.IsRelation() {
		return nil, mappingErr(d.Name, name, "not a relation field")
	}
	if !f.Relation.bound() {
		return nil, mappingErr(d.Name, name, "relation target %q is not registered", f.Relation.TargetName)
	}
	return f, nil
}

// querier returns the querier carried by ctx, falling back to the
// registry's default.
func (d *Definition) querier(ctx context.Context) (Querier, error) {
	if q, ok := ctx.Value(querierKey{}).(Querier); ok && q != nil {
		return q, nil
	}
	if d.reg != nil && d.reg.db != nil {
		return d.reg.db, nil
	}
	return nil, fmt.Errorf("orm: no querier configured for %s", d.Name)
}

// index validates the field list and builds the lookup maps.
func (d *Definition) index() error {
	if d.Name == "" || d.Table == "" {
		return mappingErr(d.Name, "", "definition needs a name and a table")
	}
	d.byName = make(map[string]*Field, len(d.fields))
	d.byColumn = make(map[string]*Field, len(d.fields))
	d.pk = nil
	for _, f := range d.fields {
		if _, dup := d.byName[f.Name]; dup {
			return mappingErr(d.Name, f.Name, "duplicate field")
		}
		d.byName[f.Name] = f
		if f.HasColumn() {
			if f.Column == "" {
				f.Column = f.Name
			}
			if other, dup := d.byColumn[f.Column]; dup {
				return mappingErr(d.Name, f.Name, "column %q already mapped by %s", f.Column, other.Name)
			}
			d.byColumn[f.Column] = f
		}
		if f.PrimaryKey {
			if f.IsRelation() {
				return mappingErr(d.Name, f.Name, "relation field cannot be the primary key")
			}
			if d.pk != nil {
				return mappingErr(d.Name, f.Name, "multiple primary keys: %s and %s", d.pk.Name, f.Name)
			}
			d.pk = f
		}
	}
	if d.pk == nil {
		return mappingErr(d.Name, "", "no primary key defined")
	}
	return nil
}

func (d *Definition) addField(f *Field) error {
	if _, dup := d.byName[f.Name]; dup {
		return mappingErr(d.Name, f.Name, "related name clashes with an existing field")
	}
	d.fields = append(d.fields, f)
	d.byName[f.Name] = f
	return nil
}
