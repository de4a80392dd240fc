package orm

import (
	"context"

	"github.com/google/uuid"
)

// RelationKind tells how a relation field joins its target.
type RelationKind int

const (
	// ForeignKey is a to-one relation backed by a column on the owning table.
	ForeignKey RelationKind = iota + 1
	// ReverseForeignKey is the one-to-many side of a ForeignKey declared on
	// the target. It has no column of its own.
	ReverseForeignKey
	// ManyToMany joins through an associative (through) table.
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case ForeignKey:
		return "foreign_key"
	case ReverseForeignKey:
		return "reverse_foreign_key"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ToMany reports whether the relation materializes as a collection.
func (k RelationKind) ToMany() bool { return k == ReverseForeignKey || k == ManyToMany }

// Relation holds the relation metadata of a Field. Targets are declared by
// definition name and bound when the registry sees both sides.
type Relation struct {
	Kind        RelationKind
	TargetName  string
	Target      *Definition
	RelatedName string

	// RemoteColumn is the foreign key column on Target that points back at
	// the owner (ReverseForeignKey only).
	RemoteColumn string

	// ThroughName names the associative definition (ManyToMany only).
	ThroughName string
	Through     *Definition
	// ThroughSource and ThroughTarget are the columns on Through pointing
	// at the owner and at Target respectively.
	ThroughSource string
	ThroughTarget string

	// generated is set on reverse sides created by the registry.
	generated bool
}

// Generated reports whether the registry created this relation as the
// reverse side of another one.
func (r *Relation) Generated() bool { return r.generated }

func (r *Relation) bound() bool {
	if r.Target == nil {
		return false
	}
	return r.Kind != ManyToMany || r.Through != nil
}

// Field describes one mapped attribute of a Definition.
type Field struct {
	Name          string
	Column        string
	PrimaryKey    bool
	Autoincrement bool
	Nullable      bool
	Default       any
	DefaultFunc   func(ctx context.Context) any
	Relation      *Relation

	hasDefault bool
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// PrimaryKey marks the field as the primary key.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.PrimaryKey = true }
}

// AutoIncrement marks the primary key as generated by the database.
func AutoIncrement() FieldOption {
	return func(f *Field) { f.Autoincrement = true }
}

// Nullable marks the column as accepting NULL.
func Nullable() FieldOption {
	return func(f *Field) { f.Nullable = true }
}

// ColumnName overrides the column name, which defaults to the field name.
func ColumnName(column string) FieldOption {
	return func(f *Field) { f.Column = column }
}

// Default sets a static value used by Save when the field is unset.
func Default(v any) FieldOption {
	return func(f *Field) {
		f.Default = v
		f.hasDefault = true
	}
}

// DefaultFunc sets a generator used by Save when the field is unset.
func DefaultFunc(fn func(ctx context.Context) any) FieldOption {
	return func(f *Field) {
		f.DefaultFunc = fn
		f.hasDefault = fn != nil
	}
}

// RelatedName sets the name of the reverse field the registry adds to the
// relation target. Defaults to the plural of the owner's name.
func RelatedName(name string) FieldOption {
	return func(f *Field) {
		if f.Relation != nil {
			f.Relation.RelatedName = name
		}
	}
}

// DefaultNow yields the current time from the Clock carried by ctx.
func DefaultNow(ctx context.Context) any { return now(ctx) }

// DefaultUUID yields a random UUID string.
func DefaultUUID(_ context.Context) any { return uuid.NewString() }

// Column declares a plain column field.
func Column(name string, opts ...FieldOption) *Field {
	f := &Field{Name: name, Column: name}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ForeignKeyField declares a to-one relation to the definition named target.
// The foreign key column defaults to the field name.
func ForeignKeyField(name, target string, opts ...FieldOption) *Field {
	f := &Field{
		Name:     name,
		Column:   name,
		Nullable: true,
		Relation: &Relation{Kind: ForeignKey, TargetName: target},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// HasMany declares the one-to-many side of a foreign key explicitly.
// remoteColumn is the foreign key column on target.
func HasMany(name, target, remoteColumn string, opts ...FieldOption) *Field {
	f := &Field{
		Name:     name,
		Relation: &Relation{Kind: ReverseForeignKey, TargetName: target, RemoteColumn: remoteColumn},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ManyToManyField declares a many-to-many relation to target through the
// associative definition named through. The through definition must carry
// a foreign key to each side.
func ManyToManyField(name, target, through string, opts ...FieldOption) *Field {
	f := &Field{
		Name:     name,
		Relation: &Relation{Kind: ManyToMany, TargetName: target, ThroughName: through},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// IsRelation reports whether f is a relation field.
func (f *Field) IsRelation() bool { return f.Relation != nil }

// HasColumn reports whether f is stored in a column of its own table.
func (f *Field) HasColumn() bool {
	return f.Relation == nil || f.Relation.Kind == ForeignKey
}

// HasDefault reports whether Save can fill f when it is unset.
func (f *Field) HasDefault() bool { return f.hasDefault }

func (f *Field) defaultValue(ctx context.Context) any {
	if f.DefaultFunc != nil {
		return f.DefaultFunc(ctx)
	}
	return f.Default
}
