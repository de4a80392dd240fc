package orm

import (
	"errors"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
)

// Registry holds named Definitions and resolves relation targets by name,
// so that definitions may reference each other in any order.
type Registry struct {
	mu    sync.RWMutex
	db    Querier
	defs  map[string]*Definition
	order []*Definition
}

// NewRegistry returns a Registry whose definitions use db by default.
// db may be nil when every call carries a querier via WithQuerier.
func NewRegistry(db Querier) *Registry {
	return &Registry{db: db, defs: make(map[string]*Definition)}
}

// Querier returns the default querier.
func (r *Registry) Querier() Querier { return r.db }

// Register validates and adds defs, then binds every relation whose target
// (and through definition) is now known. Registration is all or nothing:
// on error the registry is left as it was before the call.
func (r *Registry) Register(defs ...*Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; dup {
			return mappingErr(d.Name, "", "definition already registered")
		}
		if _, dup := seen[d.Name]; dup {
			return mappingErr(d.Name, "", "definition registered twice in one call")
		}
		seen[d.Name] = struct{}{}
		if d.reg != nil {
			return mappingErr(d.Name, "", "definition belongs to another registry")
		}
		if err := d.index(); err != nil {
			return err
		}
	}

	snap := r.snapshot(defs)
	for _, d := range defs {
		d.reg = r
		r.defs[d.Name] = d
		r.order = append(r.order, d)
	}
	if err := r.bind(); err != nil {
		snap.restore(r)
		return err
	}
	return nil
}

// registrySnapshot records what bind may change, so a failed Register can
// be undone.
type registrySnapshot struct {
	order     int
	added     []*Definition
	fields    map[*Definition]int
	relations map[*Relation]Relation
}

// snapshot captures the registry plus the definitions about to join it.
// Caller holds r.mu.
func (r *Registry) snapshot(added []*Definition) *registrySnapshot {
	s := &registrySnapshot{
		order:     len(r.order),
		added:     added,
		fields:    make(map[*Definition]int),
		relations: make(map[*Relation]Relation),
	}
	for _, d := range append(append([]*Definition(nil), r.order...), added...) {
		s.fields[d] = len(d.fields)
		for _, f := range d.fields {
			if f.Relation != nil {
				s.relations[f.Relation] = *f.Relation
			}
		}
	}
	return s
}

func (s *registrySnapshot) restore(r *Registry) {
	for d, n := range s.fields {
		for _, f := range d.fields[n:] {
			delete(d.byName, f.Name)
		}
		d.fields = d.fields[:n:n]
	}
	for rel, saved := range s.relations {
		*rel = saved
	}
	for _, d := range s.added {
		delete(r.defs, d.Name)
		d.reg = nil
	}
	r.order = r.order[:s.order]
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	if !ok {
		return nil, mappingErr(name, "", "definition not registered")
	}
	return d, nil
}

// MustDefinition is like Definition but panics if name is unknown.
func (r *Registry) MustDefinition(name string) *Definition {
	d, err := r.Definition(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate reports every relation whose target is still unknown.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, d := range r.order {
		for _, f := range d.fields {
			if f.IsRelation() && !f.Relation.bound() {
				errs = append(errs, mappingErr(d.Name, f.Name, "relation target %q is not registered", f.Relation.TargetName))
			}
		}
	}
	return errors.Join(errs...)
}

// bind resolves pending relations. Caller holds r.mu.
func (r *Registry) bind() error {
	for _, d := range r.order {
		// reverse fields appended while binding are already bound
		for _, f := range d.fields {
			rel := f.Relation
			if rel == nil || rel.bound() {
				continue
			}
			target, ok := r.defs[rel.TargetName]
			if !ok {
				continue
			}
			var err error
			switch rel.Kind {
			case ForeignKey:
				err = r.bindForeignKey(d, f, target)
			case ReverseForeignKey:
				rel.Target = target
				if _, ok := target.byColumn[rel.RemoteColumn]; !ok {
					err = mappingErr(d.Name, f.Name, "%s has no column %q", target.Name, rel.RemoteColumn)
				}
			case ManyToMany:
				through, ok := r.defs[rel.ThroughName]
				if !ok {
					continue
				}
				err = r.bindManyToMany(d, f, target, through)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) bindForeignKey(owner *Definition, f *Field, target *Definition) error {
	rel := f.Relation
	rel.Target = target

	// An explicit HasMany on the target pointing at this column is the
	// reverse side already.
	for _, tf := range target.fields {
		tr := tf.Relation
		if tr != nil && tr.Kind == ReverseForeignKey && tr.TargetName == owner.Name && tr.RemoteColumn == f.Column {
			if rel.RelatedName == "" {
				rel.RelatedName = tf.Name
			}
			return nil
		}
	}

	name := rel.RelatedName
	if name == "" {
		name = defaultRelatedName(owner)
		rel.RelatedName = name
	}
	return target.addField(&Field{
		Name: name,
		Relation: &Relation{
			Kind:         ReverseForeignKey,
			TargetName:   owner.Name,
			Target:       owner,
			RemoteColumn: f.Column,
			RelatedName:  f.Name,
			generated:    true,
		},
	})
}

func (r *Registry) bindManyToMany(owner *Definition, f *Field, target, through *Definition) error {
	rel := f.Relation
	var toOwner, toTarget *Field
	for _, tf := range through.fields {
		tr := tf.Relation
		if tr == nil || tr.Kind != ForeignKey {
			continue
		}
		switch {
		case toOwner == nil && tr.TargetName == owner.Name:
			toOwner = tf
		case toTarget == nil && tr.TargetName == target.Name:
			toTarget = tf
		}
	}
	if toOwner == nil || toTarget == nil {
		return mappingErr(owner.Name, f.Name, "through %s needs foreign keys to %s and %s", through.Name, owner.Name, target.Name)
	}

	rel.Target = target
	rel.Through = through
	rel.ThroughSource = toOwner.Column
	rel.ThroughTarget = toTarget.Column

	name := rel.RelatedName
	if name == "" {
		name = defaultRelatedName(owner)
		rel.RelatedName = name
	}
	if existing, ok := target.byName[name]; ok {
		er := existing.Relation
		if er != nil && er.Kind == ManyToMany && er.ThroughName == through.Name {
			return nil
		}
	}
	return target.addField(&Field{
		Name: name,
		Relation: &Relation{
			Kind:          ManyToMany,
			TargetName:    owner.Name,
			Target:        owner,
			ThroughName:   through.Name,
			Through:       through,
			ThroughSource: toTarget.Column,
			ThroughTarget: toOwner.Column,
			RelatedName:   f.Name,
			generated:     true,
		},
	})
}

// defaultRelatedName derives the reverse field name from the owner,
// e.g. "Track" → "tracks".
func defaultRelatedName(owner *Definition) string {
	return inflection.Plural(strings.ToLower(owner.Name))
}
