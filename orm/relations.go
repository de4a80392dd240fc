package orm

import "strings"

// RelationSeparator separates the segments of a relation path,
// e.g. "author__country__name".
const RelationSeparator = "__"

// RelationTree describes which relations to materialize and how deep.
// Keys keep the order in which they first appeared in the input paths.
// The zero value is an empty tree.
type RelationTree struct {
	keys    []string
	entries map[string]relationEntry
}

type relationEntry struct {
	sub RelationTree
	// self is set when the relation was named on its own ("author") and not
	// only as the prefix of a longer path ("author__country").
	self bool
}

// GroupRelations parses dotted relation paths into a RelationTree.
//
//	GroupRelations([]string{"author", "author__country", "tags"})
//	// → {author: {country: {}}, tags: {}}
func GroupRelations(paths []string) RelationTree {
	var tree RelationTree
	var rests map[string][]string
	for _, p := range paths {
		if p == "" {
			continue
		}
		first, rest, _ := strings.Cut(p, RelationSeparator)
		if tree.entries == nil {
			tree.entries = make(map[string]relationEntry)
			rests = make(map[string][]string)
		}
		if _, ok := tree.entries[first]; !ok {
			tree.keys = append(tree.keys, first)
			tree.entries[first] = relationEntry{}
		}
		if rest == "" {
			e := tree.entries[first]
			e.self = true
			tree.entries[first] = e
			continue
		}
		rests[first] = append(rests[first], rest)
	}

	for _, k := range tree.keys {
		e := tree.entries[k]
		if len(rests[k]) == 0 {
			// a leaf: load the relation with no further nesting
			e.self = true
		} else {
			e.sub = GroupRelations(rests[k])
		}
		tree.entries[k] = e
	}
	return tree
}

// Len returns the number of top-level relations.
func (t RelationTree) Len() int { return len(t.keys) }

// Keys returns the top-level relation names in insertion order.
func (t RelationTree) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Has reports whether name is a top-level relation of t.
func (t RelationTree) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Sub returns the sub-tree nested under name. A leaf yields an empty tree.
func (t RelationTree) Sub(name string) (RelationTree, bool) {
	e, ok := t.entries[name]
	return e.sub, ok
}

// Paths flattens the tree back into relation paths. Feeding the result to
// GroupRelations yields an equal tree.
func (t RelationTree) Paths() []string {
	var out []string
	for _, k := range t.keys {
		e := t.entries[k]
		if e.self {
			out = append(out, k)
		}
		for _, p := range e.sub.Paths() {
			out = append(out, k+RelationSeparator+p)
		}
	}
	return out
}
