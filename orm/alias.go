package orm

import (
	"strconv"
	"strings"
	"sync"
)

// JoinEdge identifies one joined occurrence of a table inside a row.
//
// From is the occurrence the join starts at: the root table identity, or
// the prefix already assigned to a joined parent. Relation is the relation
// field followed from there and To is the identity of the joined table.
type JoinEdge struct {
	From     string
	Relation string
	To       string
}

// Aliases assigns column prefixes to join edges for the lifetime of one
// query. The same edge always resolves to the same prefix, and two edges
// reaching the same table get distinct prefixes.
//
// Aliases is safe for concurrent use.
type Aliases struct {
	mu     sync.Mutex
	edges  map[JoinEdge]string
	taken  map[string]struct{}
	counts map[string]int
	root   string
	sealed bool
}

// NewAliases returns an empty alias context.
func NewAliases() *Aliases {
	return &Aliases{
		edges:  make(map[JoinEdge]string),
		taken:  make(map[string]struct{}),
		counts: make(map[string]int),
	}
}

// Root registers the root table of the query and returns the SQL alias it
// is selected under. The root's columns are read without prefix, but its
// alias is reserved so that self-joins get a suffixed prefix.
func (a *Aliases) Root(tableID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	base := aliasBase(tableID)
	if a.root == tableID {
		return base
	}
	if a.root == "" {
		a.root = tableID
		a.taken[base] = struct{}{}
		a.counts[base]++
	}
	return base
}

// Resolve returns the prefix for e, assigning a new one if e has not been
// seen yet. After Seal, unseen edges fail with ErrUnresolvedAlias.
func (a *Aliases) Resolve(e JoinEdge) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.edges[e]; ok {
		return p, nil
	}
	if a.sealed {
		return "", &MappingError{
			Entity: e.From,
			Field:  e.Relation,
			Reason: "no join planned to " + e.To,
			Err:    ErrUnresolvedAlias,
		}
	}

	base := aliasBase(e.To)
	prefix := base
	for {
		if _, used := a.taken[prefix]; !used {
			break
		}
		a.counts[base]++
		prefix = base + "_" + strconv.Itoa(a.counts[base])
	}
	if a.counts[base] == 0 {
		a.counts[base] = 1
	}
	a.taken[prefix] = struct{}{}
	a.edges[e] = prefix
	return prefix, nil
}

// Lookup returns the prefix already assigned to e, if any.
func (a *Aliases) Lookup(e JoinEdge) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.edges[e]
	return p, ok
}

// Seal freezes the set of planned edges.
func (a *Aliases) Seal() {
	a.mu.Lock()
	a.sealed = true
	a.mu.Unlock()
}

// Len returns the number of resolved edges.
func (a *Aliases) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.edges)
}

// aliasBase strips the schema from a table identity.
func aliasBase(tableID string) string {
	if i := strings.LastIndexByte(tableID, '.'); i >= 0 {
		return tableID[i+1:]
	}
	return tableID
}
