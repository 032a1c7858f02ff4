// Package equivstore holds PathDB's tagged, bidirectional equivalence
// closure: for each entity a list of (other-entity, tag) pairs forming an
// undirected, transitive closure partitioned by tag (§3 "Equivalences",
// §4.D). Implemented as a tag-partitioned union-find with path compression.
package equivstore

import (
	"sort"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
)

// Store holds one union-find forest per tag.
type Store struct {
	parent map[intern.ID]map[entitystore.ID]entitystore.ID
}

// New returns an empty equivalence store.
func New() *Store {
	return &Store{parent: make(map[intern.ID]map[entitystore.ID]entitystore.ID)}
}

func (s *Store) forest(tag intern.ID) map[entitystore.ID]entitystore.ID {
	f, ok := s.parent[tag]
	if !ok {
		f = make(map[entitystore.ID]entitystore.ID)
		s.parent[tag] = f
	}
	return f
}

func (s *Store) find(tag intern.ID, x entitystore.ID) entitystore.ID {
	f := s.forest(tag)
	root := x
	for {
		p, ok := f[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	// path compression
	cur := x
	for {
		p, ok := f[cur]
		if !ok || p == root {
			break
		}
		f[cur] = root
		cur = p
	}
	if _, ok := f[root]; !ok {
		f[root] = root
	}
	return root
}

// Union merges a and b's equivalence classes under tag, establishing (or
// extending) the symmetric, transitive closure for that tag.
func (s *Store) Union(a, b entitystore.ID, tag intern.ID) {
	ra, rb := s.find(tag, a), s.find(tag, b)
	if ra == rb {
		return
	}
	f := s.forest(tag)
	// Deterministic merge direction (lower root wins) so repeated unions
	// in any order converge to the same forest shape.
	if ra < rb {
		f[rb] = ra
	} else {
		f[ra] = rb
	}
}

// Class returns the bitmap of every entity equivalent to id under tag
// (including id itself), satisfying the symmetric-closure invariant of §3.
func (s *Store) Class(id entitystore.ID, tag intern.ID) *entitystore.Bitmap {
	out := entitystore.NewBitmap()
	f, ok := s.parent[tag]
	if !ok {
		out.Add(uint32(id))
		return out
	}
	root := s.find(tag, id)
	for member := range f {
		if s.find(tag, member) == root {
			out.Add(uint32(member))
		}
	}
	if !out.Contains(uint32(id)) {
		out.Add(uint32(id))
	}
	return out
}

// Pair is one (other-entity, tag) membership, used by the snapshot codec.
type Pair struct {
	A, B entitystore.ID
	Tag  intern.ID
}

// Pairs returns, per tag, every non-root (child, parent) link of the
// union-find forest, in a deterministic order, for serialization. These
// are the forest's current links, not the original Union arguments and
// not the transitive closure.
func (s *Store) Pairs() []Pair {
	var out []Pair
	for tag, f := range s.parent {
		for child, parent := range f {
			if child == parent {
				continue
			}
			out = append(out, Pair{A: child, B: parent, Tag: tag})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// LoadSnapshot rebuilds a Store by replaying recorded pairs, used by the
// snapshot codec.
func LoadSnapshot(pairs []Pair) *Store {
	s := New()
	for _, p := range pairs {
		s.Union(p.A, p.B, p.Tag)
	}
	return s
}
