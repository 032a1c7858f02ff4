// Package relstore holds PathDB's labeled-edge table: forward, reverse, and
// by-relation-type indexes over (source, rel-type, target, confidence,
// attrs) rows (§3 "Relations", §4.C).
package relstore

import (
	"fmt"
	"math"
	"sort"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
)

// ID is a dense relation-row id, used by certificates as an edge witness.
type ID uint32

// Row is one relation tuple.
type Row struct {
	Source     entitystore.ID
	RelType    intern.ID
	Target     entitystore.ID
	Confidence float64
	Attrs      map[intern.ID]intern.ID
}

type edgeKey struct {
	source  entitystore.ID
	relType intern.ID
	target  entitystore.ID
}

// Store is the relation table.
type Store struct {
	rows    []Row
	exists  map[edgeKey]ID
	forward map[forwardKey][]ID // (source, relType) -> row ids
	reverse map[forwardKey][]ID // (target, relType) -> row ids
	byRel   map[intern.ID][]ID
}

type forwardKey struct {
	entity  entitystore.ID
	relType intern.ID
}

// New returns an empty relation store.
func New() *Store {
	return &Store{
		exists:  make(map[edgeKey]ID),
		forward: make(map[forwardKey][]ID),
		reverse: make(map[forwardKey][]ID),
		byRel:   make(map[intern.ID][]ID),
	}
}

// Add appends a row, updating forward/reverse/by-type indexes. If
// (source, relType, target) already exists the call is a no-op (§4.C,
// idempotent per §7's "locally recoverable conditions").
func (s *Store) Add(source entitystore.ID, relType intern.ID, target entitystore.ID, confidence float64, attrs map[intern.ID]intern.ID) (ID, error) {
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("relstore: confidence %v out of [0,1]", confidence)
	}
	key := edgeKey{source, relType, target}
	if id, ok := s.exists[key]; ok {
		return id, nil
	}
	id := ID(len(s.rows))
	s.rows = append(s.rows, Row{Source: source, RelType: relType, Target: target, Confidence: confidence, Attrs: attrs})
	s.exists[key] = id

	fk := forwardKey{source, relType}
	s.forward[fk] = append(s.forward[fk], id)
	rk := forwardKey{target, relType}
	s.reverse[rk] = append(s.reverse[rk], id)
	s.byRel[relType] = append(s.byRel[relType], id)
	return id, nil
}

// Outgoing returns the row ids for edges leaving source labeled relType.
func (s *Store) Outgoing(source entitystore.ID, relType intern.ID) []ID {
	return s.forward[forwardKey{source, relType}]
}

// Incoming returns the row ids for edges arriving at target labeled relType.
func (s *Store) Incoming(target entitystore.ID, relType intern.ID) []ID {
	return s.reverse[forwardKey{target, relType}]
}

// ByRel returns every row id labeled relType.
func (s *Store) ByRel(relType intern.ID) []ID {
	return s.byRel[relType]
}

// HasEdge reports whether (source, relType, target) exists.
func (s *Store) HasEdge(source entitystore.ID, relType intern.ID, target entitystore.ID) bool {
	_, ok := s.exists[edgeKey{source, relType, target}]
	return ok
}

// Row returns the row at id.
func (s *Store) Row(id ID) (Row, bool) {
	if int(id) >= len(s.rows) {
		return Row{}, false
	}
	return s.rows[id], true
}

// Len returns the number of rows.
func (s *Store) Len() int {
	return len(s.rows)
}

// Rows returns a copy of all rows in row-id order, used by the snapshot
// codec.
func (s *Store) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// TargetsSorted returns the distinct, sorted target ids reachable from
// source via relType — the primitive behind PathDB.FollowPath's single-hop
// fold (§4.E).
func (s *Store) TargetsSorted(source entitystore.ID, relType intern.ID, minConfidence float64) []entitystore.ID {
	ids := s.Outgoing(source, relType)
	out := make([]entitystore.ID, 0, len(ids))
	seen := make(map[entitystore.ID]bool, len(ids))
	for _, id := range ids {
		row := s.rows[id]
		if row.Confidence < minConfidence {
			continue
		}
		if !seen[row.Target] {
			seen[row.Target] = true
			out = append(out, row.Target)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadSnapshot rebuilds a Store from decoded rows, used by the snapshot
// codec.
func LoadSnapshot(rows []Row) (*Store, error) {
	s := New()
	for _, r := range rows {
		if _, err := s.Add(r.Source, r.RelType, r.Target, r.Confidence, r.Attrs); err != nil {
			return nil, err
		}
	}
	return s, nil
}
