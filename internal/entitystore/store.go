// Package entitystore holds PathDB's typed entity table: a dense id space,
// one base type per entity, column-major attributes, and a by-type bitmap
// index (§3 "Entities", §4.B).
package entitystore

import (
	"fmt"

	"github.com/axiograph/axiograph/internal/intern"
)

// ID is an entity's dense numeric id.
type ID uint32

// column is a single attribute key's entity->value map ("column-major": the
// store holds one column per attr-key, not one row per entity, §3).
type column map[ID]intern.ID

// Store is the entity table. Entities are created by the importer or typed
// builders (internal/checkeddb), mutated only through Store's write methods,
// and destroyed only when a new snapshot replaces the whole PathDB.
type Store struct {
	baseType []intern.ID        // entity id -> base type id
	attrs    map[intern.ID]column
	byType   map[intern.ID]*Bitmap
	virtual  map[intern.ID]*Bitmap // virtual-type tag -> membership bitmap
}

// New returns an empty entity store.
func New() *Store {
	return &Store{
		attrs:   make(map[intern.ID]column),
		byType:  make(map[intern.ID]*Bitmap),
		virtual: make(map[intern.ID]*Bitmap),
	}
}

// Add creates a new entity of the given base type with the given attrs
// (already-interned key/value ids), assigns the next dense id, and updates
// the by-type bitmap. Matches §4.B "add".
func (s *Store) Add(typeID intern.ID, attrs map[intern.ID]intern.ID) ID {
	id := ID(len(s.baseType))
	s.baseType = append(s.baseType, typeID)
	for k, v := range attrs {
		s.setAttr(id, k, v)
	}
	s.typeBitmap(typeID).Add(uint32(id))
	return id
}

func (s *Store) typeBitmap(t intern.ID) *Bitmap {
	b, ok := s.byType[t]
	if !ok {
		b = NewBitmap()
		s.byType[t] = b
	}
	return b
}

func (s *Store) setAttr(id ID, key, value intern.ID) {
	col, ok := s.attrs[key]
	if !ok {
		col = make(column)
		s.attrs[key] = col
	}
	col[id] = value
}

// GetType returns the base type of id. The second return is false if id
// does not exist.
func (s *Store) GetType(id ID) (intern.ID, bool) {
	if int(id) >= len(s.baseType) {
		return 0, false
	}
	return s.baseType[id], true
}

// GetAttr returns the value id stored for (id, key), or false if unset.
func (s *Store) GetAttr(id ID, key intern.ID) (intern.ID, bool) {
	col, ok := s.attrs[key]
	if !ok {
		return 0, false
	}
	v, ok := col[id]
	return v, ok
}

// UpsertAttr overwrites (or sets) an attribute; it is an error if the
// entity does not exist (§4.B).
func (s *Store) UpsertAttr(id ID, key, value intern.ID) error {
	if int(id) >= len(s.baseType) {
		return fmt.Errorf("entitystore: upsert attr on unknown entity %d", id)
	}
	s.setAttr(id, key, value)
	return nil
}

// EntitiesWithAttrValue returns the bitmap of entities whose key attribute
// equals value.
func (s *Store) EntitiesWithAttrValue(key, value intern.ID) *Bitmap {
	out := NewBitmap()
	col, ok := s.attrs[key]
	if !ok {
		return out
	}
	for id, v := range col {
		if v == value {
			out.Add(uint32(id))
		}
	}
	return out
}

// ByType returns the bitmap of entities whose base type is t.
func (s *Store) ByType(t intern.ID) *Bitmap {
	b, ok := s.byType[t]
	if !ok {
		return NewBitmap()
	}
	return b
}

// MarkVirtualType adds id's membership in a secondary type bitmap (e.g.
// FactNode, Morphism, Homotopy, §3) without touching its base type.
func (s *Store) MarkVirtualType(id ID, tag intern.ID) {
	b, ok := s.virtual[tag]
	if !ok {
		b = NewBitmap()
		s.virtual[tag] = b
	}
	b.Add(uint32(id))
}

// HasVirtualType reports whether id carries the virtual type tag.
func (s *Store) HasVirtualType(id ID, tag intern.ID) bool {
	b, ok := s.virtual[tag]
	if !ok {
		return false
	}
	return b.Contains(uint32(id))
}

// VirtualType returns the membership bitmap for a virtual-type tag.
func (s *Store) VirtualType(tag intern.ID) *Bitmap {
	b, ok := s.virtual[tag]
	if !ok {
		return NewBitmap()
	}
	return b
}

// Len returns the number of entities ever added.
func (s *Store) Len() int {
	return len(s.baseType)
}

// AttrKeys returns every interned attribute key that has at least one
// value stored, used by the snapshot codec to enumerate attr columns.
func (s *Store) AttrKeys() []intern.ID {
	keys := make([]intern.ID, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	return keys
}

// Column returns a copy of the (entity -> value) map for key, used by the
// snapshot codec.
func (s *Store) Column(key intern.ID) map[ID]intern.ID {
	col, ok := s.attrs[key]
	if !ok {
		return nil
	}
	out := make(map[ID]intern.ID, len(col))
	for k, v := range col {
		out[k] = v
	}
	return out
}

// BaseTypes returns a copy of the dense entity-id -> type-id slice, used by
// the snapshot codec.
func (s *Store) BaseTypes() []intern.ID {
	out := make([]intern.ID, len(s.baseType))
	copy(out, s.baseType)
	return out
}

// VirtualTags returns every virtual-type tag with at least one member.
func (s *Store) VirtualTags() []intern.ID {
	tags := make([]intern.ID, 0, len(s.virtual))
	for t := range s.virtual {
		tags = append(tags, t)
	}
	return tags
}

// LoadSnapshot rebuilds a Store from decoded snapshot sections. Used only
// by the snapshot codec (internal/pathdb).
func LoadSnapshot(baseType []intern.ID, attrs map[intern.ID]map[ID]intern.ID, virtual map[intern.ID][]uint32) *Store {
	s := New()
	s.baseType = baseType
	for k, col := range attrs {
		c := make(column, len(col))
		for id, v := range col {
			c[id] = v
		}
		s.attrs[k] = c
	}
	for id, t := range baseType {
		s.typeBitmap(t).Add(uint32(id))
	}
	for tag, ids := range virtual {
		b := NewBitmap()
		for _, id := range ids {
			b.Add(id)
		}
		s.virtual[tag] = b
	}
	return s
}
