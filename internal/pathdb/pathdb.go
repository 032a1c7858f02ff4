// Package pathdb is the PathDB facade (§4.E): it combines the string
// interner, entity store, relation store, and equivalence store behind one
// handle, offers path-following, and owns the binary snapshot codec.
package pathdb

import (
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/equivstore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/relstore"
)

// DB is one in-memory PathDB instance. It owns no locks itself; callers
// embedding it behind a network or CLI surface are responsible for the
// read/write lock discipline described in §5 (many concurrent readers, a
// single writer per HEAD).
type DB struct {
	Interner  *intern.Interner
	Entities  *entitystore.Store
	Relations *relstore.Store
	Equiv     *equivstore.Store
}

// New returns an empty PathDB, ready for import.
func New() *DB {
	return &DB{
		Interner:  intern.New(),
		Entities:  entitystore.New(),
		Relations: relstore.New(),
		Equiv:     equivstore.New(),
	}
}

// FollowPath bitmap-folds over Outgoing for each relation in the chain in
// turn, returning the set reachable after the exact chain (§4.E).
func (db *DB) FollowPath(start entitystore.ID, rels []intern.ID) *entitystore.Bitmap {
	frontier := entitystore.BitmapOf(uint32(start))
	for _, rel := range rels {
		next := entitystore.NewBitmap()
		for _, id := range frontier.ToSlice() {
			for _, target := range db.Relations.TargetsSorted(entitystore.ID(id), rel, 0) {
				next.Add(uint32(target))
			}
		}
		frontier = next
		if frontier.Len() == 0 {
			break
		}
	}
	return frontier
}

// TypeID interns (or looks up) a type name, used pervasively by importers
// and the meta-plane index.
func (db *DB) TypeID(name string) intern.ID {
	return db.Interner.Intern(name)
}

// TypeName is the inverse of TypeID.
func (db *DB) TypeName(id intern.ID) string {
	return db.Interner.Lookup(id)
}

// FindByAxiType returns every entity whose reified `axi_schema` attribute
// equals schema and whose base type equals typeName — the read used by the
// accepted-plane round-trip scenario in §8.6.
func (db *DB) FindByAxiType(schema, typeName string) *entitystore.Bitmap {
	schemaKey, ok := db.Interner.IDOf("axi_schema")
	if !ok {
		return entitystore.NewBitmap()
	}
	schemaVal, ok := db.Interner.IDOf(schema)
	if !ok {
		return entitystore.NewBitmap()
	}
	typeID, ok := db.Interner.IDOf(typeName)
	if !ok {
		return entitystore.NewBitmap()
	}
	bySchema := db.Entities.EntitiesWithAttrValue(schemaKey, schemaVal)
	byType := db.Entities.ByType(typeID)
	return entitystore.Intersect(bySchema, byType)
}

// PathDBView is a read-only accessor over one PathDB instance, the stable
// extension point external collaborators (visualization renderers,
// world-model plugins) are expected to consume instead of a *DB directly
// — this package implements none of those tools, only the surface they'd
// bind to.
type PathDBView interface {
	TypeName(id intern.ID) string
	FindByAxiType(schema, typeName string) *entitystore.Bitmap
	FollowPath(start entitystore.ID, rels []intern.ID) *entitystore.Bitmap
}

// Snapshot returns db as a PathDBView, hiding the write methods on
// Entities/Relations/Equiv from callers that should only ever read.
func (db *DB) Snapshot() PathDBView {
	return db
}
