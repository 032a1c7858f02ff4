package checkeddb

import (
	"testing"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

// reifySchema builds a minimal reified meta-plane by hand — one schema
// "demo" with object types Person/Document, a subtype Employee < Person,
// and a relation "authored" with fields (author: Person, doc: Document)
// — without going through internal/axiimport, so checkeddb tests are
// independent of the text importer.
func reifySchema(t *testing.T) *pathdb.DB {
	t.Helper()
	db := pathdb.New()

	add := func(typ string, attrs map[string]string) entitystore.ID {
		m := map[intern.ID]intern.ID{}
		for k, v := range attrs {
			m[db.TypeID(k)] = db.TypeID(v)
		}
		return db.Entities.Add(db.TypeID(typ), m)
	}
	edge := func(src entitystore.ID, rel string, dst entitystore.ID) {
		_, err := db.Relations.Add(src, db.TypeID(rel), dst, 1.0, nil)
		require.NoError(t, err)
	}

	schema := add(metaplane.TypeSchema, map[string]string{metaplane.AttrName: "demo"})

	person := add(metaplane.TypeObjectType, map[string]string{metaplane.AttrName: "Person"})
	document := add(metaplane.TypeObjectType, map[string]string{metaplane.AttrName: "Document"})
	employee := add(metaplane.TypeObjectType, map[string]string{metaplane.AttrName: "Employee"})
	edge(schema, metaplane.EdgeSchemaObjectType, person)
	edge(schema, metaplane.EdgeSchemaObjectType, document)
	edge(schema, metaplane.EdgeSchemaObjectType, employee)

	subtype := add(metaplane.TypeSubtypeDecl, map[string]string{
		metaplane.AttrSubType:   "Employee",
		metaplane.AttrSuperType: "Person",
	})
	edge(schema, metaplane.EdgeSchemaSubtype, subtype)

	relDecl := add(metaplane.TypeRelationDecl, map[string]string{metaplane.AttrName: "authored"})
	edge(schema, metaplane.EdgeSchemaRelation, relDecl)

	authorField := add(metaplane.TypeFieldDecl, map[string]string{
		metaplane.AttrName:       "author",
		metaplane.AttrFieldType:  "Person",
		metaplane.AttrFieldIndex: "0",
	})
	docField := add(metaplane.TypeFieldDecl, map[string]string{
		metaplane.AttrName:       "doc",
		metaplane.AttrFieldType:  "Document",
		metaplane.AttrFieldIndex: "1",
	})
	edge(relDecl, metaplane.EdgeRelationField, authorField)
	edge(relDecl, metaplane.EdgeRelationField, docField)

	return db
}
