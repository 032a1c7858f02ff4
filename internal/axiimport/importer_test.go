package axiimport

import (
	"testing"

	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

const sampleModule = `
module demo_mod

schema demo:
	object Person
	object Document
	object Employee
	sub Employee < Person
	relation authored(author: Person, doc: Document)

instance seed of demo:
	Person = { Alice }
	Document = { Report }
	Employee = { Bob }
	authored = { (author=Alice, doc=Report), (author=Bob, doc=Report) }
`

func TestImportRoundTrip(t *testing.T) {
	mod, err := Parse(sampleModule)
	require.NoError(t, err)
	require.Equal(t, "demo_mod", mod.Name)

	db := pathdb.New()
	require.NoError(t, Import(db, mod))

	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	si, ok := env.Index.Schemas["demo"]
	require.True(t, ok)
	require.True(t, si.IsSubtypeOf("Employee", "Person"))

	sig, ok := si.RelationDecls["authored"]
	require.True(t, ok)
	require.Len(t, sig.Fields, 2)
}

func TestImportRejectsFactReferencingUnknownObject(t *testing.T) {
	const bad = `
module bad_mod

schema demo:
	object Person
	object Document
	relation authored(author: Person, doc: Document)

instance seed of demo:
	Person = { Alice }
	authored = { (author=Alice, doc=Missing) }
`
	mod, err := Parse(bad)
	require.NoError(t, err)
	db := pathdb.New()
	require.Error(t, Import(db, mod))
}

func TestImportRejectsWrongFieldType(t *testing.T) {
	const bad = `
module bad_mod2

schema demo:
	object Person
	object Document
	relation authored(author: Person, doc: Document)

instance seed of demo:
	Person = { Alice }
	Document = { Report }
	authored = { (author=Report, doc=Alice) }
`
	mod, err := Parse(bad)
	require.NoError(t, err)
	db := pathdb.New()
	require.Error(t, Import(db, mod))
}
