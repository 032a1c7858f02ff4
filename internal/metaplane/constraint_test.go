package metaplane_test

import (
	"testing"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namedBlockModule = `
module named_block_demo

schema demo:
	object Person
	object Document
	relation authored(author: Person, doc: Document)

theory core on demo:
	constraint weird_functional:
		functional authored.author -> authored.doc
	constraint weird_garbage:
		this is not a recognized shape
`

func TestRedecodeNamedBlockReclassifiesRoundTrippingBody(t *testing.T) {
	mod, err := axiimport.Parse(namedBlockModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))

	idx, err := metaplane.Build(db)
	require.NoError(t, err)

	si := idx.Schemas["demo"]
	require.Len(t, si.NamedBlockConstraintsByTheory["core"], 2)

	byName := map[string]metaplane.Constraint{}
	for _, c := range si.NamedBlockConstraintsByTheory["core"] {
		byName[c.Name] = c
	}

	reclassified := byName["weird_functional"]
	assert.Equal(t, metaplane.ConstraintFunctional, reclassified.Kind)
	assert.Equal(t, "authored", reclassified.Relation)
	assert.Equal(t, "author", reclassified.SrcField)
	assert.Equal(t, "doc", reclassified.DstField)

	garbage := byName["weird_garbage"]
	assert.Equal(t, metaplane.ConstraintUnknown, garbage.Kind)
}
