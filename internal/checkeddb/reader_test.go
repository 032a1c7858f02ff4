package checkeddb

import (
	"testing"

	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

func TestNewTypingEnvAcceptsWellTypedFacts(t *testing.T) {
	db := reifySchema(t)
	w := NewWriter(db, mustIndex(t, db))

	author, err := w.EntityBuilder("demo", "Person")
	require.NoError(t, err)
	authorID, err := author.Set("name", "Alice").Commit()
	require.NoError(t, err)
	doc, err := w.EntityBuilder("demo", "Document")
	require.NoError(t, err)
	docID, err := doc.Set("name", "Report").Commit()
	require.NoError(t, err)

	fb, err := w.FactBuilder("demo", "authored")
	require.NoError(t, err)
	fb.SetField("author", authorID).SetField("doc", docID)
	_, err = fb.Commit()
	require.NoError(t, err)

	_, err = NewTypingEnv(db)
	require.NoError(t, err)
}

func TestNewTypingEnvRejectsProposalWithoutConfidence(t *testing.T) {
	db := pathdb.New()
	proposalIDKey := db.TypeID(metaplane.AttrProposalID)
	db.Entities.Add(db.TypeID("Claim"), map[intern.ID]intern.ID{
		proposalIDKey: db.TypeID("p1"),
	})

	_, err := NewTypingEnv(db)
	require.Error(t, err)
}

func TestNewTypingEnvRejectsOutOfRangeProposalConfidence(t *testing.T) {
	db := pathdb.New()
	db.Entities.Add(db.TypeID("Claim"), map[intern.ID]intern.ID{
		db.TypeID(metaplane.AttrProposalID):   db.TypeID("p1"),
		db.TypeID(metaplane.AttrProposalConf): db.TypeID("1.5"),
	})

	_, err := NewTypingEnv(db)
	require.Error(t, err)
}

func TestNewTypingEnvRejectsEvidenceChunkWrongType(t *testing.T) {
	db := pathdb.New()
	claim := db.Entities.Add(db.TypeID("Claim"), nil)
	notAChunk := db.Entities.Add(db.TypeID("Paragraph"), nil)
	db.Entities.Add(db.TypeID("DocChunk"), nil) // interns DocChunk so the check below actually runs
	_, err := db.Relations.Add(claim, db.TypeID(metaplane.EdgeHasEvidenceChunk), notAChunk, 1.0, nil)
	require.NoError(t, err)

	_, err = NewTypingEnv(db)
	require.Error(t, err)
}

func TestTypecheckRewriteRulesRejectsUndeclaredPathEndpoint(t *testing.T) {
	idx := &metaplane.Index{Schemas: map[string]*metaplane.SchemaIndex{
		"demo": {
			Name:        "demo",
			ObjectTypes: map[string]bool{"Person": true},
			RewriteRulesByTheory: map[string][]metaplane.RewriteRule{
				"t1": {{
					Name: "bad",
					Vars: []metaplane.RewriteVar{
						{Name: "p", IsPath: true, From: "x", To: "y"}, // x, y never declared
					},
					LHS: "x-knows->y",
					RHS: "x-knows->y",
				}},
			},
		},
	}}

	err := typecheckRewriteRules(idx)
	require.Error(t, err)
}

func TestTypecheckRewriteRulesAcceptsMatchingEndpoints(t *testing.T) {
	idx := &metaplane.Index{Schemas: map[string]*metaplane.SchemaIndex{
		"demo": {
			Name:        "demo",
			ObjectTypes: map[string]bool{"Person": true},
			RewriteRulesByTheory: map[string][]metaplane.RewriteRule{
				"t1": {{
					Name: "transitivity",
					Vars: []metaplane.RewriteVar{
						{Name: "x"},
						{Name: "y"},
						{Name: "z"},
					},
					LHS: "x-knows->z",
					RHS: "x-knows->z",
				}},
			},
		},
	}}

	require.NoError(t, typecheckRewriteRules(idx))
}

func mustIndex(t *testing.T, db *pathdb.DB) *metaplane.Index {
	t.Helper()
	idx, err := metaplane.Build(db)
	require.NoError(t, err)
	return idx
}
