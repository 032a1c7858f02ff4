package certs

import (
	"encoding/json"
	"testing"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/executor"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/planner"
	"github.com/stretchr/testify/require"
)

const certModule = `
module demo_mod

schema demo:
	object Person
	object Document
	relation authored(author: Person, doc: Document)

instance seed of demo:
	Person = { Alice }
	Document = { Report }
	authored = { (author=Alice, doc=Report) }
`

func buildCertEnv(t *testing.T) (*pathdb.DB, *checkeddb.TypingEnv) {
	t.Helper()
	mod, err := axiimport.Parse(certModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)
	return db, env
}

func TestWellTypedCertIsStableForIdenticalInput(t *testing.T) {
	_, env := buildCertEnv(t)
	c1, err := WellTypedCert(certModule, "demo_mod", env.Index)
	require.NoError(t, err)
	c2, err := WellTypedCert(certModule, "demo_mod", env.Index)
	require.NoError(t, err)
	require.Equal(t, c1.Anchor, c2.Anchor)
	require.JSONEq(t, string(c1.Payload), string(c2.Payload))
}

func TestWellTypedCertCountsSchemasAndRelations(t *testing.T) {
	_, env := buildCertEnv(t)
	c, err := WellTypedCert(certModule, "demo_mod", env.Index)
	require.NoError(t, err)
	var payload WellTyped
	require.NoError(t, json.Unmarshal(c.Payload, &payload))
	require.Equal(t, 1, payload.SchemaCount)
	require.Equal(t, 1, payload.RelationCount)
}

func TestConstraintsOKCertRefusesUnknownConstraint(t *testing.T) {
	_, env := buildCertEnv(t)
	si := env.Index.Schemas["demo"]
	si.ConstraintsByRelation["authored"] = append(si.ConstraintsByRelation["authored"], metaplane.Constraint{
		Kind: metaplane.ConstraintUnknown, Text: "garbled constraint text",
	})
	_, err := ConstraintsOKCert(certModule, "demo_mod", env.Index, 1)
	require.Error(t, err)
	var unknownErr *ErrUnknownConstraint
	require.ErrorAs(t, err, &unknownErr)
}

const garbledNamedBlockModule = `
module named_block_demo

schema demo:
	object Person
	object Document
	relation authored(author: Person, doc: Document)

theory core on demo:
	constraint weird_garbage:
		this is not a recognized shape
`

func TestConstraintsOKCertRefusesUnrecognizedNamedBlockBody(t *testing.T) {
	mod, err := axiimport.Parse(garbledNamedBlockModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	_, err = ConstraintsOKCert(garbledNamedBlockModule, "named_block_demo", env.Index, 0)
	require.Error(t, err)
	var unknownErr *ErrUnknownConstraint
	require.ErrorAs(t, err, &unknownErr)
}

func TestQueryResultV1CertRoundTripsRows(t *testing.T) {
	db, env := buildCertEnv(t)
	q, err := axql.Parse(`select x, y where x : Person, y : Document, authored(author=x, doc=y)`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)
	res, err := executor.Run(db, plan, el.Query, 0, nil)
	require.NoError(t, err)

	c, err := QueryResultV1Cert(certModule, res)
	require.NoError(t, err)
	var payload QueryResultV1
	require.NoError(t, json.Unmarshal(c.Payload, &payload))
	require.Len(t, payload.Rows, 1)
}

func TestQueryResultV3CertIncludesRewriteWitnesses(t *testing.T) {
	db, env := buildCertEnv(t)
	q, err := axql.Parse(`where x - authored -> y`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	el.Rewrites = append(el.Rewrites, elaborate.RewriteWitness{
		RuleName: "r1", TheoryName: "t1", LHS: "a/b", RHS: "c",
	})
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)
	res, err := executor.Run(db, plan, el.Query, 0, nil)
	require.NoError(t, err)

	c, err := QueryResultV3Cert(certModule, res, el)
	require.NoError(t, err)
	var payload QueryResultV3
	require.NoError(t, json.Unmarshal(c.Payload, &payload))
	require.Len(t, payload.ElaborationRewrites, 1)
	require.Equal(t, "r1", payload.ElaborationRewrites[0].RuleName)
}
