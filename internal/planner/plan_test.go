package planner

import (
	"testing"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

const planModule = `
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

func buildPlanDB(t *testing.T) (*pathdb.DB, *checkeddb.TypingEnv) {
	t.Helper()
	mod, err := axiimport.Parse(planModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)
	return db, env
}

func TestBuildRestrictsCandidatesByType(t *testing.T) {
	db, env := buildPlanDB(t)
	q, err := axql.Parse(`select x where x : Person`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)

	plan, err := Build(db, env.Index, el)
	require.NoError(t, err)
	require.Len(t, plan.Disjuncts, 1)

	dp := plan.Disjuncts[0]
	candidates, ok := dp.Candidates["x"]
	require.True(t, ok)
	// Person's candidate set includes Employee instances too, since
	// Employee < Person and supertype closure widens the type set.
	require.GreaterOrEqual(t, candidates.Len(), 2)
}

func TestBuildOrdersAtomsCheapestFirst(t *testing.T) {
	db, env := buildPlanDB(t)
	q, err := axql.Parse(`select x, y where x - authored/authored* -> y, x : Person`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)

	plan, err := Build(db, env.Index, el)
	require.NoError(t, err)
	dp := plan.Disjuncts[0]
	require.Len(t, dp.AtomOrder, 2)
	require.Equal(t, axql.AtomType, dp.AtomOrder[0].Kind)
	require.Equal(t, axql.AtomPath, dp.AtomOrder[1].Kind)
}

func TestBuildOrdersVariablesByAscendingCardinality(t *testing.T) {
	db, env := buildPlanDB(t)
	q, err := axql.Parse(`select x, y where x : Employee, y : Person`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)

	plan, err := Build(db, env.Index, el)
	require.NoError(t, err)
	dp := plan.Disjuncts[0]
	require.Len(t, dp.VarOrder, 2)
	// Employee (1 instance) is a strict subset of Person's closure, so it
	// must be ordered first.
	require.Equal(t, "x", dp.VarOrder[0])
}

func TestBuildCompilesRPQForPathAtoms(t *testing.T) {
	db, env := buildPlanDB(t)
	q, err := axql.Parse(`where x - authored -> y`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)

	plan, err := Build(db, env.Index, el)
	require.NoError(t, err)
	dp := plan.Disjuncts[0]
	require.Len(t, dp.RPQs, 1)
	for _, dfa := range dp.RPQs {
		require.Equal(t, []string{"authored"}, dfa.RelationsUsed())
	}
}
