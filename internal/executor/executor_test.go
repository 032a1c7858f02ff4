package executor

import (
	"testing"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const execModule = `
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

func TestExecutorGroundedFactQuery(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	q, err := axql.Parse(`where x : Person, y : Document, authored(author=x, doc=y)`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)

	res, err := Run(db, plan, el.Query, 0, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.False(t, res.Truncated)
}

func TestExecutorRespectsLimitAndSetsTruncated(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	q, err := axql.Parse(`where x : Person, y : Document, authored(author=x, doc=y) limit 1`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)

	res, err := Run(db, plan, el.Query, 1, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.True(t, res.Truncated)
}

func TestExecutorFastSinglePathDelegation(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	q, err := axql.Parse(`where name("Alice") - authored -> y`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)

	res, err := Run(db, plan, el.Query, 0, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Contains(t, res.Rows[0].Bindings, "y")
}

func TestExecutorCancellation(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	q, err := axql.Parse(`where x : Person`)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)

	cancel := make(chan struct{})
	close(cancel)
	_, err = Run(db, plan, el.Query, 0, cancel)
	require.ErrorIs(t, err, Cancelled{})
}

func runQuery(t *testing.T, db *pathdb.DB, env *checkeddb.TypingEnv, src string) *Result {
	t.Helper()
	q, err := axql.Parse(src)
	require.NoError(t, err)
	el, err := elaborate.Elaborate(q, env.Index)
	require.NoError(t, err)
	plan, err := planner.Build(db, env.Index, el)
	require.NoError(t, err)
	res, err := Run(db, plan, el.Query, 0, nil)
	require.NoError(t, err)
	return res
}

func TestExecutorContainsAtomMatchesSubstring(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	res := runQuery(t, db, env, `where x : Person, contains(x, "name", "lic")`)
	require.Len(t, res.Rows, 1)

	res = runQuery(t, db, env, `where x : Person, contains(x, "name", "zzz")`)
	require.Empty(t, res.Rows)
}

func TestExecutorFTSAtomRequiresEveryToken(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	res := runQuery(t, db, env, `where x : Person, fts(x, "name", "alice")`)
	require.Len(t, res.Rows, 1)

	res = runQuery(t, db, env, `where x : Person, fts(x, "name", "alice bob")`)
	require.Empty(t, res.Rows)
}

func TestExecutorFuzzyAtomMatchesWithinDistance(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	res := runQuery(t, db, env, `where x : Person, fuzzy(x, "name", "Alicee", 1)`)
	require.Len(t, res.Rows, 1)

	res = runQuery(t, db, env, `where x : Person, fuzzy(x, "name", "Alicee", 0)`)
	require.Empty(t, res.Rows)
}

func TestExecutorImplicitSelectIntersectsAcrossDisjuncts(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	res := runQuery(t, db, env, `where x : Person, y : Document, authored(author=x, doc=y) or x : Person`)
	require.NotEmpty(t, res.Rows)
	for _, row := range res.Rows {
		assert.Contains(t, row.Bindings, "x")
		assert.NotContains(t, row.Bindings, "y")
	}
}

func TestExecutorExplicitSelectOverridesIntersection(t *testing.T) {
	mod, err := axiimport.Parse(execModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	res := runQuery(t, db, env, `select x, y where x : Person, y : Document, authored(author=x, doc=y)`)
	require.NotEmpty(t, res.Rows)
	for _, row := range res.Rows {
		assert.Contains(t, row.Bindings, "x")
		assert.Contains(t, row.Bindings, "y")
	}
}
