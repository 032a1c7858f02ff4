package planner

import (
	"testing"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

func buildChainDB(t *testing.T) (*pathdb.DB, entitystore.ID, entitystore.ID, entitystore.ID) {
	t.Helper()
	db := pathdb.New()
	person := db.TypeID("Person")
	a := db.Entities.Add(person, nil)
	b := db.Entities.Add(person, nil)
	c := db.Entities.Add(person, nil)
	knows := db.TypeID("knows")
	_, err := db.Relations.Add(a, knows, b, 1.0, nil)
	require.NoError(t, err)
	_, err = db.Relations.Add(b, knows, c, 1.0, nil)
	require.NoError(t, err)
	return db, a, b, c
}

func TestReachablePlusFollowsChain(t *testing.T) {
	db, a, b, c := buildChainDB(t)
	path, err := axql.Parse(`where x - knows+ -> y`)
	require.NoError(t, err)
	dfa := CompileRPQ(path.Disjuncts[0].Atoms[0].Path)

	result := dfa.Reachable(db, a, 0, -1, nil)
	require.True(t, result.Contains(uint32(b)))
	require.True(t, result.Contains(uint32(c)))
	require.False(t, result.Contains(uint32(a)))
}

func TestReachableRespectsMaxHops(t *testing.T) {
	db, a, b, c := buildChainDB(t)
	path, err := axql.Parse(`where x - knows+ -> y`)
	require.NoError(t, err)
	dfa := CompileRPQ(path.Disjuncts[0].Atoms[0].Path)

	result := dfa.Reachable(db, a, 0, 1, nil)
	require.True(t, result.Contains(uint32(b)))
	require.False(t, result.Contains(uint32(c)))
}

func TestReachableStarIncludesStart(t *testing.T) {
	db, a, _, _ := buildChainDB(t)
	path, err := axql.Parse(`where x - knows* -> y`)
	require.NoError(t, err)
	dfa := CompileRPQ(path.Disjuncts[0].Atoms[0].Path)

	result := dfa.Reachable(db, a, 0, -1, nil)
	require.True(t, result.Contains(uint32(a)))
}

func TestReachableMemoizesPerStart(t *testing.T) {
	db, a, _, _ := buildChainDB(t)
	path, err := axql.Parse(`where x - knows+ -> y`)
	require.NoError(t, err)
	dfa := CompileRPQ(path.Disjuncts[0].Atoms[0].Path)

	memo := map[entitystore.ID]*entitystore.Bitmap{}
	first := dfa.Reachable(db, a, 0, -1, memo)
	second := dfa.Reachable(db, a, 0, -1, memo)
	require.Same(t, first, second)
}

func TestRelationsUsedOnAlternation(t *testing.T) {
	path, err := axql.Parse(`where x - (knows|likes) -> y`)
	require.NoError(t, err)
	dfa := CompileRPQ(path.Disjuncts[0].Atoms[0].Path)
	require.Equal(t, []string{"knows", "likes"}, dfa.RelationsUsed())
}
