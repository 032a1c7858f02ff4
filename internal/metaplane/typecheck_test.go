package metaplane

import (
	"testing"

	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/stretchr/testify/require"
)

func TestContextInvariantPassesWhenCtxFieldMirrorsFactInContext(t *testing.T) {
	db := pathdb.New()
	ctxType := db.TypeID(TypeContext)
	world := db.Entities.Add(ctxType, nil)
	fact := db.Entities.Add(db.TypeID("AxiFact"), nil)
	ctxEdge := db.TypeID("ctx")
	inContextEdge := db.TypeID(EdgeFactInContext)
	_, err := db.Relations.Add(fact, ctxEdge, world, 1.0, nil)
	require.NoError(t, err)
	_, err = db.Relations.Add(fact, inContextEdge, world, 1.0, nil)
	require.NoError(t, err)

	idx, err := Build(db)
	require.NoError(t, err)
	require.NoError(t, ContextInvariant(db, idx))
}

func TestContextInvariantRejectsMismatchedCtxMirror(t *testing.T) {
	db := pathdb.New()
	ctxType := db.TypeID(TypeContext)
	worldA := db.Entities.Add(ctxType, nil)
	worldB := db.Entities.Add(ctxType, nil)
	fact := db.Entities.Add(db.TypeID("AxiFact"), nil)
	ctxEdge := db.TypeID("ctx")
	inContextEdge := db.TypeID(EdgeFactInContext)
	_, err := db.Relations.Add(fact, ctxEdge, worldA, 1.0, nil)
	require.NoError(t, err)
	_, err = db.Relations.Add(fact, inContextEdge, worldB, 1.0, nil)
	require.NoError(t, err)

	idx, err := Build(db)
	require.NoError(t, err)
	require.Error(t, ContextInvariant(db, idx))
}
