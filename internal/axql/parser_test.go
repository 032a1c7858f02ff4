package axql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleTypeQuery(t *testing.T) {
	q, err := Parse(`select x where x : Person limit 10`)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, q.SelectVars)
	require.Len(t, q.Disjuncts, 1)
	require.Len(t, q.Disjuncts[0].Atoms, 1)
	atom := q.Disjuncts[0].Atoms[0]
	assert.Equal(t, AtomType, atom.Kind)
	assert.Equal(t, "Person", atom.TypeName)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 10, *q.Limit)
}

func TestParsePathQueryWithRPQ(t *testing.T) {
	q, err := Parse(`where x - (knows|likes)+ -> y max_hops 5 min_confidence 0.5`)
	require.NoError(t, err)
	atom := q.Disjuncts[0].Atoms[0]
	require.Equal(t, AtomPath, atom.Kind)
	require.NotNil(t, q.MaxHops)
	assert.Equal(t, 5, *q.MaxHops)
	require.NotNil(t, q.MinConfidence)
	assert.InDelta(t, 0.5, *q.MinConfidence, 1e-9)
	assert.Equal(t, PathPlus, atom.Path.Kind)
	assert.Equal(t, PathAlt, atom.Path.Children[0].Kind)
}

func TestParseFactAtom(t *testing.T) {
	q, err := Parse(`select f where f = authored(author=x, doc=y)`)
	require.NoError(t, err)
	atom := q.Disjuncts[0].Atoms[0]
	require.Equal(t, AtomFact, atom.Kind)
	assert.Equal(t, "f", atom.FactVar)
	assert.Equal(t, "authored", atom.Relation)
	assert.Equal(t, "x", atom.FactFields["author"].Var)
}

func TestParseMultipleDisjunctsAndOr(t *testing.T) {
	q, err := Parse(`where x : Person or x : Organization`)
	require.NoError(t, err)
	require.Len(t, q.Disjuncts, 2)
}

func TestParseRejectsMinConfidenceOutOfRange(t *testing.T) {
	_, err := Parse(`where x : Person min_confidence 2`)
	require.Error(t, err)
}

func TestParseRejectsZeroLimit(t *testing.T) {
	_, err := Parse(`where x : Person limit 0`)
	require.Error(t, err)
}

func TestParseHasAtomBothForms(t *testing.T) {
	q1, err := Parse(`where has(x, knows, likes)`)
	require.NoError(t, err)
	assert.Equal(t, AtomHas, q1.Disjuncts[0].Atoms[0].Kind)
	assert.ElementsMatch(t, []string{"knows", "likes"}, q1.Disjuncts[0].Atoms[0].Rels)

	q2, err := Parse(`where x has knows`)
	require.NoError(t, err)
	assert.Equal(t, AtomHas, q2.Disjuncts[0].Atoms[0].Kind)
	assert.Equal(t, []string{"knows"}, q2.Disjuncts[0].Atoms[0].Rels)
}

func TestParseRejectsEmptyStringLiteral(t *testing.T) {
	_, err := Parse(`where x : Person, name("") - knows -> x`)
	require.Error(t, err)
}

func TestDigestIsStableAcrossWhitespace(t *testing.T) {
	q1, err := Parse(`select x where x : Person`)
	require.NoError(t, err)
	q2, err := Parse("select   x   where   x : Person")
	require.NoError(t, err)
	assert.Equal(t, Digest(q1), Digest(q2))
}

func TestDigestDiffersOnSemanticChange(t *testing.T) {
	q1, err := Parse(`select x where x : Person`)
	require.NoError(t, err)
	q2, err := Parse(`select x where x : Organization`)
	require.NoError(t, err)
	assert.NotEqual(t, Digest(q1), Digest(q2))
}

func TestParseContainsFtsFuzzyAtoms(t *testing.T) {
	q, err := Parse(`where contains(x, "bio", "engineer")`)
	require.NoError(t, err)
	a := q.Disjuncts[0].Atoms[0]
	assert.Equal(t, AtomContains, a.Kind)
	assert.Equal(t, "bio", a.AttrKey)
	assert.Equal(t, "engineer", a.AttrValue)

	q, err = Parse(`where fts(x, "bio", "senior engineer")`)
	require.NoError(t, err)
	assert.Equal(t, AtomFTS, q.Disjuncts[0].Atoms[0].Kind)

	q, err = Parse(`where fuzzy(x, "name", "Alise", 1)`)
	require.NoError(t, err)
	a = q.Disjuncts[0].Atoms[0]
	assert.Equal(t, AtomFuzzy, a.Kind)
	assert.Equal(t, 1, a.FuzzyDist)
}

func TestParseShapeSugarDesugarsToAtoms(t *testing.T) {
	q, err := Parse(`where x { knows, name="node_42", is Person }`)
	require.NoError(t, err)
	require.Len(t, q.Disjuncts, 1)
	atoms := q.Disjuncts[0].Atoms
	require.Len(t, atoms, 3)
	assert.Equal(t, AtomHas, atoms[0].Kind)
	assert.Equal(t, []string{"knows"}, atoms[0].Rels)
	assert.Equal(t, AtomAttr, atoms[1].Kind)
	assert.Equal(t, "name", atoms[1].AttrKey)
	assert.Equal(t, "node_42", atoms[1].AttrValue)
	assert.Equal(t, AtomType, atoms[2].Kind)
	assert.Equal(t, "Person", atoms[2].TypeName)
}

func TestParseRejectsEmptyShape(t *testing.T) {
	_, err := Parse(`where x { }`)
	require.Error(t, err)
}
