package intern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternStableAndDense(t *testing.T) {
	n := New()
	a := n.Intern("Person")
	b := n.Intern("Employer")
	c := n.Intern("Person")
	assert.Equal(t, a, c, "re-interning the same string returns the same id")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "Person", n.Lookup(a))
	assert.Equal(t, 2, n.Len())
}

func TestIDOfNonInserting(t *testing.T) {
	n := New()
	_, ok := n.IDOf("nope")
	assert.False(t, ok)
	assert.Equal(t, 0, n.Len())

	want := n.Intern("yep")
	got, ok := n.IDOf("yep")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRoundTripAllLoadAll(t *testing.T) {
	n := New()
	n.Intern("a")
	n.Intern("b")
	n.Intern("c")

	strs := n.All()
	reloaded := LoadAll(strs)
	for _, s := range strs {
		wantID, _ := n.IDOf(s)
		gotID, ok := reloaded.IDOf(s)
		require.True(t, ok)
		assert.Equal(t, wantID, gotID)
	}
}
