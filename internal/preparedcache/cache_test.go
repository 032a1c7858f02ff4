package preparedcache

import (
	"testing"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	q, err := axql.Parse(`select x where x : Person`)
	require.NoError(t, err)
	entry := &Entry{Elaborated: &elaborate.Elaborated{Query: q}}

	c.Put("snap-1", q, entry)
	got, ok := c.Get("snap-1", q)
	require.True(t, ok)
	require.Same(t, entry, got)
}

func TestDistinctSnapshotKeysDoNotCollide(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	q, err := axql.Parse(`select x where x : Person`)
	require.NoError(t, err)

	c.Put("snap-1", q, &Entry{})
	_, ok := c.Get("snap-2", q)
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)
	q1, err := axql.Parse(`select x where x : Person`)
	require.NoError(t, err)
	q2, err := axql.Parse(`select x where x : Organization`)
	require.NoError(t, err)

	c.Put("snap-1", q1, &Entry{})
	c.Put("snap-1", q2, &Entry{})

	_, ok := c.Get("snap-1", q1)
	require.False(t, ok, "q1 should have been evicted when capacity-1 cache filled with q2")
	_, ok = c.Get("snap-1", q2)
	require.True(t, ok)
}

func TestClearPurgesAllEntries(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	q, err := axql.Parse(`select x where x : Person`)
	require.NoError(t, err)
	c.Put("snap-1", q, &Entry{})
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Equal(t, 0, c.Len())
	_, ok := c.Get("snap-1", q)
	require.False(t, ok)
}
