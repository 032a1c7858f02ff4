package pathdb

import (
	"testing"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) *DB {
	t.Helper()
	db := New()
	person := db.TypeID("Person")
	parent := db.TypeID("Parent")
	nameKey := db.TypeID("name")
	aliceVal := db.TypeID("Alice")
	bobVal := db.TypeID("Bob")

	alice := db.Entities.Add(person, map[intern.ID]intern.ID{nameKey: aliceVal})
	bob := db.Entities.Add(person, map[intern.ID]intern.ID{nameKey: bobVal})
	_, err := db.Relations.Add(alice, parent, bob, 1.0, nil)
	require.NoError(t, err)
	return db
}

func TestFollowPathSingleHop(t *testing.T) {
	db := buildSample(t)
	nameKey := db.TypeID("name")
	aliceVal := db.TypeID("Alice")
	parent := db.TypeID("Parent")

	aliceRaw := db.Entities.EntitiesWithAttrValue(nameKey, aliceVal).ToSlice()[0]
	reached := db.FollowPath(entitystore.ID(aliceRaw), []intern.ID{parent})
	assert.Equal(t, 1, reached.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := buildSample(t)
	data, err := Encode(db)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, db.Interner.All(), decoded.Interner.All())
	assert.Equal(t, db.Relations.Rows(), decoded.Relations.Rows())
	assert.Equal(t, db.Entities.BaseTypes(), decoded.Entities.BaseTypes())
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("not a snapshot"))
	require.Error(t, err)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	db := buildSample(t)
	data, err := Encode(db)
	require.NoError(t, err)
	corrupt := append([]byte{}, data...)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, err = Decode(corrupt)
	require.Error(t, err)
}
