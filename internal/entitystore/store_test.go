package entitystore

import (
	"testing"

	"github.com/axiograph/axiograph/internal/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndByType(t *testing.T) {
	s := New()
	const personType intern.ID = 1
	id1 := s.Add(personType, nil)
	id2 := s.Add(personType, nil)

	bm := s.ByType(personType)
	assert.Equal(t, []uint32{uint32(id1), uint32(id2)}, bm.ToSlice())
}

func TestUpsertAttrMissingEntity(t *testing.T) {
	s := New()
	err := s.UpsertAttr(99, 1, 2)
	require.Error(t, err)
}

func TestEntitiesWithAttrValue(t *testing.T) {
	s := New()
	const typeID intern.ID = 1
	const nameKey intern.ID = 2
	const aliceVal intern.ID = 10
	id := s.Add(typeID, map[intern.ID]intern.ID{nameKey: aliceVal})

	bm := s.EntitiesWithAttrValue(nameKey, aliceVal)
	assert.True(t, bm.Contains(uint32(id)))
}

func TestVirtualType(t *testing.T) {
	s := New()
	id := s.Add(1, nil)
	const factTag intern.ID = 42
	assert.False(t, s.HasVirtualType(id, factTag))
	s.MarkVirtualType(id, factTag)
	assert.True(t, s.HasVirtualType(id, factTag))
}
