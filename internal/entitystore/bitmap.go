package entitystore

import "sort"

// Bitmap is a sorted, deduplicated set of entity ids. PathDB's by-type and
// attribute-value indexes are all expressed in terms of Bitmap so that
// candidate-set intersection (the planner's core operation, §4.J) and
// deterministic iteration (the executor's ordering guarantee, §5) share one
// representation.
//
// None of the retrieved example repos import a third-party bitmap/roaring
// library (see DESIGN.md), so Bitmap is a small sorted-slice set over the
// standard library rather than a hand-rolled imitation of one.
type Bitmap struct {
	ids []uint32
}

// NewBitmap returns an empty Bitmap.
func NewBitmap() *Bitmap {
	return &Bitmap{}
}

// BitmapOf returns a Bitmap containing exactly the given ids.
func BitmapOf(ids ...uint32) *Bitmap {
	b := &Bitmap{}
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

// Add inserts id, keeping ids sorted and unique.
func (b *Bitmap) Add(id uint32) {
	i := sort.Search(len(b.ids), func(i int) bool { return b.ids[i] >= id })
	if i < len(b.ids) && b.ids[i] == id {
		return
	}
	b.ids = append(b.ids, 0)
	copy(b.ids[i+1:], b.ids[i:])
	b.ids[i] = id
}

// Contains reports whether id is a member.
func (b *Bitmap) Contains(id uint32) bool {
	i := sort.Search(len(b.ids), func(i int) bool { return b.ids[i] >= id })
	return i < len(b.ids) && b.ids[i] == id
}

// Len returns the number of members.
func (b *Bitmap) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ids)
}

// ToSlice returns the members in ascending order. The returned slice must
// not be mutated by the caller.
func (b *Bitmap) ToSlice() []uint32 {
	if b == nil {
		return nil
	}
	return b.ids
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	out := &Bitmap{ids: make([]uint32, len(b.ids))}
	copy(out.ids, b.ids)
	return out
}

// Intersect returns the sorted intersection of a and b. Used by the planner
// to fold a variable's per-atom candidate sets into one domain (§4.J.1).
func Intersect(a, b *Bitmap) *Bitmap {
	out := &Bitmap{}
	if a == nil || b == nil {
		return out
	}
	i, j := 0, 0
	for i < len(a.ids) && j < len(b.ids) {
		switch {
		case a.ids[i] == b.ids[j]:
			out.ids = append(out.ids, a.ids[i])
			i++
			j++
		case a.ids[i] < b.ids[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Union returns the sorted union of a and b.
func Union(a, b *Bitmap) *Bitmap {
	out := &Bitmap{}
	var ai, bi int
	for ai < a.Len() || bi < b.Len() {
		switch {
		case ai >= a.Len():
			out.ids = append(out.ids, b.ids[bi])
			bi++
		case bi >= b.Len():
			out.ids = append(out.ids, a.ids[ai])
			ai++
		case a.ids[ai] == b.ids[bi]:
			out.ids = append(out.ids, a.ids[ai])
			ai++
			bi++
		case a.ids[ai] < b.ids[bi]:
			out.ids = append(out.ids, a.ids[ai])
			ai++
		default:
			out.ids = append(out.ids, b.ids[bi])
			bi++
		}
	}
	return out
}
