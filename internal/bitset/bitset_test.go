package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rudyjantz/ptsgo/internal/idspace"
)

func TestAddTestRemove(t *testing.T) {
	s := New()
	assert.True(t, s.IsEmpty())

	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3), "re-adding should report no change")
	assert.True(t, s.Test(3))
	assert.False(t, s.Test(4))

	assert.True(t, s.Remove(3))
	assert.False(t, s.Remove(3))
	assert.True(t, s.IsEmpty())
}

func TestOrUnionAndChangeDetection(t *testing.T) {
	a := NewFrom(1, 2)
	b := NewFrom(2, 3)

	changed := a.Or(b)
	assert.True(t, changed)
	assert.Equal(t, []idspace.ObjectId{1, 2, 3}, a.Slice())

	changed = a.Or(b)
	assert.False(t, changed, "union with a subset must report no change")
}

func TestIntersects(t *testing.T) {
	a := NewFrom(1, 2)
	b := NewFrom(3, 4)
	assert.False(t, a.Intersects(b))

	b.Add(2)
	assert.True(t, a.Intersects(b))
}

func TestCompareLexicographic(t *testing.T) {
	a := NewFrom(1, 2)
	b := NewFrom(1, 3)
	c := NewFrom(1, 2, 3)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a.Clone()))
	assert.Equal(t, -1, a.Compare(c), "a is a proper prefix of c")
}

type fakeFieldCounter struct {
	structs map[idspace.ObjectId]uint32
}

func (f fakeFieldCounter) IsStruct(base idspace.ObjectId) bool {
	_, ok := f.structs[base]
	return ok
}

func (f fakeFieldCounter) FieldCount(base idspace.ObjectId) uint32 {
	return f.structs[base]
}

func TestOrOffsClampsToFieldCount(t *testing.T) {
	fc := fakeFieldCounter{structs: map[idspace.ObjectId]uint32{10: 3}}
	dst := New()
	src := NewFrom(10, 20) // 10 is a 3-field struct base; 20 is scalar

	changed := dst.OrOffs(src, 5, fc) // offset 5 clamps to fieldCount-1 = 2
	assert.True(t, changed)
	assert.True(t, dst.Test(12), "struct member should clamp to last field")
	assert.True(t, dst.Test(20), "scalar member is added verbatim regardless of offset")
	assert.False(t, dst.Test(15))
}

func TestOrOffsNoClampWithinRange(t *testing.T) {
	fc := fakeFieldCounter{structs: map[idspace.ObjectId]uint32{10: 3}}
	dst := New()
	src := NewFrom(10)

	dst.OrOffs(src, 1, fc)
	assert.True(t, dst.Test(11))
}
