package idspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectSpaceReservesSynthetics(t *testing.T) {
	s := NewObjectSpace()
	require.Equal(t, firstUnreserved, s.Len())

	first := s.New(1)
	assert.Equal(t, firstUnreserved, first)
	assert.Equal(t, firstUnreserved+1, s.Len())
}

func TestNewIsAppendOnlyAndContiguous(t *testing.T) {
	s := NewObjectSpace()
	a := s.New(3)
	b := s.New(2)
	assert.Equal(t, a+3, b)
	assert.Equal(t, b+2, s.Len())
}

func TestMarkStructFieldCount(t *testing.T) {
	s := NewObjectSpace()
	base := s.New(3)
	assert.Equal(t, uint32(1), s.FieldCount(base))
	assert.False(t, s.IsStruct(base))

	s.MarkStruct(base, 3)
	assert.True(t, s.IsStruct(base))
	assert.Equal(t, uint32(3), s.FieldCount(base))
}

func TestMarkObjectAndIsObject(t *testing.T) {
	s := NewObjectSpace()
	value := s.New(1)
	obj := s.New(1)
	assert.False(t, s.IsObject(value))

	s.MarkObject(obj)
	assert.True(t, s.IsObject(obj))
	assert.False(t, s.IsObject(value))
}

func TestAdoptMetadataTranslatesStructAndObjectMarkingsByOffset(t *testing.T) {
	dst := NewObjectSpace()
	dst.New(2) // simulate ids already issued before the merge

	src := NewObjectSpace()
	base := src.New(2)
	src.MarkStruct(base, 2)
	obj := src.New(1)
	src.MarkObject(obj)

	offset := dst.Len() - FirstUnreserved
	dst.AdoptMetadata(src, offset)

	assert.True(t, dst.IsStruct(base+offset))
	assert.Equal(t, uint32(2), dst.FieldCount(base+offset))
	assert.True(t, dst.IsObject(obj+offset))
}

func TestAdoptMetadataNeverTranslatesSynthetics(t *testing.T) {
	dst := NewObjectSpace()
	src := NewObjectSpace()
	src.MarkObject(UniversalSet)

	dst.AdoptMetadata(src, 5)
	assert.True(t, dst.IsObject(UniversalSet))
}

func TestObjectIdStringNamesSynthetics(t *testing.T) {
	assert.Equal(t, "UniversalSet", UniversalSet.String())
	assert.Equal(t, "<nil>", ObjectId(0).String())
}

func TestIsSynthetic(t *testing.T) {
	assert.True(t, UniversalSet.IsSynthetic())
	assert.True(t, ArgvObject.IsSynthetic())
	assert.False(t, ObjectId(0).IsSynthetic())
	assert.False(t, firstUnreserved.IsSynthetic())

	s := NewObjectSpace()
	id := s.New(1)
	assert.False(t, id.IsSynthetic())
}
