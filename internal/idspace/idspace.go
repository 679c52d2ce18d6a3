// Package idspace issues the dense integer handles shared by every layer
// of the points-to solver: ObjectIds (values, objects, synthetics), NodeIds
// (SEG/CFG/DUG nodes) and PartitionIds (access-equivalence classes).
//
// Ids are append-only: once issued they are never reused, even across
// unions, so that stale ids fail cleanly rather than aliasing a later
// allocation.
package idspace

import "fmt"

// ObjectId identifies a value, an object, or a synthetic (see the
// Synthetic* constants). Id zero is never issued by Space and is used
// throughout the solver as a sentinel for "non-pointerlike".
type ObjectId uint32

// NodeId identifies a node in a SEG-derived graph (CFG, DUG).
type NodeId uint32

// PartitionId identifies an access-equivalence class of address-taken
// objects. Immutable once assigned.
type PartitionId uint32

// Reserved synthetic objects. These occupy the lowest ObjectIds so that
// every Space starts past them; callers construct a Space with
// NewObjectSpace to get this reservation automatically.
const (
	Null ObjectId = iota + 1
	NullObject
	UniversalSet
	IntValue
	Errno
	Locale
	CType
	PthreadSpecific
	Argv
	ArgvObject

	firstUnreserved
)

// FirstUnreserved is the first ObjectId every fresh Space issues; it is the
// same constant across every Space, which is what lets callers remapping
// ids between two spaces (e.g. merging two ConstraintGraphs) compute a
// single additive offset instead of tracking per-space bases.
const FirstUnreserved = firstUnreserved

// Space is a dense, append-only allocator of ObjectIds.
type Space struct {
	next     ObjectId
	isStruct map[ObjectId]uint32 // base id -> field count, for aggregate objects
	isObject map[ObjectId]bool   // ids denoting an abstract memory object, never merged by Optimize
	reserved bool
}

// NewObjectSpace returns a Space with the synthetic ids already reserved.
func NewObjectSpace() *Space {
	return &Space{
		next:     firstUnreserved,
		isStruct: make(map[ObjectId]uint32),
		isObject: make(map[ObjectId]bool),
		reserved: true,
	}
}

// New allocates n contiguous fresh ids and returns the id of the first one.
// n must be >= 1.
func (s *Space) New(n uint32) ObjectId {
	if n == 0 {
		panic("idspace: New(0)")
	}
	id := s.next
	s.next += ObjectId(n)
	return id
}

// Len returns one past the highest id issued so far.
func (s *Space) Len() ObjectId { return s.next }

// MarkStruct records that the aggregate rooted at base reserves fieldCount
// contiguous ids, one per field.
func (s *Space) MarkStruct(base ObjectId, fieldCount uint32) {
	if fieldCount == 0 {
		panic("idspace: MarkStruct with zero fields")
	}
	s.isStruct[base] = fieldCount
}

// FieldCount returns the recorded field count for base, or 1 if base was
// never marked as an aggregate (a scalar occupies a single field).
func (s *Space) FieldCount(base ObjectId) uint32 {
	if n, ok := s.isStruct[base]; ok {
		return n
	}
	return 1
}

// IsStruct reports whether base was marked as an aggregate by MarkStruct.
func (s *Space) IsStruct(base ObjectId) bool {
	_, ok := s.isStruct[base]
	return ok
}

// MarkObject records that id denotes an abstract memory object (an
// allocation site, global, or other address-of target) rather than a
// top-level value — the distinction constraint.Graph.Optimize's ObjectMap
// needs to know which ids Hash-based Unification must never merge.
func (s *Space) MarkObject(id ObjectId) {
	s.isObject[id] = true
}

// IsObject reports whether id was marked with MarkObject. Satisfies
// constraint.ObjectMap.
func (s *Space) IsObject(id ObjectId) bool {
	return s.isObject[id]
}

// AdoptMetadata copies other's struct-field and object markings into s,
// translating every id by offset (the same additive offset the caller
// used to remap other's constraints into s's id space). Call this once
// per merge, after extending s by other's length, so per-id metadata
// travels with the ids it describes instead of being silently dropped.
func (s *Space) AdoptMetadata(other *Space, offset ObjectId) {
	for base, n := range other.isStruct {
		s.isStruct[translate(base, offset)] = n
	}
	for id := range other.isObject {
		s.isObject[translate(id, offset)] = true
	}
}

func translate(id, offset ObjectId) ObjectId {
	if id == 0 || id.IsSynthetic() {
		return id
	}
	return id + offset
}

func (id ObjectId) String() string {
	switch id {
	case 0:
		return "<nil>"
	case Null:
		return "Null"
	case NullObject:
		return "NullObject"
	case UniversalSet:
		return "UniversalSet"
	case IntValue:
		return "IntValue"
	case Errno:
		return "Errno"
	case Locale:
		return "Locale"
	case CType:
		return "CType"
	case PthreadSpecific:
		return "PthreadSpecific"
	case Argv:
		return "Argv"
	case ArgvObject:
		return "ArgvObject"
	}
	return fmt.Sprintf("o%d", uint32(id))
}

// IsSynthetic reports whether id names one of the reserved synthetic
// objects (Null..ArgvObject). Synthetic ids are the same numeric value in
// every Space and must never be remapped when two graphs are merged.
func (id ObjectId) IsSynthetic() bool {
	return id != 0 && id < firstUnreserved
}

func (id NodeId) String() string { return fmt.Sprintf("n%d", uint32(id)) }

func (id PartitionId) String() string { return fmt.Sprintf("part%d", uint32(id)) }
