package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/idspace"
	"github.com/rudyjantz/ptsgo/internal/partition"
)

type fakeAux map[idspace.ObjectId][]idspace.ObjectId

func (f fakeAux) PointsTo(ptr idspace.ObjectId) []idspace.ObjectId { return f[ptr] }

type fakeSingleton map[idspace.ObjectId]bool

func (f fakeSingleton) IsSingleton(o idspace.ObjectId) bool { return f[o] }

func TestAddrOfCopyGepPropagateAlongTopLevelChain(t *testing.T) {
	cg := constraint.New()
	obj := cg.Space.New(1)
	p := cg.Space.New(1)
	q := cg.Space.New(1)
	r := cg.Space.New(1)

	cg.AddAddrOf(p, obj)
	cg.AddCopy(q, p, 1)
	cg.AddGep(r, p, 0)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	s := New(d, defOf, cg.Space, fakeSingleton{})
	s.Solve()

	assert.True(t, d.Node(nodeIds[1]).In.Test(obj), "copy must propagate p's pts set to q")
	assert.True(t, d.Node(nodeIds[2]).In.Test(obj), "gep at offset 0 of a scalar must propagate obj unchanged")
}

// TestTopLevelJoinUnionsBothDefinitions mirrors an SSA phi: p = &a on one
// branch, p = &b on the other, with a downstream use of p. Both objects
// must be visible, not just the textually last assignment.
func TestTopLevelJoinUnionsBothDefinitions(t *testing.T) {
	cg := constraint.New()
	a := cg.Space.New(1)
	b := cg.Space.New(1)
	p := cg.Space.New(1)
	use := cg.Space.New(1)

	cg.AddAddrOf(p, a)
	cg.AddAddrOf(p, b)
	cg.AddCopy(use, p, 1)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	s := New(d, defOf, cg.Space, fakeSingleton{})
	s.Solve()

	useNode := nodeIds[2]
	in := d.Node(useNode).In
	assert.True(t, in.Test(a))
	assert.True(t, in.Test(b))
}

func TestLoadReadsValueWrittenByStore(t *testing.T) {
	full := cfg.New()
	n1 := full.AddNode(cfg.Attrs{M: true}, "store")
	n2 := full.AddNode(cfg.Attrs{R: true}, "load")
	full.AddEdge(n1, n2)

	cg := constraint.New()
	obj := cg.Space.New(1)       // the address-taken cell ptr targets
	storedObj := cg.Space.New(1) // the value stored into it
	ptr := cg.Space.New(1)
	val := cg.Space.New(1)
	dst := cg.Space.New(1)

	cg.AddAddrOf(ptr, obj)
	cg.AddAddrOf(val, storedObj)
	cg.AddStore(ptr, val, 0, 1, n1)
	cg.AddLoad(dst, ptr, 0, 1, n2)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	aux := fakeAux{ptr: {obj}}
	accesses := partition.CollectAccesses(d, aux)
	assign := partition.Assign(accesses)
	partition.AddPartitionsToDUG(full, d, accesses, assign)

	s := New(d, defOf, cg.Space, fakeSingleton{})
	s.Solve()

	loadNode := nodeIds[3]
	assert.True(t, d.Node(loadNode).In.Test(storedObj))
}

// TestStoreStrongUpdateReplacesSingletonObject builds two sequential stores
// through a pointer whose pts set is a single, known-singleton object, and
// checks a later load sees only the second store's value.
func TestStoreStrongUpdateReplacesSingletonObject(t *testing.T) {
	full := cfg.New()
	n1 := full.AddNode(cfg.Attrs{M: true}, "store1")
	n2 := full.AddNode(cfg.Attrs{M: true}, "store2")
	n3 := full.AddNode(cfg.Attrs{R: true}, "load")
	full.AddEdge(n1, n2)
	full.AddEdge(n2, n3)

	cg := constraint.New()
	obj := cg.Space.New(1)
	objA := cg.Space.New(1)
	objB := cg.Space.New(1)
	ptr := cg.Space.New(1)
	valA := cg.Space.New(1)
	valB := cg.Space.New(1)
	dst := cg.Space.New(1)

	cg.AddAddrOf(ptr, obj)
	cg.AddAddrOf(valA, objA)
	cg.AddAddrOf(valB, objB)
	cg.AddStore(ptr, valA, 0, 1, n1)
	cg.AddStore(ptr, valB, 0, 1, n2)
	cg.AddLoad(dst, ptr, 0, 1, n3)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	aux := fakeAux{ptr: {obj}}
	accesses := partition.CollectAccesses(d, aux)
	assign := partition.Assign(accesses)
	partition.AddPartitionsToDUG(full, d, accesses, assign)

	s := New(d, defOf, cg.Space, fakeSingleton{obj: true})
	s.Solve()

	loadNode := nodeIds[5]
	in := d.Node(loadNode).In
	assert.False(t, in.Test(objA), "strong update must drop the first store's value")
	assert.True(t, in.Test(objB))
}

// TestStoreWeakUpdateUnionsForNonSingletonObject reruns the same program but
// with obj not known to be a singleton: both stored values must survive.
func TestStoreWeakUpdateUnionsForNonSingletonObject(t *testing.T) {
	full := cfg.New()
	n1 := full.AddNode(cfg.Attrs{M: true}, "store1")
	n2 := full.AddNode(cfg.Attrs{M: true}, "store2")
	n3 := full.AddNode(cfg.Attrs{R: true}, "load")
	full.AddEdge(n1, n2)
	full.AddEdge(n2, n3)

	cg := constraint.New()
	obj := cg.Space.New(1)
	objA := cg.Space.New(1)
	objB := cg.Space.New(1)
	ptr := cg.Space.New(1)
	valA := cg.Space.New(1)
	valB := cg.Space.New(1)
	dst := cg.Space.New(1)

	cg.AddAddrOf(ptr, obj)
	cg.AddAddrOf(valA, objA)
	cg.AddAddrOf(valB, objB)
	cg.AddStore(ptr, valA, 0, 1, n1)
	cg.AddStore(ptr, valB, 0, 1, n2)
	cg.AddLoad(dst, ptr, 0, 1, n3)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	aux := fakeAux{ptr: {obj}}
	accesses := partition.CollectAccesses(d, aux)
	assign := partition.Assign(accesses)
	partition.AddPartitionsToDUG(full, d, accesses, assign)

	s := New(d, defOf, cg.Space, fakeSingleton{})
	s.Solve()

	loadNode := nodeIds[5]
	in := d.Node(loadNode).In
	assert.True(t, in.Test(objA), "weak update must keep the first store's value")
	assert.True(t, in.Test(objB))
}

// TestJoinUnionsMultiplePredecessors builds two stores on distinct branches
// that merge into a load with no store of its own, and checks the load sees
// both stored values through the inserted join node.
func TestJoinUnionsMultiplePredecessors(t *testing.T) {
	full := cfg.New()
	entry := full.AddNode(cfg.Attrs{P: true}, "entry")
	s1 := full.AddNode(cfg.Attrs{M: true}, "store1")
	s2 := full.AddNode(cfg.Attrs{M: true}, "store2")
	merge := full.AddNode(cfg.Attrs{P: true}, "merge")
	load := full.AddNode(cfg.Attrs{R: true}, "load")
	full.AddEdge(entry, s1)
	full.AddEdge(entry, s2)
	full.AddEdge(s1, merge)
	full.AddEdge(s2, merge)
	full.AddEdge(merge, load)

	cg := constraint.New()
	obj := cg.Space.New(1)
	objA := cg.Space.New(1)
	objB := cg.Space.New(1)
	ptr := cg.Space.New(1)
	valA := cg.Space.New(1)
	valB := cg.Space.New(1)
	dst := cg.Space.New(1)

	cg.AddAddrOf(ptr, obj)
	cg.AddAddrOf(valA, objA)
	cg.AddAddrOf(valB, objB)
	cg.AddStore(ptr, valA, 0, 1, s1)
	cg.AddStore(ptr, valB, 0, 1, s2)
	cg.AddLoad(dst, ptr, 0, 1, load)

	d, nodeIds, defOf := dug.FillTopLevel(cg)
	aux := fakeAux{ptr: {obj}}
	accesses := partition.CollectAccesses(d, aux)
	assign := partition.Assign(accesses)
	partition.AddPartitionsToDUG(full, d, accesses, assign)

	s := New(d, defOf, cg.Space, fakeSingleton{obj: true})
	s.Solve()

	loadNode := nodeIds[5]
	in := d.Node(loadNode).In
	assert.True(t, in.Test(objA))
	assert.True(t, in.Test(objB), "a singleton's strong update on one branch must not suppress the other branch's value at the join")
}
