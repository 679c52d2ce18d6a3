package seg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// label is a trivial Payload used by the tests: Unite just remembers every
// original label it has absorbed, so tests can check merge behavior.
type label struct {
	names []string
}

func lbl(name string) *label { return &label{names: []string{name}} }

func (l *label) Unite(other Payload) {
	l.names = append(l.names, other.(*label).names...)
}

func TestAddNodeAndGetNode(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	assert.Equal(t, a, g.GetNode(a))
	assert.Equal(t, b, g.GetNode(b))
	assert.NotEqual(t, a, b)
}

func TestGetNodeOnUnissuedIdPanics(t *testing.T) {
	g := New()
	g.AddNode(lbl("a"))
	assert.Panics(t, func() { g.GetNode(idspace.NodeId(99)) })
}

func TestTryGetNodeOnUnissuedIdFailsCleanly(t *testing.T) {
	g := New()
	_, ok := g.TryGetNode(idspace.NodeId(42))
	assert.False(t, ok)
}

func TestAddEdgeIdempotent(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	g.AddEdge(a, b)
	g.AddEdge(a, b)
	assert.Equal(t, []idspace.NodeId{a}, g.Preds(b))
	assert.Equal(t, []idspace.NodeId{b}, g.Succs(a))
}

func TestUniteMergesPredsSuccsAndPayload(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	c := g.AddNode(lbl("c"))
	d := g.AddNode(lbl("d"))

	g.AddEdge(a, b) // a -> b
	g.AddEdge(b, c) // b -> c
	g.AddEdge(d, b) // d -> b

	rep := g.Unite(a, b) // b absorbed into a
	require.Equal(t, a, rep)
	assert.Equal(t, a, g.GetNode(b), "b must forward to a")

	succs := g.Succs(a)
	assert.ElementsMatch(t, []idspace.NodeId{c}, succs)

	preds := g.Preds(a)
	assert.ElementsMatch(t, []idspace.NodeId{d}, preds)

	payload := g.Payload(a).(*label)
	assert.ElementsMatch(t, []string{"a", "b"}, payload.names)
}

func TestUniteDropsSelfLoop(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	g.AddEdge(a, b)
	g.AddEdge(b, a)

	rep := g.Unite(a, b)
	assert.Empty(t, g.Succs(rep), "a<->b cycle must not become a self-loop after union")
	assert.Empty(t, g.Preds(rep))
}

func TestUniteIsIdempotent(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	g.Unite(a, b)
	rep1 := g.GetNode(a)
	// Uniting again (with already-collapsed ids) must be a no-op, not a
	// second merge of the payload.
	rep2 := g.Unite(a, b)
	assert.Equal(t, rep1, rep2)
	assert.Len(t, g.Payload(rep1).(*label).names, 2)
}

func TestTryRemoveNodeDetachesEdges(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	c := g.AddNode(lbl("c"))
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	g.TryRemoveNode(b)
	assert.Empty(t, g.Succs(a))
	assert.Empty(t, g.Preds(c))

	_, ok := g.TryGetNode(b)
	assert.False(t, ok, "removed node must fail cleanly via TryGetNode")
}

func TestCreateSCCCollapsesCycleOntoLowestId(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	c := g.AddNode(lbl("c"))
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(c, a)

	g.CreateSCC()
	require.Equal(t, g.GetNode(a), g.GetNode(b))
	require.Equal(t, g.GetNode(a), g.GetNode(c))
	assert.Equal(t, a, g.GetNode(a), "SCC must collapse onto the lowest-id member")
}

func TestTopoOrderRespectsEdges(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	c := g.AddNode(lbl("c"))
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	order := g.TopoOrder()
	pos := make(map[idspace.NodeId]int)
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[a], pos[b])
	assert.Less(t, pos[b], pos[c])
}

func TestReachablePredsWalksBackward(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	c := g.AddNode(lbl("c"))
	d := g.AddNode(lbl("d")) // unreachable
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	visited := g.ReachablePreds([]idspace.NodeId{c})
	assert.True(t, visited[a])
	assert.True(t, visited[b])
	assert.True(t, visited[c])
	assert.False(t, visited[d])
}

func TestCloneIsIndependent(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	g.AddEdge(a, b)

	g2 := g.Clone(func(p Payload) Payload {
		orig := p.(*label)
		return &label{names: append([]string(nil), orig.names...)}
	})

	g2.AddEdge(b, a) // mutate the clone only
	assert.Empty(t, g.Succs(b), "original graph must be unaffected by mutating the clone")
	assert.NotEmpty(t, g2.Succs(b))
}

func TestRematerializeSuccsRebuildsFromPreds(t *testing.T) {
	g := New()
	a := g.AddNode(lbl("a"))
	b := g.AddNode(lbl("b"))
	g.AddEdge(a, b)

	// Simulate a transform that only maintained preds.
	g.nodes[g.GetNode(a)].succs = nil
	assert.Empty(t, g.Succs(a))

	g.RematerializeSuccs()
	assert.Equal(t, []idspace.NodeId{b}, g.Succs(a))
}
