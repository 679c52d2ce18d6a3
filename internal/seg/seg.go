// Package seg implements the Sparse Evaluation Graph: a generic directed
// graph over an arena of nodes indexed by idspace.NodeId, with node union
// ("collapse"), edge dedup, topological iteration, clone, and SCC
// collapse. It underpins every graph used downstream (cfg.Graph,
// dug.Graph).
//
// Per §9's rearchitecture guidance, nodes live in a flat arena rather than
// a pointer-chasing object graph, and unions move ownership of
// predecessor/successor sets into the representative instead of
// maintaining cyclic back-pointers.
package seg

import (
	"fmt"
	"sort"

	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// Payload is the per-node data a SEG client attaches to a node. Unite
// defines how two payloads merge when their nodes are unioned; the
// payload-specific semantics referred to in §4.1 live here.
type Payload interface {
	// Unite merges other into the receiver. Called once per union, after
	// the graph has already merged predecessor/successor sets.
	Unite(other Payload)
}

type node struct {
	id    idspace.NodeId
	rep   idspace.NodeId // self when unmerged
	preds []idspace.NodeId
	succs []idspace.NodeId
	live  bool
	data  Payload
}

// Graph is a Sparse Evaluation Graph over payloads of type Payload.
type Graph struct {
	nodes []*node
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{}
}

// AddNode creates a new node carrying payload and returns its id.
func (g *Graph) AddNode(payload Payload) idspace.NodeId {
	id := idspace.NodeId(len(g.nodes))
	g.nodes = append(g.nodes, &node{id: id, rep: id, live: true, data: payload})
	return id
}

// rep follows the representative chain with path compression and returns
// the backing *node of the current representative. Panics if id was never
// issued: a hard failure is the documented behavior for lookups on
// nonexistent ids (§4.1).
func (g *Graph) rep(id idspace.NodeId) *node {
	if int(id) >= len(g.nodes) {
		panic(fmt.Sprintf("seg: no such node %s", id))
	}
	n := g.nodes[id]
	chain := []idspace.NodeId{}
	for n.rep != n.id {
		chain = append(chain, n.id)
		n = g.nodes[n.rep]
	}
	for _, c := range chain {
		g.nodes[c].rep = n.id
	}
	return n
}

// GetNode returns the representative node id of id. Fails hard if id was
// never issued.
func (g *Graph) GetNode(id idspace.NodeId) idspace.NodeId {
	return g.rep(id).id
}

// TryGetNode returns the representative node id of id and true, or
// (0, false) if id was never issued or has been removed.
func (g *Graph) TryGetNode(id idspace.NodeId) (idspace.NodeId, bool) {
	if int(id) >= len(g.nodes) {
		return 0, false
	}
	n := g.rep(id)
	if !n.live {
		return 0, false
	}
	return n.id, true
}

// Payload returns the payload of id's representative.
func (g *Graph) Payload(id idspace.NodeId) Payload {
	return g.rep(id).data
}

// Preds returns the (deduplicated) predecessor ids of id's representative.
func (g *Graph) Preds(id idspace.NodeId) []idspace.NodeId {
	return append([]idspace.NodeId(nil), g.rep(id).preds...)
}

// Succs returns the (deduplicated) successor ids of id's representative.
func (g *Graph) Succs(id idspace.NodeId) []idspace.NodeId {
	return append([]idspace.NodeId(nil), g.rep(id).succs...)
}

// NodeIds returns the ids of all live representative nodes, in ascending
// order of id.
func (g *Graph) NodeIds() []idspace.NodeId {
	var out []idspace.NodeId
	for _, n := range g.nodes {
		if n.live && n.rep == n.id {
			out = append(out, n.id)
		}
	}
	return out
}

// AddEdge adds an edge from -> to. Idempotent at the level of the
// deduplicated predecessor set (§4.1): adding the same edge twice is a
// no-op.
func (g *Graph) AddEdge(from, to idspace.NodeId) {
	fn := g.rep(from)
	tn := g.rep(to)
	if fn.id == tn.id {
		return // self-loop: never recorded
	}
	tn.preds = appendUnique(tn.preds, fn.id)
	fn.succs = appendUnique(fn.succs, tn.id)
}

// RemoveEdge removes the edge from -> to if present.
func (g *Graph) RemoveEdge(from, to idspace.NodeId) {
	fn := g.rep(from)
	tn := g.rep(to)
	tn.preds = removeId(tn.preds, fn.id)
	fn.succs = removeId(fn.succs, tn.id)
}

// TryRemoveNode detaches all incident edges of id and invalidates it:
// subsequent lookups via TryGetNode return false cleanly, while GetNode
// does not panic and still returns the removed id itself (the hard-fail
// guarantee is for ids that were *never* issued; a removed id is a
// distinct state that only TryGetNode reports).
func (g *Graph) TryRemoveNode(id idspace.NodeId) {
	n := g.rep(id)
	for _, p := range n.preds {
		g.nodes[p].succs = removeId(g.nodes[p].succs, n.id)
	}
	for _, s := range n.succs {
		g.nodes[s].preds = removeId(g.nodes[s].preds, n.id)
	}
	n.preds = nil
	n.succs = nil
	n.live = false
}

// Unite merges b into a: a absorbs b's predecessors and successors
// (dropping any self-loop that would otherwise be reintroduced), b's
// payload Unite()s into a's payload, and b becomes a forwarder to a.
// Idempotent: uniting a node with itself (directly or via an
// already-collapsed rep chain) is a no-op.
func (g *Graph) Unite(a, b idspace.NodeId) idspace.NodeId {
	an := g.rep(a)
	bn := g.rep(b)
	if an.id == bn.id {
		return an.id
	}

	for _, p := range bn.preds {
		if p == an.id || p == bn.id {
			continue // drop self-loop
		}
		an.preds = appendUnique(an.preds, p)
		pn := g.nodes[p]
		pn.succs = removeId(pn.succs, bn.id)
		pn.succs = appendUnique(pn.succs, an.id)
	}
	for _, s := range bn.succs {
		if s == an.id || s == bn.id {
			continue
		}
		an.succs = appendUnique(an.succs, s)
		sn := g.nodes[s]
		sn.preds = removeId(sn.preds, bn.id)
		sn.preds = appendUnique(sn.preds, an.id)
	}
	an.preds = removeId(an.preds, bn.id)
	an.succs = removeId(an.succs, bn.id)

	an.data.Unite(bn.data)

	bn.preds = nil
	bn.succs = nil
	bn.rep = an.id
	return an.id
}

// CleanGraph dedupes predecessor/successor sets and eliminates self-loops.
// A precondition of T2 (§4.2): call after any pass that may have
// introduced duplicate edges via union.
func (g *Graph) CleanGraph() {
	for _, n := range g.nodes {
		if !n.live || n.rep != n.id {
			continue
		}
		n.preds = dedupExceptSelf(n.preds, n.id)
		n.succs = dedupExceptSelf(n.succs, n.id)
	}
}

// RematerializeSuccs rebuilds every live node's successor set from the
// current predecessor sets. Some transforms (§4.2, before T5) only
// maintain predecessors as they rewrite the graph; this restores the
// invariant that succs and preds agree before a pass that needs to walk
// forward edges.
func (g *Graph) RematerializeSuccs() {
	for _, n := range g.nodes {
		if n.live && n.rep == n.id {
			n.succs = nil
		}
	}
	for _, n := range g.nodes {
		if !n.live || n.rep != n.id {
			continue
		}
		for _, p := range n.preds {
			pn := g.nodes[p]
			pn.succs = appendUnique(pn.succs, n.id)
		}
	}
}

// Clone returns a deep copy of g with ids preserved. Node payloads are
// copied by calling clonePayload on every node's non-nil payload;
// clonePayload must return an independent Payload of the same dynamic
// type.
func (g *Graph) Clone(clonePayload func(Payload) Payload) *Graph {
	out := &Graph{nodes: make([]*node, len(g.nodes))}
	for i, n := range g.nodes {
		cp := &node{id: n.id, rep: n.rep, live: n.live}
		cp.preds = append([]idspace.NodeId(nil), n.preds...)
		cp.succs = append([]idspace.NodeId(nil), n.succs...)
		if n.data != nil {
			cp.data = clonePayload(n.data)
		}
		out.nodes[i] = cp
	}
	return out
}

func appendUnique(xs []idspace.NodeId, x idspace.NodeId) []idspace.NodeId {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

func removeId(xs []idspace.NodeId, x idspace.NodeId) []idspace.NodeId {
	out := xs[:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

func dedupExceptSelf(xs []idspace.NodeId, self idspace.NodeId) []idspace.NodeId {
	seen := make(map[idspace.NodeId]bool, len(xs))
	out := xs[:0]
	for _, v := range xs {
		if v == self || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// TopoOrder returns the live representative node ids in forward
// topological order. Behavior is undefined if the graph (restricted to
// live reps) is cyclic; callers must SCC-collapse first (§4.1).
func (g *Graph) TopoOrder() []idspace.NodeId {
	indeg := make(map[idspace.NodeId]int)
	for _, id := range g.NodeIds() {
		indeg[id] = 0
	}
	for _, id := range g.NodeIds() {
		for _, s := range g.Succs(id) {
			indeg[s]++
		}
	}
	var ready []idspace.NodeId
	for _, id := range g.NodeIds() {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []idspace.NodeId
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		var newlyReady []idspace.NodeId
		for _, s := range g.Succs(id) {
			indeg[s]--
			if indeg[s] == 0 {
				newlyReady = append(newlyReady, s)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return newlyReady[i] < newlyReady[j] })
		ready = append(ready, newlyReady...)
	}
	return order
}

// ReachablePreds returns, for the subgraph reachable by walking
// predecessor edges backward from every id in from, the full set of
// visited node ids (including the roots themselves). This is
// topo_rbegin/rend(from) from §4.1.
func (g *Graph) ReachablePreds(from []idspace.NodeId) map[idspace.NodeId]bool {
	visited := make(map[idspace.NodeId]bool)
	var stack []idspace.NodeId
	for _, id := range from {
		rid := g.GetNode(id)
		if !visited[rid] {
			visited[rid] = true
			stack = append(stack, rid)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.Preds(id) {
			if !visited[p] {
				visited[p] = true
				stack = append(stack, p)
			}
		}
	}
	return visited
}

// CreateSCC finds every strongly connected component of g (Tarjan's
// algorithm) and collapses each one onto its lowest-id member via
// repeated Unite, per §4.1.
func (g *Graph) CreateSCC() {
	t := &tarjan{g: g, index: make(map[idspace.NodeId]int), low: make(map[idspace.NodeId]int), onStack: make(map[idspace.NodeId]bool)}
	for _, id := range g.NodeIds() {
		if _, seen := t.index[id]; !seen {
			t.strongconnect(id)
		}
	}
	for _, scc := range t.sccs {
		if len(scc) < 2 {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
		root := scc[0]
		for _, id := range scc[1:] {
			root = g.Unite(root, id)
		}
	}
}

type tarjan struct {
	g       *Graph
	index   map[idspace.NodeId]int
	low     map[idspace.NodeId]int
	onStack map[idspace.NodeId]bool
	stack   []idspace.NodeId
	counter int
	sccs    [][]idspace.NodeId
}

func (t *tarjan) strongconnect(v idspace.NodeId) {
	t.index[v] = t.counter
	t.low[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.Succs(v) {
		if _, seen := t.index[w]; !seen {
			t.strongconnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.low[v] {
				t.low[v] = t.index[w]
			}
		}
	}

	if t.low[v] == t.index[v] {
		var scc []idspace.NodeId
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}
