// Package dug implements the Def-Use Graph of spec §4.4: one node per
// surviving constraint, wired with top-level def-use edges taken directly
// from the ConstraintGraph's value dependency, plus (once the partitioner
// runs) address-taken edges between loads/stores of the same partition.
//
// Per §3's ownership rule, the DUG exclusively owns its nodes, their
// PtstoGraphs and the partition map; the ConstraintGraph and CFG are
// consumed by fillTopLevel and addPartitionsToDUG respectively and may be
// released by the caller afterward.
package dug

import (
	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/idspace"
	"github.com/rudyjantz/ptsgo/internal/seg"
)

// Kind tags a DUG node. Join nodes are synthetic: they do not originate
// from a constraint. addPartitionsToDUG creates them to union several
// address-taken predecessors (the per-partition SSA's phis), and
// FillTopLevel creates top-level ones to union several definitions of the
// same value.
type Kind uint8

const (
	NAddrOf Kind = iota
	NCopy
	NLoad
	NStore
	NGep
	NJoin
)

func kindOf(k constraint.Kind) Kind {
	switch k {
	case constraint.AddrOf:
		return NAddrOf
	case constraint.Copy:
		return NCopy
	case constraint.Load:
		return NLoad
	case constraint.Store:
		return NStore
	case constraint.Gep:
		return NGep
	default:
		panic("dug: unknown constraint kind")
	}
}

// Node is the per-DUG-node state the solver reads and mutates. In is a
// single points-to set; Out is the PtstoGraph slot keyed by
// ObjectId->PtstoSet (a lazily-populated map so a node touching few
// objects stays cheap); the solver package defines the transfer functions
// that populate them.
type Node struct {
	Kind      Kind
	C         constraint.Constraint // zero value for NJoin
	CFGNode   idspace.NodeId         // meaningful for NLoad/NStore
	Partition idspace.PartitionId    // assigned by the partitioner; 0 until then

	In  *bitset.Set // top-level pts(dst), or the partition's in-state for address-taken nodes
	Out map[idspace.ObjectId]*bitset.Set

	// TopLevel distinguishes the two flavors of NJoin: true for a join
	// fillTopLevel synthesizes over several constraints that define the
	// same top-level value (an SSA phi), false for a join
	// addPartitionsToDUG synthesizes over several address-taken
	// definitions reaching a genuine control merge. The solver unions
	// In across all predecessors for the former and Out across
	// Store/Join predecessors for the latter.
	TopLevel bool
}

func newNode(kind Kind, c constraint.Constraint, cfgNode idspace.NodeId) *Node {
	return &Node{Kind: kind, C: c, CFGNode: cfgNode, In: bitset.New()}
}

// Unite satisfies seg.Payload. DUG nodes are never merged by union (the
// graph only grows, via AddNode/AddEdge); the partitioner and solver treat
// every node as its own equivalence class. A join node resulting from a
// would-be union is a construction bug, not a state to recover from.
func (n *Node) Unite(other seg.Payload) {
	panic("dug: nodes are never united")
}

// Graph is the Def-Use Graph: a seg.Graph of Nodes.
type Graph struct {
	g *seg.Graph
}

// New returns an empty DUG.
func New() *Graph { return &Graph{g: seg.New()} }

// AddEdge adds a def-use edge from -> to.
func (d *Graph) AddEdge(from, to idspace.NodeId) { d.g.AddEdge(from, to) }

// Node returns the Node at id.
func (d *Graph) Node(id idspace.NodeId) *Node { return d.g.Payload(d.g.GetNode(id)).(*Node) }

// Preds returns the predecessor ids of id.
func (d *Graph) Preds(id idspace.NodeId) []idspace.NodeId { return d.g.Preds(id) }

// Succs returns the successor ids of id.
func (d *Graph) Succs(id idspace.NodeId) []idspace.NodeId { return d.g.Succs(id) }

// NodeIds returns every live node id.
func (d *Graph) NodeIds() []idspace.NodeId { return d.g.NodeIds() }

// AddJoin creates a synthetic address-taken join (phi) node for partition
// part, with no originating constraint.
func (d *Graph) AddJoin(part idspace.PartitionId) idspace.NodeId {
	return d.g.AddNode(&Node{Kind: NJoin, Partition: part, In: bitset.New()})
}

// addTopLevelJoin creates a synthetic join over several definitions of the
// same top-level value.
func (d *Graph) addTopLevelJoin() idspace.NodeId {
	return d.g.AddNode(&Node{Kind: NJoin, In: bitset.New(), TopLevel: true})
}

// FillTopLevel creates one DUG node per surviving constraint in cg and
// wires top-level def-use edges: for every constraint using a top-level
// value (as a Src, or — for Store — as the Dst address pointer too), an
// edge is added from the node that defines that value (if any) to this
// node. AddrOf's Src names an object, never a top-level value, so it never
// participates in this wiring (an object is never the Dst of a
// constraint, so no def node exists for it — the lookup below simply
// misses, which is the correct outcome without needing to special-case
// AddrOf). Store does not define a top-level value (it only defines
// address-taken memory, wired in later by addPartitionsToDUG), so its Dst
// is never entered into the def map either.
//
// The nodeIds slice maps each surviving constraint's original index in
// cg.Constraints to the DUG node it produced, for callers (the
// partitioner) that still need to correlate DUG nodes back to their
// originating constraint by position. defOf maps every top-level value id
// to the node that defines it, so the solver can resolve pts(v) for any v
// referenced as a Src without re-walking the graph.
//
// A value defined by more than one constraint (an SSA phi: two or more
// assignments reaching the same value id from different predecessors) is
// not resolved by last-definition-wins — that would silently drop every
// branch but the textually last one. Instead all of that value's
// defining nodes are routed through one synthetic top-level join node,
// which the solver unions over all of its predecessors; defOf then maps
// the value to the join, not to any single constraint's node.
func FillTopLevel(cg *constraint.Graph) (d *Graph, nodeIds []idspace.NodeId, defOf map[idspace.ObjectId]idspace.NodeId) {
	d = New()
	nodeIds = make([]idspace.NodeId, len(cg.Constraints))
	defsByDst := make(map[idspace.ObjectId][]idspace.NodeId)

	for i, c := range cg.Constraints {
		nid := d.g.AddNode(newNode(kindOf(c.Kind), c, c.CFGNode))
		nodeIds[i] = nid
		if c.Kind != constraint.Store {
			defsByDst[c.Dst] = append(defsByDst[c.Dst], nid)
		}
	}

	defOf = make(map[idspace.ObjectId]idspace.NodeId, len(defsByDst))
	for dst, defs := range defsByDst {
		if len(defs) == 1 {
			defOf[dst] = defs[0]
			continue
		}
		j := d.addTopLevelJoin()
		for _, def := range defs {
			d.AddEdge(def, j)
		}
		defOf[dst] = j
	}

	for i, c := range cg.Constraints {
		nid := nodeIds[i]
		uses := []idspace.ObjectId{c.Src}
		if c.Kind == constraint.Store {
			uses = append(uses, c.Dst)
		}
		for _, u := range uses {
			if u == 0 {
				continue
			}
			if def, ok := defOf[u]; ok && def != nid {
				d.AddEdge(def, nid)
			}
		}
	}

	return d, nodeIds, defOf
}
