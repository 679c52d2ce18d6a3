// Package solver implements the worklist-driven fixed point of spec §4.5
// over a Def-Use Graph: per-node-kind transfer functions mutate each
// node's PtstoSet(s), a FIFO worklist (with an on-queue bitset to suppress
// duplicates, per §9) re-enqueues dependents on change, and the solver
// runs until the worklist drains. All lattices are finite bitsets and
// every transfer is monotone, so termination is guaranteed.
package solver

import (
	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// FieldCounter answers the struct-layout questions orOffs needs to clamp a
// field-offset copy/gep. Satisfied by *idspace.Space.
type FieldCounter = bitset.FieldCounter

// SingletonPredicate reports whether an address-taken object is known to
// have exactly one allocation site, making it eligible for a strong
// (replacing) update on store instead of a weak (unioning) one. §9 flags
// this as a design decision the reference implementation left implicit;
// here it is one explicit predicate.
type SingletonPredicate interface {
	IsSingleton(o idspace.ObjectId) bool
}

// Solver holds the worklist state for one fixed-point run over d.
type Solver struct {
	d      *dug.Graph
	defOf  map[idspace.ObjectId]idspace.NodeId
	fc     FieldCounter
	single SingletonPredicate

	queued map[idspace.NodeId]bool
	queue  []idspace.NodeId

	steps int
}

// New returns a Solver over d. defOf must be the map FillTopLevel produced
// (or its equivalent after optimize has remapped ids).
func New(d *dug.Graph, defOf map[idspace.ObjectId]idspace.NodeId, fc FieldCounter, single SingletonPredicate) *Solver {
	return &Solver{d: d, defOf: defOf, fc: fc, single: single, queued: make(map[idspace.NodeId]bool)}
}

func (s *Solver) enqueue(id idspace.NodeId) {
	if s.queued[id] {
		return
	}
	s.queued[id] = true
	s.queue = append(s.queue, id)
}

func (s *Solver) enqueueSuccs(id idspace.NodeId) {
	for _, succ := range s.d.Succs(id) {
		s.enqueue(succ)
	}
}

// Steps returns the number of node visits performed by the most recent
// Solve call, for tests and diagnostics.
func (s *Solver) Steps() int { return s.steps }

// Solve seeds the worklist with every live DUG node and runs transfer
// functions until the queue empties. A re-popped node whose inputs did not
// change since its last visit is cheap: every transfer reads current
// state and only re-enqueues dependents when something actually grew.
func (s *Solver) Solve() {
	for _, id := range s.d.NodeIds() {
		s.enqueue(id)
	}
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		s.queued[id] = false
		s.steps++
		s.visit(id)
	}
}

// topLevel returns the current top-level points-to set of value v: the
// set owned by whichever DUG node defines it, or an empty set if v has no
// surviving definition (a constant, or a variable optimize dropped as
// non-pointerlike).
func (s *Solver) topLevel(v idspace.ObjectId) *bitset.Set {
	if v == 0 {
		return bitset.New()
	}
	if def, ok := s.defOf[v]; ok {
		return s.d.Node(def).In
	}
	return bitset.New()
}

func (s *Solver) visit(id idspace.NodeId) {
	n := s.d.Node(id)
	switch n.Kind {
	case dug.NAddrOf:
		if n.In.Add(n.C.Src) {
			s.enqueueSuccs(id)
		}
	case dug.NCopy:
		if n.In.OrOffs(s.topLevel(n.C.Src), 0, s.fc) {
			s.enqueueSuccs(id)
		}
	case dug.NGep:
		if n.In.OrOffs(s.topLevel(n.C.Src), n.C.Offset, s.fc) {
			s.enqueueSuccs(id)
		}
	case dug.NLoad:
		s.visitLoad(id, n)
	case dug.NStore:
		s.visitStore(id, n)
	case dug.NJoin:
		if n.TopLevel {
			s.visitTopLevelJoin(id, n)
		} else {
			s.visitJoin(id, n)
		}
	}
}

// visitTopLevelJoin unions In across every predecessor of a phi-like join
// over several definitions of the same top-level value (fillTopLevel's
// synthetic join, not addPartitionsToDUG's).
func (s *Solver) visitTopLevelJoin(id idspace.NodeId, n *dug.Node) {
	changed := false
	for _, p := range s.d.Preds(id) {
		if n.In.Or(s.d.Node(p).In) {
			changed = true
		}
	}
	if changed {
		s.enqueueSuccs(id)
	}
}

// memPreds returns id's address-taken predecessors: the Store and Join
// nodes feeding its per-object memory state. A node's top-level value
// predecessor (if any) is never one of these — Store and Join are never
// entered into defOf — so filtering by kind is sufficient to separate the
// two edge roles the generic DUG graph otherwise conflates.
func (s *Solver) memPreds(id idspace.NodeId) []*dug.Node {
	var out []*dug.Node
	for _, p := range s.d.Preds(id) {
		pn := s.d.Node(p)
		if pn.Kind == dug.NStore || pn.Kind == dug.NJoin {
			out = append(out, pn)
		}
	}
	return out
}

func (s *Solver) visitLoad(id idspace.NodeId, n *dug.Node) {
	src := s.topLevel(n.C.Src)
	preds := s.memPreds(id)
	changed := false
	src.Each(func(o idspace.ObjectId) bool {
		for _, pn := range preds {
			if val, ok := pn.Out[o]; ok {
				if n.In.Or(val) {
					changed = true
				}
			}
		}
		return true
	})
	if changed {
		s.enqueueSuccs(id)
	}
}

func (s *Solver) visitStore(id idspace.NodeId, n *dug.Node) {
	if n.Out == nil {
		n.Out = make(map[idspace.ObjectId]*bitset.Set)
	}
	dst := s.topLevel(n.C.Dst)
	src := s.topLevel(n.C.Src)
	preds := s.memPreds(id)
	changed := false

	// Every object reachable through a memory predecessor keeps flowing
	// through untouched unless this store's dst also targets it.
	for _, pn := range preds {
		for o, val := range pn.Out {
			if n.Out[o] == nil {
				n.Out[o] = bitset.New()
			}
			if n.Out[o].Or(val) {
				changed = true
			}
		}
	}

	strong := false
	var singleton idspace.ObjectId
	if dst.Len() == 1 {
		dst.Each(func(o idspace.ObjectId) bool { singleton = o; return false })
		strong = s.single.IsSingleton(singleton)
	}

	dst.Each(func(o idspace.ObjectId) bool {
		if strong && o == singleton {
			if n.Out[o] == nil || n.Out[o].Compare(src) != 0 {
				n.Out[o] = src.Clone()
				changed = true
			}
			return true
		}
		if n.Out[o] == nil {
			n.Out[o] = bitset.New()
		}
		if n.Out[o].Or(src) {
			changed = true
		}
		return true
	})

	if changed {
		s.enqueueSuccs(id)
	}
}

func (s *Solver) visitJoin(id idspace.NodeId, n *dug.Node) {
	if n.Out == nil {
		n.Out = make(map[idspace.ObjectId]*bitset.Set)
	}
	changed := false
	for _, pn := range s.memPreds(id) {
		for o, val := range pn.Out {
			if n.Out[o] == nil {
				n.Out[o] = bitset.New()
			}
			if n.Out[o].Or(val) {
				changed = true
			}
		}
	}
	if changed {
		s.enqueueSuccs(id)
	}
}
