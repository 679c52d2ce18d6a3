// Package aux implements the auxiliary flow-insensitive points-to
// over-approximation of spec §6 — a minimal Andersen's-style solver run
// once, before Ramalingam, to resolve indirect call targets — plus the
// one-level call-string ContextPolicy referenced by the spec's Non-goals
// ("context sensitivity beyond one-level call-string refinement").
//
// Unlike internal/solver, this analysis is unified and flow-insensitive:
// there is a single pts map keyed by ObjectId covering both top-level
// values and memory objects, with no per-CFG-node state and no strong
// updates. It trades precision for a closed-form fixed point cheap enough
// to run once up front.
package aux

import (
	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// HeapClassifier reports whether an object's allocation site may run
// more than once at runtime (a heap allocation, or a stack allocation
// inside a loop or a recursive/re-entrant function) as opposed to a
// singleton stack slot or global. Strong update during solving is only
// sound for singletons (spec §9's Open Question 4).
type HeapClassifier interface {
	IsHeap(o idspace.ObjectId) bool
}

// Graph is the flow-insensitive points-to map.
type Graph struct {
	pts  map[idspace.ObjectId]*bitset.Set
	cs   []constraint.Constraint
	fc   bitset.FieldCounter
	heap HeapClassifier
}

// New builds an unsolved Graph over cg's constraints. Call Solve before
// querying. heap may be nil, in which case every object is treated as a
// singleton (the most precise, least conservative assumption, matching
// what a caller with no heap/stack distinction available can safely do
// only because it accepts the risk of an unsound strong update — real
// callers always supply a HeapClassifier from internal/frontend).
func New(cg *constraint.Graph, heap HeapClassifier) *Graph {
	return &Graph{
		pts:  make(map[idspace.ObjectId]*bitset.Set),
		cs:   cg.Constraints,
		fc:   cg.Space,
		heap: heap,
	}
}

func (g *Graph) set(id idspace.ObjectId) *bitset.Set {
	s, ok := g.pts[id]
	if !ok {
		s = bitset.New()
		g.pts[id] = s
	}
	return s
}

// Solve runs the naive fixed point: repeatedly apply every constraint
// until a full pass produces no change. Andersen's analysis needs no
// worklist to terminate correctly, only to terminate fast; a flat
// iterate-to-fixpoint loop is the direct, if less clever, translation of
// the teacher's own copy/addressOf/load/store constraint application
// (gen.go's genInstr), adapted here to run to convergence instead of
// once per instruction visit.
func (g *Graph) Solve() {
	for {
		changed := false
		for _, c := range g.cs {
			if g.apply(c) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (g *Graph) apply(c constraint.Constraint) bool {
	switch c.Kind {
	case constraint.AddrOf:
		return g.set(c.Dst).Add(c.Src)
	case constraint.Copy:
		return g.set(c.Dst).OrOffs(g.set(c.Src), 0, g.fc)
	case constraint.Gep:
		return g.set(c.Dst).OrOffs(g.set(c.Src), c.Offset, g.fc)
	case constraint.Load:
		changed := false
		g.set(c.Src).Each(func(o idspace.ObjectId) bool {
			if g.set(c.Dst).Or(g.set(o)) {
				changed = true
			}
			return true
		})
		return changed
	case constraint.Store:
		changed := false
		g.set(c.Dst).Each(func(o idspace.ObjectId) bool {
			if g.set(o).Or(g.set(c.Src)) {
				changed = true
			}
			return true
		})
		return changed
	default:
		return false
	}
}

// PointsTo satisfies partition.AuxPtsto / alias.AuxPtsto: the
// over-approximate set of objects id may refer to.
func (g *Graph) PointsTo(id idspace.ObjectId) []idspace.ObjectId {
	s, ok := g.pts[id]
	if !ok {
		return nil
	}
	return s.Slice()
}

// IsSingleton satisfies solver.SingletonPredicate.
func (g *Graph) IsSingleton(o idspace.ObjectId) bool {
	return g.heap == nil || !g.heap.IsHeap(o)
}

// ContextPolicy decides whether a call to fn should be analyzed with a
// fresh per-call-site contour (context-sensitively) or folded into a
// single shared contour — the one-level call-string refinement spec.md's
// Non-goals cap at exactly this depth. Grounded directly on the
// teacher's shouldUseContext (pointer/gen.go): intrinsics and short,
// single-block, call-free functions get their own contour per call site;
// everything else shares one contour across all call sites.
type ContextPolicy struct{}

// FuncShape is the minimal per-function description internal/frontend
// supplies; ContextPolicy itself has no go/ssa dependency.
type FuncShape struct {
	Intrinsic         bool
	Blocks            int
	SingleBlockInstrs int
	SyntheticWrapper  bool
	CallsNonBuiltin   bool
}

// ShouldUseContext applies the policy to f.
func (ContextPolicy) ShouldUseContext(f FuncShape) bool {
	if f.Intrinsic {
		return true
	}
	if f.Blocks != 1 {
		return false // too expensive
	}
	if f.SingleBlockInstrs > 10 {
		return false // too expensive
	}
	if f.SyntheticWrapper {
		return true
	}
	if f.CallsNonBuiltin {
		return false // danger of unbounded recursion
	}
	return true
}
