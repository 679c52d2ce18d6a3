// Package alias implements AliasQuery (spec §4.6): a read-only façade over
// the solved DUG that answers MayAlias/NoAlias for two IR values, and
// pointsTo queries at offset 0 or a field offset. It never reports
// MustAlias — every answer is conservative in the direction of MayAlias.
package alias

import (
	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// Answer is the result of an alias query. MustAlias is deliberately absent.
type Answer uint8

const (
	NoAlias Answer = iota
	MayAlias
)

func (a Answer) String() string {
	if a == NoAlias {
		return "NoAlias"
	}
	return "MayAlias"
}

// AuxPtsto is consulted when a value has no entry in the solved DUG at
// all (e.g. it never survived optimize as a pointer-like variable); it
// supplies the conservative fallback the spec asks for ("defer to the
// underlying conservative analysis").
type AuxPtsto interface {
	PointsTo(ptr idspace.ObjectId) []idspace.ObjectId
}

type gepKey struct {
	base   idspace.ObjectId
	offset uint32
}

// Result is the solved query façade. Build one with New after the solver
// has run to completion.
type Result struct {
	d      *dug.Graph
	defOf  map[idspace.ObjectId]idspace.NodeId
	rep    map[idspace.ObjectId]idspace.ObjectId
	gepOf  map[gepKey]idspace.ObjectId          // (struct base, field offset) -> the Gep that computed &base.fieldK
	loadOf map[idspace.ObjectId]idspace.ObjectId // field-address value -> the last Load that read through it
	aux    AuxPtsto
}

// New builds a Result. rep is the representative map returned by
// constraint.Graph.Optimize (nil is fine if optimize did not run, or
// merged nothing). cg supplies the Gep and Load constraints needed to
// answer pointsTo(v, k) for k != 0: a Gep only computes the identity of
// field k's storage (the address &v.fieldK), not its contents, so the
// field's current value is whatever the most recent Load through that
// address resolved to — matching how the solver itself treats fields as
// ordinary address-taken objects rather than a separate offset-indexed
// table. aux answers queries for values optimize dropped or that were
// never tracked as DUG defs.
func New(d *dug.Graph, defOf map[idspace.ObjectId]idspace.NodeId, rep map[idspace.ObjectId]idspace.ObjectId, cg *constraint.Graph, aux AuxPtsto) *Result {
	r := &Result{
		d:      d,
		defOf:  defOf,
		rep:    rep,
		gepOf:  make(map[gepKey]idspace.ObjectId),
		loadOf: make(map[idspace.ObjectId]idspace.ObjectId),
		aux:    aux,
	}
	for _, c := range cg.Constraints {
		switch c.Kind {
		case constraint.Gep:
			r.gepOf[gepKey{r.canon(c.Src), c.Offset}] = c.Dst
		case constraint.Load:
			r.loadOf[r.canon(c.Src)] = c.Dst
		}
	}
	return r
}

// canon follows v's representative chain (written by optimize's hash
// unification) to its canonical id. Ids not merged by optimize are their
// own representative.
func (r *Result) canon(v idspace.ObjectId) idspace.ObjectId {
	for {
		next, ok := r.rep[v]
		if !ok || next == v {
			return v
		}
		v = next
	}
}

// ptsSet returns v's solved top-level points-to set and true, or (nil,
// false) if v has no DUG definition at all.
func (r *Result) ptsSet(v idspace.ObjectId) (*bitset.Set, bool) {
	def, ok := r.defOf[r.canon(v)]
	if !ok {
		return nil, false
	}
	return r.d.Node(def).In, true
}

// PointsTo returns v's points-to set at offset 0.
func (r *Result) PointsTo(v idspace.ObjectId) []idspace.ObjectId {
	if s, ok := r.ptsSet(v); ok {
		return s.Slice()
	}
	if r.aux != nil {
		return r.aux.PointsTo(v)
	}
	return nil
}

// PointsToAt returns v's points-to set at field offset k: the contents of
// field k of whatever v points to. k == 0 is the same as PointsTo. For k
// != 0 this requires both a Gep that computed &v.fieldK and a Load that
// read through it; absent either, this reports no result (the caller
// should treat that the same as any other conservative miss).
func (r *Result) PointsToAt(v idspace.ObjectId, k uint32) []idspace.ObjectId {
	if k == 0 {
		return r.PointsTo(v)
	}
	fieldAddr, ok := r.gepOf[gepKey{r.canon(v), k}]
	if !ok {
		return nil
	}
	loadDst, ok := r.loadOf[r.canon(fieldAddr)]
	if !ok {
		return nil
	}
	return r.PointsTo(loadDst)
}

func nullOnly(s *bitset.Set) bool {
	if s.IsEmpty() {
		return true
	}
	return s.Len() == 1 && s.Test(idspace.NullObject)
}

// setFor returns v's points-to set, preferring the solved DUG definition
// and falling back to aux when v was never tracked as a DUG def at all.
func (r *Result) setFor(v idspace.ObjectId) (*bitset.Set, bool) {
	if s, ok := r.ptsSet(v); ok {
		return s, true
	}
	if r.aux != nil {
		if ids := r.aux.PointsTo(v); ids != nil {
			return bitset.NewFrom(ids...), true
		}
	}
	return nil, false
}

// Alias answers MayAlias/NoAlias for p and q per §4.6's exact decision
// table: if either side resolves to no points-to set at all (no DUG def
// and no aux answer), this defers to MayAlias as the conservative
// default. Two resolved sets that are both empty or only ever contain
// NullObject also default to MayAlias (this never arises from a real
// program, but the degenerate case is not treated as proof of
// disjointness); otherwise an intersection empty after discarding
// NullObject is NoAlias, and anything else is MayAlias.
func (r *Result) Alias(p, q idspace.ObjectId) Answer {
	pp, pok := r.setFor(p)
	qq, qok := r.setFor(q)
	if !pok || !qok {
		return MayAlias
	}
	// UniversalSet (an unmodeled external's conservative return value, §6
	// "S6 — external unmodeled") taints every subsequent query: it stands
	// for "could be any object", so it can never be ruled out.
	if pp.Test(idspace.UniversalSet) || qq.Test(idspace.UniversalSet) {
		return MayAlias
	}
	if nullOnly(pp) && nullOnly(qq) {
		return MayAlias
	}
	ppNoNull, qqNoNull := pp.Clone(), qq.Clone()
	ppNoNull.Remove(idspace.NullObject)
	qqNoNull.Remove(idspace.NullObject)
	if !ppNoNull.Intersects(qqNoNull) {
		return NoAlias
	}
	return MayAlias
}
