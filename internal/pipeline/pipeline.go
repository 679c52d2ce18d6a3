// Package pipeline orchestrates the full points-to analysis (SPEC_FULL.md
// §2.2's data flow) over an already-loaded program: build the entry
// function's ConstraintGraph, splice in every transitively called
// function, run the auxiliary flow-insensitive analysis, optimize with
// Hash-based Unification, condense the shared CFG, build the Def-Use
// Graph, partition address-taken objects, solve to a fixed point, and
// hand back a read-only AliasQuery façade plus end-of-solve statistics.
//
// This is the one package that imports every analysis phase package
// (§2.2); other internal packages also import one another where one
// phase consumes another's types (e.g. dug imports constraint and seg),
// and the dependency graph stays a DAG.
// It is modeled directly on the teacher's own generate() (pointer/gen.go):
// one top-level function driving a fixed phase order, a work-queue drain
// in the middle, with panics from malformed input turned into errors at
// the boundary instead of crashing the process.
package pipeline

import (
	"context"

	"github.com/rudyjantz/ptsgo/internal/alias"
	"github.com/rudyjantz/ptsgo/internal/aux"
	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/idspace"
	"github.com/rudyjantz/ptsgo/internal/partition"
	"github.com/rudyjantz/ptsgo/internal/perr"
	"github.com/rudyjantz/ptsgo/internal/solver"
)

// Module is what Run needs from a loaded program: the constraint.CgCache
// pair (Get/Build) ResolveCalls drives, the shared CFG every function's
// Load/Store constraints were placed on, and the HeapClassifier
// internal/aux needs to judge strong-update eligibility.
//
// internal/frontend.Module satisfies this directly.
type Module interface {
	constraint.CgCache
	CFG() *cfg.Graph
	aux.HeapClassifier
}

// Config is the recognized option surface of SPEC_FULL.md §2.6.
type Config struct {
	// DoSpec enables CHA-resolved (speculative) indirect-call targets;
	// when false every dynamic dispatch widens to UniversalSet instead
	// via extlib.ExternalUnmodeled, matching "the auxiliary analysis
	// alone determines indirect targets" for a Module that does not
	// separately consult aux for call resolution (see DESIGN.md).
	DoSpec bool

	// DebugFcn, if non-empty, names a function whose final points-to
	// state a caller (cmd/ptsgo, via internal/dotwriter) should dump for
	// every pointer-typed instruction. Run itself neither reads it nor
	// copies it into Result; a caller acts on the name on its own.
	DebugFcn string

	// DebugGlbl, if non-empty, names a global to dump the same way.
	DebugGlbl string

	// AliasLoadStore is carried in Config only: neither Run nor any alias
	// query reads it, so alias queries are not restricted to load/store
	// operand pairs.
	AliasLoadStore bool
}

// Stats are the end-of-solve statistics of SPEC_FULL.md §2.6: total
// tracked top-level values, the sum of their points-to cardinalities, the
// largest single cardinality, and a histogram of cardinalities 0..8 (with
// index 9 catching everything >= 9).
type Stats struct {
	TrackedValues    int
	TotalCardinality int
	MaxSize          int
	Histogram        [10]int
}

// Result is everything downstream of Run: a solved AliasQuery façade and
// the statistics gathered while building it. The ConstraintGraph and CFG
// are not retained (§5's memory discipline: each phase releases what the
// next no longer needs), except for what alias.Result itself keeps (the
// Gep/Load tables it needs to answer pointsTo at a nonzero field offset).
type Result struct {
	Alias *alias.Result
	Stats Stats
}

// Run executes the full pipeline over entry (a function name as returned
// by ssa.Function.String(), matching Module's CgCache keys), gated by ctx
// between phases. A panic escaping any of the single-threaded core
// packages (internal/seg and its consumers use panic only for true
// programming-error conditions, e.g. getNode on an unissued id) is
// recovered here and reported as a perr.IrMalformed error rather than
// crashing the caller.
func Run(ctx context.Context, mod Module, entry string, cfg_ Config) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, perr.Recover(r)
		}
	}()

	if m, ok := mod.(interface{ SetConservativeIndirect(bool) }); ok {
		m.SetConservativeIndirect(!cfg_.DoSpec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cg := mod.Build(entry)
	if cg == nil {
		return nil, perr.IrMalformed("pipeline: entry function has no body: " + entry)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cg.ResolveCalls(mod)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	auxGraph := aux.New(cg, mod)
	auxGraph.Solve()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep := cg.Optimize(cg.Space)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := mod.CFG()
	if err := full.AssertNoConstantIncoming(); err != nil {
		return nil, perr.IrMalformed(err.Error())
	}
	cfg.Condense(full)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, _, defOf := dug.FillTopLevel(cg)
	accesses := partition.CollectAccesses(d, auxGraph)
	assign := partition.Assign(accesses)
	partition.AddPartitionsToDUG(full, d, accesses, assign)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := solver.New(d, defOf, cg.Space, auxGraph)
	s.Solve()

	a := alias.New(d, defOf, rep, cg, auxGraph)
	return &Result{Alias: a, Stats: computeStats(d, defOf)}, nil
}

func computeStats(d *dug.Graph, defOf map[idspace.ObjectId]idspace.NodeId) Stats {
	var st Stats
	st.TrackedValues = len(defOf)
	for _, node := range defOf {
		size := d.Node(node).In.Len()
		st.TotalCardinality += size
		if size > st.MaxSize {
			st.MaxSize = size
		}
		bucket := size
		if bucket > 9 {
			bucket = 9
		}
		st.Histogram[bucket]++
	}
	return st
}
