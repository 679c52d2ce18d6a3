// Package frontend builds a ConstraintGraph per function from a loaded
// Go program's SSA IR (spec §2.6's IrModule): it owns the go/packages and
// go/ssa loading, the program-wide shared CFG (so CFGNode ids never need
// remapping across a call splice, only ObjectIds do), the unused-function
// predicate, and CHA-based indirect-call resolution.
package frontend

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/rudyjantz/ptsgo/internal/aux"
	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/extlib"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

const packageLoadMode = packages.NeedName | packages.NeedFiles |
	packages.NeedCompiledGoFiles | packages.NeedImports | packages.NeedDeps |
	packages.NeedTypes | packages.NeedTypesSizes | packages.NeedSyntax |
	packages.NeedTypesInfo

// IrModule is the query surface internal/pipeline drives constraint
// generation through (spec §2.6). Module satisfies it directly.
type IrModule interface {
	Functions() []*ssa.Function
	IsUsed(fn *ssa.Function) bool
	Callees(instr ssa.CallInstruction) []*ssa.Function
	Build(name string) *constraint.Graph
	Get(name string) (*constraint.Graph, bool)
	CFG() *cfg.Graph
}

// Module is a loaded program ready for per-function constraint
// generation. One Module spans the whole analyzed program: that is what
// lets every function's constraint.Graph share a single cfg.Graph.
type Module struct {
	prog        *ssa.Program
	pkgs        []*ssa.Package
	funcsByName map[string]*ssa.Function
	used        map[*ssa.Function]bool
	callgraph   *callgraph.Graph

	full   *cfg.Graph
	extern *extlib.Table
	policy aux.ContextPolicy

	cache map[string]*constraint.Graph
	heap  map[idspace.ObjectId]bool

	// valueIDs records, per built function, the ssa.Value -> ObjectId
	// mapping funcBuilder used, so a caller driving the debug-fcn/
	// debug-glbl dumps of SPEC_FULL.md §2.6 can resolve an instruction or
	// global back to the id the solver tracked without re-walking IR.
	valueIDs map[string]map[ssa.Value]idspace.ObjectId

	// conservativeIndirect, when true, disables Callees' CHA lookup for
	// every non-static call site: it is the do-spec=false mode of
	// SPEC_FULL.md §2.6's config surface, forcing every dynamic dispatch
	// through extlib.ExternalUnmodeled's conservative widening instead of
	// the speculative (if sound) CHA-resolved candidate set.
	conservativeIndirect bool
}

// SetConservativeIndirect implements the do-spec config flag: true
// disables CHA-based indirect call resolution, so every call through a
// func value widens via ExternalUnmodeled instead.
func (m *Module) SetConservativeIndirect(conservative bool) {
	m.conservativeIndirect = conservative
}

// ValueIDs returns the ssa.Value -> ObjectId mapping recorded for the
// named function's most recent build, if it has been built at least
// once.
func (m *Module) ValueIDs(name string) (map[ssa.Value]idspace.ObjectId, bool) {
	ids, ok := m.valueIDs[name]
	return ids, ok
}

// Load parses and type-checks the packages named by patterns (resolved
// relative to dir, or the process's working directory if dir is empty),
// builds their SSA form, and returns a Module ready to drive constraint
// generation. Building of individual SSA packages runs concurrently
// (package.Build has no cross-package side effects), confined to this
// one-time loading step outside the single-threaded constraint-solving
// core.
func Load(ctx context.Context, dir string, patterns ...string) (*Module, error) {
	cfgLoad := &packages.Config{Context: ctx, Dir: dir, Mode: packageLoadMode}
	initial, err := packages.Load(cfgLoad, patterns...)
	if err != nil {
		return nil, fmt.Errorf("frontend: loading packages: %w", err)
	}
	if packages.PrintErrors(initial) > 0 {
		return nil, fmt.Errorf("frontend: one or more packages failed to load cleanly")
	}

	prog, pkgs := ssautil.AllPackages(initial, ssa.SanityCheckFunctions)
	if err := buildConcurrently(ctx, pkgs); err != nil {
		return nil, err
	}

	m := &Module{
		prog:   prog,
		pkgs:   pkgs,
		full:   cfg.New(),
		extern: extlib.NewTable(),
		cache:    make(map[string]*constraint.Graph),
		heap:     make(map[idspace.ObjectId]bool),
		valueIDs: make(map[string]map[ssa.Value]idspace.ObjectId),
	}
	m.funcsByName = make(map[string]*ssa.Function)
	for fn := range ssautil.AllFunctions(prog) {
		m.funcsByName[fn.String()] = fn
	}
	m.callgraph = cha.CallGraph(prog)
	m.used = computeReachable(m.callgraph, pkgs)
	return m, nil
}

func buildConcurrently(ctx context.Context, pkgs []*ssa.Package) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pkgs {
		if p == nil {
			continue
		}
		p := p
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("frontend: building ssa package %s: %v", p.Pkg.Path(), r)
				}
			}()
			p.Build()
			return ctx.Err()
		})
	}
	return g.Wait()
}

// Functions returns every function (including synthetic wrappers and
// anonymous closures) in the loaded program.
func (m *Module) Functions() []*ssa.Function {
	out := make([]*ssa.Function, 0, len(m.funcsByName))
	for _, fn := range m.funcsByName {
		out = append(out, fn)
	}
	return out
}

// IsUsed reports whether fn is reachable from a program entry point
// (main, init, or a Test-prefixed function), per spec §2.6's
// UnusedFunctions predicate.
func (m *Module) IsUsed(fn *ssa.Function) bool { return m.used[fn] }

// Callees enumerates instr's statically possible targets: the CHA
// callgraph's edges for an invoke-mode or indirect call, or the single
// go/ssa-resolved static callee otherwise. This is IndirFunctionInfo
// (spec §2.6) — a sound, whole-program over-approximation computed once
// at load time rather than the alternative of consulting the auxiliary
// points-to set per call site, which CHA already subsumes here.
func (m *Module) Callees(instr ssa.CallInstruction) []*ssa.Function {
	cc := instr.Common()
	if !cc.IsInvoke() {
		if callee := cc.StaticCallee(); callee != nil {
			return []*ssa.Function{callee}
		}
	}
	if m.conservativeIndirect {
		return nil
	}
	node := m.callgraph.Nodes[instr.Parent()]
	if node == nil {
		return nil
	}
	var out []*ssa.Function
	for _, e := range node.Out {
		if e.Site == instr {
			out = append(out, e.Callee.Func)
		}
	}
	return out
}

// CFG returns the single control-flow graph shared by every function
// built from this Module.
func (m *Module) CFG() *cfg.Graph { return m.full }

// Program returns the underlying SSA program, for callers (internal/
// dotwriter's CFG_ssa.dot dump) that need go/ssa's own printer.
func (m *Module) Program() *ssa.Program { return m.prog }

// Extern returns the external-library summary table backing every
// external-function call this Module builds constraints for, so a caller
// (cmd/ptsgo) can register additional summaries loaded from the
// extlib.YAMLConfig extension file before the first Build.
func (m *Module) Extern() *extlib.Table { return m.extern }

// IsHeap satisfies aux.HeapClassifier, grounded directly on go/ssa's own
// *ssa.Alloc.Heap field recorded for each allocation site.
func (m *Module) IsHeap(o idspace.ObjectId) bool { return m.heap[o] }

func (m *Module) recordHeap(obj idspace.ObjectId, heap bool) {
	if heap {
		m.heap[obj] = true
	}
}

// Root returns the constraint.Graph for the program's main function, if
// the loaded program is a main package.
func (m *Module) Root() (*constraint.Graph, bool) {
	for _, p := range m.pkgs {
		if p == nil || p.Pkg.Name() != "main" {
			continue
		}
		if fn := p.Func("main"); fn != nil {
			return m.Build(fn.String()), true
		}
	}
	return nil, false
}

// Build constructs (or, per ContextPolicy, rebuilds fresh) the
// constraint.Graph for the named function, satisfying constraint.CgCache.
func (m *Module) Build(name string) *constraint.Graph {
	fn, ok := m.funcsByName[name]
	if !ok || fn.Blocks == nil {
		return nil
	}
	g := m.buildOne(fn)
	if !m.policy.ShouldUseContext(m.shapeOf(fn)) {
		m.cache[name] = g
	}
	return g
}

// Get satisfies constraint.CgCache: returns a previously memoized graph,
// for functions ContextPolicy decided should share one contour.
func (m *Module) Get(name string) (*constraint.Graph, bool) {
	g, ok := m.cache[name]
	return g, ok
}

func (m *Module) buildOne(fn *ssa.Function) *constraint.Graph {
	cg := constraint.New()
	b := &funcBuilder{mod: m, fn: fn, cg: cg, ids: make(map[ssa.Value]idspace.ObjectId)}
	b.build()
	m.valueIDs[fn.String()] = b.ids
	return cg
}

func (m *Module) shapeOf(fn *ssa.Function) aux.FuncShape {
	shape := aux.FuncShape{
		Intrinsic:        fn.Blocks == nil,
		Blocks:           len(fn.Blocks),
		SyntheticWrapper: fn.Synthetic != "",
		CallsNonBuiltin:  callsNonBuiltin(fn),
	}
	if len(fn.Blocks) == 1 {
		shape.SingleBlockInstrs = len(fn.Blocks[0].Instrs)
	}
	return shape
}

func callsNonBuiltin(fn *ssa.Function) bool {
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			ci, ok := instr.(ssa.CallInstruction)
			if !ok {
				continue
			}
			if _, isBuiltin := ci.Common().Value.(*ssa.Builtin); isBuiltin {
				continue
			}
			return true
		}
	}
	return false
}

func computeReachable(cg *callgraph.Graph, pkgs []*ssa.Package) map[*ssa.Function]bool {
	used := make(map[*ssa.Function]bool)
	var queue []*ssa.Function
	for _, p := range pkgs {
		if p == nil {
			continue
		}
		if p.Pkg.Name() == "main" {
			if fn := p.Func("init"); fn != nil {
				queue = append(queue, fn)
			}
			if fn := p.Func("main"); fn != nil {
				queue = append(queue, fn)
			}
		}
		for _, mem := range p.Members {
			if fn, ok := mem.(*ssa.Function); ok && strings.HasPrefix(fn.Name(), "Test") {
				queue = append(queue, fn)
			}
		}
	}
	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		if fn == nil || used[fn] {
			continue
		}
		used[fn] = true
		node := cg.Nodes[fn]
		if node == nil {
			continue
		}
		for _, e := range node.Out {
			queue = append(queue, e.Callee.Func)
		}
	}
	return used
}
