package frontend

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/extlib"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// funcBuilder walks one function's SSA form and emits its
// constraint.Graph, placing Load/Store constraints on the Module-wide
// shared cfg.Graph as it goes.
type funcBuilder struct {
	mod *Module
	fn  *ssa.Function
	cg  *constraint.Graph
	ids map[ssa.Value]idspace.ObjectId
}

// blockNodes is the entry and exit cfg node of one basic block's chain
// of per-statement nodes.
type blockNodes struct {
	entry idspace.NodeId
	exit  idspace.NodeId
}

func (b *funcBuilder) build() {
	b.cg.Params = make([]idspace.ObjectId, len(b.fn.Params))
	for i, p := range b.fn.Params {
		b.cg.Params[i] = b.valueID(p)
	}
	if res := b.fn.Signature.Results(); res != nil {
		b.cg.Results = make([]idspace.ObjectId, res.Len())
		for i := 0; i < res.Len(); i++ {
			if IsPointer(res.At(i).Type()) {
				b.cg.Results[i] = b.cg.Space.New(1)
			}
		}
	}

	nodes := make(map[*ssa.BasicBlock]blockNodes, len(b.fn.Blocks))
	for _, blk := range b.fn.Blocks {
		nodes[blk] = b.visitBlock(blk)
	}
	for _, blk := range b.fn.Blocks {
		for _, succ := range blk.Succs {
			b.mod.full.AddEdge(nodes[blk].exit, nodes[succ].entry)
		}
	}
}

func (b *funcBuilder) visitBlock(blk *ssa.BasicBlock) blockNodes {
	entry := b.mod.full.AddNode(cfg.Attrs{P: true}, nil)
	cur := entry
	for _, instr := range blk.Instrs {
		cur = b.visitInstr(instr, cur)
	}
	return blockNodes{entry: entry, exit: cur}
}

// valueID lazily allocates the id tracking v's pointer content. Non-
// pointerlike values and the nil constant (a pointer-typed zero value
// with no object to name) return 0, the id space's universal "nothing
// tracked here" sentinel.
func (b *funcBuilder) valueID(v ssa.Value) idspace.ObjectId {
	if c, ok := v.(*ssa.Const); ok {
		if !IsPointer(c.Type()) {
			return 0
		}
		if c.IsNil() {
			return idspace.Null
		}
	}
	if !IsPointer(v.Type()) {
		return 0
	}
	if id, ok := b.ids[v]; ok {
		return id
	}
	id := b.cg.Space.New(1)
	b.ids[v] = id
	if _, ok := v.(*ssa.Global); ok {
		// A package-level variable's storage has no single per-function
		// object id this builder can give it consistently across the
		// many independently-built function graphs that reference it, so
		// its address is conservatively widened rather than left
		// connected to only one function's view of it.
		b.cg.AddAddrOf(id, idspace.UniversalSet)
	}
	return id
}

func (b *funcBuilder) visitInstr(instr ssa.Instruction, cur idspace.NodeId) idspace.NodeId {
	switch v := instr.(type) {
	case *ssa.Alloc:
		b.genAlloc(v)
	case *ssa.FieldAddr:
		b.genGep(v, v.X, uint32(v.Field))
	case *ssa.IndexAddr:
		b.genGep(v, v.X, 0)
	case *ssa.UnOp:
		if v.Op == token.MUL {
			node := b.mod.full.AddNode(cfg.Attrs{R: true}, v)
			b.mod.full.AddEdge(cur, node)
			b.genLoad(v, node)
			return node
		}
	case *ssa.Store:
		node := b.mod.full.AddNode(cfg.Attrs{M: true}, v)
		b.mod.full.AddEdge(cur, node)
		b.genStore(v, node)
		return node
	case *ssa.Phi:
		b.genPhi(v)
	case *ssa.MakeInterface:
		b.genCopyLike(v, v.X)
	case *ssa.ChangeInterface:
		b.genCopyLike(v, v.X)
	case *ssa.ChangeType:
		b.genCopyLike(v, v.X)
	case *ssa.Convert:
		b.genCopyLike(v, v.X)
	case *ssa.Call:
		b.genCall(v)
	case *ssa.Go:
		b.genCall(v)
	case *ssa.Defer:
		b.genCall(v)
	case *ssa.Return:
		b.genReturn(v)
	}
	return cur
}

func (b *funcBuilder) genAlloc(v *ssa.Alloc) {
	ptr := b.valueID(v)
	if ptr == 0 {
		return
	}
	elem := v.Type().Underlying().(*types.Pointer).Elem()
	fields := PointeeFieldCount(v.Type())
	obj := b.cg.Space.New(fields)
	if _, isStruct := elem.Underlying().(*types.Struct); isStruct && fields > 1 {
		b.cg.Space.MarkStruct(obj, fields)
	}
	b.cg.Space.MarkObject(obj)
	b.mod.recordHeap(obj, v.Heap)
	b.cg.AddAddrOf(ptr, obj)
}

// genGep translates a FieldAddr/IndexAddr into a Gep constraint. Field 0
// of a struct coincides with the struct's own base object id (AddGep's
// zero offset degenerates to a copy); array/slice indexing is field-
// insensitive, always offset 0, merging every element into one object.
func (b *funcBuilder) genGep(dst ssa.Value, src ssa.Value, offset uint32) {
	d := b.valueID(dst)
	s := b.valueID(src)
	if d == 0 || s == 0 {
		return
	}
	b.cg.AddGep(d, s, offset)
}

func (b *funcBuilder) genLoad(v *ssa.UnOp, node idspace.NodeId) {
	dst := b.valueID(v)
	src := b.valueID(v.X)
	if dst == 0 || src == 0 {
		return
	}
	b.cg.AddLoad(dst, src, 0, 1, node)
}

func (b *funcBuilder) genStore(v *ssa.Store, node idspace.NodeId) {
	dst := b.valueID(v.Addr)
	src := b.valueID(v.Val)
	if dst == 0 || src == 0 {
		return
	}
	b.cg.AddStore(dst, src, 0, 1, node)
}

func (b *funcBuilder) genPhi(v *ssa.Phi) {
	dst := b.valueID(v)
	if dst == 0 {
		return
	}
	for _, e := range v.Edges {
		if src := b.valueID(e); src != 0 {
			b.cg.AddCopy(dst, src, 1)
		}
	}
}

func (b *funcBuilder) genCopyLike(dst, src ssa.Value) {
	d := b.valueID(dst)
	s := b.valueID(src)
	if d == 0 || s == 0 {
		return
	}
	b.cg.AddCopy(d, s, 1)
}

func (b *funcBuilder) genReturn(v *ssa.Return) {
	for i, r := range v.Results {
		if i >= len(b.cg.Results) || b.cg.Results[i] == 0 {
			continue
		}
		if src := b.valueID(r); src != 0 {
			b.cg.AddCopy(b.cg.Results[i], src, 1)
		}
	}
}

func (b *funcBuilder) genCall(instr ssa.CallInstruction) {
	cc := instr.Common()
	args := make([]idspace.ObjectId, len(cc.Args))
	for i, a := range cc.Args {
		args[i] = b.valueID(a)
	}
	var results []idspace.ObjectId
	if call, ok := instr.(*ssa.Call); ok && !isTupleType(call.Type()) {
		results = []idspace.ObjectId{b.valueID(call)}
	}

	candidates := b.mod.Callees(instr)
	if len(candidates) == 0 {
		// No statically resolvable target at all (a call through a func
		// value CHA could not attribute to any concrete function in the
		// program, e.g. one flowing in from outside the analyzed
		// packages): conservatively widen every pointerlike operand.
		extlib.ExternalUnmodeled(b.cg, args, results)
		return
	}
	for _, callee := range candidates {
		b.genDirectCall(callee, args, results)
	}
}

func (b *funcBuilder) genDirectCall(callee *ssa.Function, args, results []idspace.ObjectId) {
	if callee.Blocks == nil {
		name := callee.String()
		if !b.mod.extern.Apply(b.cg, name, args, results) {
			extlib.ExternalUnmodeled(b.cg, args, results)
		}
		return
	}
	b.cg.AddUnresolvedCall(constraint.CallSite{
		Callee:  callee.String(),
		Args:    args,
		Results: results,
	})
}
