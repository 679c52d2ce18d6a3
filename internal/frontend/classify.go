package frontend

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// InstrKind is the classification IrModule.Classify assigns to an IR
// instruction (spec §6): the constraint generator switches on this
// instead of re-deriving an instruction's shape at every call site.
type InstrKind uint8

const (
	IAddrOf InstrKind = iota
	ICopy
	ILoad
	IStore
	IGep
	ICall
	IReturn
	IPhi
	IOther
)

func (k InstrKind) String() string {
	switch k {
	case IAddrOf:
		return "addr-of"
	case ICopy:
		return "copy"
	case ILoad:
		return "load"
	case IStore:
		return "store"
	case IGep:
		return "gep"
	case ICall:
		return "call"
	case IReturn:
		return "return"
	case IPhi:
		return "phi"
	default:
		return "other"
	}
}

// Classify maps a go/ssa instruction onto the nine-bucket vocabulary
// genInstr-shaped code generation needs. Instructions this repo's builder
// does not specially handle (Slice, MakeClosure, Extract, ...) fall to
// IOther, the explicitly sanctioned catch-all for "no constraint emitted".
func Classify(instr ssa.Instruction) InstrKind {
	switch v := instr.(type) {
	case *ssa.Alloc:
		return IAddrOf
	case *ssa.FieldAddr, *ssa.IndexAddr:
		return IGep
	case *ssa.UnOp:
		if v.Op == token.MUL {
			return ILoad
		}
		return IOther
	case *ssa.Store:
		return IStore
	case *ssa.Call, *ssa.Go, *ssa.Defer:
		return ICall
	case *ssa.Return:
		return IReturn
	case *ssa.Phi:
		return IPhi
	case *ssa.MakeInterface, *ssa.ChangeInterface, *ssa.ChangeType, *ssa.Convert:
		return ICopy
	default:
		return IOther
	}
}

// IsPointer reports whether t denotes a value the analysis should track
// an abstract memory location for: genuine pointers plus the other
// Go reference-like kinds (interfaces, maps, channels, slices, funcs)
// whose identity the solver treats the same way a C pointer would be.
func IsPointer(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Signature, *types.Map, *types.Chan, *types.Slice:
		return true
	default:
		return false
	}
}

// PointeeFieldCount returns the number of logical fields of t's pointee,
// for use with idspace.Space.MarkStruct: 1 for anything but a pointer to
// a struct, the struct's declared field count otherwise.
func PointeeFieldCount(t types.Type) uint32 {
	ptr, ok := t.Underlying().(*types.Pointer)
	if !ok {
		return 1
	}
	st, ok := ptr.Elem().Underlying().(*types.Struct)
	if !ok {
		return 1
	}
	if st.NumFields() == 0 {
		return 1
	}
	return uint32(st.NumFields())
}

func isTupleType(t types.Type) bool {
	_, ok := t.(*types.Tuple)
	return ok
}
