// Package constraint implements the ConstraintGraph (Cg) of spec §4.3: the
// accumulator of primitive pointer constraints (address-of, copy, load,
// store, field-offset) built while an IR is walked, plus the two whole-graph
// operations performed on it before it is hands off to the DUG: merging a
// callee's graph into a caller's at a call site, and Hash-based Unification.
package constraint

import (
	"fmt"
	"sort"

	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// Kind tags a Constraint. Per §9's rearchitecture guidance, constraints are
// a tagged variant over a fixed closed set rather than an interface
// hierarchy with one struct type per kind.
type Kind uint8

const (
	AddrOf Kind = iota // Dst = &Src (Src is an object id)
	Copy               // Dst = Src
	Load               // Dst = Src[Offset]  (Src is a pointer; read through it)
	Store              // Dst[Offset] = Src  (Dst is a pointer; write through it)
	Gep                // Dst = &Src.#Offset (field address, a.k.a. offsetAddr)
)

func (k Kind) String() string {
	switch k {
	case AddrOf:
		return "addr-of"
	case Copy:
		return "copy"
	case Load:
		return "load"
	case Store:
		return "store"
	case Gep:
		return "gep"
	default:
		return "invalid"
	}
}

// Constraint is one primitive pointer statement. Offset is meaningful only
// for Load, Store, and Gep. CFGNode is the control-flow node this
// constraint executes at; it is set for Load and Store (the only
// address-taken constraints, per §4.4) and zero otherwise.
type Constraint struct {
	Kind    Kind
	Dst     idspace.ObjectId
	Src     idspace.ObjectId
	Offset  uint32
	CFGNode idspace.NodeId
}

func (c Constraint) String() string {
	switch c.Kind {
	case AddrOf:
		return fmt.Sprintf("n%d = &n%d", c.Dst, c.Src)
	case Copy:
		return fmt.Sprintf("n%d = n%d", c.Dst, c.Src)
	case Load:
		return fmt.Sprintf("n%d = n%d[%d]", c.Dst, c.Src, c.Offset)
	case Store:
		return fmt.Sprintf("n%d[%d] = n%d", c.Dst, c.Offset, c.Src)
	case Gep:
		return fmt.Sprintf("n%d = &n%d.#%d", c.Dst, c.Src, c.Offset)
	default:
		return "<invalid constraint>"
	}
}

// CallSite is an unresolved call recorded while walking the IR: the actual
// and return-value ids at the call, keyed against a callee identity the
// frontend can resolve to a callee Graph on demand.
type CallSite struct {
	Callee  string
	Args    []idspace.ObjectId
	Results []idspace.ObjectId
}

// CgCache supplies (and, if necessary, lazily builds) the ConstraintGraph
// for a callee, so ResolveCalls never has to walk IR itself.
type CgCache interface {
	// Get returns the previously built Graph for callee, if any.
	Get(callee string) (*Graph, bool)
	// Build constructs and caches the Graph for callee. It may return nil
	// for a callee with no IR body (an external function with only a
	// summary, handled instead by the extlib package).
	Build(callee string) *Graph
}

// Graph is a ConstraintGraph: the constraint set plus the id space it was
// built over, and (for a graph representing one function) the flattened
// parameter and result ids a call site splices into.
type Graph struct {
	Space       *idspace.Space
	Constraints []Constraint
	Params      []idspace.ObjectId
	Results     []idspace.ObjectId

	unresolved []CallSite
}

// New returns an empty Graph over a fresh id space.
func New() *Graph {
	return &Graph{Space: idspace.NewObjectSpace()}
}

func (g *Graph) add(c Constraint) { g.Constraints = append(g.Constraints, c) }

// AddAddrOf records dst = &obj.
func (g *Graph) AddAddrOf(dst, obj idspace.ObjectId) {
	if dst == 0 || obj == 0 {
		panic("constraint: AddAddrOf with zero id")
	}
	g.add(Constraint{Kind: AddrOf, Dst: dst, Src: obj})
}

// AddCopy records dst = src, one constraint per logical field of a value
// sizeof fields wide (both ids advance together, mirroring how the fields
// of an aggregate are laid out as contiguous ids).
func (g *Graph) AddCopy(dst, src idspace.ObjectId, sizeof uint32) {
	if src == dst || sizeof == 0 {
		return
	}
	if src == 0 || dst == 0 {
		panic(fmt.Sprintf("constraint: ill-typed copy dst=%s src=%s", dst, src))
	}
	for i := uint32(0); i < sizeof; i++ {
		g.add(Constraint{Kind: Copy, Dst: dst, Src: src})
		dst++
		src++
	}
}

// AddLoad records dst = src[offset], sizeof fields wide, executing at cfgNode.
func (g *Graph) AddLoad(dst, src idspace.ObjectId, offset, sizeof uint32, cfgNode idspace.NodeId) {
	if dst == 0 || src == 0 {
		return // non-pointerlike operand, nothing to track
	}
	for i := uint32(0); i < sizeof; i++ {
		g.add(Constraint{Kind: Load, Dst: dst, Src: src, Offset: offset, CFGNode: cfgNode})
		dst++
		offset++
	}
}

// AddStore records dst[offset] = src, sizeof fields wide, executing at cfgNode.
func (g *Graph) AddStore(dst, src idspace.ObjectId, offset, sizeof uint32, cfgNode idspace.NodeId) {
	if dst == 0 || src == 0 {
		return
	}
	for i := uint32(0); i < sizeof; i++ {
		g.add(Constraint{Kind: Store, Dst: dst, Src: src, Offset: offset, CFGNode: cfgNode})
		src++
		offset++
	}
}

// AddGep records dst = &src.#offset. An offset of zero degenerates to a
// plain copy: field 0 of an object shares the object's own id, so the
// address of field 0 is the address of the object itself.
func (g *Graph) AddGep(dst, src idspace.ObjectId, offset uint32) {
	if offset == 0 {
		g.AddCopy(dst, src, 1)
		return
	}
	g.add(Constraint{Kind: Gep, Dst: dst, Src: src, Offset: offset})
}

// AddUnresolvedCall records a call site whose callee will be spliced in by
// a later ResolveCalls pass.
func (g *Graph) AddUnresolvedCall(cs CallSite) {
	g.unresolved = append(g.unresolved, cs)
}

// remapID returns id translated into g's id space by offset, unless id is a
// shared synthetic (those are never remapped).
func remapID(id idspace.ObjectId, offset idspace.ObjectId) idspace.ObjectId {
	if id == 0 || id.IsSynthetic() {
		return id
	}
	return id + offset
}

// mergeIDs appends other's constraints (and struct-field markings) into g
// under a fresh block of ids, and returns the offset applied so the caller
// can remap any other ids of other's (e.g. Params/Results) itself.
func (g *Graph) mergeIDs(other *Graph) idspace.ObjectId {
	offset := g.Space.Len() - idspace.FirstUnreserved
	if other.Space.Len() > idspace.FirstUnreserved {
		g.Space.New(uint32(other.Space.Len() - idspace.FirstUnreserved))
	}
	g.Space.AdoptMetadata(other.Space, offset)
	for _, c := range other.Constraints {
		g.add(Constraint{
			Kind:    c.Kind,
			Dst:     remapID(c.Dst, offset),
			Src:     remapID(c.Src, offset),
			Offset:  c.Offset,
			CFGNode: c.CFGNode,
		})
	}
	return offset
}

// MergeCg unions other's constraint set and id space into g. Id remapping
// is entirely g's responsibility: other is left untouched and reusable.
func (g *Graph) MergeCg(other *Graph) {
	g.mergeIDs(other)
}

// ResolveCalls consumes every call site recorded since the last call,
// looking each callee up in cache (building it on first use), splicing the
// callee's constraint set into g and wiring argument/return copy
// constraints between the call site's ids and the callee's flattened
// parameter/result ids. A callee that resolves to nil (no IR body) is left
// for the external-library effect model and is not an error here.
func (g *Graph) ResolveCalls(cache CgCache) {
	pending := g.unresolved
	g.unresolved = nil
	for _, cs := range pending {
		callee, ok := cache.Get(cs.Callee)
		if !ok {
			callee = cache.Build(cs.Callee)
			if callee != nil {
				// nothing further to cache here; cache.Build is
				// expected to have memoized it for the next call site.
			}
		}
		if callee == nil {
			continue
		}
		offset := g.mergeIDs(callee)
		n := len(cs.Args)
		if len(callee.Params) < n {
			n = len(callee.Params)
		}
		for i := 0; i < n; i++ {
			g.AddCopy(remapID(callee.Params[i], offset), cs.Args[i], 1)
		}
		n = len(cs.Results)
		if len(callee.Results) < n {
			n = len(callee.Results)
		}
		for i := 0; i < n; i++ {
			g.AddCopy(cs.Results[i], remapID(callee.Results[i], offset), 1)
		}
	}
}

// Unresolved reports the call sites still awaiting ResolveCalls, for tests
// and diagnostics.
func (g *Graph) Unresolved() []CallSite { return g.unresolved }

// ---------- Hash-based Unification ----------

// ObjectMap narrows the dependency optimize has on the id space to exactly
// what HU needs: whether an id denotes an object (never merged) as opposed
// to a top-level value.
type ObjectMap interface {
	IsObject(id idspace.ObjectId) bool
}

// Optimize runs Hash-based Unification over g in place (§4.3): every
// top-level (non-object) variable is assigned a pointer-equivalence label
// built from the transitive closure of its explicit points-to and copy
// edges; variables sharing a non-empty label are merged into one
// representative id, and variables with an empty label (no pointer content
// reaches them) are dropped from the constraint set entirely. Objects are
// never merged, regardless of their label.
//
// Optimize returns the merge map: old id -> surviving id, for every id that
// was touched (identity for ids that were neither merged away nor
// dropped). Callers needing to remap external references (e.g. Queries)
// should consult it.
func (g *Graph) Optimize(omap ObjectMap) map[idspace.ObjectId]idspace.ObjectId {
	labels := computeLabels(g, omap)

	byLabel := make(map[string][]idspace.ObjectId)
	for id, lbl := range labels {
		if lbl == "" {
			continue // non-pointer: dropped below
		}
		byLabel[lbl] = append(byLabel[lbl], id)
	}

	rep := make(map[idspace.ObjectId]idspace.ObjectId)
	for _, ids := range byLabel {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			rep[id] = ids[0]
		}
	}

	kept := g.Constraints[:0]
	for _, c := range g.Constraints {
		dst, dstOK := resolve(c.Dst, rep, labels, omap)
		src, srcOK := resolve(c.Src, rep, labels, omap)
		if !dstOK || !srcOK {
			continue
		}
		c.Dst, c.Src = dst, src
		if c.Kind == Copy && c.Dst == c.Src {
			continue // merged into a self-copy, drop
		}
		kept = append(kept, c)
	}
	g.Constraints = append([]Constraint(nil), kept...)
	return rep
}

// resolve maps id through the merge map, and reports ok=false for a
// non-object id whose label was empty (dropped as non-pointerlike).
func resolve(id idspace.ObjectId, rep map[idspace.ObjectId]idspace.ObjectId, labels map[idspace.ObjectId]string, omap ObjectMap) (idspace.ObjectId, bool) {
	if id == 0 {
		return 0, true
	}
	if omap.IsObject(id) {
		return id, true
	}
	if lbl, ok := labels[id]; ok && lbl == "" {
		return 0, false
	}
	if r, ok := rep[id]; ok {
		return r, true
	}
	return id, true
}

// computeLabels computes, for every top-level (non-object) id referenced
// by g, a bit-encoded label approximating the transitive closure of its
// explicit AddrOf targets and Copy predecessors: two ids with identical
// non-empty labels are pointer-equivalent and safe to merge. Load results
// and Gep results are excluded from the closure (their value is not
// statically known until the solver runs) and themselves always receive a
// fresh, unique label so a Load or Gep destination is never merged with
// anything else — the label is still non-empty so it survives the
// dropped-if-empty rule.
func computeLabels(g *Graph, omap ObjectMap) map[idspace.ObjectId]string {
	copyPreds := make(map[idspace.ObjectId][]idspace.ObjectId)
	addrs := make(map[idspace.ObjectId]*bitset.Set)
	loadDsts := make(map[idspace.ObjectId]bool)
	touched := make(map[idspace.ObjectId]bool)

	noteTouched := func(id idspace.ObjectId) {
		if id != 0 && !omap.IsObject(id) {
			touched[id] = true
		}
	}

	for _, c := range g.Constraints {
		noteTouched(c.Dst)
		noteTouched(c.Src)
		switch c.Kind {
		case AddrOf:
			if addrs[c.Dst] == nil {
				addrs[c.Dst] = bitset.New()
			}
			addrs[c.Dst].Add(c.Src)
		case Copy:
			copyPreds[c.Dst] = append(copyPreds[c.Dst], c.Src)
		case Load, Gep:
			loadDsts[c.Dst] = true
		}
	}

	memo := make(map[idspace.ObjectId]*bitset.Set)
	var closure func(id idspace.ObjectId, visiting map[idspace.ObjectId]bool) *bitset.Set
	closure = func(id idspace.ObjectId, visiting map[idspace.ObjectId]bool) *bitset.Set {
		if s, ok := memo[id]; ok {
			return s
		}
		if visiting[id] {
			return bitset.New() // a copy cycle contributes nothing new
		}
		visiting[id] = true
		s := bitset.New()
		if a := addrs[id]; a != nil {
			s.Or(a)
		}
		for _, p := range copyPreds[id] {
			if omap.IsObject(p) {
				s.Add(p)
				continue
			}
			s.Or(closure(p, visiting))
		}
		delete(visiting, id)
		memo[id] = s
		return s
	}

	labels := make(map[idspace.ObjectId]string)
	for id := range touched {
		if loadDsts[id] {
			labels[id] = fmt.Sprintf("load:%d", id) // unique, never merged
			continue
		}
		s := closure(id, make(map[idspace.ObjectId]bool))
		if s.IsEmpty() {
			labels[id] = ""
			continue
		}
		labels[id] = s.String()
	}
	return labels
}
