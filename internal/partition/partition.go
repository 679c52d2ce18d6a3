// Package partition implements the access-equivalence partitioning and
// per-partition SSA splice of spec §4.4: address-taken objects are grouped
// so that two objects share a PartitionId iff they are loaded/stored at
// exactly the same set of CFG nodes with the same load/store tag, and each
// partition's reaching-definition structure is then spliced into the DUG
// as address-taken edges (and, at genuine control joins, synthetic join
// nodes).
package partition

import (
	"sort"

	"github.com/rudyjantz/ptsgo/internal/bitset"
	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// Tag classifies how an object is touched at a given CFG node.
type Tag uint8

const (
	LoadOnly Tag = iota
	StoreOnly
	Both
)

func (t Tag) merge(other Tag) Tag {
	if t == other {
		return t
	}
	return Both
}

// Access records that the DUG node dugNode (a Load or Store) touches some
// object at cfgNode with the given tag.
type Access struct {
	CFGNode idspace.NodeId
	DUGNode idspace.NodeId
	Tag     Tag
}

// AuxPtsto supplies the conservative (flow-insensitive) points-to set for a
// top-level pointer value — exactly what's needed to enumerate which
// objects a load or store's address operand might target, without needing
// the flow-sensitive result partitioning exists to help compute.
type AuxPtsto interface {
	PointsTo(ptr idspace.ObjectId) []idspace.ObjectId
}

// CollectAccesses walks every Load/Store node of d and, resolving each
// one's pointer operand through aux, records one Access per object it may
// touch.
func CollectAccesses(d *dug.Graph, aux AuxPtsto) map[idspace.ObjectId][]Access {
	out := make(map[idspace.ObjectId][]Access)
	for _, id := range d.NodeIds() {
		n := d.Node(id)
		var ptr idspace.ObjectId
		var tag Tag
		switch n.Kind {
		case dug.NLoad:
			ptr, tag = n.C.Src, LoadOnly
		case dug.NStore:
			ptr, tag = n.C.Dst, StoreOnly
		default:
			continue
		}
		for _, obj := range aux.PointsTo(ptr) {
			out[obj] = append(out[obj], Access{CFGNode: n.CFGNode, DUGNode: id, Tag: tag})
		}
	}
	return out
}

// Fingerprint computes o's access fingerprint (§4.4 step 1): a BitSet keyed
// by (cfgNode<<2 | tag), merging the tag at a node to Both when both a load
// and a store of o occur there.
func Fingerprint(accesses []Access) *bitset.Set {
	tagAt := make(map[idspace.NodeId]Tag)
	for _, a := range accesses {
		if existing, ok := tagAt[a.CFGNode]; ok {
			tagAt[a.CFGNode] = existing.merge(a.Tag)
		} else {
			tagAt[a.CFGNode] = a.Tag
		}
	}
	fp := bitset.New()
	for node, tag := range tagAt {
		fp.Add(idspace.ObjectId(uint32(node)<<2 | uint32(tag)))
	}
	return fp
}

// Assign groups address-taken objects into access-equivalence classes and
// assigns a fresh, deterministic PartitionId per distinct fingerprint
// (§4.4 steps 2-3): ids are handed out in ascending order of the lowest
// object id that exhibits each fingerprint.
func Assign(accesses map[idspace.ObjectId][]Access) map[idspace.ObjectId]idspace.PartitionId {
	objs := make([]idspace.ObjectId, 0, len(accesses))
	for o := range accesses {
		objs = append(objs, o)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })

	groupOf := make(map[string]idspace.PartitionId)
	assign := make(map[idspace.ObjectId]idspace.PartitionId, len(objs))
	var next idspace.PartitionId = 1
	for _, o := range objs {
		key := Fingerprint(accesses[o]).String()
		pid, ok := groupOf[key]
		if !ok {
			pid = next
			next++
			groupOf[key] = pid
		}
		assign[o] = pid
	}
	return assign
}

type accessKey struct {
	cfgNode idspace.NodeId
	dugNode idspace.NodeId
	tag     Tag
}

// byPartition flattens accesses into per-partition, deduplicated lists:
// several objects sharing a partition also share identical (cfgNode, tag)
// pairs by construction, but may route through distinct DUG nodes when a
// single ambiguous pointer's aux points-to set spans more than one of
// them, so dedup keys on the full triple.
func byPartition(accesses map[idspace.ObjectId][]Access, assign map[idspace.ObjectId]idspace.PartitionId) map[idspace.PartitionId][]Access {
	out := make(map[idspace.PartitionId][]Access)
	seen := make(map[idspace.PartitionId]map[accessKey]bool)
	for o, accs := range accesses {
		pid := assign[o]
		if seen[pid] == nil {
			seen[pid] = make(map[accessKey]bool)
		}
		for _, a := range accs {
			k := accessKey{a.CFGNode, a.DUGNode, a.Tag}
			if seen[pid][k] {
				continue
			}
			seen[pid][k] = true
			out[pid] = append(out[pid], a)
		}
	}
	return out
}

// AddPartitionsToDUG performs addPartitionsToDUG (§4.4): for each
// partition, it runs the Ramalingam condensation over a fresh copy of
// full's topology with attributes recomputed for that partition alone (a
// node is M iff some store of the partition occurs there, R iff some load
// does), then splices the surviving reaching-definition structure into d —
// feeding each load's and each store's DUG node from the nearest upstream
// definition(s) (a store passes through whatever it does not overwrite), and
// inserting a synthetic DUG join node wherever multiple independent
// definitions reach a single point without any load/store of their own
// (a genuine control-flow merge).
func AddPartitionsToDUG(full *cfg.Graph, d *dug.Graph, accesses map[idspace.ObjectId][]Access, assign map[idspace.ObjectId]idspace.PartitionId) {
	perPart := byPartition(accesses, assign)

	pids := make([]idspace.PartitionId, 0, len(perPart))
	for pid := range perPart {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		spliceOnePartition(full, d, pid, perPart[pid])
	}
}

func spliceOnePartition(full *cfg.Graph, d *dug.Graph, pid idspace.PartitionId, accs []Access) {
	byOrig := make(map[idspace.NodeId][]Access)
	for _, a := range accs {
		byOrig[a.CFGNode] = append(byOrig[a.CFGNode], a)
	}

	orig := full.NodeIds()
	sort.Slice(orig, func(i, j int) bool { return orig[i] < orig[j] })

	pcfg := cfg.New()
	orig2local := make(map[idspace.NodeId]idspace.NodeId, len(orig))
	local2orig := make(map[idspace.NodeId]idspace.NodeId, len(orig))
	for _, o := range orig {
		attrs := attrsFor(byOrig[o])
		local := pcfg.AddNode(attrs, nil)
		orig2local[o] = local
		local2orig[local] = o
	}
	for _, o := range orig {
		for _, s := range full.Succs(o) {
			if ls, ok := orig2local[s]; ok {
				pcfg.AddEdge(orig2local[o], ls)
			}
		}
	}

	cfg.Condense(pcfg)

	feed := make(map[idspace.NodeId][]idspace.NodeId) // local (possibly collapsed) node -> current defs
	for _, local := range pcfg.TopoOrder() {
		var in []idspace.NodeId
		for _, p := range pcfg.Preds(local) {
			in = append(in, feed[pcfg.GetNode(p)]...)
		}
		in = dedupNodeIds(in)

		var stores, loads []idspace.NodeId
		for lo, o := range local2orig {
			if pcfg.GetNode(lo) != local {
				continue // o's node was collapsed into a different representative
			}
			for _, a := range byOrig[o] {
				switch a.Tag {
				case StoreOnly:
					stores = append(stores, a.DUGNode)
				case LoadOnly:
					loads = append(loads, a.DUGNode)
				case Both:
					stores = append(stores, a.DUGNode)
					loads = append(loads, a.DUGNode)
				}
			}
		}

		if len(loads) > 0 || len(stores) > 0 {
			if src := joinIfNeeded(d, in, pid); src != 0 {
				for _, ld := range loads {
					d.AddEdge(src, ld)
				}
				for _, st := range stores {
					d.AddEdge(src, st)
				}
			}
		}

		switch {
		case len(stores) > 0:
			feed[local] = dedupNodeIds(stores)
		case len(loads) == 0 && len(in) > 1:
			j := d.AddJoin(pid)
			for _, f := range in {
				d.AddEdge(f, j)
			}
			feed[local] = []idspace.NodeId{j}
		default:
			feed[local] = in
		}
	}
}

// attrsFor computes this partition's {P,M,R} for a CFG node from the
// accesses recorded there: M if any store, R if any load, P otherwise.
func attrsFor(accs []Access) cfg.Attrs {
	var m, r bool
	for _, a := range accs {
		switch a.Tag {
		case StoreOnly:
			m = true
		case LoadOnly:
			r = true
		case Both:
			m, r = true, true
		}
	}
	return cfg.Attrs{P: !m, M: m, R: r}
}

func joinIfNeeded(d *dug.Graph, in []idspace.NodeId, pid idspace.PartitionId) idspace.NodeId {
	switch len(in) {
	case 0:
		return 0
	case 1:
		return in[0]
	default:
		j := d.AddJoin(pid)
		for _, f := range in {
			d.AddEdge(f, j)
		}
		return j
	}
}

func dedupNodeIds(ids []idspace.NodeId) []idspace.NodeId {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[idspace.NodeId]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
