package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rudyjantz/ptsgo/internal/aux"
	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/dotwriter"
	"github.com/rudyjantz/ptsgo/internal/dug"
	"github.com/rudyjantz/ptsgo/internal/partition"
	"github.com/rudyjantz/ptsgo/internal/perr"
)

// newDumpCmd writes the *.dot dumps named in SPEC_FULL.md §2.6. It cannot
// reuse pipeline.Run, since that collapses straight through to the
// condensed CFG and DUG: dump needs the uncondensed CFG (G.dot), its
// p-only subgraph (Gp.dot), and the four intermediate condensation
// snapshots (G4/G2/G6/G5.dot), so it drives the same phase sequence
// pipeline.Run does directly, with cfg.CondenseStaged's callback wired to
// internal/dotwriter instead of a no-op.
func newDumpCmd(cliCfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "write the *.dot debug dumps (G, Gp, G4, G2, G6, G5, CFG, CFG_indir, CFG_ssa)",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log, lerr := newLogger(cliCfg.verbose)
			if lerr != nil {
				return lerr
			}
			defer log.Sync()
			defer func() {
				if r := recover(); r != nil {
					err = perr.Recover(r)
				}
			}()

			ctx := cmd.Context()
			mod, err := loadOnly(ctx, cliCfg)
			if err != nil {
				return err
			}

			if cliCfg.entry == "" {
				return fmt.Errorf("--entry is required")
			}
			cg := mod.Build(cliCfg.entry)
			if cg == nil {
				return fmt.Errorf("dump: entry function has no body: %s", cliCfg.entry)
			}
			cg.ResolveCalls(mod)

			auxGraph := aux.New(cg, mod)
			auxGraph.Solve()
			cg.Optimize(cg.Space)

			full := mod.CFG()
			if err := full.AssertNoConstantIncoming(); err != nil {
				return perr.IrMalformed(err.Error())
			}

			if err := writeDot(cliCfg.dumpDir, "G.dot", func(f *os.File) error {
				return dotwriter.WriteCFG(f, "G", full, nil)
			}); err != nil {
				return err
			}
			if err := writeDot(cliCfg.dumpDir, "Gp.dot", func(f *os.File) error {
				return writeFilteredCFG(f, full, func(a cfg.Attrs) bool { return a.P })
			}); err != nil {
				return err
			}

			var stageErr error
			cfg.CondenseStaged(full, func(stage string) {
				if stageErr != nil {
					return
				}
				stageErr = writeDot(cliCfg.dumpDir, stage+".dot", func(f *os.File) error {
					return dotwriter.WriteCFG(f, stage, full, nil)
				})
			})
			if stageErr != nil {
				return stageErr
			}

			if err := writeDot(cliCfg.dumpDir, "CFG.dot", func(f *os.File) error {
				return dotwriter.WriteCFG(f, "CFG", full, nil)
			}); err != nil {
				return err
			}
			log.Warnw("CFG_indir.dot highlighting is unavailable: call sites are not attributed a CFG node by the current frontend", "entry", cliCfg.entry)
			if err := writeDot(cliCfg.dumpDir, "CFG_indir.dot", func(f *os.File) error {
				return dotwriter.WriteCFGIndirect(f, "CFG_indir", full, func(stmt any) bool { return false })
			}); err != nil {
				return err
			}

			d, _, defOf := dug.FillTopLevel(cg)
			accesses := partition.CollectAccesses(d, auxGraph)
			assign := partition.Assign(accesses)
			partition.AddPartitionsToDUG(full, d, accesses, assign)
			_ = defOf

			if cliCfg.debugFcn != "" {
				for _, fn := range mod.Functions() {
					if fn.String() == cliCfg.debugFcn {
						if err := writeDot(cliCfg.dumpDir, "CFG_ssa.dot", func(f *os.File) error {
							return dotwriter.WriteSSA(f, fn)
						}); err != nil {
							return err
						}
						break
					}
				}
			}

			log.Infow("dot dumps written", "dir", cliCfg.dumpDir)
			return nil
		},
	}
}

func writeDot(dir, name string, write func(*os.File) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("dump: creating %s: %w", name, err)
	}
	defer f.Close()
	return write(f)
}

func writeFilteredCFG(w *os.File, full *cfg.Graph, keep func(cfg.Attrs) bool) error {
	var nodes []dotwriter.Node
	var edges []dotwriter.Edge
	for _, id := range full.NodeIds() {
		if !keep(full.Attrs(id)) {
			continue
		}
		label, _ := dotwriter.DefaultCFGLabel(full.Attrs(id), full.Stmt(id))
		nodes = append(nodes, dotwriter.Node{ID: uint32(id), Label: label})
		for _, s := range full.Succs(id) {
			if keep(full.Attrs(s)) {
				edges = append(edges, dotwriter.Edge{From: uint32(id), To: uint32(s)})
			}
		}
	}
	return dotwriter.WriteGraph(w, "Gp", nodes, edges)
}
