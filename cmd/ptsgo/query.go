package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/tools/go/ssa"

	"github.com/rudyjantz/ptsgo/internal/idspace"
)

func newQueryCmd(cfg *cliConfig) *cobra.Command {
	var func1, value1, func2, value2 string
	var field uint32

	cmd := &cobra.Command{
		Use:   "query",
		Short: "answer an alias or points-to query against a solved program",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			mod, res, err := loadAndSolve(ctx, log, cfg)
			if err != nil {
				return err
			}

			v1, err := resolveValue(mod.ValueIDs, func1, value1)
			if err != nil {
				return err
			}

			if func2 == "" && value2 == "" {
				ids := res.Alias.PointsToAt(v1, field)
				fmt.Printf("pointsTo(%s.%s, %d) = %v\n", func1, value1, field, ids)
				return nil
			}

			v2, err := resolveValue(mod.ValueIDs, func2, value2)
			if err != nil {
				return err
			}
			fmt.Printf("alias(%s.%s, %s.%s) = %s\n", func1, value1, func2, value2, res.Alias.Alias(v1, v2))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&func1, "func1", "", "function owning the first value (as printed by (*ssa.Function).String)")
	flags.StringVar(&value1, "value1", "", "first value's SSA name, e.g. t3 or a parameter name")
	flags.StringVar(&func2, "func2", "", "function owning the second value, for an alias query")
	flags.StringVar(&value2, "value2", "", "second value's SSA name, for an alias query")
	flags.Uint32Var(&field, "field", 0, "field offset for a pointsTo query (ignored for alias)")
	cmd.MarkFlagRequired("func1")
	cmd.MarkFlagRequired("value1")
	return cmd
}

// resolveValue maps a (function, SSA-value-name) pair back to the ObjectId
// the solver tracked it under, via the per-function map internal/frontend
// stashes away for exactly this purpose.
func resolveValue(valueIDs func(string) (map[ssa.Value]idspace.ObjectId, bool), fn, name string) (idspace.ObjectId, error) {
	ids, ok := valueIDs(fn)
	if !ok {
		return 0, fmt.Errorf("query: function %q was never built", fn)
	}
	for v, id := range ids {
		if v.Name() == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("query: no value named %q in %q", name, fn)
}
