package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSolveCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "run the full points-to analysis and print end-of-solve statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			_, res, err := loadAndSolve(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}

			st := res.Stats
			fmt.Printf("tracked values:     %d\n", st.TrackedValues)
			fmt.Printf("total cardinality:  %d\n", st.TotalCardinality)
			fmt.Printf("max cardinality:    %d\n", st.MaxSize)
			fmt.Printf("size histogram (0..%d, last bucket is >=9):\n", len(st.Histogram)-1)
			for size, count := range st.Histogram {
				fmt.Printf("  %d: %d\n", size, count)
			}
			return nil
		},
	}
}
