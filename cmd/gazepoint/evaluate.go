package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazepoint/internal/log"
	"github.com/teslashibe/gazepoint/pkg/evaluation"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var points bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the saved calibration and print the summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			set, err := st.Load(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := evaluation.New(a.cfg.Screen, log.Named("evaluation")).Evaluate(set)
			if err != nil {
				return err
			}
			if !points {
				sum.Points = nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum.Rounded())
		},
	}
	cmd.Flags().BoolVar(&points, "points", false, "include per-anchor predictions")
	return cmd
}
