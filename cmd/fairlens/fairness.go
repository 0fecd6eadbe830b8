package main

import (
	"github.com/spf13/cobra"

	"github.com/pario-ai/fairlens/pkg/fairness"
)

type fairnessInput struct {
	Groups          map[string]fairness.Counts    `json:"groups"`
	Counterfactuals []fairness.CounterfactualPair `json:"counterfactuals"`
}

func newFairnessCmd(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "fairness <counts.json>",
		Short: "Compute fairness spreads from per-group confusion counts",
		Long:  "Fairness reads {\"groups\": {name: {tp, fp, tn, fn}}, \"counterfactuals\": [{original, variant}]} from the given file (or stdin when the file is \"-\") and prints the metrics as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in fairnessInput
			if err := readJSON(args[0], &in); err != nil {
				return err
			}
			m, err := fairness.Calculate(in.Groups)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), m.WithCounterfactuals(in.Counterfactuals))
		},
	}
}
