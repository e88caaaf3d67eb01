package main

import (
	"github.com/spf13/cobra"

	"chemsim/pkg/chemsim"
)

func newSteadyStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steady-state <network>",
		Short: "Estimate stationary fluctuations with the linear noise approximation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, _ := cmd.Flags().GetFloat64("end")
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			est, err := a.client.SteadyState(cmd.Context(), chemsim.SteadyStateRequest{Network: args[0], End: end})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), est.FluctuationMap())
			}
			rows := make([][]string, 0, len(est.Species))
			for i, name := range est.Species {
				rows = append(rows, []string{name, formatFloat(est.Fluctuations[i])})
			}
			return writeTable(cmd.OutOrStdout(), []string{"species", "std_dev"}, rows)
		},
	}
	cmd.Flags().Float64("end", 0, "integration time before the analysis (default: the network's window)")
	return cmd
}
