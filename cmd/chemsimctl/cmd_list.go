package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chemsim/internal/catalog"
	"chemsim/internal/sim"
)

func newSimulatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulators",
		Short: "List simulator aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			aliases := sim.List()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), aliases)
			}
			for _, alias := range aliases {
				fmt.Fprintln(cmd.OutOrStdout(), alias)
			}
			return nil
		},
	}
}

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the built-in reaction networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			networks := catalog.List()
			if jsonOutput(cmd) {
				type networkItem struct {
					Name        string  `json:"name"`
					Description string  `json:"description"`
					Simulator   string  `json:"simulator"`
					Start       float64 `json:"start"`
					End         float64 `json:"end"`
					Points      int     `json:"points"`
				}
				items := make([]networkItem, 0, len(networks))
				for _, n := range networks {
					items = append(items, networkItem{
						Name:        n.Name,
						Description: n.Description,
						Simulator:   n.Simulator,
						Start:       n.Start,
						End:         n.End,
						Points:      n.NumPoints,
					})
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}

			rows := make([][]string, 0, len(networks))
			for _, n := range networks {
				rows = append(rows, []string{
					n.Name,
					n.Simulator,
					fmt.Sprintf("%s..%s", formatFloat(n.Start), formatFloat(n.End)),
					n.Description,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"name", "simulator", "window", "description"}, rows)
		},
	}
}
