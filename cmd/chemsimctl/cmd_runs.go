package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
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

			runs, err := a.client.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					humanize.Time(r.CreatedAt),
					r.Network,
					r.Simulator,
					string(r.Status),
					formatIterations(r.Iterations),
					formatDuration(r.Duration),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"id", "created", "network", "simulator", "status", "iterations", "duration"}, rows)
		},
	}
	cmd.Flags().Int("limit", 20, "max runs to list")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			run, err := a.client.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), run)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:          %s\n", run.ID)
			fmt.Fprintf(out, "created:     %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "network:     %s\n", run.Network)
			fmt.Fprintf(out, "simulator:   %s\n", run.Simulator)
			fmt.Fprintf(out, "window:      %s..%s (%d points)\n", formatFloat(run.Start), formatFloat(run.End), run.NumPoints)
			fmt.Fprintf(out, "status:      %s\n", run.Status)
			if run.Error != "" {
				fmt.Fprintf(out, "error:       %s\n", run.Error)
			}
			fmt.Fprintf(out, "iterations:  %s\n", formatIterations(run.Iterations))
			fmt.Fprintf(out, "duration:    %s\n", formatDuration(run.Duration))
			if run.Parameters.EnsembleSize > 0 {
				fmt.Fprintf(out, "ensemble:    %d\n", run.Parameters.EnsembleSize)
			}
			if run.Parameters.Seed != nil {
				fmt.Fprintf(out, "seed:        %d\n", *run.Parameters.Seed)
			}

			names := make([]string, 0, len(run.Final))
			for name := range run.Final {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				line := fmt.Sprintf("final %s = %s", name, formatFloat(run.Final[name]))
				if sd, ok := run.Fluctuations[name]; ok {
					line += fmt.Sprintf(" (std dev %s)", formatFloat(sd))
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
