package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chemsim/internal/catalog"
	"chemsim/internal/config"
	"chemsim/internal/logging"
	"chemsim/internal/sim"
	"chemsim/internal/stats"
	"chemsim/pkg/chemsim"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <network>",
		Short: "Simulate a catalog network and record the run",
		Long: `Simulate runs one of the built-in networks and prints the sampled
time series. Without --config the network's suggested simulator and time
window are used; explicit flags always win.`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulate,
	}
	cmd.Flags().StringP("simulator", "s", "", "simulator alias (see 'chemsimctl simulators')")
	cmd.Flags().Float64("start", 0, "start time")
	cmd.Flags().Float64("end", 0, "end time")
	cmd.Flags().Int("points", 0, "number of output points")
	cmd.Flags().StringSlice("symbols", nil, "output symbols (default: every species)")
	cmd.Flags().Int("ensemble", 0, "stochastic ensemble size")
	cmd.Flags().Int("workers", 0, "parallel simulator instances for stochastic ensembles")
	cmd.Flags().Uint64("seed", 0, "random seed; worker i uses seed+i")
	cmd.Flags().Bool("fluctuations", false, "estimate final-value fluctuations")
	cmd.Flags().Bool("concentration", false, "use concentration units for rate laws")
	cmd.Flags().Int("min-steps", 0, "minimum number of integration steps")
	cmd.Flags().Float64("rel-error", 0, "maximum allowed relative error")
	cmd.Flags().Float64("abs-error", 0, "maximum allowed absolute error")
	cmd.Flags().Float64("step-fraction", 0, "tau-leap step size fraction")
	cmd.Flags().Int("history-bins", 0, "delayed reaction history bins")
	cmd.Flags().String("export", "", "directory to write run artifacts to")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	network, err := catalog.Get(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, func(c *config.Config) {
		c.Simulation.Simulator = network.Simulator
		c.Simulation.Start = network.Start
		c.Simulation.End = network.End
		c.Simulation.Points = network.NumPoints
	})
	if err != nil {
		return err
	}
	s := &cfg.Simulation

	flags := cmd.Flags()
	if flags.Changed("simulator") {
		s.Simulator, _ = flags.GetString("simulator")
	}
	if flags.Changed("start") {
		s.Start, _ = flags.GetFloat64("start")
	}
	if flags.Changed("end") {
		s.End, _ = flags.GetFloat64("end")
	}
	if flags.Changed("points") {
		s.Points, _ = flags.GetInt("points")
	}
	if flags.Changed("ensemble") {
		s.EnsembleSize, _ = flags.GetInt("ensemble")
	}
	if flags.Changed("workers") {
		s.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		s.Seed = &seed
	}
	if flags.Changed("fluctuations") {
		s.Fluctuations, _ = flags.GetBool("fluctuations")
	}
	if flags.Changed("concentration") {
		s.ConcentrationUnits, _ = flags.GetBool("concentration")
	}
	if flags.Changed("min-steps") {
		s.MinSteps, _ = flags.GetInt("min-steps")
	}
	if flags.Changed("rel-error") {
		s.RelativeError, _ = flags.GetFloat64("rel-error")
	}
	if flags.Changed("abs-error") {
		s.AbsoluteError, _ = flags.GetFloat64("abs-error")
	}
	if flags.Changed("step-fraction") {
		s.StepFraction, _ = flags.GetFloat64("step-fraction")
	}
	if flags.Changed("history-bins") {
		s.HistoryBins, _ = flags.GetInt("history-bins")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	symbols, _ := flags.GetStringSlice("symbols")

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Debug("simulating", "network", network.Name, "simulator", s.Simulator, "start", s.Start, "end", s.End, "points", s.Points, "workers", s.Workers)
	out, err := a.client.SimulateParallel(ctx, chemsim.SimulateRequest{
		Network:    network.Name,
		Simulator:  s.Simulator,
		Start:      s.Start,
		End:        s.End,
		NumPoints:  s.Points,
		Symbols:    symbols,
		Parameters: s.Parameters(),
		Workers:    s.Workers,
		Progress: sim.ProgressFunc(func(fraction float64, iterations int64, done bool) {
			a.logger.Log(ctx, logging.LevelTrace, "progress", "fraction", fraction, "iterations", iterations, "done", done)
		}),
	})
	if err != nil {
		if out.RunID != "" {
			return fmt.Errorf("run %s: %w", out.RunID, err)
		}
		return err
	}
	res := out.Results
	if res.Cancelled {
		a.logger.Info("simulation cancelled; printing partial results", "run", out.RunID, "filled_points", res.FilledPoints)
	}
	if dir, _ := flags.GetString("export"); dir != "" {
		run, err := a.client.Run(ctx, out.RunID)
		if err != nil {
			return err
		}
		runDir, err := stats.WriteRunArtifacts(dir, stats.RunArtifacts{Run: run, Results: res})
		if err != nil {
			return fmt.Errorf("export run %s: %w", out.RunID, err)
		}
		a.logger.Info("run exported", "run", out.RunID, "dir", runDir)
	}

	if jsonOutput(cmd) {
		return writeJSON(cmd.OutOrStdout(), simulateOutput{
			RunID:        out.RunID,
			Simulator:    res.Simulator,
			Symbols:      res.Symbols,
			Times:        res.Times[:res.FilledPoints],
			Values:       res.Values[:res.FilledPoints],
			Fluctuations: res.FluctuationMap(),
			Cancelled:    res.Cancelled,
			Iterations:   res.Iterations,
		})
	}

	header := append([]string{"time"}, res.Symbols...)
	rows := make([][]string, 0, res.FilledPoints)
	for i := 0; i < res.FilledPoints; i++ {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(res.Times[i]))
		for _, v := range res.Values[i] {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	if err := writeTable(cmd.OutOrStdout(), header, rows); err != nil {
		return err
	}

	summary := cmd.ErrOrStderr()
	fmt.Fprintf(summary, "run %s: %s iterations in %s with %s\n", out.RunID, formatIterations(res.Iterations), formatDuration(out.Duration), res.Simulator)
	for _, name := range res.Symbols {
		if sd, ok := res.FluctuationMap()[name]; ok {
			fmt.Fprintf(summary, "  %s final std dev %s\n", name, formatFloat(sd))
		}
	}
	return nil
}

type simulateOutput struct {
	RunID        string             `json:"run_id"`
	Simulator    string             `json:"simulator"`
	Symbols      []string           `json:"symbols"`
	Times        []float64          `json:"times"`
	Values       [][]float64        `json:"values"`
	Fluctuations map[string]float64 `json:"fluctuations,omitempty"`
	Cancelled    bool               `json:"cancelled,omitempty"`
	Iterations   int64              `json:"iterations"`
}
