// Package chemsim is the public entry point: it simulates catalog networks,
// runs stochastic ensembles across parallel simulator instances and keeps a
// ledger of every run.
package chemsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chemsim/internal/catalog"
	"chemsim/internal/metrics"
	"chemsim/internal/model"
	"chemsim/internal/sim"
	"chemsim/internal/sim/deterministic"
	_ "chemsim/internal/sim/stochastic"
	"chemsim/internal/simerr"
	"chemsim/internal/steadystate"
	"chemsim/internal/storage"
)

const defaultDBPath = "chemsim.db"

type (
	Parameters = sim.Parameters
	Results    = sim.Results
	Controller = sim.Controller
	RunRecord  = model.RunRecord
	Network    = catalog.Network
	Estimate   = steadystate.Estimate
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Recorder
}

type SimulateRequest struct {
	Network   string
	Simulator string
	Start     float64
	End       float64
	NumPoints int
	// Symbols selects the output columns; empty means every species.
	Symbols    []string
	Parameters Parameters
	// Workers is the number of simulator instances SimulateParallel runs.
	Workers    int
	Controller *Controller
	Progress   sim.ProgressReporter
}

type SimulateResult struct {
	RunID    string
	Results  *Results
	Duration time.Duration
}

type SteadyStateRequest struct {
	Network string
	// End is how long the network is integrated before the analysis; zero
	// uses the catalog's suggested window.
	End float64
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{store: store, logger: logger, metrics: opts.Metrics}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Networks() []Network { return catalog.List() }

func (c *Client) Simulators() []string { return sim.List() }

func (c *Client) newSimulator(alias string) (sim.Simulator, error) {
	return sim.New(alias, sim.WithLogger(c.logger), sim.WithMetrics(c.metrics))
}

// Simulate runs one simulator instance on a catalog network and records the
// run in the ledger, whatever its outcome.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	req.Workers = 1
	return c.SimulateParallel(ctx, req)
}

// SimulateParallel splits a stochastic ensemble across req.Workers
// independent simulator instances and merges their results weighted by
// ensemble size. Worker i is seeded with Seed+i when a seed is given.
// Deterministic simulators always run a single instance.
func (c *Client) SimulateParallel(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	network, err := catalog.Get(req.Network)
	if err != nil {
		return SimulateResult{}, err
	}
	req.Network = network.Name
	first, err := c.newSimulator(req.Simulator)
	if err != nil {
		return SimulateResult{}, err
	}
	params := req.Parameters.WithDefaults(first.DefaultParameters())
	sizes := splitEnsemble(first.IsStochastic(), params, req.Workers)

	started := time.Now()
	parts := make([]*Results, len(sizes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(sizes))
	for i, size := range sizes {
		g.Go(func() error {
			s := first
			if i > 0 {
				var err error
				if s, err = c.newSimulator(req.Simulator); err != nil {
					return err
				}
			}
			if err := s.Initialize(network.Build()); err != nil {
				return err
			}
			p := params
			if s.IsStochastic() {
				p.EnsembleSize = sim.Int(size)
			}
			if params.Seed != nil {
				p.Seed = sim.Uint64(*params.Seed + uint64(i))
			}
			r := sim.Request{
				Start:      req.Start,
				End:        req.End,
				NumPoints:  req.NumPoints,
				Symbols:    req.Symbols,
				Parameters: p,
				Controller: req.Controller,
			}
			if i == 0 {
				r.Progress = req.Progress
			}
			res, err := s.Simulate(gctx, r)
			parts[i] = res
			return err
		})
	}
	err = g.Wait()
	elapsed := time.Since(started)

	var res *Results
	if err == nil {
		res = mergeResults(parts, sizes)
	}
	id, saveErr := c.record(ctx, req, params, res, err, elapsed)
	if err != nil {
		return SimulateResult{RunID: id, Duration: elapsed}, errors.Join(err, saveErr)
	}
	if saveErr != nil {
		return SimulateResult{}, saveErr
	}
	return SimulateResult{RunID: id, Results: res, Duration: elapsed}, nil
}

// splitEnsemble divides the ensemble among the workers. Workers never get
// fewer members than fluctuation estimates need.
func splitEnsemble(stochastic bool, params Parameters, workers int) []int {
	if !stochastic || workers < 1 {
		workers = 1
	}
	total := 1
	if params.EnsembleSize != nil && *params.EnsembleSize > 0 {
		total = *params.EnsembleSize
	}
	perWorker := 1
	if params.ComputeFluctuations {
		perWorker = 2
	}
	workers = max(1, min(workers, total/perWorker))

	sizes := make([]int, workers)
	for i := range sizes {
		sizes[i] = total / workers
		if i < total%workers {
			sizes[i]++
		}
	}
	return sizes
}

func (c *Client) record(ctx context.Context, req SimulateRequest, params Parameters, res *Results, runErr error, elapsed time.Duration) (string, error) {
	run := storage.Stamp(model.RunRecord{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Network:    req.Network,
		Simulator:  req.Simulator,
		Parameters: params.Record(),
		Start:      req.Start,
		End:        req.End,
		NumPoints:  req.NumPoints,
		Duration:   elapsed,
	})
	switch {
	case runErr != nil:
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	case res.Cancelled:
		run.Status = model.RunCancelled
	default:
		run.Status = model.RunCompleted
	}
	if res != nil {
		run.Iterations = res.Iterations
		if res.FilledPoints > 0 {
			run.Final = res.Final()
		}
		run.Fluctuations = res.FluctuationMap()
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	c.logger.Debug("run recorded", "id", run.ID, "status", run.Status, "network", run.Network, "simulator", run.Simulator)
	return run.ID, nil
}

// Runs lists ledger entries newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	return c.store.ListRuns(ctx, limit)
}

func (c *Client) Run(ctx context.Context, id string) (RunRecord, error) {
	run, ok, err := c.store.GetRun(ctx, id)
	if err != nil {
		return RunRecord{}, err
	}
	if !ok {
		return RunRecord{}, simerr.DataNotFound("run %s", id)
	}
	return run, nil
}

// SteadyState integrates a catalog network towards its steady state and
// estimates the stationary fluctuations there.
func (c *Client) SteadyState(ctx context.Context, req SteadyStateRequest) (*Estimate, error) {
	network, err := catalog.Get(req.Network)
	if err != nil {
		return nil, err
	}
	end := req.End
	if end <= 0 {
		end = network.End
	}
	s := deterministic.NewAdaptive(sim.WithLogger(c.logger), sim.WithMetrics(c.metrics))
	if err := s.Initialize(network.Build()); err != nil {
		return nil, err
	}
	res, err := s.Simulate(ctx, sim.Request{Start: network.Start, End: end, NumPoints: 2})
	if err != nil {
		return nil, err
	}
	if res.Cancelled {
		return nil, fmt.Errorf("steady state of %s: %w", req.Network, context.Canceled)
	}
	return steadystate.Analyze(s.Network())
}
