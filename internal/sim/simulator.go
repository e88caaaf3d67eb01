// Package sim holds what every simulation algorithm shares: the compiled
// reaction network, per-call parameters, output sampling, cancellation,
// progress reporting and the simulator registry.
package sim

import (
	"context"
	"log/slog"
	"time"

	"chemsim/internal/metrics"
	"chemsim/internal/model"
	"chemsim/internal/simerr"
)

// Simulator integrates a model over time. An instance must be initialized
// with a model before Simulate, and one Simulate call runs at a time.
type Simulator interface {
	Alias() string
	IsStochastic() bool
	Initialize(m *model.Model) error
	DefaultParameters() Parameters
	Simulate(ctx context.Context, req Request) (*Results, error)
}

type Option func(*Base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(b *Base) { b.metrics = r }
}

// Base carries the state shared by all algorithms. Algorithms embed it and
// implement DefaultParameters and Simulate.
type Base struct {
	alias      string
	stochastic bool
	logger     *slog.Logger
	metrics    *metrics.Recorder
	net        *Network
}

func NewBase(alias string, stochastic bool, opts ...Option) Base {
	b := Base{
		alias:      alias,
		stochastic: stochastic,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *Base) Alias() string              { return b.alias }
func (b *Base) IsStochastic() bool         { return b.stochastic }
func (b *Base) Logger() *slog.Logger       { return b.logger }
func (b *Base) Metrics() *metrics.Recorder { return b.metrics }
func (b *Base) Network() *Network          { return b.net }

// Initialize compiles m for this instance. A failed call leaves any earlier
// network in place.
func (b *Base) Initialize(m *model.Model) error {
	net, err := Compile(m, CompileOptions{Stochastic: b.stochastic})
	if err != nil {
		return err
	}
	b.net = net
	b.logger.Debug("simulator initialized",
		"alias", b.alias,
		"model", m.Name,
		"species", len(net.Dynamic),
		"reactions", len(net.Reactions),
		"delayed", len(net.Solvers),
	)
	return nil
}

// Begin validates req and prepares the network for a new run.
func (b *Base) Begin(ctx context.Context, req Request, defaults Parameters) (*Run, error) {
	if b.net == nil {
		return nil, simerr.ErrNotInitialized
	}
	params, names, syms, err := CheckRequest(b.net, req, defaults)
	if err != nil {
		return nil, err
	}
	members := 1
	if b.stochastic && params.EnsembleSize != nil {
		members = *params.EnsembleSize
	}
	if err := b.net.Configure(params); err != nil {
		return nil, err
	}

	times := TimesArray(req.Start, req.End, req.NumPoints)
	r := &Run{
		Params:  params,
		Times:   times,
		Net:     b.net,
		Sampler: NewSampler(b.net, times, syms),
		base:    b,
		ctx:     ctx,
		req:     req,
		names:   names,
		members: members,
		started: time.Now(),
	}
	b.logger.Debug("simulation started",
		"alias", b.alias,
		"start", req.Start,
		"end", req.End,
		"points", req.NumPoints,
		"members", members,
	)
	return r, nil
}

// Run tracks the bookkeeping of one Simulate call.
type Run struct {
	Params  Parameters
	Times   []float64
	Net     *Network
	Sampler *Sampler

	base         *Base
	ctx          context.Context
	req          Request
	names        []string
	members      int
	member       int
	iterations   int64
	started      time.Time
	cancelled    bool
	fluctuations []float64
}

func (r *Run) Start() float64             { return r.req.Start }
func (r *Run) End() float64               { return r.req.End }
func (r *Run) Members() int               { return r.members }
func (r *Run) Iterations() int64          { return r.iterations }
func (r *Run) Cancelled() bool            { return r.cancelled }
func (r *Run) Logger() *slog.Logger       { return r.base.logger }
func (r *Run) Metrics() *metrics.Recorder { return r.base.metrics }

// BeginMember starts ensemble member i.
func (r *Run) BeginMember(i int) {
	r.member = i
	r.Sampler.Begin()
	if r.members > 1 {
		r.base.logger.Debug("ensemble member started", "alias", r.base.alias, "member", i+1, "of", r.members)
	}
}

func (r *Run) EndMember() { r.Sampler.EndMember() }

// Tick counts one loop iteration at simulation time t. Every PollInterval
// iterations it reports progress and polls for cancellation; it returns true
// when the run must stop.
func (r *Run) Tick(t float64) bool {
	r.iterations++
	if r.iterations%PollInterval != 0 {
		return false
	}
	return r.Poll(t)
}

// Poll reports progress at time t and checks for cancellation immediately.
func (r *Run) Poll(t float64) bool {
	if r.req.Progress != nil {
		r.req.Progress.Progress(r.fraction(t), r.iterations, false)
	}
	if r.req.Controller.Poll(r.ctx) {
		r.cancelled = true
	}
	return r.cancelled
}

func (r *Run) fraction(t float64) float64 {
	span := r.req.End - r.req.Start
	within := (t - r.req.Start) / span
	if within > 1 {
		within = 1
	} else if within < 0 {
		within = 0
	}
	return (float64(r.member) + within) / float64(r.members)
}

// SetFluctuations overrides the ensemble fluctuation estimate.
func (r *Run) SetFluctuations(f []float64) { r.fluctuations = f }

// Finish closes the run. A non-nil err is returned unchanged after the run is
// logged and counted as failed.
func (r *Run) Finish(err error) (*Results, error) {
	elapsed := time.Since(r.started)
	status := model.RunCompleted
	switch {
	case err != nil:
		status = model.RunFailed
	case r.cancelled:
		status = model.RunCancelled
	}
	r.base.metrics.ObserveRun(r.base.alias, string(status), r.iterations, elapsed)

	filled := r.Sampler.Filled()
	if r.req.Progress != nil {
		fraction := 1.0
		if status != model.RunCompleted {
			fraction = float64(filled) / float64(len(r.Times))
		}
		r.req.Progress.Progress(fraction, r.iterations, true)
	}

	logger := r.base.logger.With("alias", r.base.alias, "iterations", r.iterations, "elapsed", elapsed)
	switch status {
	case model.RunFailed:
		logger.Debug("simulation failed", "err", err)
		return nil, err
	case model.RunCancelled:
		logger.Info("simulation cancelled", "filled_points", filled, "points", len(r.Times))
	default:
		logger.Debug("simulation finished")
	}

	fluctuations := r.fluctuations
	if fluctuations == nil && r.base.stochastic && r.Params.ComputeFluctuations && !r.cancelled {
		fluctuations = r.Sampler.Fluctuations()
	}
	return &Results{
		Simulator:    r.base.alias,
		Start:        r.req.Start,
		End:          r.req.End,
		Parameters:   r.Params,
		Symbols:      r.names,
		Times:        r.Times,
		Values:       r.Sampler.Mean(),
		Fluctuations: fluctuations,
		Members:      r.Sampler.Members(),
		CreatedAt:    time.Now(),
		Cancelled:    r.cancelled,
		FilledPoints: filled,
		Iterations:   r.iterations,
	}, nil
}
