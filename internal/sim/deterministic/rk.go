package deterministic

import (
	"log/slog"
	"math"

	"chemsim/internal/metrics"
	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

// integrator is the Runge-Kutta scratch pad shared by both simulators. It is
// sized for one network and rebuilt for every Simulate call. The network's
// dynamic array always holds the accepted state at the current time; the
// step routines use it as evaluation scratch and restore it on return.
type integrator struct {
	net   *sim.Network
	alias string

	rates          []float64
	k1, k2, k3, k4 []float64
	ysav, yscratch []float64
	y1, y2         []float64
	yscale, dydt   []float64

	stepSize    float64
	maxStepSize float64
	maxRel      float64
	maxAbs      float64
	iterations  int

	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newIntegrator(alias string, run *sim.Run) *integrator {
	n := len(run.Net.Dynamic)
	vec := func() []float64 { return make([]float64, n) }
	return &integrator{
		net:      run.Net,
		alias:    alias,
		rates:    make([]float64, len(run.Net.Reactions)),
		k1:       vec(),
		k2:       vec(),
		k3:       vec(),
		k4:       vec(),
		ysav:     vec(),
		yscratch: vec(),
		y1:       vec(),
		y2:       vec(),
		yscale:   vec(),
		dydt:     vec(),
		logger:   run.Logger(),
		metrics:  run.Metrics(),
	}
}

// derivative evaluates dy/dt for state y at time t.
func (g *integrator) derivative(t float64, y, out []float64) error {
	copy(g.net.Dynamic, y)
	g.net.Evaluator.SetTime(t)
	return g.net.Derivative(g.rates, out)
}

// rk4Step advances y0 by one classic fourth-order step of size h into out.
// Negative results are clamped to zero. out may alias y0.
func (g *integrator) rk4Step(t, h float64, y0, out []float64) error {
	half := h / 2
	if err := g.derivative(t, y0, g.k1); err != nil {
		return err
	}
	for i := range y0 {
		g.yscratch[i] = y0[i] + half*g.k1[i]
	}
	if err := g.derivative(t+half, g.yscratch, g.k2); err != nil {
		return err
	}
	for i := range y0 {
		g.yscratch[i] = y0[i] + half*g.k2[i]
	}
	if err := g.derivative(t+half, g.yscratch, g.k3); err != nil {
		return err
	}
	for i := range y0 {
		g.yscratch[i] = y0[i] + h*g.k3[i]
	}
	if err := g.derivative(t+h, g.yscratch, g.k4); err != nil {
		return err
	}
	for i := range y0 {
		v := y0[i] + h/6*(g.k1[i]+2*g.k2[i]+2*g.k3[i]+g.k4[i])
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return nil
}

// computeScale sets yscale to |y| + |h·dy/dt| for the state in ysav.
func (g *integrator) computeScale(t, h float64) error {
	if err := g.derivative(t, g.ysav, g.dydt); err != nil {
		return err
	}
	nonzero := false
	for i, y := range g.ysav {
		g.yscale[i] = math.Abs(y) + math.Abs(g.dydt[i]*h)
		if g.yscale[i] > 0 {
			nonzero = true
		}
	}
	if !nonzero && len(g.ysav) > 0 {
		return simerr.Accuracy(g.alias, t, "unable to determine any error scale")
	}
	return nil
}

// rkqc takes one full step and two half steps of size h from the state in
// ysav, leaves the Richardson-extrapolated result in y2 and returns the
// aggregate relative and absolute differences between the two estimates.
func (g *integrator) rkqc(t, h float64) (float64, float64, error) {
	defer g.restore(t)
	if err := g.computeScale(t, h); err != nil {
		return 0, 0, err
	}
	if err := g.rk4Step(t, h, g.ysav, g.y1); err != nil {
		return 0, 0, err
	}
	half := h / 2
	if err := g.rk4Step(t, half, g.ysav, g.y2); err != nil {
		return 0, 0, err
	}
	if err := g.rk4Step(t+half, half, g.y2, g.y2); err != nil {
		return 0, 0, err
	}

	var rel, abs float64
	for i := range g.y2 {
		delta := g.y2[i] - g.y1[i]
		if scale := g.yscale[i]; scale > 0 {
			rel += math.Abs(delta) / scale
			abs += math.Abs(delta)
		}
		v := g.y2[i] + delta/15
		if v < 0 {
			v = 0
		}
		g.y2[i] = v
	}
	return rel, abs, nil
}

func (g *integrator) restore(t float64) {
	copy(g.net.Dynamic, g.ysav)
	g.net.Evaluator.SetTime(t)
}

// advanceFunc computes the next state from time t into the network's dynamic
// array, with a step no longer than limit, and returns the step taken.
type advanceFunc func(t, limit float64) (float64, error)

// integrate runs the shared output loop: every step is clipped so that it
// lands exactly on the next output time, and delayed-reaction histories are
// updated after each accepted step.
func integrate(run *sim.Run, g *integrator, advance advanceFunc) (*sim.Results, error) {
	net := run.Net
	t := run.Start()
	if err := net.Reset(t); err != nil {
		return run.Finish(err)
	}
	run.BeginMember(0)
	if err := net.UpdateSolvers(t); err != nil {
		return run.Finish(err)
	}
	if err := run.Sampler.Record(t); err != nil {
		return run.Finish(err)
	}

	for !run.Sampler.Done() {
		if run.Tick(t) {
			break
		}
		next := run.Sampler.Next()
		limit := next - t
		h, err := advance(t, limit)
		if err != nil {
			return run.Finish(err)
		}
		if h >= limit {
			t = next
		} else {
			t += h
		}
		net.Evaluator.SetTime(t)
		net.ClearCaches()
		if err := net.UpdateSolvers(t); err != nil {
			return run.Finish(err)
		}
		if err := run.Sampler.Record(t); err != nil {
			return run.Finish(err)
		}
	}
	run.EndMember()

	if run.Params.ComputeFluctuations && !run.Cancelled() {
		run.SetFluctuations(fluctuations(run))
	}
	return run.Finish(nil)
}
