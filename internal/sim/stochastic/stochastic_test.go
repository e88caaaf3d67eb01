package stochastic

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemsim/internal/metrics"
	"chemsim/internal/model"
	"chemsim/internal/sim"
	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
)

func birthDeath(x0 float64) *model.Model {
	m := model.New("birth-death")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(x0))
	m.AddReaction(model.NewReaction("birth", symbol.NumberValue(5)).MustAddProduct(x, 1))
	m.AddReaction(model.NewReaction("death", symbol.NumberValue(0.5)).MustAddReactant(x, 1))
	return m
}

func conversion() *model.Model {
	m := model.New("conversion")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(100))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	e := m.AddSpecies("E", cell, symbol.NumberValue(7))
	m.AddReaction(model.NewReaction("forward", symbol.NumberValue(0.3)).MustAddReactant(a, 1).MustAddProduct(b, 1))
	m.AddReaction(model.NewReaction("backward", symbol.NumberValue(0.1)).MustAddReactant(b, 1).MustAddProduct(a, 1))
	m.AddReaction(model.NewReaction("catalysis", symbol.NumberValue(1)).MustAddReactant(e, 1).MustAddProduct(e, 1))
	return m
}

func dimerization() *model.Model {
	m := model.New("dimerization")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(100))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	m.AddReaction(model.NewReaction("bind", symbol.NumberValue(0.01)).MustAddReactant(a, 2).MustAddProduct(b, 1))
	m.AddReaction(model.NewReaction("unbind", symbol.NumberValue(0.1)).MustAddReactant(b, 1).MustAddProduct(a, 2))
	return m
}

func delayedProduction() *model.Model {
	m := model.New("delayed-production")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	src := m.AddBoundarySpecies("S", cell, symbol.NumberValue(10))
	p := m.AddSpecies("P", cell, symbol.NumberValue(0))
	r := model.NewReaction("produce", symbol.NumberValue(0.5)).MustAddReactant(src, 1).MustAddProduct(p, 1)
	r.Delay = 2
	m.AddReaction(r)
	return m
}

func simulators() []sim.Simulator {
	return []sim.Simulator{NewGillespie(), NewGibsonBruck(), NewTauLeap()}
}

func params(ensemble int, seed uint64) sim.Parameters {
	return sim.Parameters{EnsembleSize: sim.Int(ensemble), Seed: sim.Uint64(seed)}
}

func TestRegistered(t *testing.T) {
	for _, alias := range []string{AliasGillespie, AliasGibsonBruck, AliasTauLeap} {
		s, err := sim.New(alias)
		if err != nil {
			t.Fatalf("new %s: %v", alias, err)
		}
		if s.Alias() != alias || !s.IsStochastic() {
			t.Fatalf("unexpected simulator %s stochastic=%v", s.Alias(), s.IsStochastic())
		}
	}
}

func TestChooseReactionScansFromLast(t *testing.T) {
	rates := []float64{1, 0, 2, 1}
	assert.Equal(t, 3, chooseReaction(rates, 4, 0.25))
	assert.Equal(t, 2, chooseReaction(rates, 4, 0.5))
	assert.Equal(t, 2, chooseReaction(rates, 4, 0.75))
	assert.Equal(t, 0, chooseReaction(rates, 4, 1))
	assert.Equal(t, 0, chooseReaction(rates, 4.0000001, 1))
}

func TestMassConservation(t *testing.T) {
	for _, s := range simulators() {
		t.Run(s.Alias(), func(t *testing.T) {
			require.NoError(t, s.Initialize(conversion()))
			res, err := s.Simulate(context.Background(), sim.Request{
				Start: 0, End: 20, NumPoints: 21, Parameters: params(4, 7),
			})
			require.NoError(t, err)
			require.Equal(t, 21, res.FilledPoints)
			for i := range res.Times {
				row := res.Values[i]
				assert.InDelta(t, 100, row[0]+row[1], 1e-9)
				assert.Equal(t, 7.0, row[2])
			}
		})
	}
}

func TestNoReactionsHoldPopulations(t *testing.T) {
	m := model.New("inert")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	m.AddSpecies("X", cell, symbol.NumberValue(3))

	for _, s := range simulators() {
		t.Run(s.Alias(), func(t *testing.T) {
			require.NoError(t, s.Initialize(m))
			res, err := s.Simulate(context.Background(), sim.Request{
				Start: 0, End: 10, NumPoints: 3, Parameters: params(2, 5),
			})
			require.NoError(t, err)
			require.Equal(t, 3, res.FilledPoints)
			assert.Equal(t, [][]float64{{3}, {3}, {3}}, res.Values)
		})
	}
}

func TestEnsembleMeanMatchesRateEquation(t *testing.T) {
	for _, s := range simulators() {
		t.Run(s.Alias(), func(t *testing.T) {
			require.NoError(t, s.Initialize(birthDeath(0)))
			res, err := s.Simulate(context.Background(), sim.Request{
				Start: 0, End: 10, NumPoints: 6, Parameters: params(400, 11),
			})
			require.NoError(t, err)
			for i, tm := range res.Times {
				want := 10 * (1 - math.Exp(-0.5*tm))
				assert.InDelta(t, want, res.Values[i][0], 0.8, "t=%g", tm)
			}
		})
	}
}

func TestNextReactionAgreesWithDirectMethod(t *testing.T) {
	req := sim.Request{
		Start:     0,
		End:       5,
		NumPoints: 6,
		Symbols:   []string{"A"},
	}
	run := func(s sim.Simulator, seed uint64) *sim.Results {
		require.NoError(t, s.Initialize(dimerization()))
		r := req
		r.Parameters = params(400, seed)
		r.Parameters.ComputeFluctuations = true
		res, err := s.Simulate(context.Background(), r)
		require.NoError(t, err)
		require.Len(t, res.Fluctuations, 1)
		return res
	}
	direct := run(NewGillespie(), 1)
	next := run(NewGibsonBruck(), 2)

	assert.InDelta(t, direct.Final()["A"], next.Final()["A"], 1.5)
	ratio := direct.Fluctuations[0] / next.Fluctuations[0]
	assert.InDelta(t, 1, ratio, 0.25)
}

func TestSeedReproducesTrajectories(t *testing.T) {
	for _, s := range simulators() {
		t.Run(s.Alias(), func(t *testing.T) {
			require.NoError(t, s.Initialize(birthDeath(3)))
			req := sim.Request{Start: 0, End: 5, NumPoints: 11, Parameters: params(3, 42)}
			first, err := s.Simulate(context.Background(), req)
			require.NoError(t, err)
			second, err := s.Simulate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, first.Values, second.Values)
		})
	}
}

func TestSingleMemberValuesAreIntegers(t *testing.T) {
	m := model.New("fractional")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(2.5))
	m.AddReaction(model.NewReaction("death", symbol.NumberValue(0.1)).MustAddReactant(x, 1))

	s := NewGillespie()
	require.NoError(t, s.Initialize(m))
	res, err := s.Simulate(context.Background(), sim.Request{Start: 0, End: 1, NumPoints: 5, Parameters: params(1, 3)})
	require.NoError(t, err)
	for _, row := range res.Values {
		assert.Equal(t, math.Floor(row[0]), row[0])
	}
	assert.Contains(t, []float64{2, 3}, res.Values[0][0])
}

func TestTauLeapKeepsPopulationsNonNegative(t *testing.T) {
	m := model.New("decay")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(10000))
	m.AddReaction(model.NewReaction("decay", symbol.NumberValue(1)).MustAddReactant(x, 1))

	reg := prometheus.NewRegistry()
	s := NewTauLeap(sim.WithMetrics(metrics.NewRecorder(reg)))
	require.NoError(t, s.Initialize(m))

	for seed := uint64(1); seed <= 5; seed++ {
		res, err := s.Simulate(context.Background(), sim.Request{Start: 0, End: 8, NumPoints: 17, Parameters: params(1, seed)})
		require.NoError(t, err)
		for i, row := range res.Values {
			assert.GreaterOrEqual(t, row[0], 0.0, "seed %d t=%g", seed, res.Times[i])
		}
		assert.InDelta(t, 10000*math.Exp(-1), res.Values[2][0], 250)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var leaps float64
	for _, mf := range families {
		if mf.GetName() == "chemsim_tauleap_leaps_total" {
			leaps = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Greater(t, leaps, 0.0)
}

func TestTauLeapRejectsLocalParameters(t *testing.T) {
	m := birthDeath(0)
	r := model.NewReaction("local", symbol.ExpressionValue(symbol.Ref("kl")))
	require.NoError(t, r.AddLocalParameter("kl", symbol.NumberValue(1)))
	m.AddReaction(r.MustAddProduct(m.Species()[0], 1))

	s := NewTauLeap()
	err := s.Initialize(m)
	assert.ErrorIs(t, err, simerr.ErrInvalidInput)
	assert.Nil(t, s.Network())

	require.NoError(t, NewGillespie().Initialize(m))
}

func TestFluctuationsNeedEnsemble(t *testing.T) {
	s := NewGibsonBruck()
	require.NoError(t, s.Initialize(birthDeath(0)))
	_, err := s.Simulate(context.Background(), sim.Request{
		Start:      0,
		End:        1,
		NumPoints:  2,
		Parameters: sim.Parameters{ComputeFluctuations: true},
	})
	assert.ErrorIs(t, err, simerr.ErrIllegalArgument)
}

func TestDelayedProduction(t *testing.T) {
	for _, s := range []sim.Simulator{NewGillespie(), NewGibsonBruck()} {
		t.Run(s.Alias(), func(t *testing.T) {
			require.NoError(t, s.Initialize(delayedProduction()))
			res, err := s.Simulate(context.Background(), sim.Request{
				Start:      0,
				End:        6,
				NumPoints:  7,
				Symbols:    []string{"P", "produce" + sim.IntermediateSuffix},
				Parameters: params(200, 5),
			})
			require.NoError(t, err)
			for i, tm := range res.Times {
				if tm <= 2 {
					assert.Equal(t, 0.0, res.Values[i][0], "P at t=%g", tm)
				}
			}
			assert.InDelta(t, 20, res.Values[6][0], 1.5)
			assert.InDelta(t, 10, res.Values[6][1], 1.5)
		})
	}
}

func TestMultistepConversionTime(t *testing.T) {
	m := model.New("multistep")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(100))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	r := model.NewReaction("chain", symbol.NumberValue(1)).MustAddReactant(a, 1).MustAddProduct(b, 1)
	r.Steps = 5
	m.AddReaction(r)

	s := NewGillespie()
	require.NoError(t, s.Initialize(m))
	res, err := s.Simulate(context.Background(), sim.Request{
		Start: 0, End: 5, NumPoints: 2, Symbols: []string{"B"}, Parameters: params(100, 9),
	})
	require.NoError(t, err)

	// five unit-rate steps: B(5)/A0 is the Erlang(5, 1) distribution at 5
	var tail float64
	term := 1.0
	for k := 0; k < 5; k++ {
		if k > 0 {
			term *= 5 / float64(k)
		}
		tail += term
	}
	want := 100 * (1 - math.Exp(-5)*tail)
	assert.InDelta(t, want, res.Values[1][0], 2.5)
}

func TestCancelledContextReturnsPartialResults(t *testing.T) {
	m := model.New("decay")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(5000))
	m.AddReaction(model.NewReaction("decay", symbol.NumberValue(1)).MustAddReactant(x, 1))

	s := NewGillespie()
	require.NoError(t, s.Initialize(m))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Simulate(ctx, sim.Request{Start: 0, End: 100, NumPoints: 101, Parameters: params(2, 1)})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Less(t, res.FilledPoints, 101)
	assert.Nil(t, res.Fluctuations)
}
