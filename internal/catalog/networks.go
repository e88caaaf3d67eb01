package catalog

import (
	"chemsim/internal/model"
	"chemsim/internal/symbol"
)

func initializeBuiltInNetworks() {
	MustRegister(Network{
		Name:        "birth-death",
		Description: "constant production and first-order degradation of X",
		Build:       BirthDeath,
		End:         20,
		NumPoints:   21,
		Simulator:   "ODE-RK5-adaptive",
	})
	MustRegister(Network{
		Name:        "decay",
		Description: "first-order decay of X",
		Build:       Decay,
		End:         5,
		NumPoints:   11,
		Simulator:   "gillespie-direct",
	})
	MustRegister(Network{
		Name:        "catalysis",
		Description: "a catalyst that fires without being consumed",
		Build:       Catalysis,
		End:         10,
		NumPoints:   11,
		Simulator:   "gibson-bruck",
	})
	MustRegister(Network{
		Name:        "dimerization",
		Description: "reversible dimerization 2A <-> B",
		Build:       Dimerization,
		End:         5,
		NumPoints:   11,
		Simulator:   "gibson-bruck",
	})
	MustRegister(Network{
		Name:        "delayed-production",
		Description: "production of P from a boundary source after a fixed delay",
		Build:       DelayedProduction,
		End:         10,
		NumPoints:   11,
		Simulator:   "ODE-RK5-adaptive",
	})
	MustRegister(Network{
		Name:        "multistep-chain",
		Description: "conversion of A to B through a chain of unit-rate steps",
		Build:       MultistepChain,
		End:         15,
		NumPoints:   16,
		Simulator:   "gillespie-direct",
	})
	MustRegister(Network{
		Name:        "michaelis-menten",
		Description: "saturating conversion with a reaction-local Km",
		Build:       MichaelisMenten,
		End:         50,
		NumPoints:   26,
		Simulator:   "ODE-RK5-fixed",
	})
	MustRegister(Network{
		Name:        "stiff-decay",
		Description: "fast and slow decays with rate constants 500 apart",
		Build:       StiffDecay,
		End:         2,
		NumPoints:   21,
		Simulator:   "ODE-RK5-adaptive",
	})
}

func BirthDeath() *model.Model {
	m := model.New("birth-death")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(0))
	m.AddParameter("k1", symbol.NumberValue(5))
	m.AddParameter("k2", symbol.NumberValue(0.5))
	m.AddReaction(model.NewReaction("birth", symbol.ExpressionValue(symbol.Ref("k1"))).MustAddProduct(x, 1))
	m.AddReaction(model.NewReaction("death", symbol.ExpressionValue(symbol.Mul(symbol.Ref("k2"), symbol.Ref("X")))).MustAddReactant(x, 1))
	return m
}

func Decay() *model.Model {
	m := model.New("decay")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(1000))
	m.AddReaction(model.NewReaction("decay", symbol.NumberValue(1)).MustAddReactant(x, 1))
	return m
}

func Catalysis() *model.Model {
	m := model.New("catalysis")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(10))
	m.AddReaction(model.NewReaction("turnover", symbol.NumberValue(2)).MustAddReactant(a, 1).MustAddProduct(a, 1))
	return m
}

func Dimerization() *model.Model {
	m := model.New("dimerization")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(100))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	m.AddReaction(model.NewReaction("bind", symbol.NumberValue(0.01)).MustAddReactant(a, 2).MustAddProduct(b, 1))
	m.AddReaction(model.NewReaction("unbind", symbol.NumberValue(0.1)).MustAddReactant(b, 1).MustAddProduct(a, 2))
	return m
}

func DelayedProduction() *model.Model {
	m := model.New("delayed-production")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	src := m.AddBoundarySpecies("S", cell, symbol.NumberValue(10))
	p := m.AddSpecies("P", cell, symbol.NumberValue(0))
	m.AddReaction(model.NewReaction("decay", symbol.NumberValue(0.2)).MustAddReactant(p, 1))
	r := model.NewReaction("produce", symbol.NumberValue(0.5)).MustAddReactant(src, 1).MustAddProduct(p, 1)
	r.Delay = 2
	m.AddReaction(r)
	return m
}

func MultistepChain() *model.Model {
	m := model.New("multistep-chain")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(100))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	r := model.NewReaction("chain", symbol.NumberValue(1)).MustAddReactant(a, 1).MustAddProduct(b, 1)
	r.Steps = 5
	m.AddReaction(r)
	return m
}

func MichaelisMenten() *model.Model {
	m := model.New("michaelis-menten")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	s := m.AddSpecies("S", cell, symbol.NumberValue(100))
	p := m.AddSpecies("P", cell, symbol.NumberValue(0))
	m.AddParameter("Vmax", symbol.NumberValue(4))
	m.AddParameter("Km", symbol.NumberValue(1000))

	rate := symbol.Div(
		symbol.Mul(symbol.Ref("Vmax"), symbol.Ref("S")),
		symbol.Add(symbol.Ref("Km"), symbol.Ref("S")),
	)
	r := model.NewReaction("convert", symbol.ExpressionValue(rate)).MustAddReactant(s, 1).MustAddProduct(p, 1)
	// the local Km shadows the global one
	if err := r.AddLocalParameter("Km", symbol.NumberValue(20)); err != nil {
		panic(err)
	}
	m.AddReaction(r)
	return m
}

func StiffDecay() *model.Model {
	m := model.New("stiff-decay")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	fast := m.AddSpecies("F", cell, symbol.NumberValue(1000))
	slow := m.AddSpecies("S", cell, symbol.NumberValue(1000))
	m.AddReaction(model.NewReaction("fast", symbol.NumberValue(50)).MustAddReactant(fast, 1))
	m.AddReaction(model.NewReaction("slow", symbol.NumberValue(0.1)).MustAddReactant(slow, 1))
	return m
}
