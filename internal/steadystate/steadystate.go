// Package steadystate estimates species fluctuations about a stable steady
// state with the linear noise approximation.
//
// The covariance C of the species populations solves the Lyapunov equation
// J C + C Jᵀ + D = 0, where J is the Jacobian of the deterministic rate
// equations and D = Σ_j a_j ν_j ν_jᵀ is the diffusion matrix built from the
// reaction rates a_j and adjustment vectors ν_j.
package steadystate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

var ErrUnstable = errors.New("steady state is not stable")

// MaxSpecies bounds the Kronecker system, whose size grows with the fourth
// power of the species count.
const MaxSpecies = 64

type Estimate struct {
	Species      []string
	Jacobian     *mat.Dense
	Diffusion    *mat.Dense
	Eigenvalues  []complex128
	Covariance   *mat.Dense
	Fluctuations []float64
}

// FluctuationMap returns the standard deviations keyed by species name.
func (e *Estimate) FluctuationMap() map[string]float64 {
	out := make(map[string]float64, len(e.Species))
	for i, name := range e.Species {
		out[name] = e.Fluctuations[i]
	}
	return out
}

// Analyze linearizes net about its current dynamic state. The network's
// values are unchanged on return. It fails with ErrUnstable when any
// eigenvalue of the Jacobian has a non-negative real part.
func Analyze(net *sim.Network) (*Estimate, error) {
	if net == nil {
		return nil, simerr.ErrNotInitialized
	}
	n := len(net.Dynamic)
	if n > MaxSpecies {
		return nil, simerr.IllegalArgument("steady state analysis supports at most %d species, model has %d", MaxSpecies, n)
	}
	est := &Estimate{Species: append([]string(nil), net.DynamicNames...)}
	if n == 0 {
		return est, nil
	}

	jac, rates, err := jacobian(net)
	if err != nil {
		return nil, err
	}
	est.Jacobian = jac
	est.Diffusion = diffusion(net, rates)

	var eig mat.Eigen
	if ok := eig.Factorize(jac, mat.EigenNone); !ok {
		return nil, fmt.Errorf("%w: eigen decomposition did not converge", ErrUnstable)
	}
	est.Eigenvalues = eig.Values(nil)
	for _, v := range est.Eigenvalues {
		if real(v) >= 0 {
			return nil, fmt.Errorf("%w: eigenvalue %g", ErrUnstable, v)
		}
	}

	cov, err := lyapunov(jac, est.Diffusion)
	if err != nil {
		return nil, err
	}
	est.Covariance = cov
	est.Fluctuations = make([]float64, n)
	for i := range est.Fluctuations {
		est.Fluctuations[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	return est, nil
}

// jacobian differentiates dy/dt by forward differences and also returns the
// reaction rates at the unperturbed state.
func jacobian(net *sim.Network) (*mat.Dense, []float64, error) {
	n := len(net.Dynamic)
	saved := append([]float64(nil), net.Dynamic...)
	defer func() {
		copy(net.Dynamic, saved)
		net.ClearCaches()
	}()

	rates := make([]float64, len(net.Reactions))
	scratch := make([]float64, len(net.Reactions))
	f0 := make([]float64, n)
	if err := net.Derivative(rates, f0); err != nil {
		return nil, nil, err
	}

	jac := mat.NewDense(n, n, nil)
	f1 := make([]float64, n)
	for k := 0; k < n; k++ {
		h := 1e-6 * math.Max(1, math.Abs(saved[k]))
		copy(net.Dynamic, saved)
		net.Dynamic[k] += h
		if err := net.Derivative(scratch, f1); err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			jac.Set(i, k, (f1[i]-f0[i])/h)
		}
	}
	return jac, rates, nil
}

func diffusion(net *sim.Network, rates []float64) *mat.Dense {
	n := len(net.Dynamic)
	d := mat.NewDense(n, n, nil)
	for j, r := range net.Reactions {
		a := rates[j]
		if a == 0 {
			continue
		}
		for _, ci := range r.Changes {
			for _, ck := range r.Changes {
				d.Set(ci.Index, ck.Index, d.At(ci.Index, ck.Index)+a*ci.Amount*ck.Amount)
			}
		}
	}
	return d
}

// lyapunov solves J C + C Jᵀ = -D through the Kronecker form
// (I⊗J + J⊗I) vec(C) = -vec(D), with vec stacking columns.
func lyapunov(jac, d *mat.Dense) (*mat.Dense, error) {
	n, _ := jac.Dims()
	size := n * n
	a := mat.NewDense(size, size, nil)
	for blk := 0; blk < n; blk++ {
		for i := 0; i < n; i++ {
			for k := 0; k < n; k++ {
				// I⊗J places J on the diagonal blocks
				row, col := blk*n+i, blk*n+k
				a.Set(row, col, a.At(row, col)+jac.At(i, k))
				// J⊗I scales identity blocks by J entries
				row, col = i*n+blk, k*n+blk
				a.Set(row, col, a.At(row, col)+jac.At(i, k))
			}
		}
	}
	b := mat.NewVecDense(size, nil)
	for col := 0; col < n; col++ {
		for row := 0; row < n; row++ {
			b.SetVec(col*n+row, -d.At(row, col))
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: lyapunov system: %v", ErrUnstable, err)
	}
	cov := mat.NewDense(n, n, nil)
	for col := 0; col < n; col++ {
		for row := 0; row < n; row++ {
			cov.Set(row, col, x.AtVec(col*n+row))
		}
	}
	return cov, nil
}
