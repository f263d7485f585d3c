// Package verify checks adjoint-based gradients and Hessian actions of
// reduced-cost problems against Taylor expansions and finite
// differences. A correct gradient makes the first-order Taylor remainder
// shrink quadratically under step halving; a correct Hessian action
// makes the second-order remainder shrink cubically.
package verify

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pdekit/pdeopt/optimize"
)

var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// TaylorResult holds the remainders of a Taylor test for a sequence of
// halved perturbation sizes, and the observed convergence rates
// log₂(Rᵢ₋₁/Rᵢ) between consecutive remainders.
type TaylorResult struct {
	Eps        []float64
	Remainders []float64
	Rates      []float64
}

// MinRate returns the smallest observed rate. Remainders at machine
// precision produce unreliable rates; callers should perturb with a
// scale where the remainder stays well above rounding noise.
func (r *TaylorResult) MinRate() float64 {
	min := math.Inf(1)
	for _, v := range r.Rates {
		min = math.Min(min, v)
	}
	return min
}

func taylorEps(steps int) []float64 {
	eps := make([]float64, steps)
	e := 1e-2
	for i := range eps {
		eps[i] = e
		e /= 2
	}
	return eps
}

// TaylorTest computes first-order Taylor remainders
//
//	R(ε) = |J(u+εh) - J(u) - ε⟨∇J(u), h⟩|
//
// for halving ε. Rates near 2 certify the adjoint gradient.
func TaylorTest(p optimize.Problem, u, h []float64, steps int) (*TaylorResult, error) {
	if steps < 2 {
		return nil, errors.New("verify: need at least 2 steps")
	}
	if len(h) != len(u) {
		return nil, errors.New("verify: direction dimension not match iterate")
	}

	f0, err := p.Cost(u)
	if err != nil {
		return nil, err
	}
	g := make([]float64, len(u))
	if err := p.Gradient(g, u); err != nil {
		return nil, err
	}
	gh := floats.Dot(g, h)

	return remainders(p, u, h, steps, func(eps, f float64) float64 {
		return math.Abs(f - f0 - eps*gh)
	})
}

// SecondOrderTaylorTest computes second-order Taylor remainders
//
//	R(ε) = |J(u+εh) - J(u) - ε⟨∇J(u), h⟩ - ε²/2·⟨∇²J(u)h, h⟩|
//
// for halving ε. Rates near 3 certify the Hessian action.
func SecondOrderTaylorTest(p optimize.HessianProblem, u, h []float64, steps int) (*TaylorResult, error) {
	if steps < 2 {
		return nil, errors.New("verify: need at least 2 steps")
	}
	if len(h) != len(u) {
		return nil, errors.New("verify: direction dimension not match iterate")
	}

	f0, err := p.Cost(u)
	if err != nil {
		return nil, err
	}
	g := make([]float64, len(u))
	if err := p.Gradient(g, u); err != nil {
		return nil, err
	}
	hv := make([]float64, len(u))
	if err := p.HessianAction(hv, u, h); err != nil {
		return nil, err
	}
	gh := floats.Dot(g, h)
	hh := floats.Dot(hv, h)

	return remainders(p, u, h, steps, func(eps, f float64) float64 {
		return math.Abs(f - f0 - eps*gh - 0.5*eps*eps*hh)
	})
}

func remainders(p optimize.Problem, u, h []float64, steps int, rem func(eps, f float64) float64) (*TaylorResult, error) {
	res := &TaylorResult{
		Eps:        taylorEps(steps),
		Remainders: make([]float64, steps),
		Rates:      make([]float64, steps-1),
	}
	trial := make([]float64, len(u))
	for i, eps := range res.Eps {
		for j := range u {
			trial[j] = u[j] + eps*h[j]
		}
		f, err := p.Cost(trial)
		if err != nil {
			return nil, err
		}
		res.Remainders[i] = rem(eps, f)
	}
	for i := 1; i < steps; i++ {
		res.Rates[i-1] = math.Log2(res.Remainders[i-1] / res.Remainders[i])
	}
	return res, nil
}

// GradientCheck compares the adjoint gradient against a central finite
// difference of the cost functional and returns the largest absolute
// componentwise deviation. The step size follows the usual cube-root
// scaling of the machine epsilon.
func GradientCheck(p optimize.Problem, u []float64) (float64, error) {

	g := make([]float64, len(u))
	if err := p.Gradient(g, u); err != nil {
		return 0, err
	}

	x := make([]float64, len(u))
	copy(x, u)

	maxDev := 0.0
	for i := range x {
		s := cubeEps * math.Max(1, math.Abs(x[i]))
		t := x[i]

		x[i] = t - s
		fl, err := p.Cost(x)
		if err != nil {
			return 0, err
		}
		x[i] = t + s
		fr, err := p.Cost(x)
		if err != nil {
			return 0, err
		}
		x[i] = t

		fd := (fr - fl) / (2 * s)
		maxDev = math.Max(maxDev, math.Abs(fd-g[i]))
	}
	return maxDev, nil
}
