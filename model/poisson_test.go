package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/pdekit/pdeopt/criteria"
	"github.com/pdekit/pdeopt/optimize"
	"github.com/pdekit/pdeopt/verify"
)

func parabola(x float64) float64 { return x * (1 - x) }

func testControl(n int) []float64 {
	u := make([]float64, n)
	for i := range u {
		u[i] = math.Sin(float64(i + 1)) // fixed, nonconstant
	}
	return u
}

func TestPoisson1DAssembly(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)
	require.Equal(t, 15, p.Dim())

	x := p.Nodes()
	require.Len(t, x, 15)
	require.InDelta(t, 1.0/16.0, x[0], 1e-15)
	require.InDelta(t, 15.0/16.0, x[14], 1e-15)

	_, err = NewPoisson1D(0, 1e-2, parabola)
	require.Error(t, err)
	_, err = NewPoisson1D(15, -1, parabola)
	require.Error(t, err)
}

func TestPoisson1DGradient(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)

	dev, err := verify.GradientCheck(p, testControl(15))
	require.NoError(t, err)
	require.Less(t, dev, 1e-6)
}

func TestPoisson1DDirectionalDerivative(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)

	u := testControl(15)
	h := make([]float64, 15)
	for i := range h {
		h[i] = math.Cos(float64(i))
	}

	g := make([]float64, 15)
	require.NoError(t, p.Gradient(g, u))
	gh := floats.Dot(g, h)

	// central difference of the cost along h
	const eps = 1e-5
	up := make([]float64, 15)
	um := make([]float64, 15)
	for i := range u {
		up[i] = u[i] + eps*h[i]
		um[i] = u[i] - eps*h[i]
	}
	jp, err := p.Cost(up)
	require.NoError(t, err)
	jm, err := p.Cost(um)
	require.NoError(t, err)

	require.InDelta(t, (jp-jm)/(2*eps), gh, 1e-8)
}

func TestPoisson1DTaylor(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)

	h := make([]float64, 15)
	for i := range h {
		h[i] = math.Cos(float64(i))
	}
	res, err := verify.TaylorTest(p, testControl(15), h, 6)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.MinRate(), 1.8)
}

func TestPoisson1DHessianConsistency(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)

	u := testControl(15)
	v := make([]float64, 15)
	for i := range v {
		v[i] = math.Cos(float64(2 * i))
	}

	// the cost is quadratic, so the Hessian action equals the gradient
	// difference g(u+v) - g(u) up to rounding
	uv := make([]float64, 15)
	for i := range uv {
		uv[i] = u[i] + v[i]
	}
	g0 := make([]float64, 15)
	g1 := make([]float64, 15)
	hv := make([]float64, 15)
	require.NoError(t, p.Gradient(g0, u))
	require.NoError(t, p.Gradient(g1, uv))
	require.NoError(t, p.HessianAction(hv, u, v))

	for i := range hv {
		require.InDelta(t, g1[i]-g0[i], hv[i], 1e-8)
	}
}

func TestPoisson1DOptimization(t *testing.T) {
	p, err := NewPoisson1D(31, 1e-2, parabola)
	require.NoError(t, err)

	cfg := optimize.Config{
		Algorithm: optimize.LBFGS,
		Criterion: criteria.Criterion{Convergence: criteria.ConvRelative, Rtol: 1e-6},
		MaxIter:   500,
	}
	dr, err := optimize.New(p, p.Dim(), cfg, nil)
	require.NoError(t, err)

	res, err := dr.Solve(context.Background(), make([]float64, p.Dim()))
	require.NoError(t, err)
	require.True(t, res.OK)

	// the truncated Newton solve must reach the same optimum
	cfg.Algorithm = optimize.NewtonCG
	dr, err = optimize.New(p, p.Dim(), cfg, nil)
	require.NoError(t, err)
	newt, err := dr.Solve(context.Background(), make([]float64, p.Dim()))
	require.NoError(t, err)
	require.True(t, newt.OK)
	require.InDelta(t, res.Cost, newt.Cost, 1e-9)
}

func TestPoisson1DBoxConstrained(t *testing.T) {
	p, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)

	bounds := make([]optimize.Bound, p.Dim())
	for i := range bounds {
		bounds[i] = optimize.Bound{Lower: 0, Upper: 0.05}
	}
	crit := criteria.Criterion{Convergence: criteria.ConvCombined, Rtol: 1e-8, Atol: 1e-10}

	pdas, err := optimize.New(p, p.Dim(), optimize.Config{
		Algorithm: optimize.PDAS,
		Criterion: crit,
		MaxIter:   100,
		Bounds:    bounds,
	}, nil)
	require.NoError(t, err)
	resPDAS, err := pdas.Solve(context.Background(), make([]float64, p.Dim()))
	require.NoError(t, err)
	require.True(t, resPDAS.OK)

	proj, err := optimize.New(p, p.Dim(), optimize.Config{
		Algorithm: optimize.LBFGS,
		Criterion: crit,
		MaxIter:   500,
		Bounds:    bounds,
	}, nil)
	require.NoError(t, err)
	resProj, err := proj.Solve(context.Background(), make([]float64, p.Dim()))
	require.NoError(t, err)
	require.True(t, resProj.OK)

	// the problem is strictly convex, both methods must find the same
	// constrained optimum
	require.InDelta(t, resPDAS.Cost, resProj.Cost, 1e-8)
	for i := range resPDAS.U {
		require.GreaterOrEqual(t, resPDAS.U[i], 0.0)
		require.LessOrEqual(t, resPDAS.U[i], 0.05)
	}
}

func TestQuadraticModel(t *testing.T) {
	q := &Quadratic{Target: []float64{1, -2}, Weights: []float64{1, 3}}

	dev, err := verify.GradientCheck(q, []float64{0.5, 0.5})
	require.NoError(t, err)
	require.Less(t, dev, 1e-6)

	res, err := verify.SecondOrderTaylorTest(q, []float64{0.5, 0.5}, []float64{1, 1}, 4)
	require.NoError(t, err)
	// the expansion is exact, remainders sit at rounding noise
	for _, r := range res.Remainders {
		require.Less(t, r, 1e-12)
	}
}
