package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pdekit/pdeopt/criteria"
	"github.com/pdekit/pdeopt/newton"
	"github.com/pdekit/pdeopt/optimize"
	"github.com/pdekit/pdeopt/verify"
)

func stateConfig() newton.Config {
	return newton.Config{
		Criterion: criteria.Criterion{
			Convergence: criteria.ConvCombined,
			Rtol:        1e-12,
			Atol:        1e-12,
		},
		MaxIter: 50,
		Damped:  true,
	}
}

func TestSemilinearGradient(t *testing.T) {
	p, err := NewSemilinearPoisson1D(15, 1e-2, parabola, stateConfig())
	require.NoError(t, err)

	dev, err := verify.GradientCheck(p, testControl(15))
	require.NoError(t, err)
	require.Less(t, dev, 1e-5)
}

func TestSemilinearTaylor(t *testing.T) {
	p, err := NewSemilinearPoisson1D(15, 1e-2, parabola, stateConfig())
	require.NoError(t, err)

	h := make([]float64, 15)
	for i := range h {
		h[i] = math.Cos(float64(i))
	}
	res, err := verify.TaylorTest(p, testControl(15), h, 5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.MinRate(), 1.8)
}

func TestSemilinearOptimization(t *testing.T) {
	p, err := NewSemilinearPoisson1D(15, 1e-2, parabola, stateConfig())
	require.NoError(t, err)

	u0 := make([]float64, p.Dim())
	j0, err := p.Cost(u0)
	require.NoError(t, err)

	cfg := optimize.Config{
		Algorithm: optimize.LBFGS,
		Criterion: criteria.Criterion{Convergence: criteria.ConvRelative, Rtol: 1e-5},
		MaxIter:   500,
	}
	dr, err := optimize.New(p, p.Dim(), cfg, nil)
	require.NoError(t, err)

	res, err := dr.Solve(context.Background(), u0)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Less(t, res.Cost, j0)
}

func TestSemilinearStateReproducesLinear(t *testing.T) {
	// with the reaction term active the state stays below the linear
	// one for a positive source, both solved from the same control
	lin, err := NewPoisson1D(15, 1e-2, parabola)
	require.NoError(t, err)
	semi, err := NewSemilinearPoisson1D(15, 1e-2, parabola, stateConfig())
	require.NoError(t, err)

	u := make([]float64, 15)
	for i := range u {
		u[i] = 1
	}

	yLin, err := lin.solveState(u)
	require.NoError(t, err)
	ySemi, err := semi.solveState(u)
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		require.Greater(t, yLin.AtVec(i), 0.0)
		require.Greater(t, ySemi[i], 0.0)
		require.LessOrEqual(t, ySemi[i], yLin.AtVec(i)+1e-12)
	}
}
