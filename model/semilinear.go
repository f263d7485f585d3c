package model

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pdekit/pdeopt/newton"
)

// SemilinearPoisson1D is the optimal control problem of Poisson1D with
// the semilinear state equation
//
//	K y + c(y³) = M u
//
// where the cubic reaction term uses a lumped mass weighting. The state
// system is nonlinear and solved with the damped Newton method; the
// adjoint system is linear in the linearized state operator.
type SemilinearPoisson1D struct {
	lin    *Poisson1D
	newton newton.Config

	// last converged state, reused as the Newton initial guess
	warm []float64
}

// NewSemilinearPoisson1D assembles the semilinear problem. The Newton
// configuration governs the inner state solves.
func NewSemilinearPoisson1D(n int, alpha float64, yd func(x float64) float64, cfg newton.Config) (*SemilinearPoisson1D, error) {
	lin, err := NewPoisson1D(n, alpha, yd)
	if err != nil {
		return nil, err
	}
	return &SemilinearPoisson1D{lin: lin, newton: cfg, warm: make([]float64, n)}, nil
}

// Dim returns the number of control degrees of freedom.
func (p *SemilinearPoisson1D) Dim() int { return p.lin.n }

// stateSystem is the nonlinear residual/Jacobian evaluator consumed by
// the Newton solver for a fixed control u.
type stateSystem struct {
	p *SemilinearPoisson1D
	// Mu is the fixed right-hand side of the state equation.
	mu *mat.VecDense
}

func (s *stateSystem) Residual(dst, y []float64) error {
	lin := s.p.lin
	n := lin.n
	if len(dst) != n || len(y) != n {
		return errors.New("model: dimension not match system")
	}
	ky := mat.NewVecDense(n, dst)
	ky.MulVec(lin.k, mat.NewVecDense(n, y))
	for i := range dst {
		dst[i] += lin.h*y[i]*y[i]*y[i] - s.mu.AtVec(i)
	}
	return nil
}

func (s *stateSystem) Jacobian(dst *mat.Dense, y []float64) error {
	lin := s.p.lin
	dst.Copy(lin.k)
	for i, v := range y {
		dst.Set(i, i, dst.At(i, i)+3*lin.h*v*v)
	}
	return nil
}

// solveState runs the damped Newton solve of the semilinear state
// equation, warm-started from the previously converged state.
func (p *SemilinearPoisson1D) solveState(u []float64) ([]float64, error) {
	lin := p.lin
	mu := mat.NewVecDense(lin.n, nil)
	mu.MulVec(lin.m, mat.NewVecDense(lin.n, u))

	res, err := newton.Solve(context.Background(), &stateSystem{p: p, mu: mu}, p.warm, nil, p.newton)
	if err != nil {
		return nil, fmt.Errorf("model: semilinear state solve: %w", err)
	}
	copy(p.warm, res.U)
	return res.U, nil
}

// Cost solves the semilinear state system and evaluates the reduced cost.
func (p *SemilinearPoisson1D) Cost(u []float64) (float64, error) {
	y, err := p.solveState(u)
	if err != nil {
		return 0, err
	}
	lin := p.lin
	diff := mat.NewVecDense(lin.n, nil)
	diff.SubVec(mat.NewVecDense(lin.n, y), mat.NewVecDense(lin.n, lin.target))
	uv := mat.NewVecDense(lin.n, u)
	return 0.5*lin.weightedNorm2(diff) + 0.5*lin.alpha*lin.weightedNorm2(uv), nil
}

// Gradient solves the state and the linearized adjoint system
//
//	(K + 3c·diag(y²)) p = M(y - y_d)
//
// and assembles the reduced gradient g = M p + α M u.
func (p *SemilinearPoisson1D) Gradient(dst, u []float64) error {
	lin := p.lin
	n := lin.n
	if len(dst) != n || len(u) != n {
		return errors.New("model: dimension not match problem")
	}

	y, err := p.solveState(u)
	if err != nil {
		return err
	}

	jac := mat.NewDense(n, n, nil)
	jac.Copy(lin.k)
	for i, v := range y {
		jac.Set(i, i, jac.At(i, i)+3*lin.h*v*v)
	}
	var lu mat.LU
	lu.Factorize(jac)

	diff := mat.NewVecDense(n, nil)
	diff.SubVec(mat.NewVecDense(n, y), mat.NewVecDense(n, lin.target))
	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(lin.m, diff)

	adj := mat.NewVecDense(n, nil)
	if err := lu.SolveVecTo(adj, true, rhs); err != nil {
		return fmt.Errorf("model: adjoint solve: %w", err)
	}

	g := mat.NewVecDense(n, dst)
	g.MulVec(lin.m, adj)
	au := mat.NewVecDense(n, nil)
	au.MulVec(lin.m, mat.NewVecDense(n, u))
	g.AddScaledVec(g, lin.alpha, au)
	return nil
}
