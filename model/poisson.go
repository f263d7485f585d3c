// Package model provides concrete reduced-cost problems backed by small
// finite-difference/finite-element discretizations. They implement the
// evaluator boundary of the optimize package (state solve, adjoint
// solve, reduced-gradient assembly) and serve as the CLI demo and the
// end-to-end test fixtures.
package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Poisson1D is the tracking-type optimal control problem
//
//	min J(u) = ½‖y - y_d‖²_M + α/2‖u‖²_M
//	s.t. K y = M u
//
// on the unit interval with homogeneous Dirichlet boundary, discretized
// with n interior nodes by linear finite elements (stiffness matrix K,
// mass matrix M). The adjoint system Kᵀp = M(y - y_d) yields the reduced
// gradient g = M p + α M u in the componentwise pairing the optimizer
// evaluates slopes and norms in.
type Poisson1D struct {
	n      int
	alpha  float64
	h      float64
	target []float64

	k, m *mat.Dense
	kLU  *mat.LU
}

// NewPoisson1D assembles the problem with n interior nodes, Tikhonov
// weight alpha and desired state yd evaluated at the node coordinates.
func NewPoisson1D(n int, alpha float64, yd func(x float64) float64) (*Poisson1D, error) {
	if n <= 0 {
		return nil, errors.New("model: dimension must be greater than 0")
	}
	if alpha < 0 {
		return nil, errors.New("model: Tikhonov weight must not be negative")
	}

	h := 1.0 / float64(n+1)
	p := &Poisson1D{
		n:      n,
		alpha:  alpha,
		h:      h,
		target: make([]float64, n),
		k:      mat.NewDense(n, n, nil),
		m:      mat.NewDense(n, n, nil),
	}

	for i := 0; i < n; i++ {
		p.target[i] = yd(h * float64(i+1))
		p.k.Set(i, i, 2/h)
		p.m.Set(i, i, 4*h/6)
		if i > 0 {
			p.k.Set(i, i-1, -1/h)
			p.m.Set(i, i-1, h/6)
		}
		if i < n-1 {
			p.k.Set(i, i+1, -1/h)
			p.m.Set(i, i+1, h/6)
		}
	}

	p.kLU = &mat.LU{}
	p.kLU.Factorize(p.k)
	return p, nil
}

// Dim returns the number of control degrees of freedom.
func (p *Poisson1D) Dim() int { return p.n }

// Nodes returns the interior node coordinates.
func (p *Poisson1D) Nodes() []float64 {
	x := make([]float64, p.n)
	for i := range x {
		x[i] = p.h * float64(i+1)
	}
	return x
}

// solveState computes y = K⁻¹ M u.
func (p *Poisson1D) solveState(u []float64) (*mat.VecDense, error) {
	rhs := mat.NewVecDense(p.n, nil)
	rhs.MulVec(p.m, mat.NewVecDense(p.n, u))
	y := mat.NewVecDense(p.n, nil)
	if err := p.kLU.SolveVecTo(y, false, rhs); err != nil {
		return nil, fmt.Errorf("model: state solve: %w", err)
	}
	return y, nil
}

// weightedNorm2 computes vᵀ M v.
func (p *Poisson1D) weightedNorm2(v *mat.VecDense) float64 {
	mv := mat.NewVecDense(p.n, nil)
	mv.MulVec(p.m, v)
	return mat.Dot(v, mv)
}

// Cost solves the state system and evaluates the reduced cost.
func (p *Poisson1D) Cost(u []float64) (float64, error) {
	y, err := p.solveState(u)
	if err != nil {
		return 0, err
	}
	diff := mat.NewVecDense(p.n, nil)
	diff.SubVec(y, mat.NewVecDense(p.n, p.target))
	uv := mat.NewVecDense(p.n, u)
	return 0.5*p.weightedNorm2(diff) + 0.5*p.alpha*p.weightedNorm2(uv), nil
}

// Gradient solves state and adjoint systems and assembles the reduced
// gradient g = M p + α M u.
func (p *Poisson1D) Gradient(dst, u []float64) error {
	if len(dst) != p.n || len(u) != p.n {
		return errors.New("model: dimension not match problem")
	}

	y, err := p.solveState(u)
	if err != nil {
		return err
	}

	diff := mat.NewVecDense(p.n, nil)
	diff.SubVec(y, mat.NewVecDense(p.n, p.target))
	rhs := mat.NewVecDense(p.n, nil)
	rhs.MulVec(p.m, diff)

	adj := mat.NewVecDense(p.n, nil)
	if err := p.kLU.SolveVecTo(adj, true, rhs); err != nil {
		return fmt.Errorf("model: adjoint solve: %w", err)
	}

	g := mat.NewVecDense(p.n, dst)
	g.MulVec(p.m, adj)
	au := mat.NewVecDense(p.n, nil)
	au.MulVec(p.m, mat.NewVecDense(p.n, u))
	g.AddScaledVec(g, p.alpha, au)
	return nil
}

// HessianAction applies the reduced Hessian to v using second-order
// adjoint solves: δy = K⁻¹Mv, δp = K⁻ᵀMδy, then ∇²J·v = M δp + α M v.
func (p *Poisson1D) HessianAction(dst, u, v []float64) error {
	if len(dst) != p.n || len(v) != p.n {
		return errors.New("model: dimension not match problem")
	}

	dy, err := p.solveState(v)
	if err != nil {
		return err
	}
	rhs := mat.NewVecDense(p.n, nil)
	rhs.MulVec(p.m, dy)
	dp := mat.NewVecDense(p.n, nil)
	if err := p.kLU.SolveVecTo(dp, true, rhs); err != nil {
		return fmt.Errorf("model: second-order adjoint solve: %w", err)
	}

	h := mat.NewVecDense(p.n, dst)
	h.MulVec(p.m, dp)
	av := mat.NewVecDense(p.n, nil)
	av.MulVec(p.m, mat.NewVecDense(p.n, v))
	h.AddScaledVec(h, p.alpha, av)
	return nil
}
