// Package optimize drives reduced-space optimization of PDE-constrained
// problems. The caller supplies the reduced cost functional and its
// adjoint-based gradient; this package provides the outer iteration:
// descent directions (steepest descent, nonlinear CG, limited-memory
// BFGS, truncated Newton, primal-dual active set), an Armijo line
// search, box-constraint handling and convergence control.
package optimize

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdekit/pdeopt/criteria"
)

// Problem is the boundary to the state/adjoint machinery. Cost solves
// the state system at u and evaluates the reduced cost functional;
// Gradient additionally solves the adjoint system and assembles the
// reduced gradient. The driver pairs gradients with directions by the
// componentwise dot product, so Gradient must produce ∇J in that
// pairing.
type Problem interface {
	Cost(u []float64) (float64, error)
	// Gradient evaluates ∇J(u) into dst. len(dst) == len(u).
	Gradient(dst, u []float64) error
}

// HessianProblem extends Problem with the action of the reduced Hessian,
// obtained from second-order adjoint information. It is required by the
// Newton-CG and primal-dual active set algorithms.
type HessianProblem interface {
	Problem
	// HessianAction evaluates ∇²J(u)·v into dst.
	HessianAction(dst, u, v []float64) error
}

// Algorithm selects the descent-direction strategy. The set is closed:
// every variant maps (gradient, history) to a direction and the driver
// is agnostic to which one is plugged in.
type Algorithm int

const (
	GradientDescent Algorithm = iota
	ConjugateGradient
	LBFGS
	NewtonCG
	PDAS
)

// CGFormula selects the β update of the nonlinear conjugate gradient
// method.
type CGFormula int

const (
	FletcherReeves CGFormula = iota
	PolakRibiere
	HestenesStiefel
	// HybridCG clamps the Polak-Ribière value into [0, β_FR].
	HybridCG
)

// Config holds the immutable parameters of one optimization solve.
type Config struct {
	Algorithm Algorithm
	CG        CGFormula
	Criterion criteria.Criterion
	// MaxIter bounds the number of outer iterations.
	MaxIter int
	// Memory is the number of correction pairs kept by LBFGS. Defaults to 5.
	Memory int
	// CGRestart resets the CG direction to steepest descent every n
	// iterations. Zero disables periodic restarts.
	CGRestart int
	// NoScaling disables the ⟨y,s⟩/⟨y,y⟩ scaling of the initial
	// inverse-Hessian approximation in LBFGS.
	NoScaling bool
	// LineSearchC is the sufficient-decrease constant. Defaults to 1e-4.
	LineSearchC float64
	// LineSearchContraction is the backtracking factor. Defaults to 0.5.
	LineSearchContraction float64
	// MinStep is the smallest admissible step length. Defaults to 1e-12.
	MinStep float64
	// StagnationLimit is the number of consecutive line-search failures
	// after which the solve fails. Defaults to 3.
	StagnationLimit int
	// Shift is the constant c of the primal-dual active set prediction
	// μ + c(u - bound). Defaults to 1.
	Shift float64
	// InnerIter bounds the truncated CG iterations per Newton direction.
	// Defaults to 2n.
	InnerIter int
	// Bounds are optional per-component box constraints.
	Bounds []Bound
}

const (
	defaultMemory      = 5
	defaultLineSearchC = 1e-4
	defaultContraction = 0.5
	defaultMinStep     = 1e-12
	defaultStagnation  = 3
	defaultShift       = 1.0
)

// Status reports how a solve terminated.
type Status int

const (
	ConvGradNorm Status = iota + 1
	ConvActiveSetStable
	StopIterLimit
	StopLineSearch
	StopCancelled
)

// IterRecord is one entry of the per-iteration convergence history.
type IterRecord struct {
	Cost         float64
	GradientNorm float64
	Step         float64
}

// Summary aggregates counters of one optimization solve.
type Summary struct {
	Status  Status
	NumIter int
	// NumEval counts cost and gradient evaluations, including rejected
	// line-search trials.
	NumEval int
}

// Result describes a completed optimization solve.
type Result struct {
	OK           bool
	U            []float64
	Cost         float64
	GradientNorm float64
	// Active is the final constraint partition; nil when the problem is
	// unconstrained.
	Active []Activity
	// History holds cost, stationarity norm and accepted step of every
	// outer iteration.
	History []IterRecord
	Summary
}

// ErrInvalidConfiguration reports an unusable algorithm or constraint
// pairing detected before the solve starts.
var ErrInvalidConfiguration = errors.New("optimize: invalid configuration")

// ErrNoAdmissibleStep reports an exhausted line search.
var ErrNoAdmissibleStep = errors.New("optimize: line search found no admissible step")

// NotConvergedError reports that the outer iteration terminated without
// satisfying the convergence criterion. It carries the last iterate so
// callers can inspect partial progress.
type NotConvergedError struct {
	Last         []float64
	Cost         float64
	GradientNorm float64
	Iterations   int
	Reason       string
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("optimize: did not converge after %d iterations (|grad| = %.3e): %s",
		e.Iterations, e.GradientNorm, e.Reason)
}

// Driver runs the outer optimization loop. A single driver must not be
// used from two goroutines at once; separate runs need separate drivers.
type Driver struct {
	n      int
	prob   Problem
	hess   HessianProblem
	cfg    Config
	logger *Logger
}

// New validates the configuration and creates a driver for a problem of
// dimension n. A nil logger is silent.
func New(p Problem, n int, cfg Config, logger *Logger) (*Driver, error) {

	if cfg.Memory <= 0 {
		cfg.Memory = defaultMemory
	}
	if cfg.LineSearchC == 0 {
		cfg.LineSearchC = defaultLineSearchC
	}
	if cfg.LineSearchContraction == 0 {
		cfg.LineSearchContraction = defaultContraction
	}
	if cfg.MinStep == 0 {
		cfg.MinStep = defaultMinStep
	}
	if cfg.StagnationLimit <= 0 {
		cfg.StagnationLimit = defaultStagnation
	}
	if cfg.Shift == 0 {
		cfg.Shift = defaultShift
	}
	if cfg.InnerIter <= 0 {
		cfg.InnerIter = 2 * n
	}

	hess, _ := p.(HessianProblem)

	var err error
	switch {
	case p == nil:
		err = fmt.Errorf("%w: problem is required", ErrInvalidConfiguration)
	case n <= 0:
		err = fmt.Errorf("%w: problem dimension must be greater than 0", ErrInvalidConfiguration)
	case cfg.MaxIter <= 0:
		err = fmt.Errorf("%w: max iteration must be greater than 0", ErrInvalidConfiguration)
	case cfg.Algorithm < GradientDescent || cfg.Algorithm > PDAS:
		err = fmt.Errorf("%w: unknown algorithm", ErrInvalidConfiguration)
	case cfg.CG < FletcherReeves || cfg.CG > HybridCG:
		err = fmt.Errorf("%w: unknown CG formula", ErrInvalidConfiguration)
	case cfg.LineSearchC <= 0 || cfg.LineSearchC >= 1:
		err = fmt.Errorf("%w: line search constant must lie in (0,1)", ErrInvalidConfiguration)
	case cfg.LineSearchContraction <= 0 || cfg.LineSearchContraction >= 1:
		err = fmt.Errorf("%w: line search contraction must lie in (0,1)", ErrInvalidConfiguration)
	case (cfg.Algorithm == NewtonCG || cfg.Algorithm == PDAS) && hess == nil:
		err = fmt.Errorf("%w: algorithm requires second-order adjoint information", ErrInvalidConfiguration)
	case cfg.Algorithm == PDAS && len(cfg.Bounds) == 0:
		err = fmt.Errorf("%w: primal-dual active set requires box constraints", ErrInvalidConfiguration)
	}
	if err == nil {
		err = cfg.Criterion.Validate()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
	}
	if err == nil && cfg.Bounds != nil {
		if len(cfg.Bounds) != n {
			err = fmt.Errorf("%w: bounds size must equal n", ErrInvalidConfiguration)
		} else {
			err = hintBounds(cfg.Bounds)
		}
	}
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = &Logger{Level: LogNoop}
	}

	return &Driver{n: n, prob: p, hess: hess, cfg: cfg, logger: logger}, nil
}

// Solve runs the outer iteration from the initial iterate u0. The
// iterate is owned by the driver and mutated in place each iteration;
// u0 itself is not modified. Cancellation is honored at outer-iteration
// boundaries only.
func (d *Driver) Solve(ctx context.Context, u0 []float64) (*Result, error) {

	if len(u0) != d.n {
		return nil, fmt.Errorf("%w: initial iterate dimension not match problem", ErrInvalidConfiguration)
	}

	u := make([]float64, d.n)
	copy(u, u0)
	if d.cfg.Bounds != nil {
		Clip(u, d.cfg.Bounds)
	}

	if d.cfg.Algorithm == PDAS {
		return d.solvePDAS(ctx, u)
	}
	return d.solveDescent(ctx, u)
}
