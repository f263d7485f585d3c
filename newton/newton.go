// Package newton solves nonlinear systems F(u) = 0 with a damped Newton
// method. The damping factor is chosen by the natural monotonicity test,
// which guarantees a monotone decrease of the residual norm without
// re-assembling the Jacobian at trial points.
package newton

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pdekit/pdeopt/criteria"
)

// System assembles the residual F(u) and the Jacobian J(u) of the
// nonlinear system. Assembly is delegated to the caller; this package
// only drives the iteration.
type System interface {
	// Residual evaluates F(u) into dst. len(dst) == len(u).
	Residual(dst, u []float64) error
	// Jacobian evaluates J(u) into dst, an n×n matrix.
	Jacobian(dst *mat.Dense, u []float64) error
}

// FixedDOF pins a single degree of freedom to a prescribed value. Fixed
// values are re-applied to the iterate, the residual and the Jacobian at
// every iteration, so an infeasible initial guess is admissible.
type FixedDOF struct {
	Index int
	Value float64
}

// ExhaustPolicy selects the behaviour when the damping search reaches
// the minimum factor without satisfying the monotonicity test.
type ExhaustPolicy int

const (
	// ExhaustAccept accepts the step at the smallest tried factor and
	// flags the iteration as stagnating.
	ExhaustAccept ExhaustPolicy = iota
	// ExhaustFail aborts the solve immediately.
	ExhaustFail
)

// Config holds the immutable parameters of one Newton solve.
type Config struct {
	Criterion criteria.Criterion
	// MaxIter bounds the number of Newton iterations.
	MaxIter int
	// Damped enables the natural monotonicity damping. When false the
	// classical undamped iteration with λ ≡ 1 is used.
	Damped bool
	// MaxHalvings bounds the damping search: the smallest factor tried
	// is 2⁻ᵈ with d = MaxHalvings. Defaults to 8.
	MaxHalvings int
	// Exhaust selects the fallback when no factor passes the test.
	Exhaust ExhaustPolicy
	// StagnationLimit is the number of consecutive iterations without
	// residual decrease after which the solve fails. Defaults to 5.
	StagnationLimit int
	// Logger receives iteration output. A nil logger is silent.
	Logger *Logger
}

const (
	defaultMaxHalvings     = 8
	defaultStagnationLimit = 5
)

// IterTrace records one accepted Newton iteration.
type IterTrace struct {
	ResidualNorm float64
	Lambda       float64
}

// Result describes a completed Newton solve.
type Result struct {
	U            []float64
	Iterations   int
	ResidualNorm float64
	// Stagnated reports that at least one step was accepted with an
	// exhausted damping search.
	Stagnated bool
	// Trace holds the residual norm and the damping factor of every
	// accepted iteration, starting with the initial residual at λ = 0.
	Trace []IterTrace
}

// ErrSingularSystem reports a linear solve failure. It is propagated
// from the factorization, never retried with different parameters.
var ErrSingularSystem = errors.New("newton: singular linearized system")

// NotConvergedError reports that the iteration terminated without
// satisfying the convergence criterion. It carries the last iterate so
// callers can inspect partial progress.
type NotConvergedError struct {
	Last         []float64
	Iterations   int
	ResidualNorm float64
	Reason       string
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("newton: did not converge after %d iterations (‖F‖ = %.3e): %s",
		e.Iterations, e.ResidualNorm, e.Reason)
}

func validate(sys System, u0 []float64, cfg *Config) error {
	switch {
	case sys == nil:
		return errors.New("newton: system is required")
	case len(u0) == 0:
		return errors.New("newton: initial guess must not be empty")
	case cfg.MaxIter <= 0:
		return errors.New("newton: max iteration must be greater than 0")
	}
	if err := cfg.Criterion.Validate(); err != nil {
		return fmt.Errorf("newton: %w", err)
	}
	if cfg.MaxHalvings <= 0 {
		cfg.MaxHalvings = defaultMaxHalvings
	}
	if cfg.StagnationLimit <= 0 {
		cfg.StagnationLimit = defaultStagnationLimit
	}
	return nil
}

func applyFixed(u []float64, fixed []FixedDOF) {
	for _, f := range fixed {
		u[f.Index] = f.Value
	}
}

// zeroFixed clears the residual rows of fixed degrees of freedom, so a
// pinned and re-applied value never contributes to the residual norm.
func zeroFixed(r []float64, fixed []FixedDOF) {
	for _, f := range fixed {
		r[f.Index] = 0
	}
}

// identityRows replaces the Jacobian rows of fixed degrees of freedom
// with unit diagonal rows.
func identityRows(j *mat.Dense, fixed []FixedDOF) {
	_, n := j.Dims()
	for _, f := range fixed {
		for c := 0; c < n; c++ {
			j.Set(f.Index, c, 0)
		}
		j.Set(f.Index, f.Index, 1)
	}
}

// Solve runs the damped Newton iteration uₖ₊₁ = uₖ + λₖδuₖ where δuₖ
// solves J(uₖ)δuₖ = -F(uₖ). Cancellation is honored at iteration
// boundaries only; a linear solve in flight is never interrupted.
func Solve(ctx context.Context, sys System, u0 []float64, fixed []FixedDOF, cfg Config) (*Result, error) {

	if err := validate(sys, u0, &cfg); err != nil {
		return nil, err
	}

	n := len(u0)
	log := cfg.Logger

	u := make([]float64, n)
	copy(u, u0)
	applyFixed(u, fixed)

	res := make([]float64, n)
	if err := sys.Residual(res, u); err != nil {
		return nil, err
	}
	zeroFixed(res, fixed)

	norm := cfg.Criterion.Norm.Of(res)
	refNorm := norm // fixed for the lifetime of this solve

	st := &Result{
		U:            u,
		ResidualNorm: norm,
		Trace:        []IterTrace{{ResidualNorm: norm}},
	}

	log.iterate(0, norm, 0)

	jac := mat.NewDense(n, n, nil)
	delta := make([]float64, n)
	trial := make([]float64, n)
	trialRes := make([]float64, n)
	stagnant := 0

	for k := 0; ; k++ {
		if cfg.Criterion.Met(norm, refNorm) {
			st.Iterations = k
			log.exit("converged", k, norm)
			return st, nil
		}
		if k >= cfg.MaxIter {
			log.exit("iteration limit", k, norm)
			return nil, &NotConvergedError{
				Last: u, Iterations: k, ResidualNorm: norm,
				Reason: "maximum number of iterations exceeded",
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, &NotConvergedError{
				Last: u, Iterations: k, ResidualNorm: norm,
				Reason: err.Error(),
			}
		}

		if err := sys.Jacobian(jac, u); err != nil {
			return nil, err
		}
		identityRows(jac, fixed)

		var lu mat.LU
		lu.Factorize(jac)
		rhs := mat.NewVecDense(n, nil)
		for i, r := range res {
			rhs.SetVec(i, -r)
		}
		sol := mat.NewVecDense(n, delta)
		if err := lu.SolveVecTo(sol, false, rhs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
		}

		lambda, trialNorm, exhausted, err := dampStep(sys, u, delta, res, norm, fixed, &cfg, trial, trialRes)
		if err != nil {
			return nil, err
		}
		if exhausted {
			if cfg.Exhaust == ExhaustFail {
				log.exit("damping exhausted", k, norm)
				return nil, &NotConvergedError{
					Last: u, Iterations: k, ResidualNorm: norm,
					Reason: "damping search exhausted without monotone decrease",
				}
			}
			st.Stagnated = true
		}

		copy(u, trial)
		copy(res, trialRes)
		if trialNorm >= norm {
			stagnant++
		} else {
			stagnant = 0
		}
		norm = trialNorm
		st.ResidualNorm = norm
		st.Trace = append(st.Trace, IterTrace{ResidualNorm: norm, Lambda: lambda})

		log.iterate(k+1, norm, lambda)

		if stagnant >= cfg.StagnationLimit {
			log.exit("stagnation", k+1, norm)
			return nil, &NotConvergedError{
				Last: u, Iterations: k + 1, ResidualNorm: norm,
				Reason: "residual stagnated over several iterations",
			}
		}
	}
}

// dampStep selects the damping factor by the natural monotonicity test:
// starting at λ = 1, halve until ‖F(u + λδ)‖ < (1 - λ/4)‖F(u)‖. The
// Jacobian is never re-assembled during the search. When the search
// exhausts the minimum factor, the smallest tried step is reported with
// exhausted = true and the caller decides the fallback.
func dampStep(sys System, u, delta, res []float64, norm float64, fixed []FixedDOF,
	cfg *Config, trial, trialRes []float64) (lambda, trialNorm float64, exhausted bool, err error) {

	lambda = 1.0
	minLambda := 1.0
	for i := 0; i < cfg.MaxHalvings; i++ {
		minLambda /= 2
	}

	for {
		for i := range u {
			trial[i] = u[i] + lambda*delta[i]
		}
		applyFixed(trial, fixed)
		if err = sys.Residual(trialRes, trial); err != nil {
			return
		}
		zeroFixed(trialRes, fixed)
		trialNorm = cfg.Criterion.Norm.Of(trialRes)

		if !cfg.Damped || trialNorm < (1-lambda/4)*norm {
			return
		}
		if lambda/2 < minLambda {
			exhausted = true
			return
		}
		lambda /= 2
	}
}
