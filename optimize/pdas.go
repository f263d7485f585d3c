package optimize

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/pdekit/pdeopt/criteria"
)

// solvePDAS runs the primal-dual active set iteration: the partition is
// predicted from the iterate and the multiplier estimate μ = -∇J(u),
// active degrees of freedom are fixed exactly at their bound, and an
// unconstrained-style Newton system is solved on the inactive set. The
// iteration converges when the partition is unchanged between two
// consecutive outer iterations and the reduced gradient satisfies the
// criterion.
func (dr *Driver) solvePDAS(ctx context.Context, u []float64) (*Result, error) {

	n, cfg := dr.n, &dr.cfg
	prob := dr.hess // validated in New

	g := make([]float64, n)
	gRed := make([]float64, n)
	mu := make([]float64, n)
	dir := make([]float64, n)
	trial := make([]float64, n)
	act := make([]Activity, n)
	actPrev := make([]Activity, n)

	evals := 0
	evalGrad := func() error {
		if err := prob.Gradient(g, u); err != nil {
			return err
		}
		evals++
		for i, v := range g {
			mu[i] = -v
		}
		return nil
	}
	eval := func() (float64, error) {
		cost, err := prob.Cost(u)
		if err != nil {
			return 0, err
		}
		evals++
		return cost, evalGrad()
	}

	cost, err := eval()
	if err != nil {
		return nil, err
	}
	predictActivity(act, u, mu, cfg.Bounds, cfg.Shift)
	if pinActive(u, act, cfg.Bounds) {
		if cost, err = eval(); err != nil {
			return nil, err
		}
	}

	gnorm := reducedNorm(gRed, g, act, cfg.Criterion.Norm)
	refNorm := gnorm

	ls := newLineSearch(cfg)
	res := &Result{U: u}
	step := 0.0
	fails := 0
	stable := false

	for k := 0; ; k++ {
		res.History = append(res.History, IterRecord{Cost: cost, GradientNorm: gnorm, Step: step})
		dr.logger.iterate(k, cost, gnorm, step)

		if stable && cfg.Criterion.Met(gnorm, refNorm) {
			res.Active = append([]Activity(nil), act...)
			return dr.finish(res, ConvActiveSetStable, u, cost, gnorm, k, evals), nil
		}
		if k >= cfg.MaxIter {
			res.Active = append([]Activity(nil), act...)
			dr.finish(res, StopIterLimit, u, cost, gnorm, k, evals)
			return nil, dr.fail(res, "maximum number of iterations exceeded")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Active = append([]Activity(nil), act...)
			dr.finish(res, StopCancelled, u, cost, gnorm, k, evals)
			return nil, dr.fail(res, ctxErr.Error())
		}

		// Newton system on the inactive set; active components stay zero.
		if err := dr.truncCG(dir, u, g, act); err != nil {
			return nil, err
		}
		slope := floats.Dot(g, dir)
		if slope >= 0 {
			// not a strict descent direction, fall back to the reduced
			// gradient
			for i, v := range gRed {
				dir[i] = -v
			}
			slope = floats.Dot(g, dir)
		}

		if floats.Norm(dir, 2) == 0 {
			// every degree of freedom is active, nothing to move
			step = 0
		} else {
			t, newCost, ev, lsErr := ls.search(prob, u, dir, trial, cost, slope)
			evals += ev
			if lsErr != nil {
				if !errors.Is(lsErr, ErrNoAdmissibleStep) {
					return nil, lsErr
				}
				fails++
				if fails >= cfg.StagnationLimit {
					res.Active = append([]Activity(nil), act...)
					dr.finish(res, StopLineSearch, u, cost, gnorm, k+1, evals)
					return nil, dr.fail(res, "line search stagnated over several iterations")
				}
				step = 0
				continue
			}
			fails = 0
			step = t
			copy(u, trial)
			cost = newCost
		}

		if err := evalGrad(); err != nil {
			return nil, err
		}

		copy(actPrev, act)
		predictActivity(act, u, mu, cfg.Bounds, cfg.Shift)
		stable = sameActivity(act, actPrev)
		if pinActive(u, act, cfg.Bounds) {
			if cost, err = eval(); err != nil {
				return nil, err
			}
		}
		gnorm = reducedNorm(gRed, g, act, cfg.Criterion.Norm)
	}
}

// pinActive fixes active degrees of freedom exactly at their bound and
// reports whether the iterate changed.
func pinActive(u []float64, act []Activity, bounds []Bound) bool {
	if len(act) != len(u) || len(bounds) != len(u) {
		panic("bound check error")
	}
	moved := false
	for i, a := range act {
		switch a {
		case ActiveLower:
			if u[i] != bounds[i].Lower {
				u[i] = bounds[i].Lower
				moved = true
			}
		case ActiveUpper:
			if u[i] != bounds[i].Upper {
				u[i] = bounds[i].Upper
				moved = true
			}
		}
	}
	return moved
}

// reducedNorm copies g restricted to the inactive set into dst and
// returns its norm.
func reducedNorm(dst, g []float64, act []Activity, norm criteria.Norm) float64 {
	copy(dst, g)
	restrictInactive(dst, act)
	return norm.Of(dst)
}
