package optimize

import (
	"context"
	"errors"
)

// solveDescent runs the line-search based algorithms (steepest descent,
// nonlinear CG, LBFGS, Newton-CG). One outer iteration evaluates the
// gradient, checks termination, computes a direction, performs the
// Armijo search and updates the iterate; box constraints are handled by
// clipping after each accepted update.
func (dr *Driver) solveDescent(ctx context.Context, u []float64) (*Result, error) {

	n, cfg, prob := dr.n, &dr.cfg, dr.prob

	g := make([]float64, n)
	gOld := make([]float64, n)
	uOld := make([]float64, n)
	trial := make([]float64, n)

	evals := 0
	cost, err := prob.Cost(u)
	if err != nil {
		return nil, err
	}
	evals++
	if err := prob.Gradient(g, u); err != nil {
		return nil, err
	}
	evals++

	gnorm := stationarityNorm(g, u, cfg.Bounds, cfg.Criterion.Norm)
	refNorm := gnorm // reference for relative/combined criteria

	st := dr.newDescentState()
	ls := newLineSearch(cfg)

	res := &Result{U: u}
	step := 0.0
	fails := 0

	for k := 0; ; k++ {
		res.History = append(res.History, IterRecord{Cost: cost, GradientNorm: gnorm, Step: step})
		dr.logger.iterate(k, cost, gnorm, step)

		if cfg.Criterion.Met(gnorm, refNorm) {
			return dr.finish(res, ConvGradNorm, u, cost, gnorm, k, evals), nil
		}
		if k >= cfg.MaxIter {
			dr.finish(res, StopIterLimit, u, cost, gnorm, k, evals)
			return nil, dr.fail(res, "maximum number of iterations exceeded")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			dr.finish(res, StopCancelled, u, cost, gnorm, k, evals)
			return nil, dr.fail(res, ctxErr.Error())
		}

		slope, err := dr.direction(st, u, g)
		if err != nil {
			return nil, err
		}

		t, newCost, ev, err := ls.search(prob, u, st.d, trial, cost, slope)
		evals += ev
		if err != nil {
			if !errors.Is(err, ErrNoAdmissibleStep) {
				return nil, err
			}
			fails++
			st.reset()
			if dr.logger.enable(LogTrace) {
				dr.logger.log("Line search failed, restarting with steepest descent.\n")
			}
			if fails >= cfg.StagnationLimit {
				dr.finish(res, StopLineSearch, u, cost, gnorm, k+1, evals)
				return nil, dr.fail(res, "line search stagnated over several iterations")
			}
			step = 0
			continue
		}
		fails = 0
		step = t

		copy(uOld, u)
		copy(gOld, g)
		copy(u, trial)
		if cfg.Bounds != nil {
			Clip(u, cfg.Bounds)
			if projectionMoved(u, trial) {
				// the clipped point is a different iterate, its cost
				// requires a fresh state solve
				newCost, err = prob.Cost(u)
				if err != nil {
					return nil, err
				}
				evals++
			}
		}

		if err := prob.Gradient(g, u); err != nil {
			return nil, err
		}
		evals++

		dr.updateMemory(st, uOld, u, gOld, g)
		cost = newCost
		gnorm = stationarityNorm(g, u, cfg.Bounds, cfg.Criterion.Norm)
	}
}

func projectionMoved(clipped, raw []float64) bool {
	for i := range clipped {
		if clipped[i] != raw[i] {
			return true
		}
	}
	return false
}

// finish fills the result with the terminal state and logs the exit
// summary.
func (dr *Driver) finish(res *Result, status Status, u []float64, cost, gnorm float64, iter, evals int) *Result {
	res.U = u
	res.Cost = cost
	res.GradientNorm = gnorm
	res.Status = status
	res.NumIter = iter
	res.NumEval = evals
	res.OK = status == ConvGradNorm || status == ConvActiveSetStable
	if dr.cfg.Bounds != nil && res.Active == nil {
		res.Active = make([]Activity, dr.n)
		bindingSet(res.Active, u, dr.cfg.Bounds)
	}
	dr.logger.exit(res)
	return res
}

// fail converts a terminal non-convergent result into the error carrying
// the last valid iterate.
func (dr *Driver) fail(res *Result, reason string) error {
	last := make([]float64, len(res.U))
	copy(last, res.U)
	return &NotConvergedError{
		Last:         last,
		Cost:         res.Cost,
		GradientNorm: res.GradientNorm,
		Iterations:   res.NumIter,
		Reason:       reason,
	}
}
