package optimize

import (
	"fmt"
)

// lineSearch performs Armijo backtracking: a step t is accepted when
//
//	J(u + t·d) ≤ J(u) + c·t·⟨∇J(u), d⟩
//
// starting from the previously accepted step widened by one contraction
// factor (1 on the first call) and contracting by the same factor, so
// the step can recover after a hard stretch of the descent path. Every
// trial requires a fresh state solve through Problem.Cost; the gradient
// is only needed after acceptance and is not evaluated here.
type lineSearch struct {
	c, contraction, minStep float64
	// next initial step; reset to 1 after a failed search
	step float64
}

func newLineSearch(cfg *Config) *lineSearch {
	return &lineSearch{
		c:           cfg.LineSearchC,
		contraction: cfg.LineSearchContraction,
		minStep:     cfg.MinStep,
		step:        1,
	}
}

// search backtracks along d from u. slope is the directional derivative
// ⟨∇J(u), d⟩, which must be negative. The trial point is written into
// trial; on success it holds the accepted point.
func (ls *lineSearch) search(p Problem, u, d, trial []float64, f0, slope float64) (t, f float64, evals int, err error) {

	if len(d) != len(u) || len(trial) != len(u) {
		panic("bound check error")
	}
	if slope >= 0 {
		return 0, f0, 0, fmt.Errorf("%w: direction is not a descent direction", ErrNoAdmissibleStep)
	}

	for t = ls.step; t >= ls.minStep; t *= ls.contraction {
		for i := range u {
			trial[i] = u[i] + t*d[i]
		}
		f, err = p.Cost(trial)
		if err != nil {
			return 0, f0, evals, err
		}
		evals++
		if f <= f0+ls.c*t*slope {
			ls.step = t / ls.contraction
			return t, f, evals, nil
		}
	}

	ls.step = 1
	return 0, f0, evals, fmt.Errorf("%w: step length fell below %.1e", ErrNoAdmissibleStep, ls.minStep)
}
