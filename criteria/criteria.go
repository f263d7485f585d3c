// Package criteria provides the convergence criteria shared by the
// nonlinear and optimization solvers: a residual (or gradient) norm is
// checked against an absolute tolerance, a tolerance relative to the
// norm at the first iterate, or a combination of both.
package criteria

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Convergence selects how the tolerances enter the stopping test.
type Convergence int

const (
	// ConvRelative stops when ‖r‖ ≤ rtol·‖r₀‖.
	ConvRelative Convergence = iota
	// ConvAbsolute stops when ‖r‖ ≤ atol.
	ConvAbsolute
	// ConvCombined stops when ‖r‖ ≤ atol + rtol·‖r₀‖.
	ConvCombined
)

// Norm selects the vector norm used by the stopping test.
type Norm int

const (
	NormL2 Norm = iota
	NormLinf
)

// Of computes the selected norm of v.
func (n Norm) Of(v []float64) float64 {
	switch n {
	case NormLinf:
		norm := 0.0
		for _, x := range v {
			norm = math.Max(norm, math.Abs(x))
		}
		return norm
	default:
		return floats.Norm(v, 2)
	}
}

// Criterion is an immutable stopping test for one solve invocation.
// The reference norm ‖r₀‖ is supplied by the caller, captured once at
// the first iterate.
type Criterion struct {
	Convergence Convergence
	Norm        Norm
	Rtol, Atol  float64
}

// Met reports whether the current norm satisfies the criterion with
// respect to the reference norm.
func (c Criterion) Met(current, reference float64) bool {
	switch c.Convergence {
	case ConvAbsolute:
		return current <= c.Atol
	case ConvCombined:
		return current <= c.Atol+c.Rtol*reference
	default:
		return current <= c.Rtol*reference
	}
}

// Validate checks the tolerances for plausibility.
func (c Criterion) Validate() error {
	switch {
	case math.IsNaN(c.Rtol) || c.Rtol < 0:
		return errors.New("relative tolerance must not be negative")
	case math.IsNaN(c.Atol) || c.Atol < 0:
		return errors.New("absolute tolerance must not be negative")
	case c.Convergence != ConvRelative && c.Convergence != ConvAbsolute && c.Convergence != ConvCombined:
		return errors.New("unknown convergence type")
	case c.Norm != NormL2 && c.Norm != NormLinf:
		return errors.New("unknown norm type")
	}
	return nil
}
