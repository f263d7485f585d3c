package model

import (
	"errors"
)

// Quadratic is the algebraic reference problem
//
//	J(u) = ½ Σᵢ wᵢ(uᵢ - tᵢ)²
//
// with analytic gradient and Hessian action. Nil weights default to 1,
// making J(u) = ½‖u - t‖².
type Quadratic struct {
	Target  []float64
	Weights []float64
}

func (q *Quadratic) weight(i int) float64 {
	if q.Weights == nil {
		return 1
	}
	return q.Weights[i]
}

func (q *Quadratic) Cost(u []float64) (float64, error) {
	if len(u) != len(q.Target) {
		return 0, errors.New("model: dimension not match problem")
	}
	sum := 0.0
	for i, v := range u {
		d := v - q.Target[i]
		sum += q.weight(i) * d * d
	}
	return 0.5 * sum, nil
}

func (q *Quadratic) Gradient(dst, u []float64) error {
	if len(dst) != len(q.Target) || len(u) != len(q.Target) {
		return errors.New("model: dimension not match problem")
	}
	for i, v := range u {
		dst[i] = q.weight(i) * (v - q.Target[i])
	}
	return nil
}

func (q *Quadratic) HessianAction(dst, _, v []float64) error {
	if len(dst) != len(q.Target) || len(v) != len(q.Target) {
		return errors.New("model: dimension not match problem")
	}
	for i, x := range v {
		dst[i] = q.weight(i) * x
	}
	return nil
}
