package optimize

import (
	"fmt"
	"math"

	"github.com/pdekit/pdeopt/criteria"
)

type bndHint int8

const (
	bndNo bndHint = iota
	bndLow
	bndUp
	bndBoth
)

// Bound is a per-component box constraint. A NaN endpoint leaves the
// component unbounded on that side.
type Bound struct {
	hint         bndHint
	Lower, Upper float64
}

// hintBounds classifies each bound and rejects infeasible ranges.
func hintBounds(bounds []Bound) error {
	for k, b := range bounds {
		l, u := !math.IsNaN(b.Lower), !math.IsNaN(b.Upper)
		if l && u && b.Lower > b.Upper {
			return fmt.Errorf("%w: bound range at %d has no feasible solution", ErrInvalidConfiguration, k)
		}
		switch {
		case l && u:
			bounds[k].hint = bndBoth
		case l:
			bounds[k].hint = bndLow
		case u:
			bounds[k].hint = bndUp
		default:
			bounds[k].hint = bndNo
		}
	}
	return nil
}

// Clip projects u onto the admissible set in place:
//
//	𝚙𝚛𝚘𝚓 uᵢ = max(lᵢ, min(uᵢ, bᵢ))
//
// The projection is idempotent. bounds may be shorter than u only if nil.
func Clip(u []float64, bounds []Bound) {
	if bounds == nil {
		return
	}
	if len(bounds) != len(u) {
		panic("bound check error")
	}
	for i, b := range bounds {
		switch {
		case (b.hint == bndLow || b.hint == bndBoth) && u[i] < b.Lower:
			u[i] = b.Lower
		case (b.hint == bndUp || b.hint == bndBoth) && u[i] > b.Upper:
			u[i] = b.Upper
		}
	}
}

// stationarityNorm computes the norm of the projected gradient,
//
//	𝚙𝚛𝚘𝚓 gᵢ = 𝚖𝚊𝚡(uᵢ - bᵢ, gᵢ) if gᵢ < 0
//	𝚙𝚛𝚘𝚓 gᵢ = 𝚖𝚒𝚗(uᵢ - lᵢ, gᵢ) if gᵢ > 0
//
// which vanishes exactly at box-constrained stationary points. For an
// unconstrained problem this is the plain gradient norm.
func stationarityNorm(g, u []float64, bounds []Bound, norm criteria.Norm) float64 {
	if bounds == nil {
		return norm.Of(g)
	}
	if len(bounds) != len(g) || len(u) != len(g) {
		panic("bound check error")
	}
	var sum, inf float64
	for i, gi := range g {
		b := bounds[i]
		if b.hint != bndNo {
			if gi < 0 {
				if b.hint == bndUp || b.hint == bndBoth {
					gi = math.Max(u[i]-b.Upper, gi)
				}
			} else {
				if b.hint == bndLow || b.hint == bndBoth {
					gi = math.Min(u[i]-b.Lower, gi)
				}
			}
		}
		sum += gi * gi
		inf = math.Max(inf, math.Abs(gi))
	}
	if norm == criteria.NormLinf {
		return inf
	}
	return math.Sqrt(sum)
}

// Activity tags one degree of freedom of the constraint partition.
type Activity int8

const (
	Inactive Activity = iota
	ActiveLower
	ActiveUpper
)

// bindingSet recomputes the partition of the degrees of freedom from the
// current iterate: a component clipped to a bound is active there, every
// other component is inactive. The three sets are disjoint and cover all
// degrees of freedom.
func bindingSet(dst []Activity, u []float64, bounds []Bound) {
	if len(dst) != len(u) || len(bounds) != len(u) {
		panic("bound check error")
	}
	for i, b := range bounds {
		switch {
		case (b.hint == bndLow || b.hint == bndBoth) && u[i] <= b.Lower:
			dst[i] = ActiveLower
		case (b.hint == bndUp || b.hint == bndBoth) && u[i] >= b.Upper:
			dst[i] = ActiveUpper
		default:
			dst[i] = Inactive
		}
	}
}

// predictActivity recomputes the primal-dual active set prediction from
// the iterate and the multiplier estimate μ:
//
//	lower-active: μᵢ + c(uᵢ - lᵢ) < 0
//	upper-active: μᵢ + c(uᵢ - bᵢ) > 0
//
// Lower- and upper-active sets are disjoint since l ≤ b.
func predictActivity(dst []Activity, u, mu []float64, bounds []Bound, shift float64) {
	if len(dst) != len(u) || len(bounds) != len(u) || len(mu) != len(u) {
		panic("bound check error")
	}
	for i, b := range bounds {
		dst[i] = Inactive
		if (b.hint == bndLow || b.hint == bndBoth) && mu[i]+shift*(u[i]-b.Lower) < 0 {
			dst[i] = ActiveLower
		} else if (b.hint == bndUp || b.hint == bndBoth) && mu[i]+shift*(u[i]-b.Upper) > 0 {
			dst[i] = ActiveUpper
		}
	}
}

// restrictInactive zeroes the components of v on the active set.
func restrictInactive(v []float64, act []Activity) {
	if len(act) != len(v) {
		panic("bound check error")
	}
	for i, a := range act {
		if a != Inactive {
			v[i] = 0
		}
	}
}

func sameActivity(a, b []Activity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
