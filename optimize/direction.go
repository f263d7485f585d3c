package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// descentState carries the per-solve memory of the direction strategies:
// the previous gradient and direction for nonlinear CG, the correction
// history for LBFGS, and the binding-set partition for box constraints.
// It reads the iterate and gradients but never owns them.
type descentState struct {
	d, gPrev, dPrev []float64
	q, temp         []float64
	hist            *history
	act             []Activity
	cgSince         int
	havePrev        bool
}

func (dr *Driver) newDescentState() *descentState {
	s := &descentState{
		d:     make([]float64, dr.n),
		gPrev: make([]float64, dr.n),
		dPrev: make([]float64, dr.n),
		q:     make([]float64, dr.n),
		temp:  make([]float64, dr.n),
	}
	if dr.cfg.Algorithm == LBFGS {
		s.hist = newHistory(dr.cfg.Memory, dr.n)
	}
	if dr.cfg.Bounds != nil {
		s.act = make([]Activity, dr.n)
	}
	return s
}

// reset discards all direction memory, so the next direction degrades
// to steepest descent.
func (s *descentState) reset() {
	if s.hist != nil {
		s.hist.flush()
	}
	s.havePrev = false
	s.cgSince = 0
}

// direction computes the search direction for the current gradient and
// enforces the descent property: a variant whose raw direction satisfies
// ⟨g, d⟩ ≥ 0 is discarded and replaced by steepest descent for this
// iteration. The returned slope ⟨g, d⟩ is strictly negative for g ≠ 0.
func (dr *Driver) direction(s *descentState, u, g []float64) (slope float64, err error) {

	if s.act != nil {
		bindingSet(s.act, u, dr.cfg.Bounds)
	}

	switch dr.cfg.Algorithm {
	case ConjugateGradient:
		dr.conjugateGradient(s, g)
	case LBFGS:
		dr.twoLoop(s, g)
	case NewtonCG:
		err = dr.newtonCG(s, u, g)
		if err != nil {
			return 0, err
		}
	default:
		steepest(s.d, g)
	}

	slope = floats.Dot(g, s.d)
	if slope >= 0 {
		if dr.logger.enable(LogTrace) {
			dr.logger.log("Direction is no descent direction, falling back to steepest descent.\n")
		}
		s.reset()
		steepest(s.d, g)
		slope = floats.Dot(g, s.d)
	}
	return slope, nil
}

func steepest(dst, g []float64) {
	for i, v := range g {
		dst[i] = -v
	}
}

// conjugateGradient computes d = -g + β·dₚᵣₑᵥ with the configured β
// formula. The direction is reset to steepest descent on the first
// iteration, whenever β < 0, and every CGRestart iterations.
func (dr *Driver) conjugateGradient(s *descentState, g []float64) {

	restart := !s.havePrev
	if dr.cfg.CGRestart > 0 && s.cgSince >= dr.cfg.CGRestart {
		restart = true
	}

	if restart {
		steepest(s.d, g)
		s.cgSince = 0
		return
	}

	gg := floats.Dot(s.gPrev, s.gPrev)
	if gg == 0 {
		steepest(s.d, g)
		return
	}

	// yₖ = gₖ - gₖ₋₁
	y := s.temp
	for i, v := range g {
		y[i] = v - s.gPrev[i]
	}

	var beta float64
	switch dr.cfg.CG {
	case FletcherReeves:
		beta = floats.Dot(g, g) / gg
	case PolakRibiere:
		beta = floats.Dot(g, y) / gg
	case HestenesStiefel:
		dy := floats.Dot(s.dPrev, y)
		if dy == 0 {
			steepest(s.d, g)
			return
		}
		beta = floats.Dot(g, y) / dy
	case HybridCG:
		fr := floats.Dot(g, g) / gg
		pr := floats.Dot(g, y) / gg
		beta = math.Min(math.Max(pr, 0), fr)
	}

	if beta < 0 {
		steepest(s.d, g)
		s.cgSince = 0
		return
	}

	for i, v := range g {
		s.d[i] = -v + beta*s.dPrev[i]
	}
	s.cgSince++
}

// twoLoop computes the LBFGS direction by the two-loop recursion over
// the stored correction pairs. For box-constrained problems the
// recursion acts on the inactive set and the active components of the
// direction are the negative gradient, following the projected BFGS
// scheme. Pairs with non-positive curvature pairing are skipped to
// preserve descent.
func (dr *Driver) twoLoop(s *descentState, g []float64) {

	if s.hist.len() == 0 {
		steepest(s.d, g)
		return
	}

	q := s.q
	copy(q, g)
	if s.act != nil {
		restrictInactive(q, s.act)
	}

	m := s.hist.len()
	alpha := make([]float64, m)
	used := make([]bool, m)

	for i := 0; i < m; i++ { // newest to oldest
		si, yi, rho := s.hist.pair(i)
		if rho <= 0 {
			continue
		}
		used[i] = true
		alpha[i] = rho * floats.Dot(si, q)
		floats.AddScaled(q, -alpha[i], yi)
	}

	if !dr.cfg.NoScaling {
		sn, yn, _ := s.hist.pair(0)
		yy := floats.Dot(yn, yn)
		if yy > 0 {
			floats.Scale(floats.Dot(yn, sn)/yy, q)
		}
	}

	for i := m - 1; i >= 0; i-- { // oldest to newest
		if !used[i] {
			continue
		}
		si, yi, rho := s.hist.pair(i)
		beta := rho * floats.Dot(yi, q)
		floats.AddScaled(q, alpha[i]-beta, si)
	}

	if s.act != nil {
		restrictInactive(q, s.act)
	}
	for i, v := range q {
		s.d[i] = -v
	}
	if s.act != nil {
		for i, a := range s.act {
			if a != Inactive {
				s.d[i] = -g[i]
			}
		}
	}
}

// updateMemory stores the iterate delta s = uNew - uOld and gradient
// delta y = gNew - gOld after an accepted step. The whole history is
// flushed when the curvature pairing is numerically non-positive, since
// stale pairs can no longer be trusted either.
func (dr *Driver) updateMemory(s *descentState, uOld, uNew, gOld, gNew []float64) {

	// the next direction call sees gNew as its current gradient, so the
	// previous gradient of the CG formulas is gOld
	copy(s.gPrev, gOld)
	copy(s.dPrev, s.d)
	s.havePrev = true

	if s.hist == nil {
		return
	}

	sk := s.q
	yk := s.temp
	for i := range uNew {
		sk[i] = uNew[i] - uOld[i]
		yk[i] = gNew[i] - gOld[i]
	}
	if s.act != nil {
		restrictInactive(sk, s.act)
		restrictInactive(yk, s.act)
	}

	curv := floats.Dot(yk, sk)
	ss := floats.Dot(sk, sk)
	yy := floats.Dot(yk, yk)
	if ss == 0 || yy == 0 || curv/math.Sqrt(ss*yy) <= 1e-14 {
		s.hist.flush()
		return
	}
	s.hist.push(sk, yk, 1/curv)
}

// newtonCG computes an inexact Newton direction by truncated conjugate
// gradients on ∇²J(u)d = -g with the forcing term η = min(0.5, √‖g‖).
// Negative curvature aborts the inner solve; when it occurs on the first
// inner iteration the direction degrades to steepest descent. For box
// constraints the inner operator is restricted to the inactive set.
func (dr *Driver) newtonCG(s *descentState, u, g []float64) error {
	if err := dr.truncCG(s.d, u, g, s.act); err != nil {
		return err
	}
	if s.act != nil {
		for i, a := range s.act {
			if a != Inactive {
				s.d[i] = -g[i]
			}
		}
	}
	return nil
}

// truncCG runs the truncated conjugate gradient inner solve on the
// (possibly inactive-set-restricted) system ∇²J(u)d = -g. Components on
// the active set stay zero.
func (dr *Driver) truncCG(dir, u, g []float64, act []Activity) error {

	n := dr.n
	for i := range dir {
		dir[i] = 0
	}

	r := make([]float64, n) // residual of the inner system, r = ∇²J·d + g
	copy(r, g)
	if act != nil {
		restrictInactive(r, act)
	}
	p := make([]float64, n)
	for i, v := range r {
		p[i] = -v
	}
	hp := make([]float64, n)

	rr := floats.Dot(r, r)
	gnorm := math.Sqrt(rr)
	tol := math.Min(0.5, math.Sqrt(gnorm)) * gnorm

	for k := 0; k < dr.cfg.InnerIter && math.Sqrt(rr) > tol; k++ {
		if err := dr.hess.HessianAction(hp, u, p); err != nil {
			return err
		}
		if act != nil {
			restrictInactive(hp, act)
		}
		php := floats.Dot(p, hp)
		if php <= 0 {
			if k == 0 {
				for i, v := range r {
					dir[i] = -v
				}
			}
			break
		}
		alpha := rr / php
		floats.AddScaled(dir, alpha, p)
		floats.AddScaled(r, alpha, hp)
		rrNew := floats.Dot(r, r)
		beta := rrNew / rr
		for i, v := range r {
			p[i] = -v + beta*p[i]
		}
		rr = rrNew
	}
	return nil
}
