package optimize

import (
	"errors"
	"math"
	"testing"
)

func testLineSearch() *lineSearch {
	return newLineSearch(&Config{
		LineSearchC:           defaultLineSearchC,
		LineSearchContraction: defaultContraction,
		MinStep:               defaultMinStep,
	})
}

func TestFullStepAccepted(t *testing.T) {

	p := &quadProblem{target: []float64{0}}
	ls := testLineSearch()
	trial := make([]float64, 1)

	// exact Newton step of ½u² from u = 1
	tAcc, f, evals, err := ls.search(p, []float64{1}, []float64{-1}, trial, 0.5, -1)
	switch {
	case err != nil:
		t.Fatal("TestFullStepAccepted: Unexpected Failure:", err)
	case tAcc != 1:
		t.Fatalf("TestFullStepAccepted: Full Step Rejected, t = %g", tAcc)
	case f != 0:
		t.Fatalf("TestFullStepAccepted: Wrong Trial Cost %g", f)
	case evals != 1:
		t.Fatalf("TestFullStepAccepted: Wrong Evaluation Count %d", evals)
	case trial[0] != 0:
		t.Fatalf("TestFullStepAccepted: Trial Point Not Written %g", trial[0])
	}
}

func TestBacktracking(t *testing.T) {

	p := &quadProblem{target: []float64{0}}
	ls := testLineSearch()
	trial := make([]float64, 1)

	// the full step along d = -3 overshoots, one halving suffices
	tAcc, f, evals, err := ls.search(p, []float64{1}, []float64{-3}, trial, 0.5, -3)
	switch {
	case err != nil:
		t.Fatal("TestBacktracking: Unexpected Failure:", err)
	case tAcc != 0.5:
		t.Fatalf("TestBacktracking: Wrong Step %g", tAcc)
	case evals != 2:
		t.Fatalf("TestBacktracking: Wrong Evaluation Count %d", evals)
	case math.Abs(f-0.125) > 1e-15:
		t.Fatalf("TestBacktracking: Wrong Trial Cost %g", f)
	}

	// the next search starts one contraction above the accepted step
	if ls.step != 1 {
		t.Fatalf("TestBacktracking: Step Memory Not Kept %g", ls.step)
	}
}

func TestAscentRejected(t *testing.T) {

	p := &quadProblem{target: []float64{0}}
	ls := testLineSearch()
	trial := make([]float64, 1)

	_, _, evals, err := ls.search(p, []float64{1}, []float64{1}, trial, 0.5, 1)
	switch {
	case !errors.Is(err, ErrNoAdmissibleStep):
		t.Fatal("TestAscentRejected: Expected ErrNoAdmissibleStep, got:", err)
	case evals != 0:
		t.Fatalf("TestAscentRejected: Cost Evaluated On Ascent Direction %d", evals)
	}
}

// flat never offers sufficient decrease.
type flat struct{}

func (flat) Cost(u []float64) (float64, error) { return 1, nil }
func (flat) Gradient(dst, u []float64) error {
	for i := range dst {
		dst[i] = 1
	}
	return nil
}

func TestMinStepExhausted(t *testing.T) {

	ls := testLineSearch()
	trial := make([]float64, 1)

	_, _, evals, err := ls.search(flat{}, []float64{1}, []float64{-1}, trial, 1, -1)
	switch {
	case !errors.Is(err, ErrNoAdmissibleStep):
		t.Fatal("TestMinStepExhausted: Expected ErrNoAdmissibleStep, got:", err)
	case evals == 0:
		t.Fatal("TestMinStepExhausted: No Trials Attempted")
	case ls.step != 1:
		t.Fatalf("TestMinStepExhausted: Step Not Reset After Failure %g", ls.step)
	}
}
