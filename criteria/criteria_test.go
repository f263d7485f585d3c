package criteria

import (
	"math"
	"testing"
)

func TestNormOf(t *testing.T) {

	v := []float64{3, -4, 0}
	switch {
	case math.Abs(NormL2.Of(v)-5) > 1e-15:
		t.Fatalf("TestNormOf: Wrong L2 Norm %g", NormL2.Of(v))
	case NormLinf.Of(v) != 4:
		t.Fatalf("TestNormOf: Wrong Linf Norm %g", NormLinf.Of(v))
	case NormL2.Of(nil) != 0 || NormLinf.Of(nil) != 0:
		t.Fatal("TestNormOf: Empty Vector Norm Not Zero")
	}
}

func TestMet(t *testing.T) {

	rel := Criterion{Convergence: ConvRelative, Rtol: 1e-2}
	abs := Criterion{Convergence: ConvAbsolute, Atol: 1e-3}
	comb := Criterion{Convergence: ConvCombined, Rtol: 1e-2, Atol: 1e-3}

	ref := 10.0
	switch {
	case !rel.Met(0.1, ref) || rel.Met(0.11, ref):
		t.Fatal("TestMet: Relative Threshold Wrong")
	case !abs.Met(1e-3, ref) || abs.Met(2e-3, ref):
		t.Fatal("TestMet: Absolute Threshold Wrong")
	case !comb.Met(0.101, ref) || comb.Met(0.102, ref):
		t.Fatal("TestMet: Combined Threshold Wrong")
	}

	// combined is never stricter than either part
	for _, cur := range []float64{1e-4, 1e-3, 0.05, 0.1, 0.2} {
		if (rel.Met(cur, ref) || abs.Met(cur, ref)) && !comb.Met(cur, ref) {
			t.Fatalf("TestMet: Combined Stricter Than Parts at %g", cur)
		}
	}
}

func TestValidate(t *testing.T) {

	good := Criterion{Convergence: ConvCombined, Norm: NormLinf, Rtol: 1e-8, Atol: 1e-10}
	if err := good.Validate(); err != nil {
		t.Fatal("TestValidate: Valid Criterion Rejected:", err)
	}

	bad := []Criterion{
		{Rtol: -1},
		{Atol: -1},
		{Rtol: math.NaN()},
		{Convergence: Convergence(42)},
		{Norm: Norm(42)},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("TestValidate: Invalid Criterion %d Accepted", i)
		}
	}
}
