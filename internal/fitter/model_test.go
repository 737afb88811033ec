package fitter

import (
	"math"
	"testing"
)

func TestEvalModel_PeakAtMu(t *testing.T) {
	v := Params{A: 10, Mu: 5, Sigma: 1, B: 0, Alpha: 0}.vector()
	got := evalModel(5, v)
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("evalModel at mu = %v, want 10", got)
	}
}

func TestEvalModel_DecaysAwayFromPeak(t *testing.T) {
	v := Params{A: 10, Mu: 5, Sigma: 1, B: 0, Alpha: 0}.vector()
	center := evalModel(5, v)
	offset := evalModel(7, v)
	if offset >= center {
		t.Errorf("evalModel(7) = %v, want less than evalModel(5) = %v", offset, center)
	}
}

func TestEvalModel_ZeroSigmaDoesNotPanic(t *testing.T) {
	v := Params{A: 1, Mu: 0, Sigma: 0, B: 0, Alpha: 0}.vector()
	got := evalModel(0, v)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("evalModel with sigma=0 = %v, want a finite number", got)
	}
}

func TestModelJacobianRow_MatchesFiniteDifference(t *testing.T) {
	v := Params{A: 3, Mu: 2, Sigma: 1.5, B: 0.5, Alpha: 0.1}.vector()
	t0 := 2.3
	analytic := modelJacobianRow(t0, v)

	h := 1e-6
	for k := 0; k < 5; k++ {
		plus := v
		minus := v
		plus[k] += h
		minus[k] -= h
		fd := (evalModel(t0, plus) - evalModel(t0, minus)) / (2 * h)
		if math.Abs(fd-analytic[k]) > 1e-4 {
			t.Errorf("param %d: analytic=%v finite-diff=%v", k, analytic[k], fd)
		}
	}
}

func TestParamsVectorRoundTrip(t *testing.T) {
	p := Params{A: 1, Mu: 2, Sigma: 3, B: 4, Alpha: 5}
	got := paramsFromVector(p.vector())
	if got != p {
		t.Errorf("round trip = %+v, want %+v", got, p)
	}
}
