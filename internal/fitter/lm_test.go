package fitter

import (
	"math"
	"testing"
)

func syntheticSamples(truth Params, n int, tMin, tMax float64) []Sample {
	samples := make([]Sample, n)
	v := truth.vector()
	for i := 0; i < n; i++ {
		t := tMin + (tMax-tMin)*float64(i)/float64(n-1)
		samples[i] = Sample{T: t, Y: evalModel(t, v)}
	}
	return samples
}

func TestFit_RecoversExactGaussianPeak(t *testing.T) {
	truth := Params{A: 100, Mu: 50, Sigma: 5, B: 0, Alpha: 0}
	samples := syntheticSamples(truth, 200, 0, 100)

	initial := Params{A: 80, Mu: 45, Sigma: 4, B: 0, Alpha: 0}
	result := Fit(samples, initial, 200)

	if math.Abs(result.Params.Mu-truth.Mu) > 0.1 {
		t.Errorf("fitted Mu = %v, want close to %v", result.Params.Mu, truth.Mu)
	}
	if math.Abs(result.Params.A-truth.A) > 1 {
		t.Errorf("fitted A = %v, want close to %v", result.Params.A, truth.A)
	}
}

func TestFit_RecoversPeakWithExponentialBackground(t *testing.T) {
	truth := Params{A: 200, Mu: 30, Sigma: 3, B: 50, Alpha: 0.05}
	samples := syntheticSamples(truth, 300, 0, 120)

	initial := Params{A: 150, Mu: 28, Sigma: 2.5, B: 40, Alpha: 0.04}
	result := Fit(samples, initial, 300)

	if math.Abs(result.Params.Mu-truth.Mu) > 0.5 {
		t.Errorf("fitted Mu = %v, want close to %v", result.Params.Mu, truth.Mu)
	}
}

func TestFit_ReportsIterationsUsed(t *testing.T) {
	truth := Params{A: 10, Mu: 5, Sigma: 1, B: 0, Alpha: 0}
	samples := syntheticSamples(truth, 50, 0, 10)
	result := Fit(samples, truth, 50)
	if result.Iterations < 1 {
		t.Errorf("Iterations = %d, want at least 1", result.Iterations)
	}
}

func TestFit_StartingAtTruthStaysAtTruth(t *testing.T) {
	truth := Params{A: 10, Mu: 5, Sigma: 1, B: 0, Alpha: 0}
	samples := syntheticSamples(truth, 50, 0, 10)
	result := Fit(samples, truth, 50)
	if math.Abs(result.Params.Mu-truth.Mu) > 1e-6 {
		t.Errorf("fitted Mu = %v, want unchanged from truth %v", result.Params.Mu, truth.Mu)
	}
}
