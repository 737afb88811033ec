package fitter

import (
	"math"
	"testing"
)

func TestNormalized_ClampsInvalidWindow(t *testing.T) {
	cfg := BackgroundConfig{Iterations: 10, SmoothingWindow: 4, PolynomialOrder: 2}.normalized()
	if !allowedWindows[cfg.SmoothingWindow] {
		t.Errorf("SmoothingWindow = %d, want an allowed value", cfg.SmoothingWindow)
	}
}

func TestNormalized_ClampsInvalidOrder(t *testing.T) {
	cfg := BackgroundConfig{Iterations: 10, SmoothingWindow: 5, PolynomialOrder: 3}.normalized()
	if !allowedOrders[cfg.PolynomialOrder] {
		t.Errorf("PolynomialOrder = %d, want an allowed value", cfg.PolynomialOrder)
	}
}

func TestNormalized_ClampsZeroIterations(t *testing.T) {
	cfg := BackgroundConfig{Iterations: 0, SmoothingWindow: 5, PolynomialOrder: 2}.normalized()
	if cfg.Iterations < 1 {
		t.Errorf("Iterations = %d, want >= 1", cfg.Iterations)
	}
}

func TestLogLogSqrtRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, 10, 1000, 1e6} {
		got := inverseLogLogSqrt(logLogSqrt(v))
		if math.Abs(got-v) > 1e-6*math.Max(1, v) {
			t.Errorf("round trip of %v = %v", v, got)
		}
	}
}

func TestBoxSmooth_PreservesConstantSignal(t *testing.T) {
	data := make([]float64, 20)
	for i := range data {
		data[i] = 42
	}
	smoothed := boxSmooth(data, 5)
	for i, v := range smoothed {
		if math.Abs(v-42) > 1e-9 {
			t.Errorf("smoothed[%d] = %v, want 42", i, v)
		}
	}
}

func TestSubtractSNIP_FlatBaselineStaysFlat(t *testing.T) {
	counts := make([]float64, 100)
	for i := range counts {
		counts[i] = 10
	}
	bg := SubtractSNIP(counts, BackgroundConfig{Iterations: 5, SmoothingWindow: 5, PolynomialOrder: 2})
	for i, v := range bg {
		if math.Abs(v-10) > 1 {
			t.Errorf("background[%d] = %v, want close to 10", i, v)
		}
	}
}

func TestSubtractSNIP_ClipsNarrowPeakBelowPeakHeight(t *testing.T) {
	counts := make([]float64, 200)
	for i := range counts {
		counts[i] = 5
	}
	// A narrow peak well above the flat baseline.
	for i := 95; i < 105; i++ {
		counts[i] = 500
	}
	bg := SubtractSNIP(counts, BackgroundConfig{Iterations: 24, SmoothingWindow: 5, PolynomialOrder: 2})
	if bg[100] >= counts[100] {
		t.Errorf("background under the peak = %v, want less than the peak height %v", bg[100], counts[100])
	}
}

func TestSubtractSNIP_EmptyInput(t *testing.T) {
	got := SubtractSNIP(nil, BackgroundConfig{Iterations: 1, SmoothingWindow: 5, PolynomialOrder: 2})
	if got != nil {
		t.Errorf("SubtractSNIP(nil) = %v, want nil", got)
	}
}
