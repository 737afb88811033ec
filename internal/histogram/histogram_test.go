package histogram

import (
	"math"
	"testing"
)

func TestFill_InRangeAndOutOfRange(t *testing.T) {
	h := NewH1(4, 0, 100) // bin width 25
	h.Fill(-1)            // out of range, dropped
	h.Fill(0)              // bin 0
	h.Fill(24.9)           // bin 0
	h.Fill(25)             // bin 1
	h.Fill(99.999)         // bin 3
	h.Fill(100)            // out of range (max exclusive), dropped

	want := []float64{2, 1, 0, 1}
	for i, w := range want {
		if h.Counts()[i] != w {
			t.Errorf("bin %d = %v, want %v", i, h.Counts()[i], w)
		}
	}
	if got := h.Integral(); got != 4 {
		t.Errorf("Integral() = %v, want 4 (out-of-range fills must not count)", got)
	}
}

func TestReset(t *testing.T) {
	h := NewH1(4, 0, 100)
	h.Fill(10)
	h.Reset()
	for i, c := range h.Counts() {
		if c != 0 {
			t.Errorf("bin %d = %v after Reset, want 0", i, c)
		}
	}
}

func TestScale_Scenario(t *testing.T) {
	// spec §8, scenario 4.
	h := NewH1(4, 0, 4)
	copy(h.Counts(), []float64{0, 100, 200, 0})

	h.Scale(0.5)
	want := []float64{0, 50, 100, 0}
	for i, w := range want {
		if h.Counts()[i] != w {
			t.Errorf("after Scale(0.5): bin %d = %v, want %v", i, h.Counts()[i], w)
		}
	}

	h.ClearMinimum(60)
	want = []float64{0, 0, 100, 0}
	for i, w := range want {
		if h.Counts()[i] != w {
			t.Errorf("after ClearMinimum(60): bin %d = %v, want %v", i, h.Counts()[i], w)
		}
	}
}

func TestClearMinimum_LeavesUnchangedOrZero(t *testing.T) {
	h := NewH1(3, 0, 3)
	copy(h.Counts(), []float64{5, -2, 0.5})
	orig := append([]float64(nil), h.Counts()...)

	h.ClearMinimum(1)
	for i, c := range h.Counts() {
		if c != 0 && c != orig[i] {
			t.Errorf("bin %d = %v, want 0 or unchanged (%v)", i, c, orig[i])
		}
	}
}

func TestAddSubtract_ShapeMismatch(t *testing.T) {
	a := NewH1(4, 0, 4)
	b := NewH1(5, 0, 4)
	if a.Add(b) {
		t.Error("Add across mismatched shapes should return false")
	}
	if a.Subtract(b) {
		t.Error("Subtract across mismatched shapes should return false")
	}
}

func TestAddSubtract(t *testing.T) {
	a := NewH1(3, 0, 3)
	b := NewH1(3, 0, 3)
	copy(a.Counts(), []float64{1, 2, 3})
	copy(b.Counts(), []float64{10, 20, 30})

	if !a.Add(b) {
		t.Fatal("Add returned false for matching shapes")
	}
	want := []float64{11, 22, 33}
	for i, w := range want {
		if a.Counts()[i] != w {
			t.Errorf("bin %d = %v, want %v", i, a.Counts()[i], w)
		}
	}

	if !a.Subtract(b) {
		t.Fatal("Subtract returned false for matching shapes")
	}
	for i, w := range []float64{1, 2, 3} {
		if a.Counts()[i] != w {
			t.Errorf("bin %d = %v, want %v", i, a.Counts()[i], w)
		}
	}
}

func TestConfigure_ReallocatesAndZeroes(t *testing.T) {
	h := NewH1(4, 0, 4)
	h.Fill(1)
	h.Configure(8, -10, 10)
	if h.Bins() != 8 || h.Min() != -10 || h.Max() != 10 {
		t.Errorf("shape = (%d,%v,%v), want (8,-10,10)", h.Bins(), h.Min(), h.Max())
	}
	for i, c := range h.Counts() {
		if c != 0 {
			t.Errorf("bin %d = %v after Configure, want 0", i, c)
		}
	}
}

func TestMeanVariance_Uniform(t *testing.T) {
	h := NewH1(10, 0, 10) // bin centers 0.5, 1.5, ..., 9.5
	for i := 0; i < 10; i++ {
		h.Fill(float64(i) + 0.5)
	}
	if mean := h.Mean(); math.Abs(mean-5) > 1e-9 {
		t.Errorf("Mean() = %v, want 5", mean)
	}
	if variance := h.Variance(); variance <= 0 {
		t.Errorf("Variance() = %v, want > 0", variance)
	}
}

func TestMeanVariance_Empty(t *testing.T) {
	h := NewH1(10, 0, 10)
	if got := h.Mean(); got != 0 {
		t.Errorf("Mean() on empty histogram = %v, want 0", got)
	}
	if got := h.Variance(); got != 0 {
		t.Errorf("Variance() on empty histogram = %v, want 0", got)
	}
}

func TestSmooth_PreservesArea(t *testing.T) {
	h := NewH1(20, 0, 20)
	for i, v := range []float64{0, 1, 4, 9, 16, 9, 4, 1, 0, 2, 5, 8, 3, 1, 0, 0, 1, 2, 1, 0} {
		h.Counts()[i] = v
	}
	before := h.Integral()
	h.Smooth(5)
	after := h.Integral()
	if math.Abs(before-after) > 1e-9 {
		t.Errorf("Integral before smoothing = %v, after = %v, want equal", before, after)
	}
}

func TestSmooth_EvenWidthReducedByOne(t *testing.T) {
	h := NewH1(5, 0, 5)
	copy(h.Counts(), []float64{1, 2, 3, 4, 5})
	before := h.Integral()
	h.Smooth(4) // reduced to 3
	if math.Abs(h.Integral()-before) > 1e-9 {
		t.Errorf("Integral changed after even-width smoothing: %v -> %v", before, h.Integral())
	}
}

func TestDecayTo(t *testing.T) {
	h := NewH1(2, 0, 2)
	copy(h.Counts(), []float64{100, 200})
	h.DecayTo(1, 1) // factor = exp(-1)
	want := 100 * math.Exp(-1)
	if math.Abs(h.Counts()[0]-want) > 1e-9 {
		t.Errorf("bin 0 = %v, want %v", h.Counts()[0], want)
	}
}

func TestDecayTo_NonPositiveTauIsNoop(t *testing.T) {
	h := NewH1(2, 0, 2)
	copy(h.Counts(), []float64{100, 200})
	h.DecayTo(5, 0)
	if h.Counts()[0] != 100 || h.Counts()[1] != 200 {
		t.Errorf("DecayTo with tau<=0 modified counts: %v", h.Counts())
	}
}

func TestH2_FillAndIndex(t *testing.T) {
	h := NewH2(2, 0, 2, 3, 0, 3) // binsX=2 binsY=3
	h.Fill(0.5, 0.5)             // ix=0, iy=0 -> index 0
	h.Fill(1.5, 2.5)             // ix=1, iy=2 -> index 1+2*2=5
	h.Fill(-1, -1)               // out of range, dropped
	h.Fill(2, 0)                 // x == max, out of range, dropped

	counts := h.Counts()
	if counts[0] != 1 {
		t.Errorf("counts[0] = %v, want 1", counts[0])
	}
	if counts[5] != 1 {
		t.Errorf("counts[5] = %v, want 1", counts[5])
	}
	if h.Integral() != 2 {
		t.Errorf("Integral() = %v, want 2", h.Integral())
	}
}

func TestH2_ResetConfigureScaleClearMinimum(t *testing.T) {
	h := NewH2(2, 0, 2, 2, 0, 2)
	h.Fill(0.5, 0.5)
	h.Scale(10)
	if h.Counts()[0] != 10 {
		t.Errorf("counts[0] = %v, want 10", h.Counts()[0])
	}
	h.ClearMinimum(20)
	if h.Counts()[0] != 0 {
		t.Errorf("counts[0] = %v after ClearMinimum(20), want 0", h.Counts()[0])
	}

	h.Configure(3, 0, 3, 3, 0, 3)
	if h.BinsX() != 3 || h.BinsY() != 3 {
		t.Errorf("shape after Configure = (%d,%d), want (3,3)", h.BinsX(), h.BinsY())
	}
	for i, c := range h.Counts() {
		if c != 0 {
			t.Errorf("counts[%d] = %v after Configure, want 0", i, c)
		}
	}

	h.Reset()
	h.Fill(0.5, 0.5)
	h.Reset()
	if h.Integral() != 0 {
		t.Errorf("Integral() after Reset = %v, want 0", h.Integral())
	}
}
