// Package histogram implements the 1D and 2D histogram engines of
// spec §4.4: fixed-shape binned counters over float64 ranges, with
// fill/scale/clear-minimum/smoothing operations and exponential time
// decay support for the spectrum builder (spec §4.7).
package histogram

import "math"

// H1 is a one-dimensional histogram: bins counters over [Min, Max).
// Counts are float64 so exponential decay preserves fractional counts
// (spec §3).
type H1 struct {
	bins     int
	min, max float64
	width    float64
	counts   []float64
}

// NewH1 creates a histogram with the given shape. bins below 1 are
// raised to 1; max > min is not validated (callers validate
// configuration at the edges, per spec's "configuration JSON" rules).
func NewH1(bins int, min, max float64) *H1 {
	h := &H1{}
	h.Configure(bins, min, max)
	return h
}

// Configure reallocates the counts array and zeroes it — the runtime
// reconfiguration behavior spec §4.4 requires.
func (h *H1) Configure(bins int, min, max float64) {
	if bins < 1 {
		bins = 1
	}
	h.bins = bins
	h.min = min
	h.max = max
	h.width = (max - min) / float64(bins)
	h.counts = make([]float64, bins)
}

// Bins, Min, Max, and BinWidth report the histogram's shape.
func (h *H1) Bins() int         { return h.bins }
func (h *H1) Min() float64      { return h.min }
func (h *H1) Max() float64      { return h.max }
func (h *H1) BinWidth() float64 { return h.width }

// Counts returns the underlying counter slice. Callers must not retain
// it across a Configure/Reset call boundary without re-fetching.
func (h *H1) Counts() []float64 { return h.counts }

// Reset zeroes every bin without changing the shape.
func (h *H1) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
}

// binIndex computes floor((v-min)/bin_width) and reports whether it
// falls in [0, bins).
func (h *H1) binIndex(v float64) (int, bool) {
	if h.width <= 0 {
		return 0, false
	}
	idx := int(math.Floor((v - h.min) / h.width))
	if idx < 0 || idx >= h.bins {
		return 0, false
	}
	return idx, true
}

// Fill increments the bin containing v by one. Values outside
// [min,max) are dropped silently, per spec §4.4.
func (h *H1) Fill(v float64) {
	if idx, ok := h.binIndex(v); ok {
		h.counts[idx]++
	}
}

// FillWeighted increments the bin containing v by weight. Values
// outside [min,max) are dropped silently, as in Fill.
func (h *H1) FillWeighted(v, weight float64) {
	if idx, ok := h.binIndex(v); ok {
		h.counts[idx] += weight
	}
}

// sameShape reports whether h and other have identical bins/min/max,
// the precondition for Add/Subtract in spec §4.4.
func (h *H1) sameShape(other *H1) bool {
	return h.bins == other.bins && h.min == other.min && h.max == other.max
}

// Add adds other's counts into h bin-by-bin. Returns false (no-op) if
// the shapes differ.
func (h *H1) Add(other *H1) bool {
	if !h.sameShape(other) {
		return false
	}
	for i := range h.counts {
		h.counts[i] += other.counts[i]
	}
	return true
}

// Subtract subtracts other's counts from h bin-by-bin. Returns false
// (no-op) if the shapes differ. Does not clamp at zero; callers apply
// ClearMinimum afterward if a floor is wanted.
func (h *H1) Subtract(other *H1) bool {
	if !h.sameShape(other) {
		return false
	}
	for i := range h.counts {
		h.counts[i] -= other.counts[i]
	}
	return true
}

// Scale multiplies every bin by k.
func (h *H1) Scale(k float64) {
	for i := range h.counts {
		h.counts[i] *= k
	}
}

// ClearMinimum zeroes every bin whose absolute value is strictly below
// threshold, snapping decay/subtraction noise to exactly zero (spec §3).
func (h *H1) ClearMinimum(threshold float64) {
	for i, c := range h.counts {
		if math.Abs(c) < threshold {
			h.counts[i] = 0
		}
	}
}

// Integral returns the sum of all bins.
func (h *H1) Integral() float64 {
	var sum float64
	for _, c := range h.counts {
		sum += c
	}
	return sum
}

// MaxValue returns the largest bin value, and 0 for an empty (zero-bin)
// histogram.
func (h *H1) MaxValue() float64 {
	var m float64
	for i, c := range h.counts {
		if i == 0 || c > m {
			m = c
		}
	}
	return m
}

// Mean returns the count-weighted mean of bin-center positions, or 0
// if the histogram is empty (integral == 0).
func (h *H1) Mean() float64 {
	integral := h.Integral()
	if integral == 0 {
		return 0
	}
	var sum float64
	for i, c := range h.counts {
		center := h.min + (float64(i)+0.5)*h.width
		sum += center * c
	}
	return sum / integral
}

// Variance returns the count-weighted variance of bin-center
// positions, or 0 if the histogram is empty.
func (h *H1) Variance() float64 {
	integral := h.Integral()
	if integral == 0 {
		return 0
	}
	mean := h.Mean()
	var sum float64
	for i, c := range h.counts {
		center := h.min + (float64(i)+0.5)*h.width
		d := center - mean
		sum += d * d * c
	}
	return sum / integral
}

// MeanOverInterval returns the mean bin count over [from, to) bins,
// clamped to the histogram's range. Used by callers that want an
// average occupancy rather than a total.
func (h *H1) MeanOverInterval(from, to float64) float64 {
	lo, hi := h.clampIndices(from, to)
	if hi <= lo {
		return 0
	}
	var sum float64
	for i := lo; i < hi; i++ {
		sum += h.counts[i]
	}
	return sum / float64(hi-lo)
}

func (h *H1) clampIndices(from, to float64) (int, int) {
	lo, _ := h.binIndex(from)
	if from < h.min {
		lo = 0
	}
	hi, ok := h.binIndex(to)
	if !ok {
		if to >= h.max {
			hi = h.bins
		} else {
			hi = 0
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > h.bins {
		hi = h.bins
	}
	return lo, hi
}

// Smooth applies the box-smoothing filter of spec §4.4: an odd window
// width, built from an edge-clamped prefix sum so total area is
// preserved to within floating-point error. Width must be odd and >=1;
// an even width is reduced by one.
func (h *H1) Smooth(width int) {
	if width < 1 {
		return
	}
	if width%2 == 0 {
		width--
	}
	if width <= 1 {
		return
	}
	half := width / 2
	n := h.bins

	// Build an edge-clamped extended sequence of length n+2*half, then
	// its prefix sum of length n+2*half+1.
	extended := make([]float64, n+2*half)
	for i := 0; i < half; i++ {
		extended[i] = h.counts[0]
	}
	copy(extended[half:half+n], h.counts)
	for i := 0; i < half; i++ {
		extended[half+n+i] = h.counts[n-1]
	}

	prefix := make([]float64, len(extended)+1)
	for i, v := range extended {
		prefix[i+1] = prefix[i] + v
	}

	smoothed := make([]float64, n)
	for i := 0; i < n; i++ {
		// Window [i, i+width) in extended-space corresponds to bin i
		// of the original histogram once centered by half.
		lo := i
		hi := i + width
		smoothed[i] = (prefix[hi] - prefix[lo]) / float64(width)
	}
	h.counts = smoothed
}

// DecayTo multiplies every bin by exp(-elapsed/tau), the exponential
// moving average decay of spec §4.7. tau <= 0 is treated as "no
// decay" (no-op) to avoid a divide-by-zero producing NaN.
func (h *H1) DecayTo(elapsedSeconds, tau float64) {
	if tau <= 0 {
		return
	}
	h.Scale(math.Exp(-elapsedSeconds / tau))
}
