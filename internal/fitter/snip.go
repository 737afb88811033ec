package fitter

import "math"

// allowedWindows and allowedOrders are the configuration choices spec
// §4.10 restricts background subtraction to.
var allowedWindows = map[int]bool{3: true, 5: true, 7: true, 9: true, 11: true, 13: true, 15: true}
var allowedOrders = map[int]bool{2: true, 4: true, 6: true, 8: true}

// BackgroundConfig configures the SNIP iterative peak-clipping
// estimator of spec §4.10.
type BackgroundConfig struct {
	Iterations int
	// SmoothingWindow must be one of {3,5,7,9,11,13,15}; invalid values
	// fall back to 5 (SubtractSNIP validates and clamps rather than
	// panicking, since it runs inside a state action that must never
	// crash the process per spec §4.2).
	SmoothingWindow int
	// PolynomialOrder must be one of {2,4,6,8}; it scales how quickly
	// the clipping window widens across iterations (order/2 samples per
	// iteration, matching the faster-converging SNIP variants).
	PolynomialOrder int
}

func (c BackgroundConfig) normalized() BackgroundConfig {
	if !allowedWindows[c.SmoothingWindow] {
		c.SmoothingWindow = 5
	}
	if !allowedOrders[c.PolynomialOrder] {
		c.PolynomialOrder = 2
	}
	if c.Iterations < 1 {
		c.Iterations = 1
	}
	return c
}

// logLogSqrt applies the LLS (log-log-square-root) transform SNIP
// operates in, which compresses peak amplitudes so the clipping
// operation converges on the background faster than in raw counts.
func logLogSqrt(v float64) float64 {
	return math.Log(math.Log(math.Sqrt(v+1)+1) + 1)
}

func inverseLogLogSqrt(v float64) float64 {
	a := math.Exp(math.Exp(v)-1) - 1
	return a*a - 1
}

// boxSmooth is a simple centered moving average of the given odd
// width, the pre-smoothing step SNIP applies before clipping.
func boxSmooth(data []float64, width int) []float64 {
	if width < 1 {
		return append([]float64(nil), data...)
	}
	if width%2 == 0 {
		width--
	}
	half := width / 2
	n := len(data)
	out := make([]float64, n)
	for i := range data {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= n {
			hi = n - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += data[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// SubtractSNIP estimates a smooth background under counts via the
// Sensitive Nonlinear Iterative Peak-clipping algorithm (spec §4.10):
// transform to LLS space, pre-smooth, then repeatedly clip each point
// to the average of its ±window neighbors (window widening each
// iteration by polynomialOrder/2), and transform back. Returns the
// background estimate, the same length as counts; callers subtract it
// themselves (ClearMinimum afterward if a floor is wanted).
func SubtractSNIP(counts []float64, cfg BackgroundConfig) []float64 {
	cfg = cfg.normalized()
	n := len(counts)
	if n == 0 {
		return nil
	}

	lls := make([]float64, n)
	for i, c := range counts {
		lls[i] = logLogSqrt(math.Max(c, 0))
	}
	lls = boxSmooth(lls, cfg.SmoothingWindow)

	step := cfg.PolynomialOrder / 2
	if step < 1 {
		step = 1
	}
	window := step
	for iter := 0; iter < cfg.Iterations; iter++ {
		next := make([]float64, n)
		copy(next, lls)
		for i := window; i < n-window; i++ {
			avg := (lls[i-window] + lls[i+window]) / 2
			if avg < next[i] {
				next[i] = avg
			}
		}
		lls = next
		window += step
	}

	background := make([]float64, n)
	for i, v := range lls {
		background[i] = math.Max(inverseLogLogSqrt(v), 0)
	}
	return background
}
