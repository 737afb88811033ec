package histogram

import "math"

// H2 is a two-dimensional histogram with independent {bins,min,max}
// per axis and row-major storage counts[i_x + bins_x*i_y] (spec §3,
// §4.4).
type H2 struct {
	binsX, binsY   int
	minX, maxX     float64
	minY, maxY     float64
	widthX, widthY float64
	counts         []float64
}

// NewH2 creates a 2D histogram with the given per-axis shape.
func NewH2(binsX int, minX, maxX float64, binsY int, minY, maxY float64) *H2 {
	h := &H2{}
	h.Configure(binsX, minX, maxX, binsY, minY, maxY)
	return h
}

// Configure reallocates and zeroes the counts array for a new shape.
func (h *H2) Configure(binsX int, minX, maxX float64, binsY int, minY, maxY float64) {
	if binsX < 1 {
		binsX = 1
	}
	if binsY < 1 {
		binsY = 1
	}
	h.binsX, h.minX, h.maxX = binsX, minX, maxX
	h.binsY, h.minY, h.maxY = binsY, minY, maxY
	h.widthX = (maxX - minX) / float64(binsX)
	h.widthY = (maxY - minY) / float64(binsY)
	h.counts = make([]float64, binsX*binsY)
}

func (h *H2) BinsX() int { return h.binsX }
func (h *H2) BinsY() int { return h.binsY }

// Counts returns the row-major backing slice: counts[ix + binsX*iy].
func (h *H2) Counts() []float64 { return h.counts }

// Reset zeroes every bin without changing the shape.
func (h *H2) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
}

func (h *H2) index(x, y float64) (int, bool) {
	if h.widthX <= 0 || h.widthY <= 0 {
		return 0, false
	}
	ix := int(math.Floor((x - h.minX) / h.widthX))
	iy := int(math.Floor((y - h.minY) / h.widthY))
	if ix < 0 || ix >= h.binsX || iy < 0 || iy >= h.binsY {
		return 0, false
	}
	return ix + h.binsX*iy, true
}

// Fill increments the bin containing (x,y); out-of-range samples are
// dropped silently.
func (h *H2) Fill(x, y float64) {
	if idx, ok := h.index(x, y); ok {
		h.counts[idx]++
	}
}

// Scale multiplies every bin by k.
func (h *H2) Scale(k float64) {
	for i := range h.counts {
		h.counts[i] *= k
	}
}

// ClearMinimum zeroes every bin whose absolute value is strictly below
// threshold.
func (h *H2) ClearMinimum(threshold float64) {
	for i, c := range h.counts {
		if math.Abs(c) < threshold {
			h.counts[i] = 0
		}
	}
}

// Integral returns the sum of all bins.
func (h *H2) Integral() float64 {
	var sum float64
	for _, c := range h.counts {
		sum += c
	}
	return sum
}

// DecayTo multiplies every bin by exp(-elapsed/tau); tau <= 0 is a
// no-op.
func (h *H2) DecayTo(elapsedSeconds, tau float64) {
	if tau <= 0 {
		return
	}
	h.Scale(math.Exp(-elapsedSeconds / tau))
}
