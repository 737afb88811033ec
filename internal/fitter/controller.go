package fitter

import (
	"math"
	"math/rand"
	"time"

	"abcd.dev/abcd/internal/fifo"
	"abcd.dev/abcd/internal/histogram"
)

// Phase identifies which of califo's two operating modes a channel is
// in (spec §4.10).
type Phase int

const (
	// PhaseAccumulation only accumulates and republishes events during
	// the configured warm-up period.
	PhaseAccumulation Phase = iota
	// PhaseNormal periodically drains the snapshot FIFO, fits, and
	// updates the channel's scale factor.
	PhaseNormal
)

// ChannelConfig configures one channel's peak-tracking behavior.
type ChannelConfig struct {
	TargetMu      float64
	PeakTolerance float64
	Background    BackgroundConfig
	MaxIterations int
	// AccumulationWindow is how far back the snapshot FIFO is summed
	// on each normal-phase fit.
	AccumulationWindow time.Duration
}

// ChannelState is one channel's running energy histogram, snapshot
// history, and current fit/scale state.
type ChannelState struct {
	cfg ChannelConfig

	Histogram *histogram.H1
	Snapshots *fifo.FIFO

	ScaleFactor  float64
	LastAccepted Params
	Phase        Phase
}

// NewChannelState creates a channel's fitter state. bins, min and max
// configure the energy histogram; snapshotExpiration is the retention
// window of the snapshot FIFO.
func NewChannelState(cfg ChannelConfig, bins int, min, max float64, snapshotExpiration time.Duration) *ChannelState {
	return &ChannelState{
		cfg:         cfg,
		Histogram:   histogram.NewH1(bins, min, max),
		Snapshots:   fifo.New(snapshotExpiration),
		ScaleFactor: 1.0,
		Phase:       PhaseAccumulation,
		LastAccepted: Params{
			A: 1, Mu: cfg.TargetMu, Sigma: (max - min) / float64(bins) * 4, B: 0, Alpha: 0,
		},
	}
}

// EnterNormalPhase transitions out of accumulation once the warm-up
// period elapses.
func (c *ChannelState) EnterNormalPhase() {
	c.Phase = PhaseNormal
}

// snapshotBytes serializes the histogram's current counts (one float64
// per bin, as raw bytes) for storage as an opaque FIFO payload.
func snapshotBytes(h *histogram.H1) []byte {
	counts := h.Counts()
	out := make([]byte, len(counts)*8)
	for i, c := range counts {
		bits := math.Float64bits(c)
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(bits >> (8 * b))
		}
	}
	return out
}

// PushSnapshot appends the channel histogram's current state to the
// snapshot FIFO for later summation, and resets the histogram so the
// next publication period starts from zero (matching spec's
// per-publication snapshot semantics).
func (c *ChannelState) PushSnapshot() {
	c.Snapshots.Push(snapshotBytes(c.Histogram))
	c.Histogram.Reset()
}

// sumSnapshots sums every snapshot in [from, to) into one counts slice
// shaped like the channel histogram.
func (c *ChannelState) sumSnapshots(from, to time.Time) []float64 {
	c.Snapshots.Update()
	bins := c.Histogram.Bins()
	sum := make([]float64, bins)
	for _, payload := range c.Snapshots.GetData(from, to) {
		n := len(payload) / 8
		if n > bins {
			n = bins
		}
		for i := 0; i < n; i++ {
			var bits uint64
			for b := 0; b < 8; b++ {
				bits |= uint64(payload[i*8+b]) << (8 * b)
			}
			sum[i] += math.Float64frombits(bits)
		}
	}
	return sum
}

// FitNormalPhase drains the snapshot FIFO over the configured
// accumulation window, optionally subtracts a SNIP background, fits
// the peak model starting from the last accepted parameters, and
// accepts or rejects the result per spec §4.10's peak_tolerance rule.
// accepted reports which branch was taken; fitted is always the raw
// fit result for logging/events.
func (c *ChannelState) FitNormalPhase(now time.Time) (fitted Params, accepted bool) {
	from := now.Add(-c.cfg.AccumulationWindow)
	counts := c.sumSnapshots(from, now)

	if c.cfg.Background.Iterations > 0 {
		bg := SubtractSNIP(counts, c.cfg.Background)
		for i := range counts {
			counts[i] -= bg[i]
			if counts[i] < 0 {
				counts[i] = 0
			}
		}
	}

	samples := make([]Sample, len(counts))
	width := c.Histogram.BinWidth()
	min := c.Histogram.Min()
	for i, y := range counts {
		samples[i] = Sample{T: min + (float64(i)+0.5)*width, Y: y}
	}

	result := Fit(samples, c.LastAccepted, c.cfg.MaxIterations)
	fitted = result.Params

	if deltaMu := fitted.Mu - c.LastAccepted.Mu; absFloat(deltaMu) <= c.cfg.PeakTolerance {
		c.LastAccepted = fitted
		if fitted.Mu != 0 {
			c.ScaleFactor = c.cfg.TargetMu / fitted.Mu
		}
		return fitted, true
	}
	return fitted, false
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ApplyScale multiplies qshort/qlong by the channel's current scale
// factor and adds a uniform [0,1) smear to avoid integer banding, per
// spec §4.10's event republishing rule.
func (c *ChannelState) ApplyScale(qshort, qlong uint16, rng *rand.Rand) (newQshort, newQlong float64) {
	newQshort = float64(qshort)*c.ScaleFactor + rng.Float64()
	newQlong = float64(qlong)*c.ScaleFactor + rng.Float64()
	return newQshort, newQlong
}
