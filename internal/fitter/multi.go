package fitter

import (
	"math/rand"
	"time"

	"abcd.dev/abcd/internal/events"
)

// Event is the subset of a decoded PSD event the fitter needs — kept
// separate from wire.PSDEvent so this package has no import-time
// coupling to the wire codec, mirroring internal/spectrum's Event.
type Event struct {
	Channel int
	Qshort  uint16
	Qlong   uint16
}

// ChannelParams configures one channel tracked by a Controller.
type ChannelParams struct {
	Channel            int
	TargetMu           float64
	PeakTolerance      float64
	Background         BackgroundConfig
	MaxIterations      int
	AccumulationWindow time.Duration
	HistogramBins      int
	HistogramMin       float64
	HistogramMax       float64
	// SnapshotExpiration bounds how long histogram snapshots are
	// retained in each channel's FIFO before aging out.
	SnapshotExpiration time.Duration
}

// Controller runs califo's per-channel accumulation/normal-phase
// control loop of spec §4.10 across every configured channel.
type Controller struct {
	channels map[int]*ChannelState

	// WarmUp is how long every channel stays in PhaseAccumulation
	// after the controller's start time before the first normal-phase fit.
	WarmUp time.Duration
	started time.Time

	Bus *events.Bus
	rng *rand.Rand
}

// NewController creates a Controller for the given channels, all
// starting in the accumulation phase as of startedAt.
func NewController(params []ChannelParams, warmUp time.Duration, startedAt time.Time, bus *events.Bus) *Controller {
	c := &Controller{
		channels: make(map[int]*ChannelState, len(params)),
		WarmUp:   warmUp,
		started:  startedAt,
		Bus:      bus,
		rng:      rand.New(rand.NewSource(startedAt.UnixNano())),
	}
	for _, p := range params {
		c.channels[p.Channel] = NewChannelState(ChannelConfig{
			TargetMu:           p.TargetMu,
			PeakTolerance:      p.PeakTolerance,
			Background:         p.Background,
			MaxIterations:      p.MaxIterations,
			AccumulationWindow: p.AccumulationWindow,
		}, p.HistogramBins, p.HistogramMin, p.HistogramMax, p.SnapshotExpiration)
	}
	return c
}

// Channel returns a channel's state, or nil if ch is not configured.
func (c *Controller) Channel(ch int) *ChannelState {
	return c.channels[ch]
}

// ProcessEvent fills the channel's energy histogram with qlong (the
// fitter's peak-tracking axis) and returns the event with qshort/qlong
// rescaled by the channel's current scale_factor plus a uniform [0,1)
// smear, for republishing per spec §4.10. Events on unconfigured
// channels pass through unscaled.
func (c *Controller) ProcessEvent(now time.Time, e Event) (newQshort, newQlong float64) {
	ch, ok := c.channels[e.Channel]
	if !ok {
		return float64(e.Qshort), float64(e.Qlong)
	}
	ch.Histogram.Fill(float64(e.Qlong))
	return ch.ApplyScale(e.Qshort, e.Qlong, c.rng)
}

// Tick advances every channel's phase and, in the normal phase, fits
// and accepts/rejects on the configured cadence — called once per
// status-publication period by the owning process's state action.
func (c *Controller) Tick(now time.Time) {
	for ch, state := range c.channels {
		if state.Phase == PhaseAccumulation {
			state.PushSnapshot()
			if now.Sub(c.started) >= c.WarmUp {
				state.EnterNormalPhase()
			}
			continue
		}

		state.PushSnapshot()
		fitted, accepted := state.FitNormalPhase(now)
		if accepted {
			c.Bus.Publish(events.Event{
				Timestamp: now,
				Source:    events.SourceCalifo,
				Kind:      events.KindFitAccepted,
				Data: map[string]any{
					"channel":      ch,
					"mu":           fitted.Mu,
					"sigma":        fitted.Sigma,
					"scale_factor": state.ScaleFactor,
				},
			})
		} else {
			c.Bus.Publish(events.Event{
				Timestamp: now,
				Source:    events.SourceCalifo,
				Kind:      events.KindFitRejected,
				Data: map[string]any{
					"channel":   ch,
					"mu":        fitted.Mu,
					"tolerance": state.cfg.PeakTolerance,
				},
			})
		}
	}
}
