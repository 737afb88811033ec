// Package spectrum implements the spec core of spec §4.7: a
// per-channel qlong histogram and (qlong, psd) 2D histogram, lazily
// registering channels on first observed event, with exponential time
// decay applied after each periodic status publication.
package spectrum

import "abcd.dev/abcd/internal/histogram"

// ChannelShape configures the two histograms a newly-registered
// channel gets: the qlong axis shared by both, and the psd axis used
// only by the 2D histogram.
type ChannelShape struct {
	QlongBins int     `json:"qlong_bins"`
	QlongMin  float64 `json:"qlong_min"`
	QlongMax  float64 `json:"qlong_max"`
	PSDBins   int     `json:"psd_bins"`
	PSDMin    float64 `json:"psd_min"`
	PSDMax    float64 `json:"psd_max"`
}

// Channel holds the running histograms and per-publication counters
// for one detector channel.
type Channel struct {
	Qlong    *histogram.H1
	QlongPSD *histogram.H2

	// Partial resets after every status publication; Total persists
	// until an explicit reset command (spec §4.7).
	Partial uint64
	Total   uint64
}

// Builder is the spectrum engine: a shape used for any channel seen
// for the first time, and the registered channels themselves.
type Builder struct {
	shape    ChannelShape
	channels map[int]*Channel

	// DecayEnabled and Tau configure the exponential moving-average
	// decay applied by DecayAll.
	DecayEnabled bool
	Tau          float64
	// FloorCount is the clear-minimum threshold applied right after
	// decay, snapping noise to exactly zero (spec §3).
	FloorCount float64
}

// NewBuilder creates a spectrum engine with shape used for any
// channel registered later.
func NewBuilder(shape ChannelShape) *Builder {
	return &Builder{shape: shape, channels: make(map[int]*Channel)}
}

// Channels returns the registered channel set; callers must not
// mutate the map but may read the *Channel values.
func (b *Builder) Channels() map[int]*Channel {
	return b.channels
}

// register creates a channel's histograms on first sight, per spec
// §4.7: "channels are registered lazily ... an observed event for an
// unregistered channel does" trigger registration.
func (b *Builder) register(ch int) *Channel {
	if c, ok := b.channels[ch]; ok {
		return c
	}
	c := &Channel{
		Qlong:    histogram.NewH1(b.shape.QlongBins, b.shape.QlongMin, b.shape.QlongMax),
		QlongPSD: histogram.NewH2(b.shape.QlongBins, b.shape.QlongMin, b.shape.QlongMax, b.shape.PSDBins, b.shape.PSDMin, b.shape.PSDMax),
	}
	b.channels[ch] = c
	return c
}

// smallestPositive is the smallest representable positive float64,
// substituted for psd when qlong == 0 per spec §4.7.
const smallestPositive = 4.9406564584124654e-324

// psd computes (qlong-qshort)/qlong, or smallestPositive when qlong is
// zero — the edge case spec §4.7 calls out explicitly.
func psd(qshort, qlong float64) float64 {
	if qlong == 0 {
		return smallestPositive
	}
	return (qlong - qshort) / qlong
}

// Event is the subset of a decoded PSD event the spectrum builder
// needs; kept separate from wire.PSDEvent so this package has no
// import-time coupling to the wire codec.
type Event struct {
	Channel int
	Qshort  float64
	Qlong   float64
}

// Fill processes one event: auto-registers its channel, fills the 1D
// and 2D histograms, and increments the partial/total counters (spec
// §4.7 steps a-d).
func (b *Builder) Fill(e Event) {
	c := b.register(e.Channel)
	c.Qlong.Fill(e.Qlong)
	c.QlongPSD.Fill(e.Qlong, psd(e.Qshort, e.Qlong))
	c.Partial++
	c.Total++
}

// ResetPartials zeroes every channel's partial counter, called after
// each status publication per spec §4.7.
func (b *Builder) ResetPartials() {
	for _, c := range b.channels {
		c.Partial = 0
	}
}

// ResetChannel zeroes one channel's histograms and counters (both
// partial and total), the effect of a {command: "reset", channel: N}
// command.
func (b *Builder) ResetChannel(ch int) {
	c, ok := b.channels[ch]
	if !ok {
		return
	}
	c.Qlong.Reset()
	c.QlongPSD.Reset()
	c.Partial = 0
	c.Total = 0
}

// ResetAll resets every registered channel, the effect of
// {command: "reset", channel: "all"}.
func (b *Builder) ResetAll() {
	for ch := range b.channels {
		b.ResetChannel(ch)
	}
}

// DecayAll multiplies every registered channel's histograms by
// exp(-elapsedSeconds/tau) and then clear-minimums with FloorCount, the
// running-exponential-moving-average step of spec §4.7. A no-op when
// DecayEnabled is false.
func (b *Builder) DecayAll(elapsedSeconds float64) {
	if !b.DecayEnabled {
		return
	}
	for _, c := range b.channels {
		c.Qlong.DecayTo(elapsedSeconds, b.Tau)
		c.Qlong.ClearMinimum(b.FloorCount)
		c.QlongPSD.DecayTo(elapsedSeconds, b.Tau)
		c.QlongPSD.ClearMinimum(b.FloorCount)
	}
}

// Reconfigure replaces the shape used for future channel registrations
// and, for channels whose existing histogram shape already matches the
// new shape, leaves them untouched; channels whose shape differs are
// reallocated (reset to empty with the new shape), per spec §4.7's
// "preserving the channel set where shapes match and reallocating
// where they differ."
func (b *Builder) Reconfigure(shape ChannelShape) {
	b.shape = shape
	for _, c := range b.channels {
		if c.Qlong.Bins() == shape.QlongBins && c.Qlong.Min() == shape.QlongMin && c.Qlong.Max() == shape.QlongMax {
			continue
		}
		c.Qlong.Configure(shape.QlongBins, shape.QlongMin, shape.QlongMax)
		c.QlongPSD.Configure(shape.QlongBins, shape.QlongMin, shape.QlongMax, shape.PSDBins, shape.PSDMin, shape.PSDMax)
	}
}
