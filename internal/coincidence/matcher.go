// Package coincidence implements the time-windowed coincidence matcher
// of spec §4.6 — the core of tofcalc: for each reference-channel event
// in a batch, scan forward and backward in timestamp order for
// active-channel neighbors whose time-of-flight falls in that
// channel's configured window, and accumulate four histograms per
// active channel.
package coincidence

import (
	"sort"

	"abcd.dev/abcd/internal/histogram"
	"abcd.dev/abcd/internal/wire"
)

// Window is one active channel's ToF acceptance window, in
// nanoseconds.
type Window struct {
	MinToF, MaxToF float64
}

// ChannelHistograms holds the four histograms spec §4.6 requires per
// active channel.
type ChannelHistograms struct {
	// ToF_a(Δt)
	ToF *histogram.H1
	// E_a(qlong)
	E *histogram.H1
	// EvsToF_a(Δt, qlong)
	EvsToF *histogram.H2
	// EvsE_a(qlong_ref, qlong_a)
	EvsE *histogram.H2
}

// Config describes the reference/active channel sets and the
// ns-per-sample conversion factor for one Matcher.
type Config struct {
	ReferenceChannels []int
	// ActiveChannels maps channel -> ToF window. Must be disjoint from
	// ReferenceChannels.
	ActiveChannels map[int]Window
	NsPerSample    float64
}

// Matcher runs the coincidence algorithm of spec §4.6 over batches of
// PSD events and accumulates per-active-channel histograms.
type Matcher struct {
	reference map[int]struct{}
	active    map[int]Window
	histos    map[int]*ChannelHistograms
	nsPerSample float64
}

// New builds a Matcher. hist is a constructor invoked once per active
// channel to build its four histograms with shapes the caller chooses
// (ToF/qlong/psd ranges are configuration, not hardcoded here).
func New(cfg Config, hist func(channel int) *ChannelHistograms) *Matcher {
	m := &Matcher{
		reference:   make(map[int]struct{}, len(cfg.ReferenceChannels)),
		active:      make(map[int]Window, len(cfg.ActiveChannels)),
		histos:      make(map[int]*ChannelHistograms, len(cfg.ActiveChannels)),
		nsPerSample: cfg.NsPerSample,
	}
	for _, ch := range cfg.ReferenceChannels {
		m.reference[ch] = struct{}{}
	}
	for ch, w := range cfg.ActiveChannels {
		m.active[ch] = w
		m.histos[ch] = hist(ch)
	}
	return m
}

// Histograms returns the accumulated histograms for an active
// channel, or nil if ch is not an active channel.
func (m *Matcher) Histograms(ch int) *ChannelHistograms {
	return m.histos[ch]
}

// ActiveChannels returns the configured active-channel ids, in no
// particular order.
func (m *Matcher) ActiveChannels() []int {
	chans := make([]int, 0, len(m.histos))
	for ch := range m.histos {
		chans = append(chans, ch)
	}
	return chans
}

// ResetChannel zeroes one active channel's four histograms.
func (m *Matcher) ResetChannel(ch int) {
	h, ok := m.histos[ch]
	if !ok {
		return
	}
	h.ToF.Reset()
	h.E.Reset()
	h.EvsToF.Reset()
	h.EvsE.Reset()
}

// ResetAll zeroes every active channel's histograms.
func (m *Matcher) ResetAll() {
	for ch := range m.histos {
		m.ResetChannel(ch)
	}
}

// globalEnvelope returns the union of all active channels' ToF
// windows, used as a fast-rejection bound before checking each
// channel's own window (spec §4.6 "global ToF envelope").
func (m *Matcher) globalEnvelope() (lo, hi float64, ok bool) {
	first := true
	for _, w := range m.active {
		if first {
			lo, hi = w.MinToF, w.MaxToF
			first = false
			continue
		}
		if w.MinToF < lo {
			lo = w.MinToF
		}
		if w.MaxToF > hi {
			hi = w.MaxToF
		}
	}
	return lo, hi, !first
}

// MatchPayload decodes payload as a batch of PSD events (tolerating a
// malformed trailing partial record, per spec §4.3) and matches it.
func (m *Matcher) MatchPayload(payload []byte) {
	m.Match(wire.DecodePSDEvents(payload))
}

// Match runs the algorithm of spec §4.6 over one batch: sort by
// timestamp, then for each reference event scan forward then backward
// until Δt leaves the global envelope, filling histograms for any
// active-channel neighbor inside its own window. No panic escapes
// regardless of batch content, per spec §4.6's failure semantics.
func (m *Matcher) Match(batch []wire.PSDEvent) {
	if len(batch) == 0 {
		return
	}
	envLo, envHi, ok := m.globalEnvelope()
	if !ok {
		return // no active channels configured
	}

	sorted := make([]wire.PSDEvent, len(batch))
	copy(sorted, batch)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	for i, r := range sorted {
		if _, isRef := m.reference[int(r.Channel)]; !isRef {
			continue
		}

		for j := i + 1; j < len(sorted); j++ {
			dt := deltaT(r.Timestamp, sorted[j].Timestamp, m.nsPerSample)
			if dt >= envHi {
				break
			}
			m.considerPair(r, sorted[j], dt)
		}

		for j := i - 1; j >= 0; j-- {
			dt := deltaT(r.Timestamp, sorted[j].Timestamp, m.nsPerSample)
			if dt < envLo {
				break
			}
			m.considerPair(r, sorted[j], dt)
		}
	}
}

// deltaT computes (t_j - t_r) * ns_per_sample without signed-overflow
// risk, since Timestamp is an unsigned sample counter (spec §3).
func deltaT(tRef, tOther uint64, nsPerSample float64) float64 {
	if tOther >= tRef {
		return float64(tOther-tRef) * nsPerSample
	}
	return -float64(tRef-tOther) * nsPerSample
}

func (m *Matcher) considerPair(r, a wire.PSDEvent, dt float64) {
	w, isActive := m.active[int(a.Channel)]
	if !isActive {
		return
	}
	if dt < w.MinToF || dt >= w.MaxToF {
		return
	}
	h := m.histos[int(a.Channel)]
	if h == nil {
		return
	}
	qlongA := float64(a.Qlong)
	h.ToF.Fill(dt)
	h.E.Fill(qlongA)
	h.EvsToF.Fill(dt, qlongA)
	h.EvsE.Fill(float64(r.Qlong), qlongA)
}
