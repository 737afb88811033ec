// Package bridge implements wadi (spec §4.11): a thin process that
// subscribes to the binary waveform topic, decodes each waveform via
// internal/wire, and republishes it as a JSON object for lightweight
// consumers that cannot parse the binary layout.
package bridge

import "abcd.dev/abcd/internal/wire"

// JSONWaveform is the wire shape wadi publishes, one object per
// decoded waveform (spec §4.11/§6).
type JSONWaveform struct {
	Timestamp       uint64    `json:"timestamp"`
	Channel         uint8     `json:"channel"`
	Samples         []uint16  `json:"samples"`
	AdditionalGates [][]uint8 `json:"additional_gates,omitempty"`
}

// Translate decodes every complete waveform in payload and converts
// each to its JSON shape, preserving order.
func Translate(payload []byte) []JSONWaveform {
	waveforms := wire.DecodeWaveforms(payload)
	out := make([]JSONWaveform, len(waveforms))
	for i, w := range waveforms {
		out[i] = JSONWaveform{
			Timestamp:       w.Timestamp,
			Channel:         w.Channel,
			Samples:         w.Samples,
			AdditionalGates: w.Gates,
		}
	}
	return out
}
