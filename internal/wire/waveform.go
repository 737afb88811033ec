package wire

import (
	"encoding/binary"
	"fmt"
)

// waveformHeaderSize is the fixed 14-byte header preceding each
// waveform's samples: timestamp(8) + channel(1) + samples_number(4) +
// additional_waveforms(1).
const waveformHeaderSize = 14

// Waveform is a time series of raw samples plus optional digital
// gates, produced by a digitizer session and consumed by analysis
// modules (spec §3, glossary).
type Waveform struct {
	Timestamp           uint64
	Channel             uint8
	AdditionalWaveforms uint8
	// Samples holds the primary u16 waveform, length == len(Samples).
	Samples []uint16
	// Gates holds AdditionalWaveforms digital-gate arrays, each of the
	// same length as Samples.
	Gates [][]uint8
}

// Size reports the encoded byte length of w: 14 + 2*N + A*N.
func (w Waveform) Size() int {
	n := len(w.Samples)
	return waveformHeaderSize + 2*n + int(w.AdditionalWaveforms)*n
}

// EncodeWaveform appends w's wire encoding to dst and returns the
// extended slice: header fields in declaration order, then the
// primary sample array, then each gate array, exactly as spec §4.3
// requires for round-trip fidelity.
func EncodeWaveform(dst []byte, w Waveform) []byte {
	n := len(w.Samples)
	var hdr [waveformHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], w.Timestamp)
	hdr[8] = w.Channel
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(n))
	hdr[13] = w.AdditionalWaveforms
	dst = append(dst, hdr[:]...)

	for _, s := range w.Samples {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], s)
		dst = append(dst, b[:]...)
	}
	for g := 0; g < int(w.AdditionalWaveforms); g++ {
		if g < len(w.Gates) {
			dst = append(dst, w.Gates[g]...)
		} else {
			dst = append(dst, make([]byte, n)...)
		}
	}
	return dst
}

// EncodeWaveforms concatenates the wire encoding of multiple waveforms
// into a single payload, matching the "multiple waveforms concatenate
// in a single message" rule of spec §3.
func EncodeWaveforms(ws []Waveform) []byte {
	out := make([]byte, 0, 64*len(ws))
	for _, w := range ws {
		out = EncodeWaveform(out, w)
	}
	return out
}

// DecodeWaveforms reads as many complete waveforms as fit in payload.
// Per spec §4.3, when a header claims more bytes than remain the
// decoder stops rather than erroring — the return value simply
// contains fewer waveforms than the sender intended; no error or
// warning is reported.
func DecodeWaveforms(payload []byte) []Waveform {
	var out []Waveform
	off := 0
	for off+waveformHeaderSize <= len(payload) {
		hdr := payload[off : off+waveformHeaderSize]
		timestamp := binary.LittleEndian.Uint64(hdr[0:8])
		channel := hdr[8]
		n := int(binary.LittleEndian.Uint32(hdr[9:13]))
		additional := hdr[13]

		size := waveformHeaderSize + 2*n + int(additional)*n
		if off+size > len(payload) {
			break
		}

		body := payload[off+waveformHeaderSize : off+size]
		samples := make([]uint16, n)
		for i := 0; i < n; i++ {
			samples[i] = binary.LittleEndian.Uint16(body[2*i : 2*i+2])
		}

		gates := make([][]uint8, additional)
		base := 2 * n
		for g := 0; g < int(additional); g++ {
			gate := make([]uint8, n)
			copy(gate, body[base+g*n:base+(g+1)*n])
			gates[g] = gate
		}

		out = append(out, Waveform{
			Timestamp:           timestamp,
			Channel:             channel,
			AdditionalWaveforms: additional,
			Samples:             samples,
			Gates:               gates,
		})
		off += size
	}
	return out
}

// ValidateWaveform reports an error if w's Gates slice is inconsistent
// with AdditionalWaveforms/Samples, since a malformed waveform would
// silently corrupt every downstream consumer. EncodeWaveform does not
// call it; it pads missing gate arrays with zeros instead.
func ValidateWaveform(w Waveform) error {
	if int(w.AdditionalWaveforms) != len(w.Gates) {
		return fmt.Errorf("waveform: additional_waveforms=%d but len(Gates)=%d", w.AdditionalWaveforms, len(w.Gates))
	}
	for i, g := range w.Gates {
		if len(g) != len(w.Samples) {
			return fmt.Errorf("waveform: gate %d has %d samples, want %d", i, len(g), len(w.Samples))
		}
	}
	return nil
}
