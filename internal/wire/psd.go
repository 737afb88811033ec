// Package wire implements the byte-exact PSD event and waveform wire
// formats described in spec §3 and §4.3. Every receiver in the ABCD
// backbone slices payloads according to these exact layouts, so the
// encodings here are a frozen external contract, not an internal
// serialization detail: field order, width, and endianness must never
// change.
package wire

import "encoding/binary"

// PSDEventSize is the fixed wire size of one PSD event, in bytes.
const PSDEventSize = 16

// PSDEvent is a point-like record summarizing one detector pulse.
// Timestamp is in sample units of the producing digitizer.
type PSDEvent struct {
	Timestamp uint64
	Qshort    uint16
	Qlong     uint16
	Baseline  uint16
	Channel   uint8
	PUR       uint8
}

// EncodePSDEvent writes e to dst in the little-endian, zero-padding
// layout of spec §3: timestamp, qshort, qlong, baseline, channel, pur.
// dst must be at least PSDEventSize bytes; EncodePSDEvent panics
// otherwise, the same contract encoding/binary.PutUvarint-style
// helpers use.
func EncodePSDEvent(dst []byte, e PSDEvent) {
	_ = dst[:PSDEventSize] // bounds check hint, mirrors encoding/binary style
	binary.LittleEndian.PutUint64(dst[0:8], e.Timestamp)
	binary.LittleEndian.PutUint16(dst[8:10], e.Qshort)
	binary.LittleEndian.PutUint16(dst[10:12], e.Qlong)
	binary.LittleEndian.PutUint16(dst[12:14], e.Baseline)
	dst[14] = e.Channel
	dst[15] = e.PUR
}

// AppendPSDEvent encodes e and appends it to dst, returning the
// extended slice. Used when serializing a batch of events into one
// publish payload (spec §4.9's publish_events action).
func AppendPSDEvent(dst []byte, e PSDEvent) []byte {
	var buf [PSDEventSize]byte
	EncodePSDEvent(buf[:], e)
	return append(dst, buf[:]...)
}

// DecodePSDEvent reads one PSD event from the first PSDEventSize bytes
// of src. Callers must ensure len(src) >= PSDEventSize; use
// DecodePSDEvents to handle payloads of unknown or truncated length.
func DecodePSDEvent(src []byte) PSDEvent {
	_ = src[:PSDEventSize]
	return PSDEvent{
		Timestamp: binary.LittleEndian.Uint64(src[0:8]),
		Qshort:    binary.LittleEndian.Uint16(src[8:10]),
		Qlong:     binary.LittleEndian.Uint16(src[10:12]),
		Baseline:  binary.LittleEndian.Uint16(src[12:14]),
		Channel:   src[14],
		PUR:       src[15],
	}
}

// DecodePSDEvents slices payload into PSDEventSize chunks and decodes
// each one. Per spec §4.3, a payload length that is not a multiple of
// PSDEventSize is tolerated: the trailing partial record is silently
// discarded rather than treated as a fatal error.
func DecodePSDEvents(payload []byte) []PSDEvent {
	n := len(payload) / PSDEventSize
	events := make([]PSDEvent, n)
	for i := 0; i < n; i++ {
		events[i] = DecodePSDEvent(payload[i*PSDEventSize : (i+1)*PSDEventSize])
	}
	return events
}

// EncodePSDEvents serializes a batch of events into one contiguous
// payload, the layout every publish_events-style action emits.
func EncodePSDEvents(events []PSDEvent) []byte {
	out := make([]byte, 0, len(events)*PSDEventSize)
	for _, e := range events {
		out = AppendPSDEvent(out, e)
	}
	return out
}
