// Package digitizer implements the digitizer session skeleton of spec
// §4.9: the state graph every digitizer-facing process (abad2,
// abps5000a, abrp) shares, with the vendor SDK contracted behind a
// Device interface. The skeleton never calls a vendor library
// directly — that integration is out of scope — but the boundary
// itself, and everything on this side of it (buffering, signed-to-
// unsigned conversion, publish-interval/buffer-size driven
// transitions), is fully implemented and tested.
package digitizer

import (
	"context"

	"abcd.dev/abcd/internal/wire"
)

// ChannelConfig is the per-channel configuration a digitizer process
// reads from its config file and pushes down to the device.
type ChannelConfig struct {
	Channel int
	Enable  bool
}

// Device is the external collaborator every digitizer-facing process
// contracts the vendor SDK behind (spec §4.9). Implementations for
// real hardware are out of scope; cmd/abad2 and cmd/abps5000a each
// wire a stub implementation against this same interface.
type Device interface {
	Open(ctx context.Context) error
	ConfigureChannels(ctx context.Context, cfg []ChannelConfig) error
	Start(ctx context.Context) error
	// Poll reports whether a completed capture is ready to fetch.
	Poll(ctx context.Context) (ready bool, err error)
	// FetchSamples returns one completed waveform capture with signed
	// device sample counts (conversion to unsigned happens in
	// internal/digitizer, not in the Device).
	FetchSamples(ctx context.Context) (RawCapture, error)
	Close(ctx context.Context) error
}

// RawCapture is one capture as the device hands it back: signed sample
// counts, not yet converted to the unsigned wire representation.
type RawCapture struct {
	Timestamp uint64
	Channel   uint8
	Samples   []int16
	// Gates holds one signed array per additional digital gate, each
	// the same length as Samples.
	Gates [][]int16
}

// signedToUnsignedOffset is the 2^15 offset spec §4.9 specifies for
// converting signed device counts to the unsigned wire representation.
const signedToUnsignedOffset = 1 << 15

// toUnsigned converts one signed sample count to its unsigned wire
// representation by adding 2^15, per spec §4.9.
func toUnsigned(v int16) uint16 {
	return uint16(int32(v) + signedToUnsignedOffset)
}

// ConvertCapture converts a RawCapture's signed samples (and any
// additional gate channels) into a wire.Waveform ready for buffering.
// Gates are u8-wide on the wire (spec §3); values are truncated the
// same way the original C digital-gate encoding does.
func ConvertCapture(c RawCapture) wire.Waveform {
	samples := make([]uint16, len(c.Samples))
	for i, v := range c.Samples {
		samples[i] = toUnsigned(v)
	}
	gates := make([][]uint8, len(c.Gates))
	for i, gate := range c.Gates {
		converted := make([]uint8, len(gate))
		for j, v := range gate {
			converted[j] = uint8(toUnsigned(v))
		}
		gates[i] = converted
	}
	return wire.Waveform{
		Timestamp:           c.Timestamp,
		Channel:             c.Channel,
		AdditionalWaveforms: uint8(len(gates)),
		Samples:             samples,
		Gates:               gates,
	}
}
