package wire

import (
	"bytes"
	"testing"
)

func TestEncodePSDEvent_Scenario(t *testing.T) {
	// spec §8, scenario 1.
	e := PSDEvent{
		Timestamp: 0x0102030405060708,
		Qshort:    0x1122,
		Qlong:     0x3344,
		Baseline:  0x5566,
		Channel:   7,
		PUR:       0,
	}
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x22, 0x11, 0x44, 0x33, 0x66, 0x55, 0x07, 0x00}

	var got [PSDEventSize]byte
	EncodePSDEvent(got[:], e)

	if !bytes.Equal(got[:], want) {
		t.Errorf("EncodePSDEvent = % x, want % x", got, want)
	}
}

func TestPSDEventRoundTrip(t *testing.T) {
	cases := []PSDEvent{
		{},
		{Timestamp: 1, Qshort: 2, Qlong: 3, Baseline: 4, Channel: 5, PUR: 1},
		{Timestamp: ^uint64(0), Qshort: ^uint16(0), Qlong: ^uint16(0), Baseline: ^uint16(0), Channel: 255, PUR: 255},
	}
	for _, e := range cases {
		buf := make([]byte, PSDEventSize)
		EncodePSDEvent(buf, e)
		if len(buf) != PSDEventSize {
			t.Fatalf("encoded length = %d, want %d", len(buf), PSDEventSize)
		}
		got := DecodePSDEvent(buf)
		if got != e {
			t.Errorf("round trip: got %+v, want %+v", got, e)
		}
	}
}

func TestDecodePSDEvents_TruncatedTail(t *testing.T) {
	events := []PSDEvent{
		{Timestamp: 1, Channel: 1},
		{Timestamp: 2, Channel: 2},
	}
	payload := EncodePSDEvents(events)
	// Append a partial, malformed tail — must be silently discarded
	// per spec §4.3, not treated as an error.
	payload = append(payload, 0x01, 0x02, 0x03)

	got := DecodePSDEvents(payload)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0] != events[0] || got[1] != events[1] {
		t.Errorf("got %+v, want %+v", got, events)
	}
}

func TestDecodePSDEvents_Empty(t *testing.T) {
	if got := DecodePSDEvents(nil); len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}
