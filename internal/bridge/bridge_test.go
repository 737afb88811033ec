package bridge

import (
	"reflect"
	"testing"

	"abcd.dev/abcd/internal/wire"
)

func TestTranslate_DecodesAndConvertsFields(t *testing.T) {
	w := wire.Waveform{
		Timestamp:           42,
		Channel:             3,
		AdditionalWaveforms: 1,
		Samples:             []uint16{10, 20, 30},
		Gates:               [][]uint8{{1, 0, 1}},
	}
	payload := wire.EncodeWaveform(nil, w)

	got := Translate(payload)
	if len(got) != 1 {
		t.Fatalf("Translate returned %d waveforms, want 1", len(got))
	}
	want := JSONWaveform{
		Timestamp:       42,
		Channel:         3,
		Samples:         []uint16{10, 20, 30},
		AdditionalGates: [][]uint8{{1, 0, 1}},
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("Translate = %+v, want %+v", got[0], want)
	}
}

func TestTranslate_MultipleWaveformsPreserveOrder(t *testing.T) {
	a := wire.Waveform{Timestamp: 1, Channel: 0, Samples: []uint16{1}}
	b := wire.Waveform{Timestamp: 2, Channel: 1, Samples: []uint16{2}}
	payload := wire.EncodeWaveforms([]wire.Waveform{a, b})

	got := Translate(payload)
	if len(got) != 2 || got[0].Timestamp != 1 || got[1].Timestamp != 2 {
		t.Errorf("Translate = %+v, want timestamps [1, 2] in order", got)
	}
}

func TestTranslate_EmptyPayload(t *testing.T) {
	got := Translate(nil)
	if len(got) != 0 {
		t.Errorf("Translate(nil) = %v, want empty", got)
	}
}
