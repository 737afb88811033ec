package digitizer

import "testing"

func TestToUnsigned_ZeroMapsToMidpoint(t *testing.T) {
	if got := toUnsigned(0); got != 1<<15 {
		t.Errorf("toUnsigned(0) = %d, want %d", got, 1<<15)
	}
}

func TestToUnsigned_MinAndMax(t *testing.T) {
	if got := toUnsigned(-32768); got != 0 {
		t.Errorf("toUnsigned(-32768) = %d, want 0", got)
	}
	if got := toUnsigned(32767); got != 65535 {
		t.Errorf("toUnsigned(32767) = %d, want 65535", got)
	}
}

func TestConvertCapture_ConvertsSamplesAndGates(t *testing.T) {
	raw := RawCapture{
		Timestamp: 42,
		Channel:   3,
		Samples:   []int16{0, -32768, 32767},
		Gates:     [][]int16{{0, 0, 0}},
	}
	w := ConvertCapture(raw)

	if w.Timestamp != 42 || w.Channel != 3 {
		t.Errorf("header mismatch: %+v", w)
	}
	wantSamples := []uint16{1 << 15, 0, 65535}
	for i, want := range wantSamples {
		if w.Samples[i] != want {
			t.Errorf("Samples[%d] = %d, want %d", i, w.Samples[i], want)
		}
	}
	if w.AdditionalWaveforms != 1 || len(w.Gates) != 1 {
		t.Fatalf("gates not carried through: %+v", w)
	}
}
