package digitizer

import (
	"testing"
	"time"

	"abcd.dev/abcd/internal/wire"
)

func TestBuffer_ShouldPublishOnSizeExceeded(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBuffer(1, time.Hour, now)
	b.nowFunc = func() time.Time { return now }

	b.Append(wire.Waveform{Timestamp: 1})
	if b.ShouldPublish() {
		t.Fatal("ShouldPublish() = true at maxSize, want false (strictly greater required)")
	}
	b.Append(wire.Waveform{Timestamp: 2})
	if !b.ShouldPublish() {
		t.Fatal("ShouldPublish() = false after exceeding maxSize, want true")
	}
}

func TestBuffer_ShouldPublishOnIntervalElapsed(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBuffer(100, time.Second, now)
	b.nowFunc = func() time.Time { return now }

	if b.ShouldPublish() {
		t.Fatal("ShouldPublish() = true immediately, want false")
	}
	now = now.Add(2 * time.Second)
	if !b.ShouldPublish() {
		t.Fatal("ShouldPublish() = false after interval elapsed, want true")
	}
}

func TestBuffer_DrainClearsAndResetsClock(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBuffer(100, time.Second, now)
	b.nowFunc = func() time.Time { return now }

	b.Append(wire.Waveform{Timestamp: 1, Samples: []uint16{10, 20}})
	b.Append(wire.Waveform{Timestamp: 2, Samples: []uint16{30}})

	payload := b.Drain()
	if len(payload) == 0 {
		t.Fatal("Drain() returned empty payload")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Drain, want 0", b.Len())
	}

	decoded := wire.DecodeWaveforms(payload)
	if len(decoded) != 2 {
		t.Fatalf("len(decoded) = %d, want 2", len(decoded))
	}
	if decoded[0].Timestamp != 1 || decoded[1].Timestamp != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}
