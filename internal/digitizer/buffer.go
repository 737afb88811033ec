package digitizer

import (
	"time"

	"abcd.dev/abcd/internal/wire"
)

// Buffer accumulates completed waveform captures in memory until
// either it exceeds events_buffer_max_size or the publication interval
// elapses, per spec §4.9's add_to_buffer/publish_events transition.
type Buffer struct {
	waveforms   []wire.Waveform
	maxSize     int
	interval    time.Duration
	lastPublish time.Time
	nowFunc     func() time.Time
}

// NewBuffer creates a Buffer with the given maximum length and
// publication interval. now is the initial "last published at" instant.
func NewBuffer(maxSize int, interval time.Duration, now time.Time) *Buffer {
	return &Buffer{maxSize: maxSize, interval: interval, lastPublish: now, nowFunc: time.Now}
}

// Append adds one converted waveform to the buffer.
func (b *Buffer) Append(w wire.Waveform) {
	b.waveforms = append(b.waveforms, w)
}

// Len reports the number of buffered waveforms.
func (b *Buffer) Len() int {
	return len(b.waveforms)
}

func (b *Buffer) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}

// ShouldPublish reports whether the buffer has grown past its maximum
// size or the publication interval has elapsed since the last publish.
func (b *Buffer) ShouldPublish() bool {
	if len(b.waveforms) > b.maxSize {
		return true
	}
	return b.now().Sub(b.lastPublish) >= b.interval
}

// Drain serializes every buffered waveform into one contiguous payload
// (the data_abcd_waveforms_v0_s<size> body), clears the buffer, and
// resets the publish clock.
func (b *Buffer) Drain() []byte {
	payload := wire.EncodeWaveforms(b.waveforms)
	b.waveforms = b.waveforms[:0]
	b.lastPublish = b.now()
	return payload
}
