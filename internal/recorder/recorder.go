// Package recorder implements the dasa core of spec §4.8: three
// independently-enabled raw-byte file writers routed by topic prefix,
// flushed on a ticker, plus an additive SQLite catalog of past
// recording sessions.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stream identifies one of the three independently-enabled file
// writers spec §4.8 describes.
type Stream int

const (
	StreamEvents Stream = iota
	StreamWaveforms
	StreamRaw
)

func (s Stream) String() string {
	switch s {
	case StreamEvents:
		return "events"
	case StreamWaveforms:
		return "waveforms"
	case StreamRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Enable lists which of the three streams a recording session writes.
type Enable struct {
	Events    bool
	Waveforms bool
	Raw       bool
}

// writer pairs an *os.File with the byte counter spec §4.8's catalog
// needs.
type writer struct {
	file  *os.File
	bytes int64
}

// Session is one active recording: a file name prefix, the streams
// enabled for it, and the open writers.
type Session struct {
	FileName  string
	StartedAt time.Time
	enabled   Enable
	writers   map[Stream]*writer
}

// Recorder is the dasa core: at most one active Session at a time,
// matching spec §4.8's start/stop state machine (a "start" while a
// session is already active is rejected, not stacked).
type Recorder struct {
	active *Session
	// openFile is a test seam standing in for os.OpenFile.
	openFile func(name string) (*os.File, error)
}

// New creates a Recorder. dir is the directory recordings are written
// under.
func New(dir string) *Recorder {
	return &Recorder{
		openFile: func(name string) (*os.File, error) {
			return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		},
	}
}

// ErrAlreadyRecording is returned by Start when a session is already
// active.
var ErrAlreadyRecording = fmt.Errorf("recorder: a recording session is already active")

// ErrNotRecording is returned by Stop/Write when no session is active.
var ErrNotRecording = fmt.Errorf("recorder: no active recording session")

func streamFileName(base string, s Stream) string {
	return base + "." + s.String()
}

// Start opens the writers for fileName's enabled streams and makes the
// resulting Session active. Fails if a session is already active.
func (r *Recorder) Start(fileName string, enable Enable, now time.Time) error {
	if r.active != nil {
		return ErrAlreadyRecording
	}

	sess := &Session{FileName: fileName, StartedAt: now, enabled: enable, writers: make(map[Stream]*writer)}
	streams := []struct {
		kind    Stream
		enabled bool
	}{
		{StreamEvents, enable.Events},
		{StreamWaveforms, enable.Waveforms},
		{StreamRaw, enable.Raw},
	}
	for _, st := range streams {
		if !st.enabled {
			continue
		}
		f, err := r.openFile(streamFileName(fileName, st.kind))
		if err != nil {
			sess.closeAll()
			return fmt.Errorf("recorder: open %s stream: %w", st.kind, err)
		}
		sess.writers[st.kind] = &writer{file: f}
	}
	r.active = sess
	return nil
}

func (s *Session) closeAll() {
	for _, w := range s.writers {
		w.file.Close()
	}
}

// Active reports the current session, or nil when idle.
func (r *Recorder) Active() *Session {
	return r.active
}

// routeStream maps a data topic prefix to the stream it belongs to,
// per spec §6's topic table (data_abcd_events, data_abcd_waveforms).
// Any other topic routes to the raw stream, which records every frame
// regardless of topic.
func routeStream(topic string) Stream {
	switch {
	case strings.HasPrefix(topic, "data_abcd_events"):
		return StreamEvents
	case strings.HasPrefix(topic, "data_abcd_waveforms"):
		return StreamWaveforms
	default:
		return StreamRaw
	}
}

// WriteFrame routes one received frame to its stream's writer (if
// enabled) and, independently, to the raw writer (if enabled), since
// spec §4.8's raw stream records every frame regardless of topic
// routing. The bytes written accumulate per stream for the catalog and
// are read back with ByteCounts.
func (r *Recorder) WriteFrame(topic string, payload []byte) error {
	if r.active == nil {
		return ErrNotRecording
	}
	stream := routeStream(topic)
	if stream != StreamRaw {
		if w, ok := r.active.writers[stream]; ok {
			n, err := w.file.Write(payload)
			w.bytes += int64(n)
			if err != nil {
				return fmt.Errorf("recorder: write %s stream: %w", stream, err)
			}
		}
	}
	if w, ok := r.active.writers[StreamRaw]; ok {
		full := composeRawRecord(topic, payload)
		n, err := w.file.Write(full)
		w.bytes += int64(n)
		if err != nil {
			return fmt.Errorf("recorder: write raw stream: %w", err)
		}
	}
	return nil
}

// composeRawRecord reconstructs the full "<topic> <payload>" frame for
// the raw stream, matching what was actually received on the wire.
func composeRawRecord(topic string, payload []byte) []byte {
	out := make([]byte, 0, len(topic)+1+len(payload))
	out = append(out, topic...)
	out = append(out, ' ')
	out = append(out, payload...)
	return out
}

// Flush syncs every open writer to disk, the periodic action spec
// §4.8 drives from a ticker.
func (r *Recorder) Flush() error {
	if r.active == nil {
		return nil
	}
	for stream, w := range r.active.writers {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("recorder: flush %s stream: %w", stream, err)
		}
	}
	return nil
}

// ByteCounts returns the accumulated byte count per stream for the
// active session.
func (r *Recorder) ByteCounts() map[Stream]int64 {
	counts := make(map[Stream]int64)
	if r.active == nil {
		return counts
	}
	for stream, w := range r.active.writers {
		counts[stream] = w.bytes
	}
	return counts
}

// Stop closes every open writer and clears the active session,
// returning the final per-stream byte counts for the catalog entry.
func (r *Recorder) Stop() (map[Stream]int64, error) {
	if r.active == nil {
		return nil, ErrNotRecording
	}
	counts := r.ByteCounts()
	var firstErr error
	for _, w := range r.active.writers {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.active = nil
	return counts, firstErr
}
