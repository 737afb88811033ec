// Package fifo implements the timestamped binary FIFO of spec §4.5: an
// insertion-ordered collection of (instant, payload) pairs with a
// configurable expiration time, used by the peak fitter (califo) to
// retain recent histogram snapshots and by the FIFO responder process
// to answer time-range queries over recorded payloads.
//
// The design is grounded on the dual-eviction circular buffer in
// nugget-thane-ai-agent's internal/statewindow/provider.go (a
// count-and-age-bounded window of timestamped entries with an
// injectable nowFunc for deterministic tests), generalized from a
// fixed-capacity ring to an unbounded, age-only-evicted deque: spec
// §4.5 requires that the only eviction point is an explicit update()
// call, never an overflow-driven overwrite.
package fifo

import (
	"sync"
	"time"
)

// Datum is one stored entry: an arrival timestamp and its opaque
// payload bytes.
type Datum struct {
	Timestamp time.Time
	Payload   []byte
}

// FIFO is an insertion-ordered, age-expiring collection of Datum
// values. Safe for concurrent use.
type FIFO struct {
	mu         sync.Mutex
	entries    []Datum
	expiration time.Duration
	nowFunc    func() time.Time
}

// New creates a FIFO with the given retention window. A non-positive
// expiration disables expiry: Update is then a no-op and entries are
// never evicted.
func New(expiration time.Duration) *FIFO {
	return &FIFO{
		entries:    nil,
		expiration: expiration,
		nowFunc:    time.Now,
	}
}

// Push appends payload with timestamp = now. The slice is copied so
// callers may reuse their buffer after Push returns.
func (f *FIFO) Push(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, Datum{Timestamp: f.nowFunc(), Payload: cp})
}

// Update pops from the front while the front's age exceeds the
// configured expiration time. Idempotent; safe to call before any
// read, and safe to call on an empty FIFO.
func (f *FIFO) Update() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateLocked()
}

func (f *FIFO) updateLocked() {
	if f.expiration <= 0 {
		return
	}
	now := f.nowFunc()
	i := 0
	for i < len(f.entries) && now.Sub(f.entries[i].Timestamp) > f.expiration {
		i++
	}
	if i > 0 {
		// Drop the expired prefix. A fresh slice (rather than
		// re-slicing in place) keeps the backing array from growing
		// unboundedly across long-running processes.
		remaining := make([]Datum, len(f.entries)-i)
		copy(remaining, f.entries[i:])
		f.entries = remaining
	}
}

// GetData returns, in insertion order, the payloads whose timestamps
// lie in [from, to). Does not itself call Update; callers that want
// expired entries excluded should Update first (the FIFO query
// responder does this on every request).
func (f *FIFO) GetData(from, to time.Time) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out [][]byte
	for _, d := range f.entries {
		if !d.Timestamp.Before(from) && d.Timestamp.Before(to) {
			cp := make([]byte, len(d.Payload))
			copy(cp, d.Payload)
			out = append(out, cp)
		}
	}
	return out
}

// Count returns the number of entries currently retained (after the
// last Update call; does not itself trigger eviction).
func (f *FIFO) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Size returns the total payload byte size of all entries currently
// retained.
func (f *FIFO) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int
	for _, d := range f.entries {
		total += len(d.Payload)
	}
	return total
}

// Entries returns a copy of the retained data, oldest first. Used by
// califo to sum histogram snapshots over an accumulation window.
func (f *FIFO) Entries() []Datum {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Datum, len(f.entries))
	for i, d := range f.entries {
		cp := make([]byte, len(d.Payload))
		copy(cp, d.Payload)
		out[i] = Datum{Timestamp: d.Timestamp, Payload: cp}
	}
	return out
}
