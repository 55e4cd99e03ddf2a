package events

import (
	"context"
	"sync"
	"time"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/idhash"
)

// Fanout assigns each event a gap-free sequence number, a timestamp, and
// a deterministic event ID, then delivers it to every registered sink in
// order. Delivery is serialized so downstream sinks observe the same
// ordering the core committed.
type Fanout struct {
	mu    sync.Mutex
	seq   uint64
	sinks []Sink
	now   func() time.Time
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		now:   time.Now,
	}
}

// WithClock overrides the fanout's clock. For tests.
func (f *Fanout) WithClock(now func() time.Time) *Fanout {
	f.now = now
	return f
}

// WithStartSequence makes the next emitted event carry seq+1. Used on
// startup to continue numbering after the journal's highest persisted
// sequence.
func (f *Fanout) WithStartSequence(seq uint64) *Fanout {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq = seq
	return f
}

// Emit implements Sink.
func (f *Fanout) Emit(ctx context.Context, event *domain.SaleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	event.Sequence = f.seq
	if event.Timestamp == 0 {
		event.Timestamp = f.now().UnixMilli()
	}
	event.EventID = idhash.ComputeEventID(string(event.Type), event.Sequence, event.Timestamp)

	for _, s := range f.sinks {
		s.Emit(ctx, event)
	}
}

var _ Sink = (*Fanout)(nil)
