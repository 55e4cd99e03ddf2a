package events

import (
	"context"
	"errors"
	"log"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// Journal persists every emitted event to a SaleEventStore. Insert
// failures are logged, not propagated: the state change that produced
// the event is already committed, and the deterministic event IDs make
// a replayed insert a harmless duplicate.
type Journal struct {
	store  storage.SaleEventStore
	logger *log.Logger
}

// NewJournal creates a journal sink. A nil logger uses the process default.
func NewJournal(store storage.SaleEventStore, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.Default()
	}
	return &Journal{store: store, logger: logger}
}

var _ Sink = (*Journal)(nil)

// Emit implements Sink.
func (j *Journal) Emit(ctx context.Context, e *domain.SaleEvent) {
	err := j.store.Insert(ctx, e)
	if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
		return
	}
	j.logger.Printf("journal insert failed for event %s (seq %d): %v", e.EventID, e.Sequence, err)
}
