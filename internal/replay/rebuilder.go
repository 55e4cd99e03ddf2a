package replay

import (
	"context"
	"fmt"

	"crowdsale-engine/internal/storage"
)

// Rebuilder folds the event journal into a State.
type Rebuilder struct {
	store storage.SaleEventStore
}

// NewRebuilder creates a rebuilder reading from store.
func NewRebuilder(store storage.SaleEventStore) *Rebuilder {
	return &Rebuilder{store: store}
}

// Rebuild loads the full journal and folds it from the empty state. The
// mint event at the head of each epoch establishes the allocation.
func (r *Rebuilder) Rebuild(ctx context.Context) (*State, error) {
	events, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	state := NewState()
	for _, e := range events {
		if err := state.Apply(e); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// RebuildRange folds events with sequence in [onto.LastSequence+1, upto]
// on top of an existing state. Useful for catching a snapshot up to the
// journal head without re-reading everything.
func (r *Rebuilder) RebuildRange(ctx context.Context, onto *State, upto uint64) (*State, error) {
	if upto <= onto.LastSequence {
		return onto, nil
	}

	events, err := r.store.GetBySequenceRange(ctx, onto.LastSequence+1, upto)
	if err != nil {
		return nil, fmt.Errorf("load journal range: %w", err)
	}

	for _, e := range events {
		if err := onto.Apply(e); err != nil {
			return nil, err
		}
	}
	return onto, nil
}
