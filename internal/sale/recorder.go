package sale

import (
	"context"
	"errors"
	"log"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// StoreRecorder persists purchases into a PurchaseStore. Insert failures
// are logged, never surfaced: by the time Record runs the purchase has
// committed and must not unwind. Duplicate-key inserts are treated as
// already recorded.
type StoreRecorder struct {
	store  storage.PurchaseStore
	logger *log.Logger
}

// NewStoreRecorder creates a recorder over store. A nil logger falls
// back to log.Default.
func NewStoreRecorder(store storage.PurchaseStore, logger *log.Logger) *StoreRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &StoreRecorder{store: store, logger: logger}
}

// Record implements PurchaseRecorder.
func (r *StoreRecorder) Record(ctx context.Context, p *domain.Purchase) {
	err := r.store.Insert(ctx, p)
	if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
		return
	}
	r.logger.Printf("purchase insert failed for %s: %v", p.PurchaseID, err)
}

var _ PurchaseRecorder = (*StoreRecorder)(nil)
