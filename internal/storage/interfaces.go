package storage

import (
	"context"

	"crowdsale-engine/internal/domain"
)

// PurchaseStore provides access to purchases storage.
type PurchaseStore interface {
	// Insert adds a new purchase. Returns ErrDuplicateKey if purchase_id exists.
	Insert(ctx context.Context, p *domain.Purchase) error

	// InsertBulk adds multiple purchases atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, purchases []*domain.Purchase) error

	// GetByID retrieves a purchase by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, purchaseID string) (*domain.Purchase, error)

	// GetByBuyer retrieves all purchases for a buyer, ordered by timestamp ASC.
	GetByBuyer(ctx context.Context, buyer domain.Address) ([]*domain.Purchase, error)

	// GetByTimeRange retrieves purchases within [start, end] milliseconds (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Purchase, error)
}

// SaleEventStore provides access to the sale event journal. The journal
// is gap-free in sequence order and is sufficient to rebuild engine state.
type SaleEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id or sequence exists.
	Insert(ctx context.Context, e *domain.SaleEvent) error

	// GetBySequenceRange retrieves events with sequence in [start, end]
	// (inclusive), ordered by sequence ASC.
	GetBySequenceRange(ctx context.Context, start, end uint64) ([]*domain.SaleEvent, error)

	// GetAll retrieves all events ordered by sequence ASC.
	GetAll(ctx context.Context) ([]*domain.SaleEvent, error)

	// MaxSequence returns the highest stored sequence, 0 if empty.
	MaxSequence(ctx context.Context) (uint64, error)
}

// SaleTimeseriesStore provides access to sale_timeseries storage.
type SaleTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate bucket_start.
	InsertBulk(ctx context.Context, points []*domain.SaleTimeseriesPoint) error

	// GetByTimeRange retrieves points with bucket_start in [start, end]
	// milliseconds (inclusive), ordered by bucket_start ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SaleTimeseriesPoint, error)
}
