package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// SaleTimeseriesStore is an in-memory implementation of storage.SaleTimeseriesStore.
type SaleTimeseriesStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.SaleTimeseriesPoint // keyed by bucket_start
}

// NewSaleTimeseriesStore creates a new in-memory timeseries store.
func NewSaleTimeseriesStore() *SaleTimeseriesStore {
	return &SaleTimeseriesStore{
		data: make(map[int64]*domain.SaleTimeseriesPoint),
	}
}

// Compile-time interface check.
var _ storage.SaleTimeseriesStore = (*SaleTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate bucket_start.
func (s *SaleTimeseriesStore) InsertBulk(_ context.Context, points []*domain.SaleTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[int64]struct{}, len(points))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.BucketStart]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.BucketStart]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.BucketStart] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		s.data[p.BucketStart] = clonePoint(p)
	}

	return nil
}

// GetByTimeRange retrieves points with bucket_start in [start, end]
// (inclusive), ordered by bucket_start ASC.
func (s *SaleTimeseriesStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SaleTimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleTimeseriesPoint
	for _, p := range s.data {
		if p.BucketStart >= start && p.BucketStart <= end {
			result = append(result, clonePoint(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	return result, nil
}

func clonePoint(p *domain.SaleTimeseriesPoint) *domain.SaleTimeseriesPoint {
	clone := *p
	if p.SoldAmount != nil {
		clone.SoldAmount = new(uint256.Int).Set(p.SoldAmount)
	}
	if p.Proceeds != nil {
		clone.Proceeds = new(uint256.Int).Set(p.Proceeds)
	}
	return &clone
}
