package memory

import (
	"context"
	"sort"
	"sync"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// PurchaseStore is an in-memory implementation of storage.PurchaseStore.
type PurchaseStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Purchase // keyed by purchase_id
}

// NewPurchaseStore creates a new in-memory purchase store.
func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{
		data: make(map[string]*domain.Purchase),
	}
}

// Insert adds a new purchase. Returns ErrDuplicateKey if purchase_id exists.
func (s *PurchaseStore) Insert(_ context.Context, p *domain.Purchase) error {
	if p == nil || p.PurchaseID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PurchaseID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[p.PurchaseID] = clonePurchase(p)
	return nil
}

// InsertBulk adds multiple purchases atomically. Fails entire batch on any duplicate.
func (s *PurchaseStore) InsertBulk(_ context.Context, purchases []*domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(purchases))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range purchases {
		if p == nil || p.PurchaseID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.PurchaseID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.PurchaseID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.PurchaseID] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range purchases {
		s.data[p.PurchaseID] = clonePurchase(p)
	}

	return nil
}

// GetByID retrieves a purchase by its ID. Returns ErrNotFound if not exists.
func (s *PurchaseStore) GetByID(_ context.Context, purchaseID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[purchaseID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clonePurchase(p), nil
}

// GetByBuyer retrieves all purchases for a buyer, ordered by timestamp ASC.
func (s *PurchaseStore) GetByBuyer(_ context.Context, buyer domain.Address) ([]*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Purchase
	for _, p := range s.data {
		if p.Buyer == buyer {
			result = append(result, clonePurchase(p))
		}
	}

	sortPurchases(result)
	return result, nil
}

// GetByTimeRange retrieves purchases within [start, end] milliseconds (inclusive).
func (s *PurchaseStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Purchase
	for _, p := range s.data {
		if p.Timestamp >= start && p.Timestamp <= end {
			result = append(result, clonePurchase(p))
		}
	}

	sortPurchases(result)
	return result, nil
}

func sortPurchases(ps []*domain.Purchase) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Timestamp != ps[j].Timestamp {
			return ps[i].Timestamp < ps[j].Timestamp
		}
		return ps[i].PurchaseID < ps[j].PurchaseID
	})
}

func clonePurchase(p *domain.Purchase) *domain.Purchase {
	c := *p
	c.Amount = p.Amount.Clone()
	c.Cost = p.Cost.Clone()
	c.Price = p.Price.Clone()
	return &c
}

var _ storage.PurchaseStore = (*PurchaseStore)(nil)
