package memory

import (
	"context"
	"sort"
	"sync"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// SaleEventStore is an in-memory implementation of storage.SaleEventStore.
type SaleEventStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SaleEvent // keyed by event_id
	bySeq  map[uint64]struct{}
	maxSeq uint64
}

// NewSaleEventStore creates a new in-memory sale event store.
func NewSaleEventStore() *SaleEventStore {
	return &SaleEventStore{
		data:  make(map[string]*domain.SaleEvent),
		bySeq: make(map[uint64]struct{}),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id or sequence exists.
func (s *SaleEventStore) Insert(_ context.Context, e *domain.SaleEvent) error {
	if e == nil || e.EventID == "" || e.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.bySeq[e.Sequence]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.EventID] = cloneEvent(e)
	s.bySeq[e.Sequence] = struct{}{}
	if e.Sequence > s.maxSeq {
		s.maxSeq = e.Sequence
	}
	return nil
}

// GetBySequenceRange retrieves events with sequence in [start, end] (inclusive).
func (s *SaleEventStore) GetBySequenceRange(_ context.Context, start, end uint64) ([]*domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleEvent
	for _, e := range s.data {
		if e.Sequence >= start && e.Sequence <= end {
			result = append(result, cloneEvent(e))
		}
	}

	sortEvents(result)
	return result, nil
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *SaleEventStore) GetAll(_ context.Context) ([]*domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SaleEvent, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, cloneEvent(e))
	}

	sortEvents(result)
	return result, nil
}

// MaxSequence returns the highest stored sequence, 0 if empty.
func (s *SaleEventStore) MaxSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.maxSeq, nil
}

func sortEvents(es []*domain.SaleEvent) {
	sort.Slice(es, func(i, j int) bool {
		return es[i].Sequence < es[j].Sequence
	})
}

func cloneEvent(e *domain.SaleEvent) *domain.SaleEvent {
	c := *e
	if e.Amount != nil {
		c.Amount = e.Amount.Clone()
	}
	if e.CurrencyAmount != nil {
		c.CurrencyAmount = e.CurrencyAmount.Clone()
	}
	return &c
}

var _ storage.SaleEventStore = (*SaleEventStore)(nil)
