// Package analytics rolls the purchase journal up into fixed-width
// time buckets for the reporting store.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// ErrNoPurchases is returned when no purchases fall in the requested range.
var ErrNoPurchases = errors.New("no purchases available for aggregation")

// Aggregator computes sale timeseries points from purchase records.
type Aggregator struct {
	purchaseStore   storage.PurchaseStore
	timeseriesStore storage.SaleTimeseriesStore
}

// NewAggregator creates a new sale aggregator.
func NewAggregator(purchaseStore storage.PurchaseStore, timeseriesStore storage.SaleTimeseriesStore) *Aggregator {
	return &Aggregator{
		purchaseStore:   purchaseStore,
		timeseriesStore: timeseriesStore,
	}
}

// ComputeTimeseries buckets purchases with timestamps in [start, end]
// (unix ms, inclusive) into bucketMs-wide intervals. Buckets with no
// purchases are omitted. Returns ErrNoPurchases if the range is empty.
func (a *Aggregator) ComputeTimeseries(ctx context.Context, start, end, bucketMs int64) ([]*domain.SaleTimeseriesPoint, error) {
	if bucketMs <= 0 {
		return nil, fmt.Errorf("bucket width must be positive, got %d", bucketMs)
	}

	purchases, err := a.purchaseStore.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load purchases: %w", err)
	}
	if len(purchases) == 0 {
		return nil, ErrNoPurchases
	}

	buckets := make(map[int64]*domain.SaleTimeseriesPoint)
	for _, p := range purchases {
		bucketStart := p.Timestamp - (p.Timestamp % bucketMs)
		point, ok := buckets[bucketStart]
		if !ok {
			point = &domain.SaleTimeseriesPoint{
				BucketStart: bucketStart,
				SoldAmount:  new(uint256.Int),
				Proceeds:    new(uint256.Int),
			}
			buckets[bucketStart] = point
		}
		point.SoldAmount.Add(point.SoldAmount, p.Amount)
		point.Proceeds.Add(point.Proceeds, p.Cost)
		point.PurchaseCount++
	}

	points := make([]*domain.SaleTimeseriesPoint, 0, len(buckets))
	for _, point := range buckets {
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart < points[j].BucketStart
	})

	return points, nil
}

// Publish computes the timeseries for [start, end] and stores it.
// Aggregating a range twice fails with storage.ErrDuplicateKey; callers
// advance start past the last stored bucket.
func (a *Aggregator) Publish(ctx context.Context, start, end, bucketMs int64) (int, error) {
	points, err := a.ComputeTimeseries(ctx, start, end, bucketMs)
	if errors.Is(err, ErrNoPurchases) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := a.timeseriesStore.InsertBulk(ctx, points); err != nil {
		return 0, fmt.Errorf("store timeseries: %w", err)
	}
	return len(points), nil
}
