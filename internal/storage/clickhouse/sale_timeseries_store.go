package clickhouse

import (
	"context"
	"fmt"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// SaleTimeseriesStore implements storage.SaleTimeseriesStore using ClickHouse.
// Amount columns are stored as decimal strings to keep full 256-bit precision.
type SaleTimeseriesStore struct {
	conn *Conn
}

// NewSaleTimeseriesStore creates a new SaleTimeseriesStore.
func NewSaleTimeseriesStore(conn *Conn) *SaleTimeseriesStore {
	return &SaleTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SaleTimeseriesStore = (*SaleTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate bucket_start.
func (s *SaleTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.SaleTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{})
	for _, p := range points {
		if _, exists := seen[p.BucketStart]; exists {
			return storage.ErrDuplicateKey
		}
		seen[p.BucketStart] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.BucketStart)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sale_timeseries (
			bucket_start, sold_amount, proceeds, purchase_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.BucketStart, p.SoldAmount.Dec(), p.Proceeds.Dec(), p.PurchaseCount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points with bucket_start within [start, end]
// (inclusive), ordered by bucket_start ASC.
func (s *SaleTimeseriesStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SaleTimeseriesPoint, error) {
	query := `
		SELECT bucket_start, sold_amount, proceeds, purchase_count
		FROM sale_timeseries
		WHERE bucket_start >= ? AND bucket_start <= ?
		ORDER BY bucket_start ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSaleTimeseries(rows)
}

// exists checks if a point with the given bucket exists.
func (s *SaleTimeseriesStore) exists(ctx context.Context, bucketStart int64) (bool, error) {
	query := `
		SELECT count(*) FROM sale_timeseries
		WHERE bucket_start = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, bucketStart).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSaleTimeseries scans multiple rows.
func scanSaleTimeseries(rows chRows) ([]*domain.SaleTimeseriesPoint, error) {
	var points []*domain.SaleTimeseriesPoint

	for rows.Next() {
		var p domain.SaleTimeseriesPoint
		var soldAmount, proceeds string

		err := rows.Scan(&p.BucketStart, &soldAmount, &proceeds, &p.PurchaseCount)
		if err != nil {
			return nil, fmt.Errorf("scan sale timeseries row: %w", err)
		}

		if p.SoldAmount, err = domain.ParseAmount(soldAmount); err != nil {
			return nil, fmt.Errorf("parse sold_amount: %w", err)
		}
		if p.Proceeds, err = domain.ParseAmount(proceeds); err != nil {
			return nil, fmt.Errorf("parse proceeds: %w", err)
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale timeseries rows: %w", err)
	}

	return points, nil
}
