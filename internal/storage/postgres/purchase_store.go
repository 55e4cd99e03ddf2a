package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// PurchaseStore implements storage.PurchaseStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and travel as decimal strings.
type PurchaseStore struct {
	pool *Pool
}

// NewPurchaseStore creates a new PurchaseStore.
func NewPurchaseStore(pool *Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PurchaseStore = (*PurchaseStore)(nil)

const insertPurchaseQuery = `
	INSERT INTO purchases (
		purchase_id, buyer, amount, cost, price, timestamp
	) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
`

// Insert adds a new purchase. Returns ErrDuplicateKey if purchase_id exists.
func (s *PurchaseStore) Insert(ctx context.Context, p *domain.Purchase) error {
	if p == nil || p.PurchaseID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertPurchaseQuery,
		p.PurchaseID,
		p.Buyer.String(),
		p.Amount.Dec(),
		p.Cost.Dec(),
		p.Price.Dec(),
		p.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// InsertBulk adds multiple purchases atomically. Fails entire batch on any duplicate.
func (s *PurchaseStore) InsertBulk(ctx context.Context, purchases []*domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range purchases {
		if p == nil || p.PurchaseID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertPurchaseQuery,
			p.PurchaseID,
			p.Buyer.String(),
			p.Amount.Dec(),
			p.Cost.Dec(),
			p.Price.Dec(),
			p.Timestamp,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert purchase in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const selectPurchaseColumns = `
	purchase_id, buyer, amount::text, cost::text, price::text, timestamp
`

// GetByID retrieves a purchase by its ID. Returns ErrNotFound if not exists.
func (s *PurchaseStore) GetByID(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	query := `
		SELECT ` + selectPurchaseColumns + `
		FROM purchases
		WHERE purchase_id = $1
	`

	row := s.pool.QueryRow(ctx, query, purchaseID)
	p, err := scanPurchase(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get purchase by id: %w", err)
	}
	return p, nil
}

// GetByBuyer retrieves all purchases for a buyer, ordered by timestamp ASC.
func (s *PurchaseStore) GetByBuyer(ctx context.Context, buyer domain.Address) ([]*domain.Purchase, error) {
	query := `
		SELECT ` + selectPurchaseColumns + `
		FROM purchases
		WHERE buyer = $1
		ORDER BY timestamp ASC, purchase_id ASC
	`

	rows, err := s.pool.Query(ctx, query, buyer.String())
	if err != nil {
		return nil, fmt.Errorf("get purchases by buyer: %w", err)
	}
	defer rows.Close()

	return scanPurchases(rows)
}

// GetByTimeRange retrieves purchases within [start, end] milliseconds (inclusive).
func (s *PurchaseStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Purchase, error) {
	query := `
		SELECT ` + selectPurchaseColumns + `
		FROM purchases
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, purchase_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get purchases by time range: %w", err)
	}
	defer rows.Close()

	return scanPurchases(rows)
}

// scanPurchase scans a single row into a Purchase.
func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var (
		p         domain.Purchase
		buyerStr  string
		amountDec string
		costDec   string
		priceDec  string
	)
	if err := row.Scan(&p.PurchaseID, &buyerStr, &amountDec, &costDec, &priceDec, &p.Timestamp); err != nil {
		return nil, err
	}

	var err error
	if p.Buyer, err = domain.ParseAddress(buyerStr); err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	if p.Amount, err = domain.ParseAmount(amountDec); err != nil {
		return nil, err
	}
	if p.Cost, err = domain.ParseAmount(costDec); err != nil {
		return nil, err
	}
	if p.Price, err = domain.ParseAmount(priceDec); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPurchases(rows pgx.Rows) ([]*domain.Purchase, error) {
	var result []*domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return result, nil
}
