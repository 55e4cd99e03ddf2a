package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/storage"
)

// SaleEventStore implements storage.SaleEventStore using PostgreSQL.
type SaleEventStore struct {
	pool *Pool
}

// NewSaleEventStore creates a new SaleEventStore.
func NewSaleEventStore(pool *Pool) *SaleEventStore {
	return &SaleEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleEventStore = (*SaleEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id or sequence exists.
func (s *SaleEventStore) Insert(ctx context.Context, e *domain.SaleEvent) error {
	if e == nil || e.EventID == "" || e.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sale_events (
			event_id, sequence, event_type, timestamp,
			from_addr, to_addr, buyer, subject, status,
			amount, currency_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID,
		int64(e.Sequence),
		string(e.Type),
		e.Timestamp,
		e.From.String(),
		e.To.String(),
		e.Buyer.String(),
		e.Subject.String(),
		string(e.Status),
		amountDec(e.Amount),
		amountDec(e.CurrencyAmount),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale event: %w", err)
	}
	return nil
}

const selectEventColumns = `
	event_id, sequence, event_type, timestamp,
	from_addr, to_addr, buyer, subject, status,
	amount::text, currency_amount::text
`

// GetBySequenceRange retrieves events with sequence in [start, end]
// (inclusive), ordered by sequence ASC.
func (s *SaleEventStore) GetBySequenceRange(ctx context.Context, start, end uint64) ([]*domain.SaleEvent, error) {
	query := `
		SELECT ` + selectEventColumns + `
		FROM sale_events
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("get events by sequence range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *SaleEventStore) GetAll(ctx context.Context) ([]*domain.SaleEvent, error) {
	query := `
		SELECT ` + selectEventColumns + `
		FROM sale_events
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MaxSequence returns the highest stored sequence, 0 if empty.
func (s *SaleEventStore) MaxSequence(ctx context.Context) (uint64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM sale_events`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("get max sequence: %w", err)
	}
	return uint64(max), nil
}

func scanEvent(row pgx.Row) (*domain.SaleEvent, error) {
	var (
		e           domain.SaleEvent
		seq         int64
		typ         string
		fromStr     string
		toStr       string
		buyerStr    string
		subjectStr  string
		status      string
		amountStr   string
		currencyStr string
	)
	if err := row.Scan(&e.EventID, &seq, &typ, &e.Timestamp,
		&fromStr, &toStr, &buyerStr, &subjectStr, &status,
		&amountStr, &currencyStr); err != nil {
		return nil, err
	}

	e.Sequence = uint64(seq)
	e.Type = domain.EventType(typ)
	e.Status = domain.WhitelistStatus(status)

	var err error
	if e.From, err = domain.ParseAddress(fromStr); err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	if e.To, err = domain.ParseAddress(toStr); err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	if e.Buyer, err = domain.ParseAddress(buyerStr); err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	if e.Subject, err = domain.ParseAddress(subjectStr); err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}
	if e.Amount, err = domain.ParseAmount(amountStr); err != nil {
		return nil, err
	}
	if e.CurrencyAmount, err = domain.ParseAmount(currencyStr); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEvents(rows pgx.Rows) ([]*domain.SaleEvent, error) {
	var result []*domain.SaleEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return result, nil
}

// amountDec renders a nullable amount as a decimal string, zero if nil.
func amountDec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
