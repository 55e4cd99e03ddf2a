package domain

import "github.com/holiman/uint256"

// EventType identifies a sale event.
type EventType string

// Event types. The UI refreshes its view off these.
const (
	EventTransfer         EventType = "TRANSFER"
	EventBuy              EventType = "BUY"
	EventFinalize         EventType = "FINALIZE"
	EventRefund           EventType = "REFUND"
	EventWhitelistChanged EventType = "WHITELIST_CHANGED"
)

// SaleEvent is one emitted event. Sequence is assigned by the event
// fanout in emission order; EventID is the deterministic journal key.
// Fields not meaningful for a given type are left at their zero value.
type SaleEvent struct {
	EventID   string // deterministic hash, journal idempotency key
	Sequence  uint64 // monotonically increasing, gap-free
	Type      EventType
	Timestamp int64 // unix milliseconds

	// TRANSFER
	From Address
	To   Address

	// BUY / REFUND
	Buyer Address

	// TRANSFER / BUY / REFUND / FINALIZE asset amount
	Amount *uint256.Int

	// BUY / REFUND / FINALIZE currency value
	CurrencyAmount *uint256.Int

	// WHITELIST_CHANGED
	Subject Address
	Status  WhitelistStatus
}
