package stream

import (
	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
)

// WireEvent is the JSON shape pushed to subscribers. Amounts travel as
// decimal strings to keep full 256-bit precision; addresses are base58.
// Fields not meaningful for the event type are omitted.
type WireEvent struct {
	EventID   string `json:"event_id"`
	Sequence  uint64 `json:"sequence"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Buyer          string `json:"buyer,omitempty"`
	Amount         string `json:"amount,omitempty"`
	CurrencyAmount string `json:"currency_amount,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Status         string `json:"status,omitempty"`
}

func wireEvent(e *domain.SaleEvent) WireEvent {
	return WireEvent{
		EventID:        e.EventID,
		Sequence:       e.Sequence,
		Type:           string(e.Type),
		Timestamp:      e.Timestamp,
		From:           wireAddr(e.From),
		To:             wireAddr(e.To),
		Buyer:          wireAddr(e.Buyer),
		Amount:         wireAmount(e.Amount),
		CurrencyAmount: wireAmount(e.CurrencyAmount),
		Subject:        wireAddr(e.Subject),
		Status:         string(e.Status),
	}
}

func wireAddr(a domain.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func wireAmount(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
