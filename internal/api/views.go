package api

import "crowdsale-engine/internal/domain"

// purchaseView is one purchase record on the wire.
type purchaseView struct {
	PurchaseID string `json:"purchase_id"`
	Buyer      string `json:"buyer"`
	Amount     string `json:"amount"`
	Cost       string `json:"cost"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
}

func purchaseViews(purchases []*domain.Purchase) []purchaseView {
	out := make([]purchaseView, len(purchases))
	for i, p := range purchases {
		out[i] = purchaseView{
			PurchaseID: p.PurchaseID,
			Buyer:      p.Buyer.String(),
			Amount:     p.Amount.Dec(),
			Cost:       p.Cost.Dec(),
			Price:      p.Price.Dec(),
			Timestamp:  p.Timestamp,
		}
	}
	return out
}

// eventView is one journal entry on the wire.
type eventView struct {
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

func eventViews(events []*domain.SaleEvent) []eventView {
	out := make([]eventView, len(events))
	for i, e := range events {
		view := eventView{
			EventID:        e.EventID,
			Sequence:       e.Sequence,
			Type:           string(e.Type),
			Timestamp:      e.Timestamp,
			Amount:         decOrEmpty(e.Amount),
			CurrencyAmount: decOrEmpty(e.CurrencyAmount),
			Status:         string(e.Status),
		}
		if !e.From.IsZero() {
			view.From = e.From.String()
		}
		if !e.To.IsZero() {
			view.To = e.To.String()
		}
		if !e.Buyer.IsZero() {
			view.Buyer = e.Buyer.String()
		}
		if !e.Subject.IsZero() {
			view.Subject = e.Subject.String()
		}
		out[i] = view
	}
	return out
}

// pointView is one timeseries bucket on the wire.
type pointView struct {
	BucketStart   int64  `json:"bucket_start"`
	SoldAmount    string `json:"sold_amount"`
	Proceeds      string `json:"proceeds"`
	PurchaseCount int64  `json:"purchase_count"`
}

func pointViews(points []*domain.SaleTimeseriesPoint) []pointView {
	out := make([]pointView, len(points))
	for i, p := range points {
		out[i] = pointView{
			BucketStart:   p.BucketStart,
			SoldAmount:    p.SoldAmount.Dec(),
			Proceeds:      p.Proceeds.Dec(),
			PurchaseCount: p.PurchaseCount,
		}
	}
	return out
}
