// Package events carries sale events from the core state machine to
// external observers: the persistent journal, the WebSocket hub, and the
// metrics recorder. State is committed before emission, so a failing
// sink never aborts the operation that produced the event.
package events

import (
	"context"

	"crowdsale-engine/internal/domain"
)

// Sink consumes emitted sale events. Implementations must not block the
// emitting operation for long and must tolerate delivery failures
// internally.
type Sink interface {
	Emit(ctx context.Context, event *domain.SaleEvent)
}

// Discard is a Sink that drops every event. Useful for tests.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, *domain.SaleEvent) {}

var _ Sink = Discard{}
