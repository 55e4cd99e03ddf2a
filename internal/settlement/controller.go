// Package settlement implements the sale's wind-down paths: finalize
// sweeps remaining asset and proceeds to the owner, refund returns
// paid-in currency to buyers in exchange for their holdings. The two
// paths are not mutually exclusive in code; the owner picks the right
// one based on the observed outcome.
package settlement

import (
	"context"
	"fmt"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
	"crowdsale-engine/internal/gateway"
	"crowdsale-engine/internal/ledger"
	"crowdsale-engine/internal/sale"
)

// Controller runs the finalize and refund settlement paths.
type Controller struct {
	gw     *gateway.Gateway
	ledger *ledger.Ledger
	engine *sale.Engine
	sink   events.Sink
}

// NewController creates a settlement controller.
func NewController(gw *gateway.Gateway, l *ledger.Ledger, e *sale.Engine, sink events.Sink) *Controller {
	return &Controller{gw: gw, ledger: l, engine: e, sink: sink}
}

// Finalize transfers all asset units still held by the sale plus the
// sale's entire held currency to the owner and zeroes the sale's
// internal accounting. Owner-only; deliberately not gated on phase or
// threshold.
func (c *Controller) Finalize(ctx context.Context, caller domain.Address) error {
	return c.gw.Guard(caller, func() error {
		saleAddr := c.engine.SaleAddress()
		owner := c.gw.Owner()

		remaining := c.ledger.BalanceOf(saleAddr)
		if !remaining.IsZero() {
			if err := c.ledger.Transfer(ctx, saleAddr, owner, remaining); err != nil {
				return fmt.Errorf("sweep remaining asset: %w", err)
			}
		}

		proceeds := c.engine.SweepCurrency()
		tokensSold := c.engine.TokensSold()

		c.sink.Emit(ctx, &domain.SaleEvent{
			Type:           domain.EventFinalize,
			Amount:         tokensSold,
			CurrencyAmount: proceeds,
		})
		return nil
	})
}

// SetRefundStatus toggles the refund flag. Owner-only; intended to be
// enabled after an ENDED sale misses its threshold.
func (c *Controller) SetRefundStatus(_ context.Context, caller domain.Address, enabled bool) error {
	return c.gw.Guard(caller, func() error {
		c.engine.SetRefundEnabled(enabled)
		return nil
	})
}

// Refund takes back the caller's full asset balance and pays out the
// equivalent currency at the current price. The caller must have
// approved the sale address as spender beforehand; the asset moves back
// through that allowance before the payout is debited.
func (c *Controller) Refund(ctx context.Context, caller domain.Address) error {
	if !c.engine.RefundEnabled() {
		return fmt.Errorf("%w", domain.ErrRefundNotEnabled)
	}

	balance := c.ledger.BalanceOf(caller)
	if balance.IsZero() {
		return fmt.Errorf("%w: %s holds no asset", domain.ErrInsufficientBalance, caller)
	}

	payout, err := domain.Cost(balance, c.engine.Price())
	if err != nil {
		return err
	}
	if c.engine.CurrencyHeld().Lt(payout) {
		return fmt.Errorf("%w: sale cannot cover refund of %s", domain.ErrInsufficientBalance, payout.Dec())
	}

	saleAddr := c.engine.SaleAddress()
	if err := c.ledger.TransferFrom(ctx, saleAddr, caller, saleAddr, balance); err != nil {
		return err
	}
	if err := c.engine.DebitCurrency(payout); err != nil {
		// Pre-checked above; under serialized execution this cannot fire.
		return err
	}

	c.sink.Emit(ctx, &domain.SaleEvent{
		Type:           domain.EventRefund,
		Buyer:          caller,
		Amount:         balance,
		CurrencyAmount: payout,
	})
	return nil
}
