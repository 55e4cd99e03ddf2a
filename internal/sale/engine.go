// Package sale implements the sale engine: the administrator-set
// configuration, the time-and-limit-gated purchase path, and the derived
// phase/outcome state machine. Purchases run through an ordered pipeline
// of named checks so the error a multiply-invalid call sees is fixed.
package sale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
	"crowdsale-engine/internal/gateway"
	"crowdsale-engine/internal/idhash"
	"crowdsale-engine/internal/ledger"
	"crowdsale-engine/internal/whitelist"
)

// PurchaseRecorder persists successful purchases. Recording happens
// after state commit; failures are the recorder's to handle and must not
// unwind the purchase.
type PurchaseRecorder interface {
	Record(ctx context.Context, p *domain.Purchase)
}

// Params configures a new Engine.
type Params struct {
	Config   domain.SaleConfig
	SaleAddr domain.Address // the sale's asset-holding address
	Ledger   *ledger.Ledger
	Registry *whitelist.Registry
	Gateway  *gateway.Gateway
	Sink     events.Sink

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// Recorder persists purchases. Optional.
	Recorder PurchaseRecorder
}

// Engine owns the sale configuration and the buy operation.
type Engine struct {
	mu            sync.Mutex
	cfg           domain.SaleConfig
	saleAddr      domain.Address
	currency      *uint256.Int // native currency held by the sale
	purchaseCount uint64       // running count, discriminates purchase ids

	ledger   *ledger.Ledger
	registry *whitelist.Registry
	gw       *gateway.Gateway
	sink     events.Sink
	recorder PurchaseRecorder
	now      func() time.Time
}

// NewEngine validates the configuration and creates an engine.
func NewEngine(p Params) (*Engine, error) {
	cfg := p.Config
	if cfg.Price == nil || cfg.Price.IsZero() {
		return nil, fmt.Errorf("%w: zero price", domain.ErrInvalidConfiguration)
	}
	if cfg.MinPurchase == nil || cfg.MaxPurchase == nil || cfg.MinPurchase.Gt(cfg.MaxPurchase) {
		return nil, fmt.Errorf("%w: min purchase exceeds max", domain.ErrInvalidConfiguration)
	}
	if cfg.EndTime <= cfg.StartTime {
		return nil, fmt.Errorf("%w: end time %d not after start time %d", domain.ErrInvalidConfiguration, cfg.EndTime, cfg.StartTime)
	}
	if cfg.MaxTokens == nil || cfg.MaxTokens.IsZero() {
		return nil, fmt.Errorf("%w: zero max tokens", domain.ErrInvalidConfiguration)
	}
	if p.SaleAddr.IsZero() {
		return nil, fmt.Errorf("%w: zero sale address", domain.ErrInvalidAddress)
	}
	if cfg.TokensSold == nil {
		cfg.TokensSold = uint256.NewInt(0)
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cfg:      cfg,
		saleAddr: p.SaleAddr,
		currency: uint256.NewInt(0),
		ledger:   p.Ledger,
		registry: p.Registry,
		gw:       p.Gateway,
		sink:     p.Sink,
		recorder: p.Recorder,
		now:      now,
	}, nil
}

// Buy purchases amount asset units with the attached currency value.
// Preconditions run in pipeline order; on success tokensSold grows by
// amount, the buyer is credited from the sale's holding, and the value
// is retained in the sale's currency balance.
func (e *Engine) Buy(ctx context.Context, buyer domain.Address, amount, value *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.buy(ctx, buyer, amount, value)
}

// ReceivePayment is the bare-payment purchase path: the amount is
// derived from the attached value at the current price, then the
// identical check pipeline runs. A value that is not an exact multiple
// of the unit price fails IncorrectPayment.
func (e *Engine) ReceivePayment(ctx context.Context, buyer domain.Address, value *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := domain.TokensFor(value, e.cfg.Price)
	if err != nil {
		return err
	}
	return e.buy(ctx, buyer, amount, value)
}

// buy runs the purchase with the engine lock held.
func (e *Engine) buy(ctx context.Context, buyer domain.Address, amount, value *uint256.Int) error {
	req := &purchaseRequest{
		buyer:  buyer,
		amount: amount,
		value:  value,
		now:    e.now().Unix(),
		status: e.registry.Status(buyer),
		cfg:    &e.cfg,
	}
	if err := runPurchaseChecks(req); err != nil {
		return err
	}

	// Ledger debit first: if the sale's holding cannot cover the amount
	// (possible after a finalize sweep with a reopened window) nothing
	// else has changed.
	if err := e.ledger.Transfer(ctx, e.saleAddr, buyer, amount); err != nil {
		return err
	}

	e.cfg.TokensSold = new(uint256.Int).Add(e.cfg.TokensSold, amount)
	e.currency = new(uint256.Int).Add(e.currency, value)

	e.purchaseCount++

	ts := e.now().UnixMilli()
	if e.recorder != nil {
		e.recorder.Record(ctx, &domain.Purchase{
			PurchaseID: idhash.ComputePurchaseID(buyer.String(), amount.Dec(), e.cfg.Price.Dec(), ts, e.purchaseCount),
			Buyer:      buyer,
			Amount:     amount.Clone(),
			Cost:       value.Clone(),
			Price:      e.cfg.Price.Clone(),
			Timestamp:  ts,
		})
	}

	e.sink.Emit(ctx, &domain.SaleEvent{
		Type:           domain.EventBuy,
		Buyer:          buyer,
		Amount:         amount.Clone(),
		CurrencyAmount: value.Clone(),
	})
	return nil
}

// SetPrice updates the unit price. Owner-only.
func (e *Engine) SetPrice(_ context.Context, caller domain.Address, newPrice *uint256.Int) error {
	return e.gw.Guard(caller, func() error {
		if newPrice == nil || newPrice.IsZero() {
			return fmt.Errorf("%w: zero price", domain.ErrInvalidConfiguration)
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		e.cfg.Price = newPrice.Clone()
		return nil
	})
}

// SetContribution updates the per-purchase bounds. Owner-only; requires
// newMin <= newMax.
func (e *Engine) SetContribution(_ context.Context, caller domain.Address, newMin, newMax *uint256.Int) error {
	return e.gw.Guard(caller, func() error {
		if newMin == nil || newMax == nil || newMin.Gt(newMax) {
			return fmt.Errorf("%w: min purchase exceeds max", domain.ErrInvalidConfiguration)
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		e.cfg.MinPurchase = newMin.Clone()
		e.cfg.MaxPurchase = newMax.Clone()
		return nil
	})
}

// RestartCampaign resets the active window without resetting tokensSold
// or the asset pool, re-opening the sale with new bounds. Owner-only;
// requires newEnd > newStart.
func (e *Engine) RestartCampaign(_ context.Context, caller domain.Address, newStart, newEnd int64) error {
	return e.gw.Guard(caller, func() error {
		if newEnd <= newStart {
			return fmt.Errorf("%w: end time %d not after start time %d", domain.ErrInvalidConfiguration, newEnd, newStart)
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		e.cfg.StartTime = newStart
		e.cfg.EndTime = newEnd
		return nil
	})
}

// Phase derives the sale's temporal state from the clock.
func (e *Engine) Phase() domain.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	switch {
	case now < e.cfg.StartTime:
		return domain.PhaseNotStarted
	case now > e.cfg.EndTime:
		return domain.PhaseEnded
	default:
		return domain.PhaseActive
	}
}

// Outcome is the sale's logical result: SUCCESS once tokensSold reaches
// 80% of maxTokens, FAILURE otherwise. Meaningful once ENDED.
func (e *Engine) Outcome() domain.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.TokensSold.Cmp(e.cfg.SuccessThreshold()) >= 0 {
		return domain.OutcomeSuccess
	}
	return domain.OutcomeFailure
}

// Config returns a copy of the sale configuration.
func (e *Engine) Config() domain.SaleConfig {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	cfg.Price = e.cfg.Price.Clone()
	cfg.MinPurchase = e.cfg.MinPurchase.Clone()
	cfg.MaxPurchase = e.cfg.MaxPurchase.Clone()
	cfg.TokensSold = e.cfg.TokensSold.Clone()
	cfg.MaxTokens = e.cfg.MaxTokens.Clone()
	return cfg
}

// SaleAddress returns the sale's asset-holding address.
func (e *Engine) SaleAddress() domain.Address {
	return e.saleAddr
}

// TokensSold returns the cumulative sold amount.
func (e *Engine) TokensSold() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cfg.TokensSold.Clone()
}

// CurrencyHeld returns the native currency the sale currently holds.
func (e *Engine) CurrencyHeld() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.currency.Clone()
}

// SweepCurrency zeroes the held currency balance and returns what was
// held. Settlement's finalize path uses it.
func (e *Engine) SweepCurrency() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	held := e.currency
	e.currency = uint256.NewInt(0)
	return held
}

// DebitCurrency reduces the held currency by amount, failing with
// InsufficientBalance if amount exceeds what is held.
func (e *Engine) DebitCurrency(amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currency.Lt(amount) {
		return fmt.Errorf("%w: sale holds %s currency, needs %s",
			domain.ErrInsufficientBalance, e.currency.Dec(), amount.Dec())
	}
	e.currency = new(uint256.Int).Sub(e.currency, amount)
	return nil
}

// RefundEnabled reports the refund flag.
func (e *Engine) RefundEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cfg.RefundEnabled
}

// SetRefundEnabled toggles the refund flag. Settlement's owner-guarded
// path uses it.
func (e *Engine) SetRefundEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg.RefundEnabled = enabled
}

// Price returns the current unit price.
func (e *Engine) Price() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cfg.Price.Clone()
}
