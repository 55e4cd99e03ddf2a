package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
	"crowdsale-engine/internal/gateway"
	"crowdsale-engine/internal/ledger"
	"crowdsale-engine/internal/storage/memory"
	"crowdsale-engine/internal/whitelist"
)

var (
	testOwner = domain.Address{1}
	testSale  = domain.Address{0xfe}
	testBuyer = domain.Address{2}
	stranger  = domain.Address{3}
)

// fixture wires a funded sale over a fresh ledger and registry.
type fixture struct {
	engine    *Engine
	ledger    *ledger.Ledger
	registry  *whitelist.Registry
	purchases *memory.PurchaseStore
	clock     *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sink := events.Discard{}
	l, err := ledger.New(testSale, domain.Units(1_000_000), sink)
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}
	registry := whitelist.NewRegistry(sink)
	gw, err := gateway.New(testOwner)
	if err != nil {
		t.Fatalf("gateway.New failed: %v", err)
	}

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	start := clock.t.Unix() - 60
	end := clock.t.Unix() + 86400
	purchases := memory.NewPurchaseStore()

	engine, err := NewEngine(Params{
		Config: domain.SaleConfig{
			Owner:       testOwner,
			Price:       domain.Units(1), // 1 currency per unit
			MinPurchase: domain.Units(100),
			MaxPurchase: domain.Units(10_000),
			StartTime:   start,
			EndTime:     end,
			MaxTokens:   domain.Units(1_000_000),
		},
		SaleAddr: testSale,
		Ledger:   l,
		Registry: registry,
		Gateway:  gw,
		Sink:     sink,
		Now:      clock.Now,
		Recorder: NewStoreRecorder(purchases, nil),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	return &fixture{engine: engine, ledger: l, registry: registry, purchases: purchases, clock: clock}
}

func (f *fixture) approve(t *testing.T, addr domain.Address) {
	t.Helper()
	if err := f.registry.Approve(context.Background(), addr); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
}

func TestEngine_BuySuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, testBuyer)

	amount := domain.Units(100)
	value := domain.Units(100) // price is 1:1

	if err := f.engine.Buy(ctx, testBuyer, amount, value); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if got := f.ledger.BalanceOf(testBuyer); !got.Eq(amount) {
		t.Errorf("Buyer balance = %s, want %s", got.Dec(), amount.Dec())
	}
	if got := f.ledger.BalanceOf(testSale); !got.Eq(domain.Units(999_900)) {
		t.Errorf("Sale balance = %s, want %s", got.Dec(), domain.Units(999_900).Dec())
	}
	if got := f.engine.TokensSold(); !got.Eq(amount) {
		t.Errorf("TokensSold = %s, want %s", got.Dec(), amount.Dec())
	}
	if got := f.engine.CurrencyHeld(); !got.Eq(value) {
		t.Errorf("CurrencyHeld = %s, want %s", got.Dec(), value.Dec())
	}
}

func TestEngine_BuyEmitsBuyEvent(t *testing.T) {
	sink := &captureSink{}
	l, err := ledger.New(testSale, domain.Units(1_000_000), sink)
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}
	registry := whitelist.NewRegistry(sink)
	gw, _ := gateway.New(testOwner)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	engine, err := NewEngine(Params{
		Config: domain.SaleConfig{
			Owner:       testOwner,
			Price:       domain.Units(1),
			MinPurchase: domain.Units(100),
			MaxPurchase: domain.Units(10_000),
			StartTime:   clock.t.Unix() - 1,
			EndTime:     clock.t.Unix() + 100,
			MaxTokens:   domain.Units(1_000_000),
		},
		SaleAddr: testSale,
		Ledger:   l,
		Registry: registry,
		Gateway:  gw,
		Sink:     sink,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if err := registry.Approve(ctx, testBuyer); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if err := engine.Buy(ctx, testBuyer, domain.Units(100), domain.Units(100)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	var buy *domain.SaleEvent
	for _, e := range sink.events {
		if e.Type == domain.EventBuy {
			buy = e
		}
	}
	if buy == nil {
		t.Fatal("No Buy event emitted")
	}
	if buy.Buyer != testBuyer {
		t.Errorf("Buy event buyer = %s, want %s", buy.Buyer, testBuyer)
	}
	if !buy.Amount.Eq(domain.Units(100)) {
		t.Errorf("Buy event amount = %s, want %s", buy.Amount.Dec(), domain.Units(100).Dec())
	}
}

func TestEngine_BuyBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		amount  *uint256.Int
		wantErr error
	}{
		{name: "exactly min succeeds", amount: domain.Units(100)},
		{name: "exactly max succeeds", amount: domain.Units(10_000)},
		{name: "below min fails", amount: new(uint256.Int).Sub(domain.Units(100), uint256.NewInt(1)), wantErr: domain.ErrPurchaseOutOfBounds},
		{name: "above max fails", amount: new(uint256.Int).Add(domain.Units(10_000), uint256.NewInt(1)), wantErr: domain.ErrPurchaseOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.approve(t, testBuyer)

			amount := tt.amount.Clone()
			value, err := domain.Cost(amount, domain.Units(1))
			if err != nil {
				t.Fatalf("Cost failed: %v", err)
			}

			err = f.engine.Buy(context.Background(), testBuyer, amount, value)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Buy failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			// Failed purchase leaves state untouched.
			if got := f.engine.TokensSold(); !got.IsZero() {
				t.Errorf("TokensSold after failed buy = %s, want 0", got.Dec())
			}
		})
	}
}

func TestEngine_BuyNotWhitelisted(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Buy(context.Background(), testBuyer, domain.Units(100), domain.Units(100))
	if !errors.Is(err, domain.ErrNotWhitelisted) {
		t.Fatalf("Expected ErrNotWhitelisted, got %v", err)
	}
}

func TestEngine_BuyAfterEnd(t *testing.T) {
	f := newFixture(t)
	f.approve(t, testBuyer)
	f.clock.Advance(48 * time.Hour)

	err := f.engine.Buy(context.Background(), testBuyer, domain.Units(100), domain.Units(100))
	if !errors.Is(err, domain.ErrSaleNotActive) {
		t.Fatalf("Expected ErrSaleNotActive, got %v", err)
	}
}

func TestEngine_BuyBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.approve(t, testBuyer)

	if err := f.engine.RestartCampaign(context.Background(), testOwner, f.clock.t.Unix()+3600, f.clock.t.Unix()+7200); err != nil {
		t.Fatalf("RestartCampaign failed: %v", err)
	}

	err := f.engine.Buy(context.Background(), testBuyer, domain.Units(100), domain.Units(100))
	if !errors.Is(err, domain.ErrSaleNotActive) {
		t.Fatalf("Expected ErrSaleNotActive, got %v", err)
	}
}

// The check pipeline's ordering is part of the contract: a purchase that
// is both out-of-window and non-whitelisted reports SaleNotActive, and a
// non-whitelisted purchase with a wrong payment reports NotWhitelisted.
func TestEngine_CheckOrdering(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(48 * time.Hour)

	err := f.engine.Buy(context.Background(), testBuyer, domain.Units(100), uint256.NewInt(0))
	if !errors.Is(err, domain.ErrSaleNotActive) {
		t.Fatalf("Expected ErrSaleNotActive first, got %v", err)
	}

	f2 := newFixture(t)
	err = f2.engine.Buy(context.Background(), testBuyer, domain.Units(100), uint256.NewInt(0))
	if !errors.Is(err, domain.ErrNotWhitelisted) {
		t.Fatalf("Expected ErrNotWhitelisted before payment check, got %v", err)
	}
}

func TestEngine_BuyIncorrectPayment(t *testing.T) {
	f := newFixture(t)
	f.approve(t, testBuyer)

	err := f.engine.Buy(context.Background(), testBuyer, domain.Units(100), domain.Units(99))
	if !errors.Is(err, domain.ErrIncorrectPayment) {
		t.Fatalf("Expected ErrIncorrectPayment, got %v", err)
	}
}

func TestEngine_BuySoldOut(t *testing.T) {
	f := newFixture(t)
	f.approve(t, testBuyer)
	ctx := context.Background()

	// Shrink the cap below a max purchase to trip the supply check
	// without looping thousands of buys.
	if err := f.engine.SetContribution(ctx, testOwner, domain.Units(100), domain.Units(1_000_000)); err != nil {
		t.Fatalf("SetContribution failed: %v", err)
	}
	if err := f.engine.Buy(ctx, testBuyer, domain.Units(999_950), domain.Units(999_950)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	err := f.engine.Buy(ctx, testBuyer, domain.Units(100), domain.Units(100))
	if !errors.Is(err, domain.ErrSoldOut) {
		t.Fatalf("Expected ErrSoldOut, got %v", err)
	}
}

func TestEngine_ReceivePayment(t *testing.T) {
	f := newFixture(t)
	f.approve(t, testBuyer)

	// 100 currency at price 1 buys 100 units.
	if err := f.engine.ReceivePayment(context.Background(), testBuyer, domain.Units(100)); err != nil {
		t.Fatalf("ReceivePayment failed: %v", err)
	}

	if got := f.ledger.BalanceOf(testBuyer); !got.Eq(domain.Units(100)) {
		t.Errorf("Buyer balance = %s, want %s", got.Dec(), domain.Units(100).Dec())
	}
	if got := f.engine.CurrencyHeld(); !got.Eq(domain.Units(100)) {
		t.Errorf("CurrencyHeld = %s, want %s", got.Dec(), domain.Units(100).Dec())
	}
}

func TestEngine_ReceivePaymentEnforcesWhitelist(t *testing.T) {
	f := newFixture(t)

	err := f.engine.ReceivePayment(context.Background(), testBuyer, domain.Units(100))
	if !errors.Is(err, domain.ErrNotWhitelisted) {
		t.Fatalf("Expected ErrNotWhitelisted, got %v", err)
	}
}

func TestEngine_SetPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.SetPrice(ctx, testOwner, domain.Units(2)); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	if got := f.engine.Price(); !got.Eq(domain.Units(2)) {
		t.Errorf("Price = %s, want %s", got.Dec(), domain.Units(2).Dec())
	}

	if err := f.engine.SetPrice(ctx, stranger, domain.Units(3)); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("Expected ErrNotOwner, got %v", err)
	}
}

func TestEngine_SetContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.SetContribution(ctx, testOwner, domain.Units(10), domain.Units(100)); err != nil {
		t.Fatalf("SetContribution failed: %v", err)
	}
	cfg := f.engine.Config()
	if !cfg.MinPurchase.Eq(domain.Units(10)) || !cfg.MaxPurchase.Eq(domain.Units(100)) {
		t.Errorf("Bounds = [%s, %s], want [10, 100] units", cfg.MinPurchase.Dec(), cfg.MaxPurchase.Dec())
	}

	err := f.engine.SetContribution(ctx, testOwner, domain.Units(100), domain.Units(10))
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestEngine_RestartCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, testBuyer)

	if err := f.engine.Buy(ctx, testBuyer, domain.Units(100), domain.Units(100)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	newStart := f.clock.t.Unix() + 10
	newEnd := newStart + 3600
	if err := f.engine.RestartCampaign(ctx, testOwner, newStart, newEnd); err != nil {
		t.Fatalf("RestartCampaign failed: %v", err)
	}

	cfg := f.engine.Config()
	if cfg.StartTime != newStart || cfg.EndTime != newEnd {
		t.Errorf("Window = [%d, %d], want [%d, %d]", cfg.StartTime, cfg.EndTime, newStart, newEnd)
	}
	// Restart keeps the sold counter.
	if !cfg.TokensSold.Eq(domain.Units(100)) {
		t.Errorf("TokensSold after restart = %s, want %s", cfg.TokensSold.Dec(), domain.Units(100).Dec())
	}

	err := f.engine.RestartCampaign(ctx, testOwner, newEnd, newStart)
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestEngine_Phase(t *testing.T) {
	f := newFixture(t)

	if got := f.engine.Phase(); got != domain.PhaseActive {
		t.Errorf("Phase = %s, want ACTIVE", got)
	}

	f.clock.Advance(48 * time.Hour)
	if got := f.engine.Phase(); got != domain.PhaseEnded {
		t.Errorf("Phase = %s, want ENDED", got)
	}

	if err := f.engine.RestartCampaign(context.Background(), testOwner, f.clock.t.Unix()+100, f.clock.t.Unix()+200); err != nil {
		t.Fatalf("RestartCampaign failed: %v", err)
	}
	if got := f.engine.Phase(); got != domain.PhaseNotStarted {
		t.Errorf("Phase = %s, want NOT_STARTED", got)
	}
}

func TestEngine_Outcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, testBuyer)

	if got := f.engine.Outcome(); got != domain.OutcomeFailure {
		t.Errorf("Outcome = %s, want FAILURE", got)
	}

	// 80% of 1,000,000 = 800,000 units.
	if err := f.engine.SetContribution(ctx, testOwner, domain.Units(100), domain.Units(1_000_000)); err != nil {
		t.Fatalf("SetContribution failed: %v", err)
	}
	if err := f.engine.Buy(ctx, testBuyer, domain.Units(800_000), domain.Units(800_000)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if got := f.engine.Outcome(); got != domain.OutcomeSuccess {
		t.Errorf("Outcome = %s, want SUCCESS", got)
	}
}

func TestEngine_RecordsPurchases(t *testing.T) {
	f := newFixture(t)

	// Rebuild the engine with a recorder attached.
	rec := &captureRecorder{}
	gw, _ := gateway.New(testOwner)
	engine, err := NewEngine(Params{
		Config:   f.engine.Config(),
		SaleAddr: testSale,
		Ledger:   f.ledger,
		Registry: f.registry,
		Gateway:  gw,
		Sink:     events.Discard{},
		Now:      f.clock.Now,
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	f.approve(t, testBuyer)

	if err := engine.Buy(context.Background(), testBuyer, domain.Units(100), domain.Units(100)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if len(rec.purchases) != 1 {
		t.Fatalf("Expected 1 recorded purchase, got %d", len(rec.purchases))
	}
	p := rec.purchases[0]
	if p.Buyer != testBuyer {
		t.Errorf("Recorded buyer = %s, want %s", p.Buyer, testBuyer)
	}
	if !p.Amount.Eq(domain.Units(100)) {
		t.Errorf("Recorded amount = %s, want %s", p.Amount.Dec(), domain.Units(100).Dec())
	}
	if len(p.PurchaseID) != 64 {
		t.Errorf("PurchaseID length = %d, want 64", len(p.PurchaseID))
	}
}

// captureSink records every event it receives.
type captureSink struct {
	events []*domain.SaleEvent
}

func (c *captureSink) Emit(_ context.Context, e *domain.SaleEvent) {
	copy := *e
	c.events = append(c.events, &copy)
}

// captureRecorder records every purchase it receives.
type captureRecorder struct {
	purchases []*domain.Purchase
}

func (c *captureRecorder) Record(_ context.Context, p *domain.Purchase) {
	copy := *p
	c.purchases = append(c.purchases, &copy)
}

func TestEngine_RecordsIdenticalBuysInSameMillisecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, testBuyer)

	// The clock never advances, so both purchases carry the same
	// buyer, amount, price, and timestamp.
	for i := 0; i < 2; i++ {
		if err := f.engine.Buy(ctx, testBuyer, domain.Units(100), domain.Units(100)); err != nil {
			t.Fatalf("Buy %d failed: %v", i+1, err)
		}
	}

	if got := f.engine.TokensSold(); !got.Eq(domain.Units(200)) {
		t.Fatalf("TokensSold = %s, want %s", got.Dec(), domain.Units(200).Dec())
	}

	recorded, err := f.purchases.GetByBuyer(ctx, testBuyer)
	if err != nil {
		t.Fatalf("GetByBuyer failed: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("Purchase store holds %d records, want 2", len(recorded))
	}
	if recorded[0].PurchaseID == recorded[1].PurchaseID {
		t.Errorf("Identical buys share purchase_id %s", recorded[0].PurchaseID)
	}
}
