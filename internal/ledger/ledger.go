// Package ledger implements the fungible asset ledger backing the sale:
// balances minted once at construction, transfers, and the
// approve/transferFrom pair the refund path relies on. Total supply is
// fixed; no operation creates or destroys units.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
)

// allowanceKey identifies an (owner, spender) allowance.
type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

// Ledger is the in-memory balance/allowance store. All mutations are
// all-or-nothing: a failed precondition leaves every balance untouched.
type Ledger struct {
	mu         sync.RWMutex
	supply     *uint256.Int
	balances   map[domain.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	sink       events.Sink
}

// New creates a ledger with the full supply minted to holder. The mint
// is journaled as a transfer from the zero address, which marks an
// epoch boundary: replay resets to this allocation when it sees one, so
// a journal spanning several process lifetimes still folds cleanly.
func New(holder domain.Address, supply *uint256.Int, sink events.Sink) (*Ledger, error) {
	if holder.IsZero() {
		return nil, fmt.Errorf("%w: zero mint holder", domain.ErrInvalidAddress)
	}
	l := &Ledger{
		supply:     supply.Clone(),
		balances:   make(map[domain.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		sink:       sink,
	}
	l.balances[holder] = supply.Clone()
	l.emitTransfer(context.Background(), domain.Address{}, holder, supply)
	return l, nil
}

// Supply returns the fixed total supply.
func (l *Ledger) Supply() *uint256.Int {
	return l.supply.Clone()
}

// BalanceOf returns the holder's balance, zero for unknown holders.
func (l *Ledger) BalanceOf(holder domain.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[holder]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// Balances returns a snapshot of every non-zero balance.
func (l *Ledger) Balances() map[domain.Address]*uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make(map[domain.Address]*uint256.Int, len(l.balances))
	for holder, b := range l.balances {
		if b.IsZero() {
			continue
		}
		snapshot[holder] = b.Clone()
	}
	return snapshot
}

// Allowance returns what spender may move on owner's behalf.
func (l *Ledger) Allowance(owner, spender domain.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// Transfer debits from and credits to. Fails with InsufficientBalance if
// from holds less than amount, and rejects the zero address.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.emitTransfer(ctx, from, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance to amount,
// overwriting any prior allowance.
func (l *Ledger) Approve(_ context.Context, owner, spender domain.Address, amount *uint256.Int) error {
	if spender.IsZero() {
		return fmt.Errorf("%w: zero spender", domain.ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.allowances[allowanceKey{owner, spender}] = amount.Clone()
	return nil
}

// TransferFrom moves amount from from to to on spender's authority.
// Requires allowance(from, spender) >= amount in addition to balance;
// the allowance is reduced by the amount moved.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{from, spender}
	allowed, ok := l.allowances[key]
	if !ok || allowed.Lt(amount) {
		return fmt.Errorf("%w: spender %s allowed %s, needs %s",
			domain.ErrInsufficientAllowance, spender, allowanceDec(allowed), amount.Dec())
	}

	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.allowances[key] = new(uint256.Int).Sub(allowed, amount)
	l.emitTransfer(ctx, from, to, amount)
	return nil
}

// move performs the balance update. Caller holds the write lock.
func (l *Ledger) move(from, to domain.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return fmt.Errorf("%w: transfer to zero address", domain.ErrInvalidAddress)
	}

	fromBal, ok := l.balances[from]
	if !ok || fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			domain.ErrInsufficientBalance, from, allowanceDec(fromBal), amount.Dec())
	}

	l.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	toBal, ok := l.balances[to]
	if !ok {
		toBal = uint256.NewInt(0)
	}
	l.balances[to] = new(uint256.Int).Add(toBal, amount)
	return nil
}

func (l *Ledger) emitTransfer(ctx context.Context, from, to domain.Address, amount *uint256.Int) {
	l.sink.Emit(ctx, &domain.SaleEvent{
		Type:   domain.EventTransfer,
		From:   from,
		To:     to,
		Amount: amount.Clone(),
	})
}

func allowanceDec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
