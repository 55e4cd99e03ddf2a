// Package replay rebuilds sale state from the persistent event journal
// and verifies it against a live engine. The journal is gap-free in
// sequence order, so folding it from the genesis allocation must land on
// exactly the live balances and counters.
package replay

import (
	"fmt"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
)

// State is sale state reconstructed from the journal.
type State struct {
	Balances     map[domain.Address]*uint256.Int
	TokensSold   *uint256.Int
	CurrencyHeld *uint256.Int
	Whitelist    map[domain.Address]domain.WhitelistStatus
	Finalized    bool
	LastSequence uint64
}

// NewState creates the empty pre-genesis state. The journal's first
// event is always the ledger's mint (a transfer from the zero address),
// which establishes the initial allocation.
func NewState() *State {
	return &State{
		Balances:     make(map[domain.Address]*uint256.Int),
		TokensSold:   new(uint256.Int),
		CurrencyHeld: new(uint256.Int),
		Whitelist:    make(map[domain.Address]domain.WhitelistStatus),
	}
}

// BalanceOf returns the rebuilt balance, zero for unknown holders.
func (s *State) BalanceOf(holder domain.Address) *uint256.Int {
	if b, ok := s.Balances[holder]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// StatusOf returns the rebuilt whitelist status, NONE for unknown addresses.
func (s *State) StatusOf(addr domain.Address) domain.WhitelistStatus {
	if status, ok := s.Whitelist[addr]; ok {
		return status
	}
	return domain.WhitelistNone
}

// Apply folds one event into the state. Events must arrive in sequence
// order with no gaps.
func (s *State) Apply(e *domain.SaleEvent) error {
	if e.Sequence != s.LastSequence+1 {
		return fmt.Errorf("%w: have %d, next event is %d", ErrSequenceGap, s.LastSequence, e.Sequence)
	}
	s.LastSequence = e.Sequence

	switch e.Type {
	case domain.EventTransfer:
		return s.applyTransfer(e)
	case domain.EventBuy:
		s.TokensSold.Add(s.TokensSold, e.Amount)
		s.CurrencyHeld.Add(s.CurrencyHeld, e.CurrencyAmount)
		return nil
	case domain.EventRefund:
		if s.CurrencyHeld.Lt(e.CurrencyAmount) {
			return fmt.Errorf("%w: refund of %s exceeds held currency %s at seq %d",
				ErrInconsistentJournal, e.CurrencyAmount.Dec(), s.CurrencyHeld.Dec(), e.Sequence)
		}
		s.CurrencyHeld.Sub(s.CurrencyHeld, e.CurrencyAmount)
		return nil
	case domain.EventFinalize:
		// Proceeds are swept to the owner on finalize.
		s.Finalized = true
		s.CurrencyHeld.Clear()
		return nil
	case domain.EventWhitelistChanged:
		s.Whitelist[e.Subject] = e.Status
		return nil
	default:
		return fmt.Errorf("%w: %q at seq %d", ErrUnknownEventType, e.Type, e.Sequence)
	}
}

func (s *State) applyTransfer(e *domain.SaleEvent) error {
	// A transfer from the zero address is a mint: the start of a process
	// lifetime. Live state begins fresh at every boot, so replay resets
	// to the minted allocation and discards what the previous epoch
	// accumulated.
	if e.From.IsZero() {
		s.Balances = map[domain.Address]*uint256.Int{e.To: e.Amount.Clone()}
		s.TokensSold = new(uint256.Int)
		s.CurrencyHeld = new(uint256.Int)
		s.Whitelist = make(map[domain.Address]domain.WhitelistStatus)
		s.Finalized = false
		return nil
	}

	from, ok := s.Balances[e.From]
	if !ok || from.Lt(e.Amount) {
		return fmt.Errorf("%w: transfer of %s from %s exceeds balance at seq %d",
			ErrInconsistentJournal, e.Amount.Dec(), e.From, e.Sequence)
	}

	s.Balances[e.From] = new(uint256.Int).Sub(from, e.Amount)
	if s.Balances[e.From].IsZero() {
		delete(s.Balances, e.From)
	}

	to, ok := s.Balances[e.To]
	if !ok {
		to = new(uint256.Int)
	}
	s.Balances[e.To] = new(uint256.Int).Add(to, e.Amount)
	return nil
}

// TotalBalance sums every rebuilt balance. With a conserving ledger the
// sum equals the minted supply after any prefix of the journal.
func (s *State) TotalBalance() *uint256.Int {
	total := new(uint256.Int)
	for _, b := range s.Balances {
		total.Add(total, b)
	}
	return total
}
