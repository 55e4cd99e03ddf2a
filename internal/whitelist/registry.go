// Package whitelist implements the admission-control registry gating who
// may purchase. Each address walks NONE -> PENDING -> APPROVED|REJECTED;
// the self-service path only moves into PENDING, admin action moves any
// address directly to APPROVED or REJECTED.
package whitelist

import (
	"context"
	"fmt"
	"sync"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
)

// Registry is the per-address admission state machine plus the
// insertion-ordered pending request list the admin UI drains.
type Registry struct {
	mu       sync.RWMutex
	statuses map[domain.Address]domain.WhitelistStatus
	pending  []domain.Address
	sink     events.Sink
}

// NewRegistry creates an empty registry.
func NewRegistry(sink events.Sink) *Registry {
	return &Registry{
		statuses: make(map[domain.Address]domain.WhitelistStatus),
		sink:     sink,
	}
}

// Request moves the caller to PENDING and appends it to the pending
// list. Allowed from NONE and REJECTED; PENDING and APPROVED fail with
// AlreadyRequested.
func (r *Registry) Request(ctx context.Context, caller domain.Address) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: zero requester", domain.ErrInvalidAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status(caller) {
	case domain.WhitelistPending, domain.WhitelistApproved:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRequested, caller)
	}

	r.statuses[caller] = domain.WhitelistPending
	r.pending = append(r.pending, caller)
	r.emitChanged(ctx, caller, domain.WhitelistPending)
	return nil
}

// Approve sets the address to APPROVED, removing it from the pending
// list if present. Admin path; the caller is owner-checked upstream.
func (r *Registry) Approve(ctx context.Context, addr domain.Address) error {
	return r.resolve(ctx, addr, domain.WhitelistApproved)
}

// Reject sets the address to REJECTED, removing it from the pending
// list if present.
func (r *Registry) Reject(ctx context.Context, addr domain.Address) error {
	return r.resolve(ctx, addr, domain.WhitelistRejected)
}

// ApproveAll applies Approve to every element, all-or-nothing: the batch
// is validated up front and any invalid entry fails the whole batch with
// no state change.
func (r *Registry) ApproveAll(ctx context.Context, addrs []domain.Address) error {
	return r.resolveAll(ctx, addrs, domain.WhitelistApproved)
}

// RejectAll applies Reject to every element, all-or-nothing.
func (r *Registry) RejectAll(ctx context.Context, addrs []domain.Address) error {
	return r.resolveAll(ctx, addrs, domain.WhitelistRejected)
}

// Status returns the address's admission status, NONE if never seen.
func (r *Registry) Status(addr domain.Address) domain.WhitelistStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status(addr)
}

// StatusAll returns statuses for every address, in input order.
func (r *Registry) StatusAll(addrs []domain.Address) []domain.WhitelistStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WhitelistStatus, len(addrs))
	for i, a := range addrs {
		out[i] = r.status(a)
	}
	return out
}

// PendingAddresses returns the pending list in request order.
func (r *Registry) PendingAddresses() []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Address, len(r.pending))
	copy(out, r.pending)
	return out
}

// IsPending reports whether the address is currently PENDING.
func (r *Registry) IsPending(addr domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status(addr) == domain.WhitelistPending
}

// status reads without locking. Caller holds at least the read lock.
func (r *Registry) status(addr domain.Address) domain.WhitelistStatus {
	if s, ok := r.statuses[addr]; ok {
		return s
	}
	return domain.WhitelistNone
}

func (r *Registry) resolve(ctx context.Context, addr domain.Address, to domain.WhitelistStatus) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: zero address", domain.ErrInvalidAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.setStatus(addr, to)
	r.emitChanged(ctx, addr, to)
	return nil
}

func (r *Registry) resolveAll(ctx context.Context, addrs []domain.Address, to domain.WhitelistStatus) error {
	// Validate first so a bad entry cannot leave the batch half-applied.
	for _, a := range addrs {
		if a.IsZero() {
			return fmt.Errorf("%w: zero address in batch", domain.ErrInvalidAddress)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range addrs {
		r.setStatus(a, to)
		r.emitChanged(ctx, a, to)
	}
	return nil
}

// setStatus overwrites the status and keeps the pending list in sync.
// Caller holds the write lock.
func (r *Registry) setStatus(addr domain.Address, to domain.WhitelistStatus) {
	if r.status(addr) == domain.WhitelistPending && to != domain.WhitelistPending {
		for i, p := range r.pending {
			if p == addr {
				r.pending = append(r.pending[:i], r.pending[i+1:]...)
				break
			}
		}
	}
	r.statuses[addr] = to
}

func (r *Registry) emitChanged(ctx context.Context, addr domain.Address, status domain.WhitelistStatus) {
	r.sink.Emit(ctx, &domain.SaleEvent{
		Type:    domain.EventWhitelistChanged,
		Subject: addr,
		Status:  status,
	})
}
