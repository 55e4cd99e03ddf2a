// Package gateway holds the single-owner authorization model: one owner
// identity fixed at construction, checked by every mutating entry point.
// The check lives here once so individual operations cannot drift.
package gateway

import (
	"fmt"

	"crowdsale-engine/internal/domain"
)

// Gateway guards owner-only operations.
type Gateway struct {
	owner domain.Address
}

// New creates a gateway for the given owner. The owner is immutable for
// the gateway's lifetime.
func New(owner domain.Address) (*Gateway, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: zero owner", domain.ErrInvalidAddress)
	}
	return &Gateway{owner: owner}, nil
}

// Owner returns the owner identity.
func (g *Gateway) Owner() domain.Address {
	return g.owner
}

// Authorize fails with NotOwner unless caller is the owner.
func (g *Gateway) Authorize(caller domain.Address) error {
	if caller != g.owner {
		return fmt.Errorf("%w: caller %s", domain.ErrNotOwner, caller)
	}
	return nil
}

// Guard runs op only if caller is the owner. This is the decorator every
// owner-only entry point wraps itself in.
func (g *Gateway) Guard(caller domain.Address, op func() error) error {
	if err := g.Authorize(caller); err != nil {
		return err
	}
	return op()
}
