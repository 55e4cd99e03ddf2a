package gateway

import (
	"errors"
	"testing"

	"crowdsale-engine/internal/domain"
)

var (
	owner    = domain.Address{1}
	stranger = domain.Address{2}
)

func TestGateway_AuthorizeOwner(t *testing.T) {
	g, err := New(owner)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := g.Authorize(owner); err != nil {
		t.Errorf("Authorize(owner) failed: %v", err)
	}
	if g.Owner() != owner {
		t.Errorf("Owner = %s, want %s", g.Owner(), owner)
	}
}

func TestGateway_RejectsNonOwner(t *testing.T) {
	g, err := New(owner)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := g.Authorize(stranger); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("Expected ErrNotOwner, got %v", err)
	}
}

func TestGateway_GuardShortCircuits(t *testing.T) {
	g, err := New(owner)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ran := false
	err = g.Guard(stranger, func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("Expected ErrNotOwner, got %v", err)
	}
	if ran {
		t.Error("Guarded operation ran for a non-owner caller")
	}

	if err := g.Guard(owner, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Guard(owner) failed: %v", err)
	}
	if !ran {
		t.Error("Guarded operation did not run for the owner")
	}
}

func TestGateway_ZeroOwnerRejected(t *testing.T) {
	if _, err := New(domain.ZeroAddress); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("Expected ErrInvalidAddress, got %v", err)
	}
}
