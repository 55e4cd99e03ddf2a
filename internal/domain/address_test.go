package domain

import (
	"errors"
	"testing"
)

// ed25519 generator point encoding; a valid wallet key.
var curvePoint = Address{
	0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
}

func TestAddress_RoundTrip(t *testing.T) {
	a := Address{1, 2, 3, 4}

	parsed, err := ParseAddress(a.String())
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if parsed != a {
		t.Errorf("Round trip mismatch: %s != %s", parsed, a)
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not base58", input: "0OIl+"},
		{name: "too short", input: "abc"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Fatalf("Expected ErrInvalidAddress, got %v", err)
			}
		})
	}
}

func TestParseWalletAddress(t *testing.T) {
	if _, err := ParseWalletAddress(curvePoint.String()); err != nil {
		t.Fatalf("ParseWalletAddress rejected a curve point: %v", err)
	}

	// A y coordinate beyond the field prime is not a curve point.
	var offCurve Address
	for i := range offCurve {
		offCurve[i] = 0xff
	}
	if _, err := ParseWalletAddress(offCurve.String()); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("Expected ErrInvalidAddress for off-curve bytes, got %v", err)
	}
}

func TestAddress_IsZero(t *testing.T) {
	if !ZeroAddress.IsZero() {
		t.Error("ZeroAddress.IsZero() = false")
	}
	if (Address{1}).IsZero() {
		t.Error("Non-zero address reported as zero")
	}
}

func TestDeriveSaleAddress(t *testing.T) {
	owner := Address{7}

	sale, err := DeriveSaleAddress(owner)
	if err != nil {
		t.Fatalf("DeriveSaleAddress failed: %v", err)
	}
	if sale.OnCurve() {
		t.Error("Sale address is on the curve; must not be a spendable key")
	}
	if sale.IsZero() {
		t.Error("Sale address is zero")
	}

	again, err := DeriveSaleAddress(owner)
	if err != nil {
		t.Fatalf("DeriveSaleAddress failed: %v", err)
	}
	if again != sale {
		t.Error("DeriveSaleAddress is not deterministic")
	}

	other, err := DeriveSaleAddress(Address{8})
	if err != nil {
		t.Fatalf("DeriveSaleAddress failed: %v", err)
	}
	if other == sale {
		t.Error("Different owners derived the same sale address")
	}
}
