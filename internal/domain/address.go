package domain

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLen is the raw address length in bytes.
const AddressLen = 32

// Address is a 32-byte account identity, base58-encoded on all external
// surfaces. Wallet addresses are valid ed25519 curve points; the sale's
// own holding address is derived off-curve so it can never collide with
// a wallet key.
type Address [AddressLen]byte

// ZeroAddress is the all-zero address. Transfers to it are rejected.
var ZeroAddress Address

// ParseAddress decodes a base58-encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	decoded, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	if len(decoded) != AddressLen {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLen, len(decoded))
	}
	copy(a[:], decoded)
	return a, nil
}

// ParseWalletAddress decodes a base58-encoded address and additionally
// requires it to be a valid ed25519 curve point, i.e. a key an external
// wallet could actually hold.
func ParseWalletAddress(s string) (Address, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return a, err
	}
	if !a.OnCurve() {
		return Address{}, fmt.Errorf("%w: not a wallet key: %s", ErrInvalidAddress, s)
	}
	return a, nil
}

// String returns the base58 encoding.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// OnCurve reports whether the address is a valid ed25519 curve point.
func (a Address) OnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// DeriveSaleAddress derives the sale's holding address from the owner
// address. The derivation walks a bump seed down from 255 until the
// resulting hash is off the ed25519 curve, so the sale address can never
// be a spendable wallet key.
func DeriveSaleAddress(owner Address) (Address, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, AddressLen+1+len("CrowdsaleHolding"))
		data = append(data, owner[:]...)
		data = append(data, bump)
		data = append(data, []byte("CrowdsaleHolding")...)

		hash := sha256.Sum256(data)

		var a Address
		copy(a[:], hash[:])
		if !a.OnCurve() {
			return a, nil
		}
	}
	return Address{}, fmt.Errorf("%w: no off-curve sale address for owner %s", ErrInvalidAddress, owner)
}
