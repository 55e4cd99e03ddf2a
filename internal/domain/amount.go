package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amounts and prices are 256-bit unsigned integers scaled by 1e18, the
// same fixed-point convention the asset's smallest denomination uses.

// UnitScale is the fixed-point scale: 1 whole asset unit = 1e18.
var UnitScale = uint256.NewInt(1_000_000_000_000_000_000)

// ParseAmount parses a decimal string into a scaled amount.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// Units returns n whole asset units as a scaled amount.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), UnitScale)
}

// Cost returns the currency value of amount asset units at the given
// price per unit: amount * price / UnitScale. Fails on 256-bit overflow
// of the intermediate product.
func Cost(amount, price *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amount, price)
	if overflow {
		return nil, fmt.Errorf("%w: amount %s at price %s overflows", ErrIncorrectPayment, amount.Dec(), price.Dec())
	}
	return product.Div(product, UnitScale), nil
}

// TokensFor returns the asset amount a currency value buys at the given
// price per unit: value * UnitScale / price, truncated. The purchase
// pipeline re-derives the cost from the returned amount, so a value that
// is not an exact multiple of the unit price fails IncorrectPayment.
func TokensFor(value, price *uint256.Int) (*uint256.Int, error) {
	if price.IsZero() {
		return nil, fmt.Errorf("%w: zero price", ErrInvalidConfiguration)
	}
	product, overflow := new(uint256.Int).MulOverflow(value, UnitScale)
	if overflow {
		return nil, fmt.Errorf("%w: value %s overflows", ErrIncorrectPayment, value.Dec())
	}
	return product.Div(product, price), nil
}
