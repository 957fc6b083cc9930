// Package conversion translates external decimal quantities to integer base
// units and back. Nothing past this boundary sees a fractional quantity.
package conversion

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	maxUnits = decimal.NewFromInt(math.MaxInt64)
	half     = decimal.NewFromFloat(0.5)
)

// ToBaseUnits rounds amount*scale to the nearest integer, halves rounding up.
func ToBaseUnits(amount decimal.Decimal, scale int64) (int64, error) {
	if scale <= 0 {
		return 0, fmt.Errorf("%w: scale %d must be positive", ErrInvalidAmount, scale)
	}
	return roundPositive(amount.Mul(decimal.NewFromInt(scale)))
}

// FromBaseUnits returns units/scale.
func FromBaseUnits(units, scale int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(decimal.NewFromInt(scale))
}

// ToPrice rounds an external price to whole quote base units per base asset unit.
func ToPrice(price decimal.Decimal) (int64, error) {
	return roundPositive(price)
}

// Total is the quote value of amount base units at price.
func Total(price, units, scale int64) decimal.Decimal {
	return FromBaseUnits(units, scale).Mul(decimal.NewFromInt(price))
}

func roundPositive(d decimal.Decimal) (int64, error) {
	// halves round up: floor(x + 0.5)
	r := d.Add(half).Floor()
	if !r.IsPositive() {
		return 0, fmt.Errorf("%w: %s rounds to %s", ErrInvalidAmount, d, r)
	}
	if r.GreaterThan(maxUnits) {
		return 0, fmt.Errorf("%w: %s overflows base units", ErrInvalidAmount, d)
	}
	return r.IntPart(), nil
}
