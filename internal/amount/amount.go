// Package amount converts between wire decimal strings and integer cents.
package amount

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// CentsExp is the number of fractional digits stored for money amounts.
const CentsExp = 2

var ErrInvalidAmount = errors.New("invalid amount")

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// Cents is an amount in minor units. It implements encoding.TextUnmarshaler so
// it can be loaded from configuration.
type Cents int64

// UnmarshalText parses a decimal string such as "1000.00".
func (c *Cents) UnmarshalText(text []byte) error {
	v, err := ParseCents(string(text))
	if err != nil {
		return err
	}

	*c = Cents(v)

	return nil
}

// String formats the amount with two fractional digits.
func (c Cents) String() string {
	return Format(int64(c))
}

// ParseCents converts a decimal string with up to 2 fractional digits into
// cents. The sign is preserved; callers decide whether it is acceptable.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	shifted := d.Shift(CentsExp)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: supports up to %d decimals", ErrInvalidAmount, CentsExp)
	}
	if shifted.GreaterThan(maxCents) || shifted.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}

	return shifted.IntPart(), nil
}

// ParsePositiveCents is ParseCents restricted to amounts > 0.
func ParsePositiveCents(s string) (int64, error) {
	v, err := ParseCents(s)
	if err != nil {
		return 0, err
	}

	if v <= 0 {
		return 0, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}

	return v, nil
}

// Format renders cents as a fixed two-decimal string ("-12.50").
func Format(cents int64) string {
	return decimal.New(cents, -CentsExp).StringFixed(CentsExp)
}

// FormatPtr is Format for nullable amounts; nil renders as nil.
func FormatPtr(cents *int64) *string {
	if cents == nil {
		return nil
	}

	s := Format(*cents)

	return &s
}
