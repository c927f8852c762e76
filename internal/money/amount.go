// Package money provides a fixed-point currency amount stored as integer
// minor units (e.g. cents).
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrNegativeAmount is returned whenever an operation would produce an
// amount below zero. Amounts are never clamped.
var ErrNegativeAmount = errors.New("negative amount")

// ErrOverflow is returned when a result does not fit in int64 minor units.
var ErrOverflow = errors.New("amount overflow")

// DefaultExponent is the number of minor-unit digits used when a currency
// does not say otherwise (cents).
const DefaultExponent int32 = 2

// Amount is a non-negative quantity of currency minor units.
// The zero value is a valid zero amount.
type Amount struct {
	minor int64
}

// Zero is the zero amount.
var Zero = Amount{}

// New returns an Amount of the given minor units.
func New(minor int64) (Amount, error) {
	if minor < 0 {
		return Zero, fmt.Errorf("%w: %d", ErrNegativeAmount, minor)
	}
	return Amount{minor: minor}, nil
}

// MustNew is like New but panics on a negative value.
func MustNew(minor int64) Amount {
	a, err := New(minor)
	if err != nil {
		panic(err)
	}
	return a
}

// Minor returns the amount in minor units.
func (a Amount) Minor() int64 { return a.minor }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.minor == 0 }

// Add returns a + b, or ErrOverflow if the sum exceeds math.MaxInt64.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.minor > math.MaxInt64-b.minor {
		return Zero, fmt.Errorf("%w: %d + %d", ErrOverflow, a.minor, b.minor)
	}
	return Amount{minor: a.minor + b.minor}, nil
}

// Sub returns a - b, or ErrNegativeAmount if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b.minor > a.minor {
		return Zero, fmt.Errorf("%w: %d - %d", ErrNegativeAmount, a.minor, b.minor)
	}
	return Amount{minor: a.minor - b.minor}, nil
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to,
// or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.minor < b.minor:
		return -1
	case a.minor > b.minor:
		return 1
	default:
		return 0
	}
}

// Sum adds all amounts, stopping at the first overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Zero, err
		}
	}
	return total, nil
}

// SplitEvenly divides a into n parts that add up to a exactly.
// Leftover minor units go one each to the leading parts.
func (a Amount) SplitEvenly(n int) []Amount {
	if n <= 0 {
		return nil
	}
	base := a.minor / int64(n)
	rest := a.minor % int64(n)
	parts := make([]Amount, n)
	for i := range parts {
		parts[i] = Amount{minor: base}
		if int64(i) < rest {
			parts[i].minor++
		}
	}
	return parts
}

// Parse converts a decimal string such as "12.34" into minor units with
// the given exponent. Extra fractional digits are rounded half away from zero.
func Parse(s string, exponent int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Round(exponent).Shift(exponent)
	if !scaled.IsInteger() {
		return Zero, fmt.Errorf("invalid amount %q: not representable", s)
	}
	if scaled.GreaterThan(maxMinor) {
		return Zero, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return New(scaled.IntPart())
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Format renders the amount as a decimal string with exponent fractional digits.
func (a Amount) Format(exponent int32) string {
	return decimal.New(a.minor, -exponent).StringFixed(exponent)
}

// String renders the amount with DefaultExponent.
func (a Amount) String() string {
	return a.Format(DefaultExponent)
}

// MarshalJSON encodes the amount as an integer number of minor units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, a.minor, 10), nil
}

// UnmarshalJSON decodes an integer number of minor units.
func (a *Amount) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	parsed, err := New(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer; amounts are stored as integer minor units.
func (a Amount) Value() (driver.Value, error) {
	return a.minor, nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	var v int64
	switch t := src.(type) {
	case int64:
		v = t
	case int32:
		v = int64(t)
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", t, err)
		}
		v = n
	default:
		return fmt.Errorf("cannot scan %T into money.Amount", src)
	}
	parsed, err := New(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
