// Package types provides common value types used across pullpay.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a non-fractional token quantity in the token's base unit
// (for an 18-decimal token, 1 token == 10^18 base units).
// All arithmetic is integer-only and arbitrary precision.
//
// Amount is immutable: every operation returns a new value. The zero value
// is a valid zero amount.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receivers for UnmarshalJSON/Scan.
type Amount struct {
	v *big.Int
}

// NewAmount creates an Amount from an int64.
func NewAmount(n int64) Amount { return Amount{v: big.NewInt(n)} }

// AmountFromBig copies b into a new Amount. A nil b is zero.
func AmountFromBig(b *big.Int) Amount {
	if b == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(b)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: parse %q: not an integer", s)
	}
	return Amount{v: b}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits converts a decimal string in whole token units into base units,
// e.g. ParseUnits("1.5", 18) == 1500000000000000000. More fractional digits
// than decimals is an error.
func ParseUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	if decimals < 0 {
		return Amount{}, fmt.Errorf("amount: negative decimals %d", decimals)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("amount: parse units %q: empty", s)
	}
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("amount: parse units %q: more than %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	b, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: parse units %q: not a decimal", s)
	}
	if neg {
		b.Neg(b)
	}
	return Amount{v: b}, nil
}

// FormatUnits renders the amount as a decimal string in whole token units,
// trimming trailing fractional zeros.
func (a Amount) FormatUnits(decimals int) string {
	if decimals <= 0 {
		return a.String()
	}

	b := a.big()
	neg := b.Sign() < 0
	digits := new(big.Int).Abs(b).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), other.big())}
}

// Sub returns a - other.
func (a Amount) Sub(other Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), other.big())}
}

// Mul returns a * n.
func (a Amount) Mul(n int64) Amount {
	return Amount{v: new(big.Int).Mul(a.big(), big.NewInt(n))}
}

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.big().Cmp(other.big()) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.big().Sign() > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a.big().Sign() < 0 }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan returns true if a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// GreaterThan returns true if a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.Cmp(other) > 0 }

// String returns the base-10 representation in base units.
func (a Amount) String() string { return a.big().String() }

// MarshalJSON encodes the amount as a quoted decimal string so that values
// beyond 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as decimal text or
// NUMERIC columns.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case int64:
		*a = NewAmount(v)
		return nil
	case string:
		return a.scanString(v)
	case []byte:
		return a.scanString(string(v))
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(s string) error {
	// NUMERIC(78,0) may come back with a trailing ".0" scale from some drivers.
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		s = whole
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum returns the sum of values. An empty list sums to zero.
func Sum(values ...Amount) Amount {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v.big())
	}
	return Amount{v: total}
}
