package values

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative integral quantity of the smallest currency unit
// (wei for ether). It never carries a fractional part.
type Amount struct {
	v decimal.Decimal
}

// Zero is the zero Amount.
var Zero = Amount{}

// NewAmount creates an Amount from a count of smallest units
func NewAmount(units uint64) Amount {
	return Amount{v: decimal.NewFromUint64(units)}
}

// NewAmountFromDecimal validates d as a non-negative integer
func NewAmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("amount cannot be negative: %s", d.String())
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("amount must be a whole number of units: %s", d.String())
	}
	return Amount{v: d.Truncate(0)}, nil
}

// ParseAmount parses a base-10 integer string of smallest units
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount cannot be empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("invalid amount %q: digits only", s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount: %w", err)
	}
	return NewAmountFromDecimal(d)
}

// ParseUnits converts a human-readable quantity ("1.5") with the given number
// of decimals (18 for ether) into smallest units.
func ParseUnits(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid quantity: %w", err)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return Amount{}, fmt.Errorf("quantity %s has more than %d decimals", s, decimals)
	}
	return NewAmountFromDecimal(scaled)
}

// MustParseUnits is ParseUnits that panics on error (for constants/tests)
func MustParseUnits(s string, decimals int32) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Ether is MustParseUnits with 18 decimals.
func Ether(s string) Amount {
	return MustParseUnits(s, 18)
}

// FormatUnits renders the amount as a human-readable quantity
func (a Amount) FormatUnits(decimals int32) string {
	return a.v.Shift(-decimals).String()
}

// Decimal returns the underlying decimal value
func (a Amount) Decimal() decimal.Decimal {
	return a.v
}

func (a Amount) String() string {
	return a.v.String()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) IsPositive() bool {
	return a.v.IsPositive()
}

func (a Amount) Equal(other Amount) bool {
	return a.v.Equal(other.v)
}

// Cmp returns -1, 0, or 1
func (a Amount) Cmp(other Amount) int {
	return a.v.Cmp(other.v)
}

func (a Amount) GreaterThan(other Amount) bool {
	return a.v.GreaterThan(other.v)
}

func (a Amount) LessThan(other Amount) bool {
	return a.v.LessThan(other.v)
}

// Add returns a + other
func (a Amount) Add(other Amount) Amount {
	return Amount{v: a.v.Add(other.v)}
}

// Sub returns a - other, failing instead of going negative
func (a Amount) Sub(other Amount) (Amount, error) {
	if a.v.LessThan(other.v) {
		return Amount{}, fmt.Errorf("cannot subtract %s from %s", other, a)
	}
	return Amount{v: a.v.Sub(other.v)}, nil
}

// MarshalJSON encodes the amount as a string to keep full precision in
// JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

// UnmarshalJSON accepts a string or a bare JSON integer
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
