package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of Quantity steps per unit (4 decimal places).
const QuantityScale int64 = 10_000

const quantityDigits = 4

// MaxQuantity bounds any single quantity and a product's total stock
// (one trillion units). Sums of bounded values cannot overflow int64.
const MaxQuantity = Quantity(1_000_000_000_000 * QuantityScale)

// Quantity is a count of stock in fixed point: Units(1) == 10_000. It is
// stored as BIGINT (postgres) or int64 (firestore) so sums stay exact.
// JSON encodes it as a number with four decimals.
type Quantity int64

// Units builds a Quantity from a whole number of units.
func Units(n int64) Quantity { return Quantity(n * QuantityScale) }

// NewQuantityFromInt64Scaled wraps an already scaled storage value.
func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

// NewQuantityFromFloat64 rounds v to the nearest step. Only for tests and
// float sources that cannot carry more precision anyway.
func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// ParseQuantity parses "12", "12.5" or ".25". More than four fractional
// digits is an error rather than a silent truncation, and so is a magnitude
// above MaxQuantity.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	scaled := d.Shift(quantityDigits)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("quantity %q has more than %d decimal places", s, quantityDigits)
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() || !Quantity(bi.Int64()).InRange() {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return Quantity(bi.Int64()), nil
}

// InRange reports whether |q| <= MaxQuantity.
func (q Quantity) InRange() bool {
	return q >= -MaxQuantity && q <= MaxQuantity
}

// MinQuantity returns the smaller of a and b.
func MinQuantity(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }
func (q Quantity) Float64() float64   { return float64(q) / float64(QuantityScale) }
func (q Quantity) IsZero() bool       { return q == 0 }
func (q Quantity) IsPositive() bool   { return q > 0 }
func (q Quantity) IsNegative() bool   { return q < 0 }
func (q Quantity) Neg() Quantity      { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Decimal returns q as an exact decimal for money arithmetic.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -quantityDigits)
}

// Cost prices q units at unitCost.
func (q Quantity) Cost(unitCost Money) Money {
	return unitCost.Mul(q.Decimal())
}

// String renders q with exactly four decimals, e.g. "-2.5000".
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityDigits)
}

// MarshalJSON implements json.Marshaler.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
