package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a fixed-precision monetary amount. It deliberately carries no
// currency; records that hold a Money also hold a currency code, and the two
// travel together through conversion and persistence.
type Money struct {
	value decimal.Decimal
}

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{value: d}
}

func MoneyFromFloat(f float64) Money {
	return Money{value: decimal.NewFromFloat(f)}
}

func MoneyFromInt(i int64) Money {
	return Money{value: decimal.NewFromInt(i)}
}

func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	return Money{value: d}, nil
}

// MustMoney parses s or panics. Test and constant use only.
func MustMoney(s string) Money {
	m, err := MoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal { return m.value }
func (m Money) IsZero() bool             { return m.value.IsZero() }
func (m Money) IsPositive() bool         { return m.value.IsPositive() }
func (m Money) IsNegative() bool         { return m.value.IsNegative() }
func (m Money) Equal(n Money) bool       { return m.value.Equal(n.value) }
func (m Money) LessThan(n Money) bool    { return m.value.LessThan(n.value) }

func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value)} }
func (m Money) Neg() Money        { return Money{value: m.value.Neg()} }
func (m Money) Abs() Money        { return Money{value: m.value.Abs()} }

func (m Money) MulInt(n int) Money {
	return Money{value: m.value.Mul(decimal.NewFromInt(int64(n)))}
}

// DivInt splits an amount across n units, e.g. a multi-contract premium
// across single-contract records. Uses decimal division so the per-unit
// values recombine to the original within decimal.DivisionPrecision.
func (m Money) DivInt(n int) Money {
	if n == 0 {
		return Money{}
	}
	return Money{value: m.value.Div(decimal.NewFromInt(int64(n)))}
}

func (m Money) Float64() float64 { return m.value.InexactFloat64() }

func (m Money) String() string { return m.value.String() }

// StringFixed renders with exactly two decimal places, for human-readable
// notes and error strings.
func (m Money) StringFixed() string { return m.value.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.value.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	m.value = d
	return nil
}

// Value stores the amount as an exact decimal string.
func (m Money) Value() (driver.Value, error) {
	return m.value.String(), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		m.value = decimal.Zero
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("scanning money %q: %w", v, err)
		}
		m.value = d
		return nil
	case []byte:
		return m.Scan(string(v))
	case float64:
		m.value = decimal.NewFromFloat(v)
		return nil
	case int64:
		m.value = decimal.NewFromInt(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}
