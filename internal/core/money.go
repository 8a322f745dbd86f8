// Package core provides the domain model of the shop: buyers, their ledger,
// sales, purchases and expenses.
//
// This file contains the exact decimal types used for every monetary amount and
// quantity. Amounts are kept as shopspring decimals rounded half away from zero
// to a fixed number of places, and persisted as integer minor units so that
// database aggregates stay exact.
package core

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MoneyPlaces    = 2
	QuantityPlaces = 3
)

// Amounts and quantities must stay strictly below these magnitudes so that
// minor units, line totals and column sums all fit in an int64.
var (
	MaxMoney    = decimal.New(1, 12)
	MaxQuantity = decimal.New(1, 9)
)

// Money is a signed amount with two fractional digits.
type Money struct {
	dec decimal.Decimal
}

// Quantity is a signed measure (kg, pieces, ...) with three fractional digits.
type Quantity struct {
	dec decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{dec: d.Round(MoneyPlaces)}
}

func MoneyFromCents(cents int64) Money {
	return Money{dec: decimal.New(cents, -MoneyPlaces)}
}

// ParseMoney parses a decimal string such as "12.34" or "12,34".
// Extra fractional digits are rounded half away from zero.
//
// Examples:
//
//	ParseMoney("12.345") -> 12.35
//	ParseMoney("-5")     -> -5.00
func ParseMoney(s string) (Money, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return NewMoney(d), nil
}

// MustMoney is ParseMoney for literals known to be valid.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: invalid money literal %q", s))
	}
	return m
}

func (m Money) Decimal() decimal.Decimal { return m.dec }

// Cents returns the amount in minor units.
func (m Money) Cents() int64 { return m.dec.Shift(MoneyPlaces).IntPart() }

func (m Money) Add(o Money) Money { return Money{dec: m.dec.Add(o.dec)} }
func (m Money) Sub(o Money) Money { return Money{dec: m.dec.Sub(o.dec)} }
func (m Money) Neg() Money        { return Money{dec: m.dec.Neg()} }
func (m Money) Cmp(o Money) int   { return m.dec.Cmp(o.dec) }
func (m Money) Equal(o Money) bool {
	return m.dec.Equal(o.dec)
}
func (m Money) IsZero() bool     { return m.dec.IsZero() }
func (m Money) InRange() bool    { return m.dec.Abs().LessThan(MaxMoney) }
func (m Money) IsPositive() bool { return m.dec.IsPositive() }
func (m Money) IsNegative() bool { return m.dec.IsNegative() }

func (m Money) String() string { return m.dec.StringFixed(MoneyPlaces) }

// SumMoney folds amounts with exact addition.
func SumMoney(amounts ...Money) Money {
	total := Money{}
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{dec: d.Round(QuantityPlaces)}
}

func QuantityFromMilli(milli int64) Quantity {
	return Quantity{dec: decimal.New(milli, -QuantityPlaces)}
}

func ParseQuantity(s string) (Quantity, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Quantity{}, ErrInvalidQuantity
	}
	return NewQuantity(d), nil
}

func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(fmt.Sprintf("core: invalid quantity literal %q", s))
	}
	return q
}

func (q Quantity) Decimal() decimal.Decimal { return q.dec }
func (q Quantity) Milli() int64             { return q.dec.Shift(QuantityPlaces).IntPart() }
func (q Quantity) Add(o Quantity) Quantity  { return Quantity{dec: q.dec.Add(o.dec)} }
func (q Quantity) Equal(o Quantity) bool    { return q.dec.Equal(o.dec) }
func (q Quantity) IsPositive() bool         { return q.dec.IsPositive() }
func (q Quantity) InRange() bool            { return q.dec.Abs().LessThan(MaxQuantity) }
func (q Quantity) String() string           { return q.dec.StringFixed(QuantityPlaces) }

// Times returns quantity × unit price rounded to money precision.
func (q Quantity) Times(price Money) Money {
	return NewMoney(q.dec.Mul(price.dec))
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}

// JSON: amounts are written as fixed-place strings ("26.00") and read from
// either strings or numbers.

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw, err := jsonDecimalText(data)
	if err != nil {
		return ErrInvalidAmount
	}
	if raw == "" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	if !parsed.InRange() {
		return ErrInvalidAmount
	}
	*m = parsed
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(q.String())), nil
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw, err := jsonDecimalText(data)
	if err != nil {
		return ErrInvalidQuantity
	}
	if raw == "" {
		*q = Quantity{}
		return nil
	}
	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	if !parsed.InRange() {
		return ErrInvalidQuantity
	}
	*q = parsed
	return nil
}

func jsonDecimalText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if len(data) > 0 && data[0] == '"' {
		return strconv.Unquote(string(data))
	}
	return string(data), nil
}

// SQL: Money is stored as integer cents, Quantity as integer thousandths.

func (m Money) Value() (driver.Value, error) {
	if !m.InRange() {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, m)
	}
	return m.Cents(), nil
}

func (m *Money) Scan(src any) error {
	d, err := scanMinorUnits(src)
	if err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	m.dec = d.Shift(-MoneyPlaces)
	return nil
}

func (q Quantity) Value() (driver.Value, error) {
	if !q.InRange() {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidQuantity, q)
	}
	return q.Milli(), nil
}

func (q *Quantity) Scan(src any) error {
	d, err := scanMinorUnits(src)
	if err != nil {
		return fmt.Errorf("scan quantity: %w", err)
	}
	q.dec = d.Shift(-QuantityPlaces)
	return nil
}

// scanMinorUnits accepts the shapes drivers return for integer columns and
// integer aggregates (PostgreSQL SUM(bigint) arrives as numeric text).
func scanMinorUnits(src any) (decimal.Decimal, error) {
	switch v := src.(type) {
	case nil:
		return decimal.Zero, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v).Round(0), nil
	case []byte:
		return decimal.NewFromString(string(v))
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", src)
	}
}
