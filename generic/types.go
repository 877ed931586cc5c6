/*
Package generic provides the domain-agnostic building blocks of the settlement engine.

PURPOSE:
  This package contains the value types and interfaces every settlement
  package shares: quantities with units, calendar days and periods,
  diagnostics, errors, and the key-value persistence contract. It has no
  knowledge of instructors, allowances or routes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 40,000 won, 65 km, 2.5 hours)
  - Unit:   What the quantity measures

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so won amounts never drift
  2. Explicit units: km and won are never mixed by accident
  3. Value semantics: every operation returns a new Amount

USAGE:
  fee := generic.Won(40000).MulInt(2)          // 80,000 won
  dist := generic.Km(12.5).Add(generic.Km(7))  // 19.5 km
  tax := fee.Mul(decimal.RequireFromString("0.03")).Round()

SEE ALSO:
  - time.go: TimePoint and holiday calendar
  - period.go: Period and MonthKey
  - store.go: KVStore and ChangeFeed interfaces
*/
package generic

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitWon   Unit = "won"
	UnitKm    Unit = "km"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

// Won returns a monetary amount.
func Won(v int64) Amount { return NewAmountFromInt(v, UnitWon) }

// Km returns a distance.
func Km(v float64) Amount { return NewAmount(v, UnitKm) }

// Hours returns a duration in hours.
func Hours(v float64) Amount { return NewAmount(v, UnitHours) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) MulInt(n int) Amount          { return a.Mul(decimal.NewFromInt(int64(n))) }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Value.GreaterThanOrEqual(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}
func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Round rounds to whole units, half away from zero.
func (a Amount) Round() Amount { return Amount{Value: a.Value.Round(0), Unit: a.Unit} }

// Int64 returns the value truncated to an integer.
func (a Amount) Int64() int64 { return a.Value.IntPart() }

// Float64 returns the value as a float, for DTOs and display only.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }

// Formatted renders the rounded value with thousands separators ("40,000").
func (a Amount) Formatted() string { return humanize.Comma(a.Value.Round(0).IntPart()) }

// SumAmounts adds amounts of the given unit. An empty list yields zero.
func SumAmounts(unit Unit, amounts ...Amount) Amount {
	total := NewAmountFromInt(0, unit)
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
