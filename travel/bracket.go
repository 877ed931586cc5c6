/*
Package travel computes the daily travel allowance of an instructor.

PURPOSE:
  An instructor is paid one flat travel allowance per calendar day. The
  amount depends only on the total round-trip distance of that day's route
  (home → institution → ... → home), looked up in a bracket table.

KEY CONCEPTS:
  - Route: The day's ordered walk and its total distance
  - Bracket: [MinKm, MaxKm) → flat amount, last bracket open-ended
  - BracketTable: Ordered, contiguous brackets covering [0, ∞)
  - TravelAllowance: The matched bracket and amount for one day

INVARIANTS:
  - One TravelAllowance per instructor per day, however many institutions
    were visited
  - 0 km always pays 0, regardless of the table
  - Moving to a later bracket never lowers the amount in the default table

DEFAULT TABLE:
  0–20 km    →      0
  20–50 km   → 20,000
  50–100 km  → 40,000
  ≥100 km    → 60,000

SEE ALSO:
  - route.go: Route builder
  - factory/travel.go: JSON form of the bracket table
  - region/provider.go: Distance lookup
*/
package travel

import (
	"fmt"

	"github.com/warp/settlement-engine/generic"
)

// PolicyKey names the travel-expense policy in errors and storage.
const PolicyKey = "travel_expense"

// =============================================================================
// BRACKET
// =============================================================================

// Bracket pays Amount for distances in [MinKm, MaxKm). MaxKm nil is open-ended.
type Bracket struct {
	MinKm  generic.Amount
	MaxKm  *generic.Amount
	Amount generic.Amount
}

func (b Bracket) Contains(distance generic.Amount) bool {
	if distance.LessThan(b.MinKm) {
		return false
	}
	return b.MaxKm == nil || distance.LessThan(*b.MaxKm)
}

func (b Bracket) String() string {
	if b.MaxKm == nil {
		return fmt.Sprintf("≥%s km", b.MinKm.Value)
	}
	return fmt.Sprintf("%s–%s km", b.MinKm.Value, b.MaxKm.Value)
}

// =============================================================================
// BRACKET TABLE
// =============================================================================

type BracketTable struct {
	Brackets []Bracket
}

// NewBracketTable validates and builds a table.
func NewBracketTable(brackets []Bracket) (BracketTable, error) {
	t := BracketTable{Brackets: brackets}
	if err := t.Validate(); err != nil {
		return BracketTable{}, err
	}
	return t, nil
}

// DefaultBracketTable is the compiled-in table.
func DefaultBracketTable() BracketTable {
	km := func(v float64) *generic.Amount { a := generic.Km(v); return &a }
	return BracketTable{Brackets: []Bracket{
		{MinKm: generic.Km(0), MaxKm: km(20), Amount: generic.Won(0)},
		{MinKm: generic.Km(20), MaxKm: km(50), Amount: generic.Won(20000)},
		{MinKm: generic.Km(50), MaxKm: km(100), Amount: generic.Won(40000)},
		{MinKm: generic.Km(100), MaxKm: nil, Amount: generic.Won(60000)},
	}}
}

// Validate checks that brackets start at 0, are contiguous, do not overlap,
// end open-ended and carry non-negative amounts.
func (t BracketTable) Validate() error {
	if len(t.Brackets) == 0 {
		return &generic.PolicyError{Key: PolicyKey, Reason: "bracket table is empty"}
	}
	if !t.Brackets[0].MinKm.IsZero() {
		return &generic.PolicyError{Key: PolicyKey, Reason: "first bracket must start at 0 km"}
	}
	for i, b := range t.Brackets {
		if b.Amount.IsNegative() {
			return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("bracket %d has a negative amount", i)}
		}
		last := i == len(t.Brackets)-1
		if b.MaxKm == nil {
			if !last {
				return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("bracket %d is open-ended but not last", i)}
			}
			continue
		}
		if last {
			return &generic.PolicyError{Key: PolicyKey, Reason: "last bracket must be open-ended"}
		}
		if !b.MaxKm.GreaterThan(b.MinKm) {
			return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("bracket %d: max must exceed min", i)}
		}
		if !t.Brackets[i+1].MinKm.Equal(*b.MaxKm) {
			return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("bracket %d does not start where bracket %d ends", i+1, i)}
		}
	}
	return nil
}

// Lookup returns the first bracket containing distance.
func (t BracketTable) Lookup(distance generic.Amount) (Bracket, bool) {
	for _, b := range t.Brackets {
		if b.Contains(distance) {
			return b, true
		}
	}
	return Bracket{}, false
}

// =============================================================================
// TRAVEL ALLOWANCE
// =============================================================================

// TravelAllowance is the travel payment for one instructor-day.
type TravelAllowance struct {
	DistanceKm     generic.Amount
	MatchedBracket *Bracket
	Amount         generic.Amount
	Explanation    string
}

// Allowance maps a day's route distance to its flat allowance.
func (t BracketTable) Allowance(distance generic.Amount) TravelAllowance {
	if !distance.IsPositive() {
		return TravelAllowance{
			DistanceKm:  generic.Km(0),
			Amount:      generic.Won(0),
			Explanation: "same-region, no allowance",
		}
	}
	b, ok := t.Lookup(distance)
	if !ok {
		return TravelAllowance{
			DistanceKm:  distance,
			Amount:      generic.Won(0),
			Explanation: fmt.Sprintf("%s km matches no bracket", distance.Value),
		}
	}
	return TravelAllowance{
		DistanceKm:     distance,
		MatchedBracket: &b,
		Amount:         b.Amount,
		Explanation:    fmt.Sprintf("%s km in %s bracket: %s won", distance.Value, b, b.Amount.Formatted()),
	}
}
