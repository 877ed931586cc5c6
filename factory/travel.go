package factory

import (
	"fmt"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/travel"
)

// TravelExpensePolicyJSON is the JSON representation of the bracket table.
type TravelExpensePolicyJSON struct {
	Brackets []BracketJSON `json:"brackets"`
}

// BracketJSON is one bracket. MaxKm nil is open-ended.
type BracketJSON struct {
	MinKm  float64  `json:"min_km"`
	MaxKm  *float64 `json:"max_km"`
	Amount int64    `json:"amount"`
}

// ParseTravelExpensePolicy parses and validates a bracket table.
func (f *PolicyFactory) ParseTravelExpensePolicy(raw []byte) (travel.BracketTable, error) {
	var tj TravelExpensePolicyJSON
	if err := decodeStrict(raw, travel.PolicyKey, &tj); err != nil {
		return travel.BracketTable{}, err
	}
	return f.TravelFromJSON(tj)
}

func (f *PolicyFactory) TravelFromJSON(tj TravelExpensePolicyJSON) (travel.BracketTable, error) {
	brackets := make([]travel.Bracket, 0, len(tj.Brackets))
	for i, bj := range tj.Brackets {
		if bj.MinKm < 0 {
			return travel.BracketTable{}, &generic.PolicyError{Key: travel.PolicyKey, Reason: fmt.Sprintf("bracket %d has a negative min_km", i)}
		}
		b := travel.Bracket{
			MinKm:  generic.Km(bj.MinKm),
			Amount: generic.Won(bj.Amount),
		}
		if bj.MaxKm != nil {
			upper := generic.Km(*bj.MaxKm)
			b.MaxKm = &upper
		}
		brackets = append(brackets, b)
	}
	return travel.NewBracketTable(brackets)
}

// ToTravelExpenseJSON converts a bracket table to JSON form.
func (f *PolicyFactory) ToTravelExpenseJSON(t travel.BracketTable) TravelExpensePolicyJSON {
	out := TravelExpensePolicyJSON{Brackets: make([]BracketJSON, 0, len(t.Brackets))}
	for _, b := range t.Brackets {
		bj := BracketJSON{MinKm: b.MinKm.Float64(), Amount: b.Amount.Int64()}
		if b.MaxKm != nil {
			v := b.MaxKm.Float64()
			bj.MaxKm = &v
		}
		out.Brackets = append(out.Brackets, bj)
	}
	return out
}
