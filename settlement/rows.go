package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// SETTLEMENT ROWS - One per (training, instructor, role)
// =============================================================================

// RowID is the stable identifier overrides are keyed on.
func RowID(trainingID, instructorID string, role allowance.Role) string {
	return trainingID + "_" + instructorID + "_" + string(role)
}

// Computed holds the values a row derives from the pipeline.
type Computed struct {
	DistanceKm      generic.Amount
	TravelExpense   generic.Amount
	AllowanceAmount generic.Amount
}

// Row is one settlement row.
type Row struct {
	ID             string
	EducationID    string
	EducationName  string
	InstructorID   string
	InstructorName string
	Role           allowance.Role
	Dates          []generic.TimePoint
	Sessions       int
	Eligible       bool
	Breakdown      allowance.Breakdown
	Computed       Computed
	Override       *Override
}

func (r Row) EffectiveDistanceKm() generic.Amount {
	if r.Override != nil && r.Override.DistanceKm != nil {
		return *r.Override.DistanceKm
	}
	return r.Computed.DistanceKm
}

func (r Row) EffectiveTravelExpense() generic.Amount {
	if r.Override != nil && r.Override.TravelExpense != nil {
		return *r.Override.TravelExpense
	}
	return r.Computed.TravelExpense
}

func (r Row) EffectiveAllowanceAmount() generic.Amount {
	if r.Override != nil && r.Override.AllowanceAmount != nil {
		return *r.Override.AllowanceAmount
	}
	return r.Computed.AllowanceAmount
}

// EffectiveTotal is allowance plus travel after overrides.
func (r Row) EffectiveTotal() generic.Amount {
	return r.EffectiveAllowanceAmount().Add(r.EffectiveTravelExpense())
}

// AllowanceDelta is how far an allowance override moves the row away
// from its computed gross.
func (r Row) AllowanceDelta() generic.Amount {
	return r.EffectiveAllowanceAmount().Sub(r.Computed.AllowanceAmount)
}

// BuildRows flattens settlements into rows sorted by ID. A day's route
// distance and travel allowance go to the first eligible training visited,
// or to the first training when none that day is eligible.
func BuildRows(settlements []InstructorSettlement) []Row {
	byID := make(map[string]*Row)
	for _, s := range settlements {
		for _, day := range s.AllDays() {
			carrier := travelCarrier(day.Trainings)
			for i, tp := range day.Trainings {
				id := tp.RowID(s.InstructorID)
				row, ok := byID[id]
				if !ok {
					row = &Row{
						ID:             id,
						EducationID:    tp.TrainingID,
						EducationName:  tp.TrainingName,
						InstructorID:   s.InstructorID,
						InstructorName: s.InstructorName,
						Role:           tp.Role,
						Eligible:       tp.Eligible,
						Breakdown:      tp.Breakdown,
						Computed: Computed{
							DistanceKm:      generic.Km(0),
							TravelExpense:   generic.Won(0),
							AllowanceAmount: generic.Won(0),
						},
					}
					byID[id] = row
				} else {
					row.Breakdown = row.Breakdown.Add(tp.Breakdown)
				}
				row.Dates = append(row.Dates, day.Date)
				row.Sessions += tp.Sessions
				if i == carrier {
					if day.Route.DistanceKm.Unit != "" {
						row.Computed.DistanceKm = row.Computed.DistanceKm.Add(day.Route.DistanceKm)
					}
					if day.Travel.Amount.Unit != "" {
						row.Computed.TravelExpense = row.Computed.TravelExpense.Add(day.Travel.Amount)
					}
				}
			}
		}
	}

	rows := make([]Row, 0, len(byID))
	for _, r := range byID {
		r.Computed.AllowanceAmount = r.Breakdown.GrossTotal
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// travelCarrier is the index of the training that carries the day's travel.
func travelCarrier(trainings []TrainingPayment) int {
	for i, tp := range trainings {
		if tp.Eligible {
			return i
		}
	}
	return 0
}

// ApplyOverrides returns copies of rows with overrides attached by ID.
// Rows without an override come back with Override cleared, so removing
// an override restores the computed values.
func ApplyOverrides(rows []Row, overrides map[string]Override) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Override = nil
		if o, ok := overrides[r.ID]; ok {
			o := o
			r.Override = &o
		}
		out[i] = r
	}
	return out
}

// ForPeriod returns the part of o that belongs to the row's dates inside
// period. Each value is spread evenly over dates and allocated cumulatively,
// so the shares of any set of disjoint periods covering every date add up
// to the full value. Won amounts are whole, km keep two decimals.
func (o Override) ForPeriod(dates []generic.TimePoint, period generic.Period) Override {
	n := len(dates)
	if n == 0 || period.IsOpen() {
		return o
	}
	sorted := make([]generic.TimePoint, n)
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	before, upto := 0, 0
	for _, d := range sorted {
		if !period.Start.IsZero() && d.Before(period.Start) {
			before++
		}
		if period.End.IsZero() || !d.After(period.End) {
			upto++
		}
	}

	share := func(a *generic.Amount, places int32) *generic.Amount {
		if a == nil {
			return nil
		}
		alloc := func(k int) decimal.Decimal {
			if k == n {
				return a.Value
			}
			return a.Value.Mul(decimal.NewFromInt(int64(k))).Div(decimal.NewFromInt(int64(n))).RoundFloor(places)
		}
		v := generic.Amount{Value: alloc(upto).Sub(alloc(before)), Unit: a.Unit}
		return &v
	}

	out := o
	out.DistanceKm = share(o.DistanceKm, 2)
	out.TravelExpense = share(o.TravelExpense, 0)
	out.AllowanceAmount = share(o.AllowanceAmount, 0)
	return out
}

// FilterRows keeps rows matching keep.
func FilterRows(rows []Row, keep func(Row) bool) []Row {
	var out []Row
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
