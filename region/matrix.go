package region

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// DISTANCE MATRIX - Symmetric (Code, Code) → km
// =============================================================================

// RoadFactor converts great-circle distance into an approximate road distance.
var RoadFactor = decimal.RequireFromString("1.3")

type pair struct{ a, b Code }

// DistanceMatrix is a pairwise distance table. Pairs are stored as written
// and looked up in both directions, so a table populated one way is still
// symmetric to callers.
type DistanceMatrix struct {
	km map[pair]decimal.Decimal
}

// Entry is one stored pair, used for persistence and listing.
type Entry struct {
	From Code
	To   Code
	Km   generic.Amount
}

func NewDistanceMatrix() *DistanceMatrix {
	return &DistanceMatrix{km: make(map[pair]decimal.Decimal)}
}

// Set stores the distance for (a, b). Negative distances are clamped to 0.
func (m *DistanceMatrix) Set(a, b Code, km generic.Amount) {
	v := km.Value
	if v.IsNegative() {
		v = decimal.Zero
	}
	m.km[pair{a, b}] = v
}

// Distance returns the km between a and b. Same code is always 0 km and
// found. A pair absent in both directions returns 0 km and false.
func (m *DistanceMatrix) Distance(a, b Code) (generic.Amount, bool) {
	if a == b {
		return generic.Km(0), true
	}
	if v, ok := m.km[pair{a, b}]; ok {
		return generic.Amount{Value: v, Unit: generic.UnitKm}, true
	}
	if v, ok := m.km[pair{b, a}]; ok {
		return generic.Amount{Value: v, Unit: generic.UnitKm}, true
	}
	return generic.Km(0), false
}

// Overlay returns a new matrix with other's entries layered over m's.
func (m *DistanceMatrix) Overlay(other *DistanceMatrix) *DistanceMatrix {
	out := NewDistanceMatrix()
	for k, v := range m.km {
		out.km[k] = v
	}
	if other != nil {
		for k, v := range other.km {
			delete(out.km, pair{k.b, k.a})
			out.km[k] = v
		}
	}
	return out
}

func (m *DistanceMatrix) Len() int { return len(m.km) }

// Entries lists stored pairs in a stable order.
func (m *DistanceMatrix) Entries() []Entry {
	out := make([]Entry, 0, len(m.km))
	for k, v := range m.km {
		out = append(out, Entry{From: k.a, To: k.b, Km: generic.Amount{Value: v, Unit: generic.UnitKm}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// DefaultMatrix builds the full table from city-hall coordinates:
// great-circle distance × RoadFactor, rounded to whole km.
// Call once at startup and inject the result.
func DefaultMatrix() *DistanceMatrix {
	m := NewDistanceMatrix()
	all := All()
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			km := decimal.NewFromFloat(HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)).Mul(RoadFactor).Round(0)
			m.Set(a.Code, b.Code, generic.Amount{Value: km, Unit: generic.UnitKm})
		}
	}
	return m
}

// =============================================================================
// HAVERSINE
// =============================================================================

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
