/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts stored JSON policy definitions into allowance.Policy,
  travel.BracketTable and eligibility.CountingMode values, and back. This
  lets operators change rates without a deploy: the admin UI writes JSON,
  the factory validates it, and the engine only ever sees typed policies.

JSON SCHEMAS:
  Allowance policy (amounts in won, hours as decimals):
  {
    "base_rates": {
      "main":      {"GENERAL": 40000},
      "assistant": {"GENERAL": 30000}
    },
    "remote_island_per_session": 5000,
    "special_education_per_session": 10000,
    "understaffed_per_session": 5000,
    "understaffed_min_students": 15,
    "weekend_per_session": 5000,
    "middle_school_per_session": 5000,
    "high_school_per_session": 10000,
    "equipment_transport_per_day": 20000,
    "equipment_transport_monthly_cap": 300000,
    "event_participation_per_hour": 25000,
    "mentoring_per_session": 10000,
    "mentoring_per_hour": 40000,
    "mentoring_daily_hour_cap": 3
  }

  Travel-expense policy (max_km null = open-ended):
  {
    "brackets": [
      {"min_km": 0,   "max_km": 20,   "amount": 0},
      {"min_km": 20,  "max_km": 50,   "amount": 20000},
      {"min_km": 50,  "max_km": 100,  "amount": 40000},
      {"min_km": 100, "max_km": null, "amount": 60000}
    ]
  }

  Counting mode:
  {"mode": "ONLY_CONFIRMED_ENDED"}

KEY FEATURES:
  - Omitted allowance fields keep their default value
  - Every parse validates; invalid input returns a *generic.PolicyError
  - To*JSON round-trips a typed policy for display and storage

USAGE:
  f := factory.NewPolicyFactory()
  p, err := f.ParseAllowancePolicy(raw)
  if err != nil {
      // errors.Is(err, generic.ErrInvalidPolicy)
  }

SEE ALSO:
  - allowance/policy.go: Allowance policy type
  - travel/bracket.go: Bracket table type
  - policy/store.go: Versioned storage of these payloads
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/eligibility"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// AllowancePolicyJSON is the JSON representation of an allowance policy.
// Pointer fields distinguish "omitted" from an explicit 0.
type AllowancePolicyJSON struct {
	BaseRates map[string]map[string]int64 `json:"base_rates,omitempty"`

	RemoteIslandPerSession     *int64 `json:"remote_island_per_session,omitempty"`
	SpecialEducationPerSession *int64 `json:"special_education_per_session,omitempty"`
	UnderstaffedPerSession     *int64 `json:"understaffed_per_session,omitempty"`
	UnderstaffedMinStudents    *int   `json:"understaffed_min_students,omitempty"`
	WeekendPerSession          *int64 `json:"weekend_per_session,omitempty"`
	MiddleSchoolPerSession     *int64 `json:"middle_school_per_session,omitempty"`
	HighSchoolPerSession       *int64 `json:"high_school_per_session,omitempty"`

	EquipmentTransportPerDay     *int64 `json:"equipment_transport_per_day,omitempty"`
	EquipmentTransportMonthlyCap *int64 `json:"equipment_transport_monthly_cap,omitempty"`

	EventParticipationPerHour *int64 `json:"event_participation_per_hour,omitempty"`

	MentoringPerSession   *int64   `json:"mentoring_per_session,omitempty"`
	MentoringPerHour      *int64   `json:"mentoring_per_hour,omitempty"`
	MentoringDailyHourCap *float64 `json:"mentoring_daily_hour_cap,omitempty"`
}

// CountingModeJSON is the JSON representation of the counting mode.
type CountingModeJSON struct {
	Mode string `json:"mode"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

func decodeStrict(raw []byte, key string, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &generic.PolicyError{Key: key, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

// ParseAllowancePolicy parses and validates an allowance policy. Omitted
// fields take their default value.
func (f *PolicyFactory) ParseAllowancePolicy(raw []byte) (allowance.Policy, error) {
	var pj AllowancePolicyJSON
	if err := decodeStrict(raw, allowance.PolicyKey, &pj); err != nil {
		return allowance.Policy{}, err
	}
	return f.AllowanceFromJSON(pj)
}

// AllowanceFromJSON layers pj over the default policy and validates.
func (f *PolicyFactory) AllowanceFromJSON(pj AllowancePolicyJSON) (allowance.Policy, error) {
	p := allowance.DefaultPolicy()

	if pj.BaseRates != nil {
		rates := make(map[allowance.Role]map[allowance.Category]generic.Amount, len(pj.BaseRates))
		for role, table := range pj.BaseRates {
			r := allowance.Role(role)
			if !r.Valid() {
				return allowance.Policy{}, &generic.PolicyError{Key: allowance.PolicyKey, Reason: fmt.Sprintf("unknown role %q", role)}
			}
			rates[r] = make(map[allowance.Category]generic.Amount, len(table))
			for cat, v := range table {
				rates[r][allowance.Category(cat)] = generic.Won(v)
			}
		}
		p.BaseRates = rates
	}

	setWon := func(dst *generic.Amount, v *int64) {
		if v != nil {
			*dst = generic.Won(*v)
		}
	}
	setWon(&p.RemoteIslandPerSession, pj.RemoteIslandPerSession)
	setWon(&p.SpecialEducationPerSession, pj.SpecialEducationPerSession)
	setWon(&p.UnderstaffedPerSession, pj.UnderstaffedPerSession)
	setWon(&p.WeekendPerSession, pj.WeekendPerSession)
	setWon(&p.MiddleSchoolPerSession, pj.MiddleSchoolPerSession)
	setWon(&p.HighSchoolPerSession, pj.HighSchoolPerSession)
	setWon(&p.EquipmentTransportPerDay, pj.EquipmentTransportPerDay)
	setWon(&p.EquipmentTransportMonthlyCap, pj.EquipmentTransportMonthlyCap)
	setWon(&p.EventParticipationPerHour, pj.EventParticipationPerHour)
	setWon(&p.MentoringPerSession, pj.MentoringPerSession)
	setWon(&p.MentoringPerHour, pj.MentoringPerHour)
	if pj.UnderstaffedMinStudents != nil {
		p.UnderstaffedMinStudents = *pj.UnderstaffedMinStudents
	}
	if pj.MentoringDailyHourCap != nil {
		p.MentoringDailyHourCap = generic.Hours(*pj.MentoringDailyHourCap)
	}

	if err := p.Validate(); err != nil {
		return allowance.Policy{}, err
	}
	return p, nil
}

// ToAllowanceJSON converts a policy to its fully populated JSON form.
func (f *PolicyFactory) ToAllowanceJSON(p allowance.Policy) AllowancePolicyJSON {
	i64 := func(a generic.Amount) *int64 { v := a.Int64(); return &v }
	rates := make(map[string]map[string]int64, len(p.BaseRates))
	for role, table := range p.BaseRates {
		rates[string(role)] = make(map[string]int64, len(table))
		for cat, v := range table {
			rates[string(role)][string(cat)] = v.Int64()
		}
	}
	minStudents := p.UnderstaffedMinStudents
	hourCap := p.MentoringDailyHourCap.Float64()
	return AllowancePolicyJSON{
		BaseRates:                    rates,
		RemoteIslandPerSession:       i64(p.RemoteIslandPerSession),
		SpecialEducationPerSession:   i64(p.SpecialEducationPerSession),
		UnderstaffedPerSession:       i64(p.UnderstaffedPerSession),
		UnderstaffedMinStudents:      &minStudents,
		WeekendPerSession:            i64(p.WeekendPerSession),
		MiddleSchoolPerSession:       i64(p.MiddleSchoolPerSession),
		HighSchoolPerSession:         i64(p.HighSchoolPerSession),
		EquipmentTransportPerDay:     i64(p.EquipmentTransportPerDay),
		EquipmentTransportMonthlyCap: i64(p.EquipmentTransportMonthlyCap),
		EventParticipationPerHour:    i64(p.EventParticipationPerHour),
		MentoringPerSession:          i64(p.MentoringPerSession),
		MentoringPerHour:             i64(p.MentoringPerHour),
		MentoringDailyHourCap:        &hourCap,
	}
}

// ParseCountingMode parses {"mode": "..."}.
func (f *PolicyFactory) ParseCountingMode(raw []byte) (eligibility.CountingMode, error) {
	var cj CountingModeJSON
	if err := decodeStrict(raw, eligibility.PolicyKey, &cj); err != nil {
		return "", err
	}
	return eligibility.ParseMode(cj.Mode)
}

func (f *PolicyFactory) ToCountingModeJSON(mode eligibility.CountingMode) CountingModeJSON {
	return CountingModeJSON{Mode: string(mode)}
}
