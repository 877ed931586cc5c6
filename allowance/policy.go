/*
Package allowance computes per-training pay from session facts.

PURPOSE:
  An instructor's pay for one training on one day is a base fee plus a set
  of independent, additive allowances. Every rate comes from a Policy
  snapshot; nothing in this package hard-codes an amount at a call site.

KEY CONCEPTS:
  - Policy: Rate tables (base rate by role × category, per-session and
    per-hour allowance rates, caps)
  - SessionFacts: What happened (role, sessions, flags, hours)
  - Engine: Pure SessionFacts → Breakdown
  - Breakdown: Itemized amounts, allowances total and gross total
  - Cap: Accumulator that grants up to a limit and discards the excess

RULES (all additive):
   1. Base fee       sessions × rate(role, category), GENERAL fallback
   2. Remote/island  per session
   3. Special ed     per session
   4. Understaffed   per session, main only, students ≥ threshold, no assistant
   5. Weekend        per weekend session, 0 when event participation is flagged
   6. Middle school  per session
   7. High school    per session
   8. Equipment      per transport day (monthly cap applied by the caller)
   9. Event          per hour
  10. Mentoring      per session, or per hour with hours capped

SEE ALSO:
  - engine.go: Rule evaluation
  - cap.go: Cap accumulator (monthly equipment, daily mentoring hours)
  - factory/policy.go: JSON form of Policy
*/
package allowance

import (
	"fmt"

	"github.com/warp/settlement-engine/generic"
)

// PolicyKey names the allowance policy in errors and storage.
const PolicyKey = "allowance"

// =============================================================================
// ROLES, CATEGORIES, SCHOOL LEVELS
// =============================================================================

type Role string

const (
	RoleMain      Role = "main"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleMain || r == RoleAssistant }

// Category is the institution category used to select a base rate.
type Category string

// CategoryGeneral is the fallback tier every rate table must define.
const CategoryGeneral Category = "GENERAL"

type SchoolLevel string

const (
	SchoolLevelNone       SchoolLevel = ""
	SchoolLevelElementary SchoolLevel = "elementary"
	SchoolLevelMiddle     SchoolLevel = "middle"
	SchoolLevelHigh       SchoolLevel = "high"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy is an immutable snapshot of every allowance rate.
type Policy struct {
	BaseRates map[Role]map[Category]generic.Amount

	RemoteIslandPerSession     generic.Amount
	SpecialEducationPerSession generic.Amount

	UnderstaffedPerSession  generic.Amount
	UnderstaffedMinStudents int

	WeekendPerSession generic.Amount

	MiddleSchoolPerSession generic.Amount
	HighSchoolPerSession   generic.Amount

	EquipmentTransportPerDay     generic.Amount
	EquipmentTransportMonthlyCap generic.Amount

	EventParticipationPerHour generic.Amount

	MentoringPerSession   generic.Amount
	MentoringPerHour      generic.Amount
	MentoringDailyHourCap generic.Amount // hours
}

// DefaultPolicy is the compiled-in rate set.
func DefaultPolicy() Policy {
	return Policy{
		BaseRates: map[Role]map[Category]generic.Amount{
			RoleMain:      {CategoryGeneral: generic.Won(40000)},
			RoleAssistant: {CategoryGeneral: generic.Won(30000)},
		},
		RemoteIslandPerSession:       generic.Won(5000),
		SpecialEducationPerSession:   generic.Won(10000),
		UnderstaffedPerSession:       generic.Won(5000),
		UnderstaffedMinStudents:      15,
		WeekendPerSession:            generic.Won(5000),
		MiddleSchoolPerSession:       generic.Won(5000),
		HighSchoolPerSession:         generic.Won(10000),
		EquipmentTransportPerDay:     generic.Won(20000),
		EquipmentTransportMonthlyCap: generic.Won(300000),
		EventParticipationPerHour:    generic.Won(25000),
		MentoringPerSession:          generic.Won(10000),
		MentoringPerHour:             generic.Won(40000),
		MentoringDailyHourCap:        generic.Hours(3),
	}
}

// Rate returns the per-session base rate for role and category, falling
// back to the GENERAL tier. The category actually used is returned.
func (p Policy) Rate(role Role, category Category) (generic.Amount, Category) {
	table := p.BaseRates[role]
	if rate, ok := table[category]; ok && category != "" {
		return rate, category
	}
	if rate, ok := table[CategoryGeneral]; ok {
		return rate, CategoryGeneral
	}
	return generic.Won(0), CategoryGeneral
}

// Validate checks that both roles define a GENERAL tier and that no rate or
// cap is negative.
func (p Policy) Validate() error {
	for _, role := range []Role{RoleMain, RoleAssistant} {
		table, ok := p.BaseRates[role]
		if !ok {
			return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("no base rates for role %s", role)}
		}
		if _, ok := table[CategoryGeneral]; !ok {
			return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("role %s has no GENERAL rate", role)}
		}
		for cat, rate := range table {
			if rate.IsNegative() {
				return &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("negative base rate for %s/%s", role, cat)}
			}
		}
	}
	named := map[string]generic.Amount{
		"remote_island_per_session":       p.RemoteIslandPerSession,
		"special_education_per_session":   p.SpecialEducationPerSession,
		"understaffed_per_session":        p.UnderstaffedPerSession,
		"weekend_per_session":             p.WeekendPerSession,
		"middle_school_per_session":       p.MiddleSchoolPerSession,
		"high_school_per_session":         p.HighSchoolPerSession,
		"equipment_transport_per_day":     p.EquipmentTransportPerDay,
		"equipment_transport_monthly_cap": p.EquipmentTransportMonthlyCap,
		"event_participation_per_hour":    p.EventParticipationPerHour,
		"mentoring_per_session":           p.MentoringPerSession,
		"mentoring_per_hour":              p.MentoringPerHour,
		"mentoring_daily_hour_cap":        p.MentoringDailyHourCap,
	}
	for name, v := range named {
		if v.IsNegative() {
			return &generic.PolicyError{Key: PolicyKey, Reason: name + " must not be negative"}
		}
	}
	if p.UnderstaffedMinStudents < 0 {
		return &generic.PolicyError{Key: PolicyKey, Reason: "understaffed_min_students must not be negative"}
	}
	return nil
}
