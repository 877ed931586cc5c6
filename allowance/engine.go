package allowance

import (
	"fmt"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// SESSION FACTS - Input of one computation
// =============================================================================

// SessionFacts describes one instructor's work in one training (and role)
// on one day.
type SessionFacts struct {
	Role             Role
	Category         Category
	Sessions         int
	RemoteIsland     bool
	SpecialEducation bool
	StudentCount     int
	HasAssistant     bool
	WeekendSessions  int

	EventParticipation bool
	EventHours         generic.Amount // hours

	SchoolLevel SchoolLevel

	EquipmentTransportDays int

	MentoringSessions int
	MentoringHours    generic.Amount // hours
}

// InEvent reports whether event participation applies. Reported hours
// imply participation.
func (f SessionFacts) InEvent() bool {
	return f.EventParticipation || f.EventHours.IsPositive()
}

// =============================================================================
// BREAKDOWN - Output of one computation
// =============================================================================

type Item string

const (
	ItemBaseFee            Item = "base_fee"
	ItemRemoteIsland       Item = "remote_island"
	ItemSpecialEducation   Item = "special_education"
	ItemUnderstaffed       Item = "understaffed"
	ItemWeekend            Item = "weekend"
	ItemMiddleSchool       Item = "middle_school"
	ItemHighSchool         Item = "high_school"
	ItemEquipmentTransport Item = "equipment_transport"
	ItemEventParticipation Item = "event_participation"
	ItemMentoring          Item = "mentoring"
)

// AllowanceItems lists every allowance item (everything but the base fee)
// in display order.
var AllowanceItems = []Item{
	ItemRemoteIsland, ItemSpecialEducation, ItemUnderstaffed, ItemWeekend,
	ItemMiddleSchool, ItemHighSchool, ItemEquipmentTransport,
	ItemEventParticipation, ItemMentoring,
}

type MentoringMode string

const (
	MentoringNone    MentoringMode = ""
	MentoringSession MentoringMode = "session"
	MentoringHour    MentoringMode = "hour"
)

// Breakdown is the itemized pay of one SessionFacts.
type Breakdown struct {
	Role     Role
	Category Category
	Rate     generic.Amount
	Formula  string

	BaseFee            generic.Amount
	RemoteIsland       generic.Amount
	SpecialEducation   generic.Amount
	Understaffed       generic.Amount
	Weekend            generic.Amount
	MiddleSchool       generic.Amount
	HighSchool         generic.Amount
	EquipmentTransport generic.Amount
	EventParticipation generic.Amount
	Mentoring          generic.Amount
	MentoringMode      MentoringMode
	MentoringHours     generic.Amount // hours paid in hour mode, after caps

	AllowancesTotal generic.Amount
	GrossTotal      generic.Amount
}

// ZeroBreakdown returns a breakdown with every amount at 0 won.
func ZeroBreakdown(role Role, category Category) Breakdown {
	z := generic.Won(0)
	return Breakdown{
		Role: role, Category: category, Rate: z,
		BaseFee: z, RemoteIsland: z, SpecialEducation: z, Understaffed: z,
		Weekend: z, MiddleSchool: z, HighSchool: z, EquipmentTransport: z,
		EventParticipation: z, Mentoring: z, MentoringHours: generic.Hours(0),
		AllowancesTotal: z, GrossTotal: z,
	}
}

// Items returns every itemized amount keyed by item.
func (b Breakdown) Items() map[Item]generic.Amount {
	return map[Item]generic.Amount{
		ItemBaseFee:            b.BaseFee,
		ItemRemoteIsland:       b.RemoteIsland,
		ItemSpecialEducation:   b.SpecialEducation,
		ItemUnderstaffed:       b.Understaffed,
		ItemWeekend:            b.Weekend,
		ItemMiddleSchool:       b.MiddleSchool,
		ItemHighSchool:         b.HighSchool,
		ItemEquipmentTransport: b.EquipmentTransport,
		ItemEventParticipation: b.EventParticipation,
		ItemMentoring:          b.Mentoring,
	}
}

// Retotal recomputes AllowancesTotal and GrossTotal from the items.
// Callers that adjust an item after Compute (caps) must call it.
func (b Breakdown) Retotal() Breakdown {
	b.AllowancesTotal = generic.SumAmounts(generic.UnitWon,
		b.RemoteIsland, b.SpecialEducation, b.Understaffed, b.Weekend,
		b.MiddleSchool, b.HighSchool, b.EquipmentTransport,
		b.EventParticipation, b.Mentoring,
	)
	b.GrossTotal = b.BaseFee.Add(b.AllowancesTotal)
	return b
}

// Add sums two breakdowns item by item. Role, category, rate and formula
// are kept from b.
func (b Breakdown) Add(o Breakdown) Breakdown {
	b.BaseFee = b.BaseFee.Add(o.BaseFee)
	b.RemoteIsland = b.RemoteIsland.Add(o.RemoteIsland)
	b.SpecialEducation = b.SpecialEducation.Add(o.SpecialEducation)
	b.Understaffed = b.Understaffed.Add(o.Understaffed)
	b.Weekend = b.Weekend.Add(o.Weekend)
	b.MiddleSchool = b.MiddleSchool.Add(o.MiddleSchool)
	b.HighSchool = b.HighSchool.Add(o.HighSchool)
	b.EquipmentTransport = b.EquipmentTransport.Add(o.EquipmentTransport)
	b.EventParticipation = b.EventParticipation.Add(o.EventParticipation)
	b.Mentoring = b.Mentoring.Add(o.Mentoring)
	b.MentoringHours = b.MentoringHours.Add(o.MentoringHours)
	if b.MentoringMode == MentoringNone {
		b.MentoringMode = o.MentoringMode
	}
	return b.Retotal()
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates allowance rules against one policy snapshot.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Compute evaluates every rule. It has no side effects.
func (e *Engine) Compute(f SessionFacts) Breakdown {
	p := e.policy
	rate, category := p.Rate(f.Role, f.Category)
	b := ZeroBreakdown(f.Role, category)
	b.Rate = rate
	b.Formula = fmt.Sprintf("%d sessions × %s won (%s/%s)", f.Sessions, rate.Formatted(), f.Role, category)

	n := f.Sessions
	if n < 0 {
		n = 0
	}
	b.BaseFee = rate.MulInt(n)

	if f.RemoteIsland {
		b.RemoteIsland = p.RemoteIslandPerSession.MulInt(n)
	}
	if f.SpecialEducation {
		b.SpecialEducation = p.SpecialEducationPerSession.MulInt(n)
	}
	if f.Role == RoleMain && !f.HasAssistant && f.StudentCount >= p.UnderstaffedMinStudents {
		b.Understaffed = p.UnderstaffedPerSession.MulInt(n)
	}
	if !f.InEvent() && f.WeekendSessions > 0 {
		b.Weekend = p.WeekendPerSession.MulInt(f.WeekendSessions)
	}
	switch f.SchoolLevel {
	case SchoolLevelMiddle:
		b.MiddleSchool = p.MiddleSchoolPerSession.MulInt(n)
	case SchoolLevelHigh:
		b.HighSchool = p.HighSchoolPerSession.MulInt(n)
	}
	if f.EquipmentTransportDays > 0 {
		b.EquipmentTransport = p.EquipmentTransportPerDay.MulInt(f.EquipmentTransportDays)
	}
	if f.EventHours.IsPositive() {
		b.EventParticipation = p.EventParticipationPerHour.Mul(f.EventHours.Value).Round()
	}

	switch {
	case f.MentoringSessions > 0:
		b.MentoringMode = MentoringSession
		b.Mentoring = p.MentoringPerSession.MulInt(f.MentoringSessions)
	case f.MentoringHours.IsPositive():
		b.MentoringMode = MentoringHour
		hours := f.MentoringHours.Min(p.MentoringDailyHourCap)
		b.MentoringHours = hours
		b.Mentoring = e.MentoringForHours(hours)
	}

	return b.Retotal()
}

// MentoringForHours prices hour-mode mentoring.
func (e *Engine) MentoringForHours(hours generic.Amount) generic.Amount {
	return e.policy.MentoringPerHour.Mul(hours.Value).Round()
}

// ApplyMentoringHourCap replaces the hour-mode mentoring of b with the
// hours granted by limit. Session-mode breakdowns are returned unchanged.
func (e *Engine) ApplyMentoringHourCap(b Breakdown, limit *Cap) Breakdown {
	if b.MentoringMode != MentoringHour {
		return b
	}
	granted := limit.Take(b.MentoringHours)
	b.MentoringHours = granted
	b.Mentoring = e.MentoringForHours(granted)
	return b.Retotal()
}

// EquipmentCap returns a fresh monthly equipment-transport cap.
func (e *Engine) EquipmentCap() *Cap { return NewCap(e.policy.EquipmentTransportMonthlyCap) }

// MentoringHourCap returns a fresh daily mentoring-hours cap.
func (e *Engine) MentoringHourCap() *Cap { return NewCap(e.policy.MentoringDailyHourCap) }

