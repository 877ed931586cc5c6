package allowance_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
)

func won(v int64) generic.Amount { return generic.Won(v) }

func assertWon(t *testing.T, want int64, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(won(want)), "want %d, got %s %v", want, got, msgAndArgs)
}

func defaultEngine() *allowance.Engine {
	return allowance.NewEngine(allowance.DefaultPolicy())
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestCompute_MainGeneralTwoSessions(t *testing.T) {
	// GIVEN: Main role, 2 sessions, GENERAL, no flags
	b := defaultEngine().Compute(allowance.SessionFacts{
		Role: allowance.RoleMain, Category: allowance.CategoryGeneral, Sessions: 2, HasAssistant: true,
	})

	// THEN: Base fee 2 × 40,000 and nothing else
	assertWon(t, 80000, b.BaseFee)
	assertWon(t, 0, b.AllowancesTotal)
	assertWon(t, 80000, b.GrossTotal)
	assert.Equal(t, "2 sessions × 40,000 won (main/GENERAL)", b.Formula)
}

func TestCompute_AssistantRemoteIsland(t *testing.T) {
	b := defaultEngine().Compute(allowance.SessionFacts{
		Role: allowance.RoleAssistant, Sessions: 3, RemoteIsland: true,
	})

	assertWon(t, 90000, b.BaseFee)
	assertWon(t, 15000, b.RemoteIsland)
	assertWon(t, 105000, b.GrossTotal)
}

func TestCompute_UnderstaffedMainOnly(t *testing.T) {
	facts := allowance.SessionFacts{Role: allowance.RoleMain, Sessions: 15, StudentCount: 20, HasAssistant: false}

	b := defaultEngine().Compute(facts)
	assertWon(t, 600000, b.BaseFee)
	assertWon(t, 75000, b.Understaffed)
	assertWon(t, 675000, b.GrossTotal)

	// Assistant never earns it
	facts.Role = allowance.RoleAssistant
	assertWon(t, 0, defaultEngine().Compute(facts).Understaffed)

	// An assistant on the training removes it
	facts.Role = allowance.RoleMain
	facts.HasAssistant = true
	assertWon(t, 0, defaultEngine().Compute(facts).Understaffed)

	// Below the student threshold
	facts.HasAssistant = false
	facts.StudentCount = 14
	assertWon(t, 0, defaultEngine().Compute(facts).Understaffed)
}

// =============================================================================
// INDIVIDUAL RULES
// =============================================================================

func TestCompute_UnknownCategoryFallsBackToGeneral(t *testing.T) {
	p := allowance.DefaultPolicy()
	p.BaseRates[allowance.RoleMain]["SPECIAL_SCHOOL"] = won(50000)
	e := allowance.NewEngine(p)

	b := e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, Category: "SPECIAL_SCHOOL", Sessions: 1, HasAssistant: true})
	assertWon(t, 50000, b.BaseFee)
	assert.Equal(t, allowance.Category("SPECIAL_SCHOOL"), b.Category)

	b = e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, Category: "UNMAPPED", Sessions: 1, HasAssistant: true})
	assertWon(t, 40000, b.BaseFee)
	assert.Equal(t, allowance.CategoryGeneral, b.Category)
}

func TestCompute_SpecialEducationAndSchoolLevels(t *testing.T) {
	e := defaultEngine()

	b := e.Compute(allowance.SessionFacts{Role: allowance.RoleAssistant, Sessions: 2, SpecialEducation: true, SchoolLevel: allowance.SchoolLevelMiddle})
	assertWon(t, 20000, b.SpecialEducation)
	assertWon(t, 10000, b.MiddleSchool)
	assertWon(t, 0, b.HighSchool)

	b = e.Compute(allowance.SessionFacts{Role: allowance.RoleAssistant, Sessions: 2, SchoolLevel: allowance.SchoolLevelHigh})
	assertWon(t, 20000, b.HighSchool)
	assertWon(t, 0, b.MiddleSchool)
}

func TestCompute_WeekendSuppressedByEvent(t *testing.T) {
	e := defaultEngine()
	facts := allowance.SessionFacts{Role: allowance.RoleAssistant, Sessions: 4, WeekendSessions: 4}

	assertWon(t, 20000, e.Compute(facts).Weekend)

	// GIVEN: The same session flagged as event participation
	facts.EventParticipation = true
	facts.EventHours = generic.Hours(2)

	// THEN: Weekend pays nothing and the event pays per hour
	b := e.Compute(facts)
	assertWon(t, 0, b.Weekend)
	assertWon(t, 50000, b.EventParticipation)
}

func TestCompute_EquipmentTransportUncappedPerRecord(t *testing.T) {
	b := defaultEngine().Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, EquipmentTransportDays: 20})
	assertWon(t, 400000, b.EquipmentTransport, "the monthly cap belongs to the month fold")
}

func TestCompute_MentoringModes(t *testing.T) {
	e := defaultEngine()

	// Session mode wins when both are reported
	b := e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, MentoringSessions: 2, MentoringHours: generic.Hours(5)})
	assert.Equal(t, allowance.MentoringSession, b.MentoringMode)
	assertWon(t, 20000, b.Mentoring)

	// Hour mode caps hours before pricing
	b = e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, MentoringHours: generic.Hours(5)})
	assert.Equal(t, allowance.MentoringHour, b.MentoringMode)
	assertWon(t, 120000, b.Mentoring)
	assert.True(t, b.MentoringHours.Equal(generic.Hours(3)))

	b = e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, MentoringHours: generic.Hours(1.5)})
	assertWon(t, 60000, b.Mentoring)
}

func TestCompute_GrossIsBasePlusItems(t *testing.T) {
	b := defaultEngine().Compute(allowance.SessionFacts{
		Role: allowance.RoleMain, Sessions: 3, RemoteIsland: true, SpecialEducation: true,
		StudentCount: 30, WeekendSessions: 3, SchoolLevel: allowance.SchoolLevelHigh,
		EquipmentTransportDays: 1, MentoringSessions: 1,
	})

	sum := won(0)
	for item, v := range b.Items() {
		if item != allowance.ItemBaseFee {
			sum = sum.Add(v)
		}
	}
	assert.True(t, sum.Equal(b.AllowancesTotal))
	assert.True(t, b.GrossTotal.Equal(b.BaseFee.Add(b.AllowancesTotal)))
	// 120,000 + 15,000 + 30,000 + 15,000 + 15,000 + 30,000 + 20,000 + 10,000
	assertWon(t, 255000, b.GrossTotal)
}

// =============================================================================
// CAPS
// =============================================================================

func TestCap_TruncatesAndDiscards(t *testing.T) {
	c := allowance.NewCap(won(300000))

	granted := won(0)
	for day := 0; day < 20; day++ {
		granted = granted.Add(c.Take(won(20000)))
	}

	assertWon(t, 300000, granted)
	assertWon(t, 0, c.Remaining())

	partial := allowance.NewCap(won(50000))
	assertWon(t, 40000, partial.Take(won(40000)))
	assertWon(t, 10000, partial.Take(won(40000)), "request over the remaining cap is truncated")
	assertWon(t, 0, partial.Take(won(40000)))
}

func TestApplyMentoringHourCap_AcrossTrainings(t *testing.T) {
	// GIVEN: Two hour-mode mentoring records of 2 hours on the same day
	e := defaultEngine()
	first := e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, MentoringHours: generic.Hours(2)})
	second := e.Compute(allowance.SessionFacts{Role: allowance.RoleMain, HasAssistant: true, MentoringHours: generic.Hours(2)})

	// WHEN: Applying one daily cap in visit order
	daily := e.MentoringHourCap()
	first = e.ApplyMentoringHourCap(first, daily)
	second = e.ApplyMentoringHourCap(second, daily)

	// THEN: 3 hours in total are paid
	assertWon(t, 80000, first.Mentoring)
	assertWon(t, 40000, second.Mentoring)
	assertWon(t, 120000, first.Mentoring.Add(second.Mentoring))
	assertWon(t, 40000, second.GrossTotal)
}

// =============================================================================
// POLICY
// =============================================================================

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, allowance.DefaultPolicy().Validate())

	p := allowance.DefaultPolicy()
	delete(p.BaseRates[allowance.RoleAssistant], allowance.CategoryGeneral)
	assert.True(t, errors.Is(p.Validate(), generic.ErrInvalidPolicy))

	p = allowance.DefaultPolicy()
	p.WeekendPerSession = won(-1)
	assert.True(t, errors.Is(p.Validate(), generic.ErrInvalidPolicy))
}
