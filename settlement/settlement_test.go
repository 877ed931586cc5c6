package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/eligibility"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/generic/store"
	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/statement"
)

// =============================================================================
// FIXTURES
// =============================================================================

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func won(v int64) generic.Amount { return generic.Won(v) }

func assertWon(t *testing.T, want int64, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.Round().Int64(), msgAndArgs...)
}

func newDirectory() *settlement.StaticDirectory {
	d := settlement.NewStaticDirectory()
	d.AddInstructor(settlement.Instructor{ID: "I1", Name: "Kim", Home: region.Region{CityCounty: "수원시"}})
	d.AddInstructor(settlement.Instructor{ID: "I2", Name: "Lee", Home: region.Region{CityCounty: "수원"}})
	for _, inst := range []settlement.Institution{
		{ID: "S-SUWON", Name: "Suwon Elementary", Category: allowance.CategoryGeneral, Region: region.Region{CityCounty: "수원시"}},
		{ID: "S-PYEONGTAEK", Name: "Pyeongtaek Middle", Category: allowance.CategoryGeneral, Region: region.Region{CityCounty: "평택시"}},
		{ID: "S-OSAN", Name: "Osan Elementary", Category: allowance.CategoryGeneral, Region: region.Region{CityCounty: "오산시"}},
		{ID: "S-HWASEONG", Name: "Hwaseong High", Category: allowance.CategoryGeneral, Region: region.Region{CityCounty: "경기도 화성시 봉담읍"}},
	} {
		d.AddInstitution(inst)
	}
	return d
}

func testMatrix() *region.DistanceMatrix {
	m := region.NewDistanceMatrix()
	m.Set(region.Suwon, region.Pyeongtaek, generic.Km(32.5))
	m.Set(region.Suwon, region.Osan, generic.Km(15))
	m.Set(region.Osan, region.Hwaseong, generic.Km(20))
	m.Set(region.Hwaseong, region.Suwon, generic.Km(30))
	return m
}

type fixture struct {
	dir      *settlement.StaticDirectory
	kv       *store.Memory
	policies *policy.Store
	svc      *settlement.Service
}

func newFixture(t *testing.T, trainings ...settlement.Training) *fixture {
	t.Helper()
	f := &fixture{dir: newDirectory(), kv: store.NewMemory()}
	for _, tr := range trainings {
		f.dir.AddTraining(tr)
	}
	f.policies = policy.NewStore(f.kv, nil, nil)
	f.svc = settlement.NewService(settlement.Deps{
		Policies:     f.policies,
		Distances:    region.NewMatrixProvider(testMatrix()),
		Instructors:  f.dir,
		Institutions: f.dir,
		Source:       f.dir,
		Overrides:    settlement.NewOverrideStore(f.kv, nil),
		Debounce:     10 * time.Millisecond,
	})
	return f
}

func (f *fixture) recompute(t *testing.T) *settlement.Snapshot {
	t.Helper()
	snap, err := f.svc.Recompute(context.Background())
	require.NoError(t, err)
	return snap
}

func mainAssignment(instructor, day, start string, sessions int) settlement.Assignment {
	return settlement.Assignment{InstructorID: instructor, Role: allowance.RoleMain, Date: date(day), Start: start, Sessions: sessions}
}

func training(id, institution, status string, assignments ...settlement.Assignment) settlement.Training {
	return settlement.Training{ID: id, Name: "Training " + id, InstitutionID: institution, Status: status, Assignments: assignments}
}

func onlyDay(t *testing.T, snap *settlement.Snapshot, instructorID string) settlement.DailyPayment {
	t.Helper()
	for _, s := range snap.Settlements {
		if s.InstructorID == instructorID {
			days := s.AllDays()
			require.Len(t, days, 1)
			return days[0]
		}
	}
	t.Fatalf("no settlement for %s", instructorID)
	return settlement.DailyPayment{}
}

func rowByID(t *testing.T, rows []settlement.Row, id string) settlement.Row {
	t.Helper()
	for _, r := range rows {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("row %s not found", id)
	return settlement.Row{}
}

// assertInvariants checks that every parent equals the sum of its children
// and eligible values never exceed totals.
func assertInvariants(t *testing.T, s settlement.InstructorSettlement) {
	t.Helper()
	assertTotals := func(want, got settlement.Totals, where string) {
		assert.Equal(t, want.Days, got.Days, where+" days")
		assert.Equal(t, want.Sessions, got.Sessions, where+" sessions")
		assert.True(t, want.TrainingPayment.Equal(got.TrainingPayment), where+" training payment")
		assert.True(t, want.TravelAllowance.Equal(got.TravelAllowance), where+" travel")
		assert.True(t, want.TotalPayment.Equal(got.TotalPayment), where+" total")
		assert.Equal(t, want.EligibleDays, got.EligibleDays, where+" eligible days")
		assert.Equal(t, want.EligibleSessions, got.EligibleSessions, where+" eligible sessions")
		assert.True(t, want.EligiblePayment.Equal(got.EligiblePayment), where+" eligible payment")
		assert.LessOrEqual(t, got.EligibleDays, got.Days)
		assert.LessOrEqual(t, got.EligibleSessions, got.Sessions)
		assert.False(t, got.EligiblePayment.GreaterThan(got.TotalPayment), where+" eligible payment exceeds total")
	}

	var instructorSum settlement.Totals
	instructorSum.TrainingPayment, instructorSum.TravelAllowance = won(0), won(0)
	instructorSum.TotalPayment, instructorSum.EligiblePayment = won(0), won(0)
	for _, y := range s.Years {
		require.NotEmpty(t, y.Months, "empty year %d", y.Year)
		yearSum := settlement.Totals{TrainingPayment: won(0), TravelAllowance: won(0), TotalPayment: won(0), EligiblePayment: won(0)}
		for _, m := range y.Months {
			require.NotEmpty(t, m.Days, "empty month %s", m.Month)
			monthSum := settlement.Totals{TrainingPayment: won(0), TravelAllowance: won(0), TotalPayment: won(0), EligiblePayment: won(0)}
			for _, d := range m.Days {
				require.NotEmpty(t, d.Trainings, "empty day %s", d.Date)
				monthSum = sum(monthSum, d.Totals)
			}
			assertTotals(monthSum, m.Totals, m.Month.String())
			yearSum = sum(yearSum, m.Totals)
		}
		assertTotals(yearSum, y.Totals, "year")
		instructorSum = sum(instructorSum, y.Totals)
	}
	assertTotals(instructorSum, s.Totals, "instructor")
}

func sum(a, b settlement.Totals) settlement.Totals {
	return settlement.Totals{
		Days:             a.Days + b.Days,
		Sessions:         a.Sessions + b.Sessions,
		TrainingPayment:  a.TrainingPayment.Add(b.TrainingPayment),
		TravelAllowance:  a.TravelAllowance.Add(b.TravelAllowance),
		TotalPayment:     a.TotalPayment.Add(b.TotalPayment),
		EligibleDays:     a.EligibleDays + b.EligibleDays,
		EligibleSessions: a.EligibleSessions + b.EligibleSessions,
		EligiblePayment:  a.EligiblePayment.Add(b.EligiblePayment),
	}
}

// =============================================================================
// DAY
// =============================================================================

func TestDay_SameRegionNoTravel(t *testing.T) {
	// GIVEN: One main-role training in the instructor's home city
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))

	// WHEN: Recomputing
	snap := f.recompute(t)

	// THEN: Base fee only, no travel allowance
	day := onlyDay(t, snap, "I1")
	assertWon(t, 80000, day.Totals.TrainingPayment)
	assertWon(t, 0, day.Totals.TravelAllowance)
	assertWon(t, 80000, day.Totals.TotalPayment)
	assert.Equal(t, "same-region, no allowance", day.Travel.Explanation)
	assert.True(t, snap.Diagnostics.Empty(), "%v", snap.Diagnostics.Warnings)
}

func TestDay_TravelBracketApplied(t *testing.T) {
	// GIVEN: The same training 32.5 km away (65 km round trip)
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assert.True(t, day.Route.DistanceKm.Equal(generic.Km(65)))
	assertWon(t, 40000, day.Totals.TravelAllowance)
	assertWon(t, 120000, day.Totals.TotalPayment)
	assert.Equal(t, "수원시 → 평택시 → 수원시", day.Route.Description)
}

func TestDay_OneTravelAllowanceForSeveralInstitutions(t *testing.T) {
	// GIVEN: Two trainings on one day, listed out of visiting order
	f := newFixture(t,
		training("T-H", "S-HWASEONG", "CONFIRMED", mainAssignment("I1", "2025-03-04", "13:00", 2)),
		training("T-O", "S-OSAN", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)),
	)

	snap := f.recompute(t)

	// THEN: The route follows start times and sums every leg
	day := onlyDay(t, snap, "I1")
	require.Len(t, day.Trainings, 2)
	assert.Equal(t, "T-O", day.Trainings[0].TrainingID)
	assert.Equal(t, "수원시 → 오산시 → 경기도 화성시 봉담읍 → 수원시", day.Route.Description)
	require.Len(t, day.Route.Legs, 3)
	assert.True(t, day.Route.DistanceKm.Equal(generic.Km(65)))

	// AND: Exactly one travel allowance for the day
	assertWon(t, 40000, day.Totals.TravelAllowance)
	assertWon(t, 200000, day.Totals.TotalPayment)

	// AND: The distance and allowance go to the first training visited
	first := rowByID(t, snap.Rows, "T-O_I1_main")
	second := rowByID(t, snap.Rows, "T-H_I1_main")
	assertWon(t, 40000, first.Computed.TravelExpense)
	assert.True(t, first.Computed.DistanceKm.Equal(generic.Km(65)))
	assertWon(t, 0, second.Computed.TravelExpense)
	assert.True(t, second.Computed.DistanceKm.IsZero())
}

func TestDay_RepeatedRegionVisitedOnce(t *testing.T) {
	// GIVEN: Two trainings at institutions in the same city
	f := newFixture(t,
		training("T1", "S-PYEONGTAEK", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 1)),
		training("T2", "S-PYEONGTAEK", "CONFIRMED", mainAssignment("I1", "2025-03-04", "13:00", 1)),
	)

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assert.Len(t, day.Route.Stops, 1)
	assert.True(t, day.Route.DistanceKm.Equal(generic.Km(65)))
}

func TestDay_MergesAssignmentsPerTrainingAndRole(t *testing.T) {
	// GIVEN: A morning and an afternoon block of the same training
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED",
		mainAssignment("I1", "2025-03-04", "13:00", 2),
		mainAssignment("I1", "2025-03-04", "09:00", 1),
	))

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	require.Len(t, day.Trainings, 1)
	assert.Equal(t, 3, day.Trainings[0].Sessions)
	assert.Equal(t, "09:00", day.Trainings[0].Start)
	assertWon(t, 120000, day.Trainings[0].Total())
}

func TestDay_EquipmentTransportOncePerDay(t *testing.T) {
	a := mainAssignment("I1", "2025-03-04", "09:00", 1)
	a.EquipmentTransport = true
	b := mainAssignment("I1", "2025-03-04", "13:00", 1)
	b.EquipmentTransport = true
	f := newFixture(t,
		training("T1", "S-SUWON", "CONFIRMED", a),
		training("T2", "S-SUWON", "CONFIRMED", b),
	)

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assertWon(t, 20000, day.Trainings[0].Breakdown.EquipmentTransport)
	assertWon(t, 0, day.Trainings[1].Breakdown.EquipmentTransport)
}

func TestDay_MentoringHourCapAcrossTrainings(t *testing.T) {
	// GIVEN: Two trainings with 2 mentoring hours each on one day
	a := mainAssignment("I1", "2025-03-04", "09:00", 1)
	a.MentoringHours = generic.Hours(2)
	b := mainAssignment("I1", "2025-03-04", "13:00", 1)
	b.MentoringHours = generic.Hours(2)
	f := newFixture(t,
		training("T1", "S-SUWON", "CONFIRMED", a),
		training("T2", "S-SUWON", "CONFIRMED", b),
	)

	snap := f.recompute(t)

	// THEN: Only 3 hours are paid, in visiting order
	day := onlyDay(t, snap, "I1")
	assertWon(t, 80000, day.Trainings[0].Breakdown.Mentoring)
	assertWon(t, 40000, day.Trainings[1].Breakdown.Mentoring)
	total := day.Trainings[0].Breakdown.Mentoring.Add(day.Trainings[1].Breakdown.Mentoring)
	assert.False(t, total.GreaterThan(won(120000)))
}

func TestDay_WeekendSessionsFromCalendar(t *testing.T) {
	// GIVEN: A Saturday training that reports no weekend sessions explicitly
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-08", "09:00", 2)))

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assertWon(t, 10000, day.Trainings[0].Breakdown.Weekend)
	assertWon(t, 90000, day.Totals.TotalPayment)
}

func TestDay_HolidayCountsAsWeekend(t *testing.T) {
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))
	f.svc = settlement.NewService(settlement.Deps{
		Policies:     f.policies,
		Distances:    region.NewMatrixProvider(testMatrix()),
		Instructors:  f.dir,
		Institutions: f.dir,
		Source:       f.dir,
		Calendar:     &generic.StaticHolidayCalendar{Holidays: []generic.Holiday{{Date: date("2025-03-04"), Name: "Local holiday"}}},
	})

	snap := f.recompute(t)

	assertWon(t, 10000, onlyDay(t, snap, "I1").Trainings[0].Breakdown.Weekend)
}

func TestDay_UnderstaffedWithoutAssistant(t *testing.T) {
	tr := training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 15))
	tr.StudentCount = 20
	f := newFixture(t, tr)

	snap := f.recompute(t)

	b := onlyDay(t, snap, "I1").Trainings[0].Breakdown
	assertWon(t, 600000, b.BaseFee)
	assertWon(t, 75000, b.Understaffed)
}

func TestDay_AssistantPresenceSuppressesUnderstaffed(t *testing.T) {
	tr := training("T1", "S-SUWON", "CONFIRMED",
		mainAssignment("I1", "2025-03-04", "09:00", 2),
		settlement.Assignment{InstructorID: "I2", Role: allowance.RoleAssistant, Date: date("2025-03-04"), Start: "09:00", Sessions: 2},
	)
	tr.StudentCount = 20
	f := newFixture(t, tr)

	snap := f.recompute(t)

	assertWon(t, 0, onlyDay(t, snap, "I1").Trainings[0].Breakdown.Understaffed)
	assertWon(t, 60000, onlyDay(t, snap, "I2").Trainings[0].Breakdown.BaseFee)
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

func TestRecompute_MissingDistanceIsNonFatal(t *testing.T) {
	// GIVEN: An institution whose pair has no matrix entry
	f := newFixture(t, training("T1", "S-GAPYEONG", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 1)))
	f.dir.AddInstitution(settlement.Institution{ID: "S-GAPYEONG", Name: "Gapyeong Elementary", Region: region.Region{CityCounty: "가평군"}})

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assert.True(t, day.Route.DistanceKm.IsZero())
	assertWon(t, 0, day.Totals.TravelAllowance)
	assert.True(t, snap.Diagnostics.Has(generic.WarnMissingDistance))
}

func TestRecompute_UnknownReferencesWarn(t *testing.T) {
	f := newFixture(t,
		training("T1", "S-NOWHERE", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 1)),
		training("T2", "S-SUWON", "CONFIRMED", mainAssignment("GHOST", "2025-03-04", "09:00", 1)),
	)

	snap := f.recompute(t)

	assert.True(t, snap.Diagnostics.Has(generic.WarnUnknownInstitution))
	assert.True(t, snap.Diagnostics.Has(generic.WarnUnknownInstructor))
	assert.True(t, snap.Diagnostics.Has(generic.WarnUnmappedRegion))
	// Pay is still computed at the GENERAL rate
	assertWon(t, 40000, rowByID(t, snap.Rows, "T1_I1_main").Computed.AllowanceAmount)
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestEligibility_PartialDay(t *testing.T) {
	// GIVEN: A day mixing a confirmed and a pending training
	f := newFixture(t,
		training("T-O", "S-OSAN", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)),
		training("T-H", "S-HWASEONG", "PENDING", mainAssignment("I1", "2025-03-04", "13:00", 1)),
	)

	snap := f.recompute(t)

	// THEN: Eligible totals carry only the confirmed training plus travel
	day := onlyDay(t, snap, "I1")
	assert.Equal(t, 1, day.Totals.EligibleDays)
	assert.Equal(t, 2, day.Totals.EligibleSessions)
	assert.Equal(t, 3, day.Totals.Sessions)
	assertWon(t, 120000, day.Totals.EligiblePayment)
	assertWon(t, 160000, day.Totals.TotalPayment)
}

func TestEligibility_TravelFollowsEligibleTrainingIntoStatement(t *testing.T) {
	// GIVEN: A pending training visited before a confirmed one on the same day
	f := newFixture(t,
		training("T-H", "S-HWASEONG", "PENDING", mainAssignment("I1", "2025-03-04", "09:00", 1)),
		training("T-O", "S-OSAN", "CONFIRMED", mainAssignment("I1", "2025-03-04", "13:00", 2)),
	)

	snap := f.recompute(t)
	day := onlyDay(t, snap, "I1")
	assertWon(t, 40000, day.Travel.Amount)

	// WHEN: Building rows and the eligible-only statement
	pending := rowByID(t, snap.Rows, "T-H_I1_main")
	confirmed := rowByID(t, snap.Rows, "T-O_I1_main")
	st := statement.Build(snap.Rows, statement.Options{EligibleOnly: true})

	// THEN: The day's travel rides on the confirmed training
	assertWon(t, 0, pending.Computed.TravelExpense)
	assertWon(t, 40000, confirmed.Computed.TravelExpense)
	require.Len(t, st, 1)
	assertWon(t, 40000, st[0].Travel)
	assertWon(t, day.Totals.EligiblePayment.Round().Int64(), st[0].TotalAllowance)
	assertWon(t, 120000, st[0].TotalAllowance)
}

func TestEligibility_NoEligibleTrainingNoEligibleTravel(t *testing.T) {
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "OPEN", mainAssignment("I1", "2025-03-04", "09:00", 2)))

	snap := f.recompute(t)

	day := onlyDay(t, snap, "I1")
	assert.Equal(t, 0, day.Totals.EligibleDays)
	assertWon(t, 0, day.Totals.EligiblePayment)
	assertWon(t, 120000, day.Totals.TotalPayment)
}

// =============================================================================
// MONTH / YEAR
// =============================================================================

func TestMonth_EquipmentTransportCap(t *testing.T) {
	// GIVEN: Equipment transport on all 20 weekdays of March 2025
	var assignments []settlement.Assignment
	for d := date("2025-03-01"); d.Month() == time.March; d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		a := mainAssignment("I1", d.String(), "09:00", 1)
		a.EquipmentTransport = true
		assignments = append(assignments, a)
	}
	require.Len(t, assignments, 20)
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", assignments...))

	// WHEN: Recomputing
	snap := f.recompute(t)

	// THEN: The month pays 300,000 of the raw 400,000
	s := snap.Settlements[0]
	require.Len(t, s.Years, 1)
	require.Len(t, s.Years[0].Months, 1)
	month := s.Years[0].Months[0]
	equipment := won(0)
	for _, d := range month.Days {
		equipment = equipment.Add(d.Trainings[0].Breakdown.EquipmentTransport)
	}
	assertWon(t, 300000, equipment)
	assertWon(t, 20*40000+300000, month.Totals.TrainingPayment)

	// AND: The excess is discarded, not carried to later days
	assertWon(t, 20000, month.Days[14].Trainings[0].Breakdown.EquipmentTransport)
	assertWon(t, 0, month.Days[15].Trainings[0].Breakdown.EquipmentTransport)
	assertInvariants(t, s)
}

func TestMonth_CapResetsEachMonth(t *testing.T) {
	var assignments []settlement.Assignment
	for _, d := range []string{"2025-03-31", "2025-04-01"} {
		a := mainAssignment("I1", d, "09:00", 1)
		a.EquipmentTransport = true
		assignments = append(assignments, a)
	}
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", assignments...))
	_, err := f.policies.Set(context.Background(), policy.KindAllowance, []byte(`{"equipment_transport_monthly_cap": 20000}`), "admin")
	require.NoError(t, err)

	snap := f.recompute(t)

	for _, d := range snap.Settlements[0].AllDays() {
		assertWon(t, 20000, d.Trainings[0].Breakdown.EquipmentTransport, d.Date.String())
	}
}

func TestFold_HierarchyAcrossYears(t *testing.T) {
	f := newFixture(t,
		training("T1", "S-PYEONGTAEK", "CONFIRMED",
			mainAssignment("I1", "2024-12-30", "09:00", 2),
			mainAssignment("I1", "2025-01-06", "09:00", 1),
			mainAssignment("I1", "2025-02-03", "09:00", 3),
		),
		training("T2", "S-SUWON", "PENDING", mainAssignment("I1", "2025-02-04", "09:00", 1)),
	)

	snap := f.recompute(t)

	s := snap.Settlements[0]
	require.Len(t, s.Years, 2)
	assert.Equal(t, 2024, s.Years[0].Year)
	assert.Equal(t, 2025, s.Years[1].Year)
	assert.Len(t, s.Years[1].Months, 2)
	assert.Equal(t, 4, s.Totals.Days)
	assert.Equal(t, 7, s.Totals.Sessions)
	assert.Equal(t, 3, s.Totals.EligibleDays)
	assertInvariants(t, s)
}

func TestRefilter_RecomputesFromDayRecords(t *testing.T) {
	// GIVEN: Activity in March and April
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "CONFIRMED",
		mainAssignment("I1", "2025-03-04", "09:00", 2),
		mainAssignment("I1", "2025-03-05", "09:00", 2),
		mainAssignment("I1", "2025-04-01", "09:00", 1),
	))
	f.recompute(t)

	// WHEN: Restricting to April
	april, err := f.svc.Settlement("I1", generic.MonthPeriod(2025, time.April))
	require.NoError(t, err)

	// THEN: March is pruned and every total is rebuilt
	require.Len(t, april.Years, 1)
	require.Len(t, april.Years[0].Months, 1)
	assert.Equal(t, time.April, april.Years[0].Months[0].Month.Month)
	assert.Equal(t, 1, april.Totals.Days)
	assert.Equal(t, 1, april.Totals.Sessions)
	assertWon(t, 80000, april.Totals.TotalPayment)
	assertInvariants(t, april)

	// AND: A range without data is reported as not found
	_, err = f.svc.Settlement("I1", generic.MonthPeriod(2025, time.June))
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Empty(t, f.svc.Settlements(generic.MonthPeriod(2025, time.June)))
}

func TestRefilter_KeepsCappedEquipment(t *testing.T) {
	var assignments []settlement.Assignment
	for d := date("2025-03-01"); d.Month() == time.March; d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		a := mainAssignment("I1", d.String(), "09:00", 1)
		a.EquipmentTransport = true
		assignments = append(assignments, a)
	}
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", assignments...))
	f.recompute(t)

	second, err := f.svc.Settlement("I1", generic.Period{Start: date("2025-03-17")})
	require.NoError(t, err)

	// The 17th to the 21st still fit under the cap; later days were
	// computed past it and stay at zero
	assert.Equal(t, 10, second.Totals.Days)
	assertWon(t, 10*40000+5*20000, second.Totals.TrainingPayment)
	assertInvariants(t, second)
}

// =============================================================================
// ROWS & OVERRIDES
// =============================================================================

func TestRows_OnePerTrainingInstructorRole(t *testing.T) {
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "CONFIRMED",
		mainAssignment("I1", "2025-03-04", "09:00", 2),
		mainAssignment("I1", "2025-03-05", "09:00", 1),
		settlement.Assignment{InstructorID: "I2", Role: allowance.RoleAssistant, Date: date("2025-03-04"), Start: "09:00", Sessions: 2},
	))

	snap := f.recompute(t)

	require.Len(t, snap.Rows, 2)
	main := rowByID(t, snap.Rows, "T1_I1_main")
	assert.Equal(t, 3, main.Sessions)
	assert.Len(t, main.Dates, 2)
	assert.True(t, main.Eligible)
	assertWon(t, 120000, main.Computed.AllowanceAmount)
	assertWon(t, 80000, main.Computed.TravelExpense)
	assertWon(t, 200000, main.EffectiveTotal())

	assistant := rowByID(t, snap.Rows, "T1_I2_assistant")
	assertWon(t, 60000, assistant.Computed.AllowanceAmount)
}

func TestOverrides_SurviveRecomputeAndRemoveRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))
	f.recompute(t)

	// WHEN: Overriding the travel expense
	travel := won(55000)
	row, err := f.svc.SetOverride(ctx, "T1_I1_main", settlement.Override{TravelExpense: &travel, Reason: "toll receipt", UpdatedBy: "ops"})
	require.NoError(t, err)

	// THEN: The effective value changes, the computed one does not
	assertWon(t, 55000, row.EffectiveTravelExpense())
	assertWon(t, 40000, row.Computed.TravelExpense)
	assertWon(t, 80000, row.EffectiveAllowanceAmount())

	// AND: The override survives a full recompute
	snap := f.recompute(t)
	assertWon(t, 55000, rowByID(t, snap.Rows, "T1_I1_main").EffectiveTravelExpense())

	// WHEN: Removing it
	row, err = f.svc.RemoveOverride(ctx, "T1_I1_main")
	require.NoError(t, err)

	// THEN: The computed value is back
	assert.Nil(t, row.Override)
	assertWon(t, 40000, row.EffectiveTravelExpense())
}

func TestOverrides_SplitAcrossPeriodsAddUpToWholeRange(t *testing.T) {
	ctx := context.Background()
	// GIVEN: A training with one day in March and one in April, overridden
	f := newFixture(t, training("T1", "S-PYEONGTAEK", "CONFIRMED",
		mainAssignment("I1", "2025-03-31", "09:00", 2),
		mainAssignment("I1", "2025-04-01", "09:00", 2),
	))
	f.recompute(t)
	travel, allowanceAmount, km := won(100000), won(150001), generic.Km(33.33)
	_, err := f.svc.SetOverride(ctx, "T1_I1_main", settlement.Override{
		TravelExpense: &travel, AllowanceAmount: &allowanceAmount, DistanceKm: &km,
	})
	require.NoError(t, err)

	// WHEN: Reading the row per month and for the whole range
	march := rowByID(t, f.svc.RowsFor(generic.MonthPeriod(2025, time.March)), "T1_I1_main")
	april := rowByID(t, f.svc.RowsFor(generic.MonthPeriod(2025, time.April)), "T1_I1_main")
	whole := rowByID(t, f.svc.RowsFor(generic.Period{}), "T1_I1_main")

	// THEN: The monthly shares add up to the whole-range values
	assertWon(t, 100000, whole.EffectiveTravelExpense())
	assertWon(t, 50000, march.EffectiveTravelExpense())
	assertWon(t, 50000, april.EffectiveTravelExpense())
	assertWon(t, 75000, march.EffectiveAllowanceAmount())
	assertWon(t, 75001, april.EffectiveAllowanceAmount())
	assert.True(t, march.EffectiveTotal().Add(april.EffectiveTotal()).Equal(whole.EffectiveTotal()))
	assert.True(t, march.EffectiveDistanceKm().Add(april.EffectiveDistanceKm()).Equal(generic.Km(33.33)))

	// AND: The monthly statements add up to the whole-range statement
	marchSt := statement.Build(f.svc.RowsFor(generic.MonthPeriod(2025, time.March)), statement.Options{})
	aprilSt := statement.Build(f.svc.RowsFor(generic.MonthPeriod(2025, time.April)), statement.Options{})
	wholeSt := statement.Build(f.svc.Rows(), statement.Options{})
	require.Len(t, wholeSt, 1)
	assertWon(t, wholeSt[0].TotalAllowance.Int64(), marchSt[0].TotalAllowance.Add(aprilSt[0].TotalAllowance))
	assertWon(t, wholeSt[0].Travel.Int64(), marchSt[0].Travel.Add(aprilSt[0].Travel))
}

func TestOverride_ForPeriodSharesCoverValue(t *testing.T) {
	travel := won(100)
	o := settlement.Override{TravelExpense: &travel, Reason: "toll"}
	dates := []generic.TimePoint{date("2025-03-03"), date("2025-03-20"), date("2025-04-02")}

	first := o.ForPeriod(dates, generic.Period{End: date("2025-03-10")})
	middle := o.ForPeriod(dates, generic.Period{Start: date("2025-03-11"), End: date("2025-03-31")})
	last := o.ForPeriod(dates, generic.Period{Start: date("2025-04-01")})

	assertWon(t, 33, *first.TravelExpense)
	assertWon(t, 33, *middle.TravelExpense)
	assertWon(t, 34, *last.TravelExpense)
	assert.Nil(t, first.AllowanceAmount)
	assert.Equal(t, "toll", last.Reason)
	assertWon(t, 100, *o.ForPeriod(dates, generic.Period{}).TravelExpense)
}

func TestOverrides_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))
	f.recompute(t)

	_, err := f.svc.SetOverride(ctx, "T1_I1_main", settlement.Override{Reason: "nothing"})
	assert.ErrorIs(t, err, generic.ErrInvalidOverride)

	negative := won(-1)
	_, err = f.svc.SetOverride(ctx, "T1_I1_main", settlement.Override{AllowanceAmount: &negative})
	assert.ErrorIs(t, err, generic.ErrInvalidOverride)

	amount := won(1)
	_, err = f.svc.SetOverride(ctx, "T9_I1_main", settlement.Override{AllowanceAmount: &amount})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestOverrideStore_PersistsJSON(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	clock := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := settlement.NewOverrideStore(kv, nil).WithClock(func() time.Time { return clock })

	km := generic.Km(12.5)
	_, err := s.Set(ctx, "T1_I1_main", settlement.Override{DistanceKm: &km, Reason: "detour"})
	require.NoError(t, err)

	raw, err := kv.Get(ctx, "override/T1_I1_main")
	require.NoError(t, err)
	assert.JSONEq(t, `{"distance_km": 12.5, "reason": "detour", "updated_at": "2025-03-10T12:00:00Z"}`, string(raw))

	got, err := s.Get(ctx, "T1_I1_main")
	require.NoError(t, err)
	require.NotNil(t, got.DistanceKm)
	assert.True(t, got.DistanceKm.Equal(km))
	assert.Nil(t, got.TravelExpense)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Remove(ctx, "T1_I1_main"))
	_, err = s.Get(ctx, "T1_I1_main")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_RecomputesOnPolicyChange(t *testing.T) {
	// GIVEN: A running service and a pending training
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, training("T1", "S-SUWON", "PENDING", mainAssignment("I1", "2025-03-04", "09:00", 2)))
	require.NoError(t, f.svc.Start(ctx))
	first := f.svc.Snapshot()
	require.NotNil(t, first)
	assert.False(t, first.Rows[0].Eligible)

	// WHEN: Switching the counting mode
	_, err := f.policies.SetCountingMode(ctx, eligibility.CountIfAssigned, "admin")
	require.NoError(t, err)

	// THEN: A new snapshot counts the training
	assert.Eventually(t, func() bool {
		snap := f.svc.Snapshot()
		return snap.RunID != first.RunID && snap.Rows[0].Eligible
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.svc.Snapshot().PolicyVersions[policy.KindCountingMode])
}

func TestService_NotifiesListeners(t *testing.T) {
	f := newFixture(t, training("T1", "S-SUWON", "CONFIRMED", mainAssignment("I1", "2025-03-04", "09:00", 2)))
	var runs []string
	f.svc.OnRecompute(func(s *settlement.Snapshot) { runs = append(runs, s.RunID) })

	snap := f.recompute(t)

	assert.Equal(t, []string{snap.RunID}, runs)
	assert.Nil(t, settlement.NewService(settlement.Deps{}).Snapshot())
}
