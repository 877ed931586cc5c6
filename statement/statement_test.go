package statement_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/statement"
)

func won(v int64) generic.Amount { return generic.Won(v) }

func TestWithhold_FlatRates(t *testing.T) {
	tax := statement.Withhold(won(100000))

	assert.Equal(t, int64(3000), tax.IncomeTax.Int64())
	assert.Equal(t, int64(300), tax.LocalIncomeTax.Int64())
	assert.Equal(t, int64(3300), tax.Total.Int64())
	assert.Equal(t, int64(96700), tax.Net.Int64())
}

func TestWithhold_RoundsEachComponent(t *testing.T) {
	// GIVEN: A gross with fractional tax components
	// 12,345 × 0.03 = 370.35 → 370 ; 12,345 × 0.003 = 37.035 → 37
	tax := statement.Withhold(won(12345))

	assert.Equal(t, int64(370), tax.IncomeTax.Int64())
	assert.Equal(t, int64(37), tax.LocalIncomeTax.Int64())
	assert.Equal(t, int64(11938), tax.Net.Int64())
}

func TestWithhold_Identity(t *testing.T) {
	for _, gross := range []int64{0, 1, 15, 99, 4999, 100000, 123456789, 1_000_000_001} {
		tax := statement.Withhold(won(gross))
		sum := tax.Net.Add(tax.IncomeTax).Add(tax.LocalIncomeTax)
		assert.True(t, sum.Equal(won(gross)), "gross %d", gross)
		assert.False(t, tax.Net.IsNegative())
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, statement.ClassMain, statement.Classify(3, 0))
	assert.Equal(t, statement.ClassAssistant, statement.Classify(0, 2))
	assert.Equal(t, statement.ClassMainAssistant, statement.Classify(1, 1))
	assert.Equal(t, statement.ClassUnclassified, statement.Classify(0, 0))
}

// =============================================================================
// BUILD
// =============================================================================

func row(id, instructor, name string, role allowance.Role, sessions int, eligible bool, mutate func(*allowance.Breakdown), travel int64) settlement.Row {
	b := allowance.ZeroBreakdown(role, allowance.CategoryGeneral)
	rate := int64(40000)
	if role == allowance.RoleAssistant {
		rate = 30000
	}
	b.BaseFee = won(rate * int64(sessions))
	if mutate != nil {
		mutate(&b)
	}
	b = b.Retotal()
	return settlement.Row{
		ID:             id,
		EducationID:    strings.Split(id, "_")[0],
		InstructorID:   instructor,
		InstructorName: name,
		Role:           role,
		Sessions:       sessions,
		Eligible:       eligible,
		Breakdown:      b,
		Computed: settlement.Computed{
			DistanceKm:      generic.Km(0),
			TravelExpense:   won(travel),
			AllowanceAmount: b.GrossTotal,
		},
	}
}

func sampleRows() []settlement.Row {
	return []settlement.Row{
		row("T1_I1_main", "I1", "Kim", allowance.RoleMain, 2, true, func(b *allowance.Breakdown) {
			b.SpecialEducation = won(20000)
			b.Understaffed = won(10000)
			b.HighSchool = won(20000)
		}, 40000),
		row("T2_I1_assistant", "I1", "Kim", allowance.RoleAssistant, 3, true, func(b *allowance.Breakdown) {
			b.RemoteIsland = won(15000)
			b.Mentoring = won(40000)
			b.MiddleSchool = won(15000)
		}, 0),
		row("T3_I2_main", "I2", "Choi", allowance.RoleMain, 1, false, func(b *allowance.Breakdown) {
			b.Weekend = won(5000)
			b.EquipmentTransport = won(20000)
		}, 20000),
	}
}

func TestBuild_OneLinePerInstructor(t *testing.T) {
	// WHEN: Building from three rows of two instructors
	lines := statement.Build(sampleRows(), statement.Options{})

	// THEN: Sorted by name, items folded into their columns
	require.Len(t, lines, 2)
	choi, kim := lines[0], lines[1]
	assert.Equal(t, "Choi", choi.Name)

	assert.Equal(t, statement.ClassMainAssistant, kim.Classification)
	assert.Equal(t, 2, kim.MainSessions)
	assert.Equal(t, 3, kim.AssistantSessions)
	assert.Equal(t, int64(80000), kim.MainBaseFee.Int64())
	assert.Equal(t, int64(90000), kim.AssistantBaseFee.Int64())
	assert.Equal(t, int64(20000), kim.Special.Int64())
	assert.Equal(t, int64(15000), kim.RemoteIsland.Int64())
	assert.Equal(t, int64(50000), kim.Other.Int64())
	assert.Equal(t, int64(35000), kim.MiddleHighSchool.Int64())
	assert.Equal(t, int64(40000), kim.Travel.Int64())
	// 80,000 + 50,000 + 90,000 + 70,000 + 40,000 travel
	assert.Equal(t, int64(330000), kim.TotalAllowance.Int64())
	assert.Equal(t, int64(9900), kim.Tax.IncomeTax.Int64())
	assert.Equal(t, int64(990), kim.Tax.LocalIncomeTax.Int64())

	assert.Equal(t, statement.ClassMain, choi.Classification)
	assert.Equal(t, int64(5000), choi.Weekend.Int64())
	assert.Equal(t, int64(20000), choi.EquipmentTransport.Int64())
	assert.Equal(t, int64(85000), choi.TotalAllowance.Int64())
}

func TestBuild_ColumnsAddUpToGross(t *testing.T) {
	for _, l := range statement.Build(sampleRows(), statement.Options{}) {
		sum := generic.SumAmounts(generic.UnitWon,
			l.Special, l.RemoteIsland, l.Weekend, l.EventParticipation, l.Other,
			l.EquipmentTransport, l.Travel, l.MiddleHighSchool, l.MainBaseFee, l.AssistantBaseFee)
		assert.True(t, sum.Equal(l.TotalAllowance), l.Name)
	}
}

func TestBuild_EligibleOnly(t *testing.T) {
	lines := statement.Build(sampleRows(), statement.Options{EligibleOnly: true})

	require.Len(t, lines, 1)
	assert.Equal(t, "I1", lines[0].InstructorID)
}

func TestBuild_OverridesFlowIntoColumns(t *testing.T) {
	// GIVEN: Allowance and travel overrides on Choi's row
	rows := sampleRows()
	allowanceAmount, travel := won(60000), won(0)
	rows = settlement.ApplyOverrides(rows, map[string]settlement.Override{
		"T3_I2_main": {AllowanceAmount: &allowanceAmount, TravelExpense: &travel},
	})

	lines := statement.Build(rows, statement.Options{InstructorIDs: []string{"I2"}})

	// THEN: The allowance delta lands in "other" and gross follows
	require.Len(t, lines, 1)
	choi := lines[0]
	assert.Equal(t, int64(-5000), choi.Other.Int64())
	assert.Equal(t, int64(0), choi.Travel.Int64())
	assert.Equal(t, int64(60000), choi.TotalAllowance.Int64())
}

func TestTotals_SumsTaxesPerInstructor(t *testing.T) {
	lines := statement.Build(sampleRows(), statement.Options{})
	total := statement.Totals(lines)

	assert.Equal(t, "TOTAL", total.Name)
	assert.Equal(t, int64(415000), total.TotalAllowance.Int64())
	assert.True(t, total.Tax.IncomeTax.Equal(lines[0].Tax.IncomeTax.Add(lines[1].Tax.IncomeTax)))
	assert.True(t, total.Tax.Net.Add(total.Tax.Total).Equal(total.TotalAllowance))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestWriteCSV_BOMHeaderAndQuoting(t *testing.T) {
	// GIVEN: A name that needs quoting
	rows := sampleRows()
	rows[2].InstructorName = `Choi, "Junior"`
	lines := statement.Build(rows, statement.Options{})

	var buf bytes.Buffer
	require.NoError(t, statement.WriteCSV(&buf, lines))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\uFEFF"))
	records := strings.Split(strings.TrimSuffix(strings.TrimPrefix(out, "\uFEFF"), "\n"), "\n")
	require.Len(t, records, 3)
	assert.Equal(t, "classification,name,special_allowance,remote_island_allowance,weekend_allowance,"+
		"event_participation_allowance,other_allowance,equipment_transport_allowance,travel_allowance,"+
		"middle_high_school_allowance,main_sessions,assistant_sessions,main_base_fee,assistant_base_fee,"+
		"total_allowance,income_tax,local_income_tax,total_tax,net_payment", records[0])
	assert.Equal(t, `main,"Choi, ""Junior""",0,0,5000,0,0,20000,20000,0,1,0,40000,0,85000,2550,255,2805,82195`, records[1])
}

func TestWriteXLSX_SameColumns(t *testing.T) {
	lines := statement.Build(sampleRows(), statement.Options{})

	var buf bytes.Buffer
	require.NoError(t, statement.WriteXLSX(&buf, lines))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheetRows, err := f.GetRows(statement.SheetName)
	require.NoError(t, err)
	require.Len(t, sheetRows, 4, "header, two instructors, totals")
	assert.Equal(t, statement.Headers(), sheetRows[0])
	assert.Equal(t, "Choi", sheetRows[1][1])
	assert.Equal(t, "TOTAL", sheetRows[3][1])
}
