/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Override set/remove through the row endpoints
- Policy read, replace, validation and reset
- Statement export (JSON, CSV) and archiving
- Directory, region and holiday endpoints
*/
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleDayRow = "edu-101_inst-kim_main"

func TestOverride_SetAndRemove(t *testing.T) {
	// GIVEN: A computed 80,000 row
	env := setupTestHandler(t)
	env.load(t, "single-day")

	// WHEN: Overriding the allowance amount
	rec := env.do(t, http.MethodPut, "/api/rows/"+singleDayRow+"/override",
		`{"allowance_amount": 95000, "reason": "agreed extra session", "updated_by": "admin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := decode[RowDTO](t, rec)

	// THEN: The effective total follows the override, the computed value stays
	assert.Equal(t, int64(95000), row.Effective.Total)
	assert.Equal(t, int64(80000), row.Computed.Total)
	require.NotNil(t, row.Override)
	assert.Equal(t, "admin", row.Override.UpdatedBy)

	// AND: A recompute keeps it attached
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/recompute", nil).Code)
	rec = env.do(t, http.MethodGet, "/api/rows?overridden=true", nil)
	rows := decode[struct {
		Rows []RowDTO `json:"rows"`
	}](t, rec).Rows
	require.Len(t, rows, 1)
	assert.Equal(t, int64(95000), rows[0].Effective.Total)

	// WHEN: Removing it
	rec = env.do(t, http.MethodDelete, "/api/rows/"+singleDayRow+"/override", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The computed value is back
	row = decode[RowDTO](t, rec)
	assert.Nil(t, row.Override)
	assert.Equal(t, int64(80000), row.Effective.Total)
}

func TestOverride_Errors(t *testing.T) {
	env := setupTestHandler(t)
	env.load(t, "single-day")

	rec := env.do(t, http.MethodPut, "/api/rows/missing_row_main/override", `{"allowance_amount": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/rows/"+singleDayRow+"/override", `{"distance_km": -4}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/rows/"+singleDayRow+"/override", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPolicies_DefaultsReplaceAndReset(t *testing.T) {
	env := setupTestHandler(t)
	env.load(t, "mixed-month")

	// GIVEN: Nothing stored, every policy is the default at version 0
	rec := env.do(t, http.MethodGet, "/api/policies/counting_mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[PolicyDTO](t, rec)
	assert.Equal(t, 0, p.Version)
	assert.JSONEq(t, `{"mode":"ONLY_CONFIRMED_ENDED"}`, string(p.Payload))

	// WHEN: Switching to COUNT_IF_ASSIGNED
	req, _ := http.NewRequest(http.MethodPut, "/api/policies/counting_mode", strings.NewReader(`{"mode":"COUNT_IF_ASSIGNED"}`))
	req.Header.Set("X-User", "ops")
	rec = env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Version 1 is stored with its author
	p = decode[PolicyDTO](t, rec)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "ops", p.UpdatedBy)
	assert.JSONEq(t, `{"mode":"COUNT_IF_ASSIGNED"}`, string(p.Payload))

	// AND: After a recompute the pending training counts
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/recompute", nil).Code)
	rec = env.do(t, http.MethodGet, "/api/rows?eligible_only=true&training_id=edu-604", nil)
	rows := decode[struct {
		Rows []RowDTO `json:"rows"`
	}](t, rec).Rows
	assert.Len(t, rows, 1)

	// WHEN: Resetting
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/policies/counting_mode", nil).Code)
	p = decode[PolicyDTO](t, env.do(t, http.MethodGet, "/api/policies/counting_mode", nil))
	assert.Equal(t, 0, p.Version)
}

func TestPolicies_RejectsInvalidPayloads(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodPut, "/api/policies/travel_expense", `{"brackets":[{"min_km":10,"amount":1000}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/policies/counting_mode", `{"mode":"SOMETIMES"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/policies/tax", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Policies []PolicyDTO `json:"policies"`
	}](t, rec).Policies
	assert.Len(t, list, 3)
}

func TestStatement_JSONAndCSV(t *testing.T) {
	env := setupTestHandler(t)
	env.load(t, "single-day")

	// WHEN: Requesting the JSON statement
	rec := env.do(t, http.MethodGet, "/api/statements?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Totals  map[string]any   `json:"totals"`
	}](t, rec)

	// THEN: Taxes are withheld from the gross
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "classification", body.Columns[0])
	assert.Equal(t, "main", body.Rows[0]["classification"])
	assert.EqualValues(t, 80000, body.Rows[0]["total_allowance"])
	assert.EqualValues(t, 2400, body.Rows[0]["income_tax"])
	assert.EqualValues(t, 240, body.Rows[0]["local_income_tax"])
	assert.EqualValues(t, 77360, body.Rows[0]["net_payment"])
	assert.EqualValues(t, 77360, body.Totals["net_payment"])

	// WHEN: Requesting CSV
	rec = env.do(t, http.MethodGet, "/api/statements?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: A BOM-prefixed attachment with the header line
	assert.Equal(t, csvContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "statement_all.csv")
	text := rec.Body.String()
	assert.True(t, strings.HasPrefix(text, "\uFEFFclassification,name,"))
	assert.Contains(t, text, "김민준")
	assert.Contains(t, text, "77360")

	rec = env.do(t, http.MethodGet, "/api/statements?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatement_ArchiveAndDownload(t *testing.T) {
	env := setupTestHandler(t)
	env.load(t, "single-day")

	// WHEN: Archiving a CSV statement for March
	rec := env.do(t, http.MethodPost, "/api/statements/archive?format=csv&month=2025-03", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	obj := decode[struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}](t, rec)

	// THEN: The file is named after the period and served under /files
	assert.True(t, strings.HasPrefix(obj.Key, "statement_2025-03-01_2025-03-31_"))
	assert.True(t, strings.HasSuffix(obj.Key, ".csv"))
	assert.Equal(t, "/files/"+obj.Key, obj.URL)

	rec = env.do(t, http.MethodGet, obj.URL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "77360")

	rec = env.do(t, http.MethodGet, "/files/nothing-here.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatement_ArchiveNotConfigured(t *testing.T) {
	env := setupTestHandler(t)
	env.h.Archiver = nil

	rec := env.do(t, http.MethodPost, "/api/statements/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSettlements_PeriodHandling(t *testing.T) {
	env := setupTestHandler(t)
	env.load(t, "single-day")

	rec := env.do(t, http.MethodGet, "/api/settlements/inst-kim?month=2025-04", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/settlements?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/settlements?from=2025-03-31&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/settlements/inst-kim?from=2025-03-01&to=2025-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(80000), decode[InstructorSettlementDTO](t, rec).Totals.TotalPayment)
}

func TestDirectory_UpsertResolvesRegionAndRecomputes(t *testing.T) {
	env := setupTestHandler(t)

	// GIVEN: Directory entries posted with city names only
	rec := env.do(t, http.MethodPut, "/api/instructors/i1", map[string]any{"name": "Choi", "city_county": "수원시"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUWON", decode[InstructorDTO](t, rec).RegionCode)

	rec = env.do(t, http.MethodPut, "/api/institutions/s1", map[string]any{"name": "Osan Middle", "city_county": "오산시"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OSAN", decode[InstitutionDTO](t, rec).RegionCode)

	// WHEN: Adding a training
	rec = env.do(t, http.MethodPut, "/api/trainings/t1", map[string]any{
		"name": "Robotics", "institution_id": "s1", "status": "confirmed",
		"assignments": []map[string]any{{"instructor_id": "i1", "role": "MAIN", "date": "2025-03-04", "sessions": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: It is listed and shows up after a recompute
	rec = env.do(t, http.MethodGet, "/api/trainings/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", decode[TrainingDTO](t, rec).Status)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/recompute", nil).Code)
	s := env.settlement(t, "i1")
	assert.Equal(t, int64(80000), s.Totals.TrainingPayment)

	// AND: Deleting it removes it
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/trainings/t1", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/trainings/t1", nil).Code)
}

func TestDirectory_RejectsBadTraining(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodPut, "/api/trainings/t1", map[string]any{
		"name": "Robotics", "institution_id": "s1",
		"assignments": []map[string]any{{"instructor_id": "i1", "role": "observer", "date": "2025-03-04", "sessions": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/trainings/t1", map[string]any{
		"name": "Robotics", "institution_id": "s1",
		"assignments": []map[string]any{{"instructor_id": "i1", "role": "main", "date": "04/03/2025", "sessions": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/instructors/i1", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegions_ResolveAndDistances(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodGet, "/api/regions/resolve?name=경기도+오산시+원동", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OSAN", decode[RegionDTO](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/regions/resolve?name=Atlantis", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Same region is always 0 km.
	rec = env.do(t, http.MethodGet, "/api/regions/distance?from=수원시&to=SUWON", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[DistanceDTO](t, rec)
	assert.True(t, d.Found)
	assert.Zero(t, d.Km)

	// WHEN: Storing an administrative distance
	rec = env.do(t, http.MethodPut, "/api/regions/distances", map[string]any{"from": "OSAN", "to": "SUWON", "km": 17})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Lookups in either direction use it
	rec = env.do(t, http.MethodGet, "/api/regions/distance?from=SUWON&to=OSAN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 17.0, decode[DistanceDTO](t, rec).Km)

	rec = env.do(t, http.MethodGet, "/api/regions/distances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]DistanceDTO](t, rec), 1)

	rec = env.do(t, http.MethodPut, "/api/regions/distances", map[string]any{"from": "OSAN", "to": "SUWON", "km": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/regions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RegionDTO](t, rec), 31)
}

func TestHoliday_CreateListDelete(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodPost, "/api/holidays", map[string]any{"date": "2025-03-03", "name": "대체공휴일"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[map[string]any](t, rec)["holiday"].(string)

	rec = env.do(t, http.MethodGet, "/api/holidays", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]HolidayDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "2025-03-03", list[0].Date)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/holidays/"+id, nil).Code)
	rec = env.do(t, http.MethodGet, "/api/holidays", nil)
	assert.Empty(t, decode[[]HolidayDTO](t, rec))

	rec = env.do(t, http.MethodPost, "/api/holidays", map[string]any{"date": "someday", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/holidays/defaults", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[[]HolidayDTO](t, env.do(t, http.MethodGet, "/api/holidays", nil)), 8)
}

func TestHealthAndSnapshot(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodGet, "/api/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/scheduler", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
