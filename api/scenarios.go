/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	settlement data for demos. Each scenario creates instructors,
	institutions, trainings and distance-table entries that demonstrate one
	rule of the allowance engine, then recomputes.

AVAILABLE SCENARIOS (all in March 2025):

	single-day:       Main instructor, 2 sessions, no travel      => 80,000
	long-route:       Same day, 65 km round trip                  => 120,000
	remote-assistant: Assistant, 3 sessions on a remote island    => 105,000
	understaffed:     Main, 15 sessions, 20 students, no assistant => +75,000
	equipment-cap:    20 transport days in one month              => capped 300,000
	mixed-month:      Several instructors, statuses and visits per day

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and stored policies
 2. Save instructors and institutions
 3. Save trainings with their assignments
 4. Store distance pairs and reload the matrix
 5. Recompute and return the new snapshot

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "long-route"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Recompute, snapshot handlers
  - allowance/engine.go: the rules each scenario exercises
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "single-day",
		Name:        "Single Day",
		Description: "Main instructor, 2 sessions at a GENERAL school in the home city",
		Category:    "basic",
	},
	{
		ID:          "long-route",
		Name:        "Long Route",
		Description: "Same day as single-day, but the school is 65 km away (50-100 km bracket)",
		Category:    "travel",
	},
	{
		ID:          "remote-assistant",
		Name:        "Remote Island Assistant",
		Description: "Assistant instructor, 3 sessions on a remote island",
		Category:    "allowance",
	},
	{
		ID:          "understaffed",
		Name:        "Understaffed Class",
		Description: "Main instructor alone with 20 students for 15 sessions",
		Category:    "allowance",
	},
	{
		ID:          "equipment-cap",
		Name:        "Equipment Transport Cap",
		Description: "20 equipment transport days in one month, capped at 300,000",
		Category:    "allowance",
	},
	{
		ID:          "mixed-month",
		Name:        "Mixed Month",
		Description: "Two instructors, multi-school days, a weekend event and a pending training",
		Category:    "settlement",
	},
}

// scenarioData is everything a scenario writes before recomputing.
type scenarioData struct {
	instructors  []settlement.Instructor
	institutions []settlement.Institution
	trainings    []settlement.Training
	distances    []region.Entry
}

var scenarioLoaders = map[string]func() scenarioData{
	"single-day":       singleDayScenario,
	"long-route":       longRouteScenario,
	"remote-assistant": remoteAssistantScenario,
	"understaffed":     understaffedScenario,
	"equipment-cap":    equipmentCapScenario,
	"mixed-month":      mixedMonthScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database, loads a predefined scenario and
// recomputes.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := h.saveScenario(ctx, load()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	snap, err := h.Service.Recompute(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recompute failed", err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.Int("rows", len(snap.Rows)))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"snapshot": toSnapshotDTO(snap),
	})
}

// ResetDatabase clears every record and stored policy.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	if _, err := h.Service.Recompute(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	// Policies may live outside SQLite.
	for _, kind := range policy.Kinds {
		if err := h.Policies.Reset(ctx, kind); err != nil {
			return fmt.Errorf("reset policy %s: %w", kind, err)
		}
	}
	return h.ReloadDistances(ctx)
}

func (h *Handler) saveScenario(ctx context.Context, data scenarioData) error {
	for _, inst := range data.instructors {
		if err := h.Store.SaveInstructor(ctx, inst); err != nil {
			return fmt.Errorf("instructor %s: %w", inst.ID, err)
		}
	}
	for _, inst := range data.institutions {
		if err := h.Store.SaveInstitution(ctx, inst); err != nil {
			return fmt.Errorf("institution %s: %w", inst.ID, err)
		}
	}
	for _, t := range data.trainings {
		if err := h.Store.SaveTraining(ctx, t); err != nil {
			return fmt.Errorf("training %s: %w", t.ID, err)
		}
	}
	for _, d := range data.distances {
		if err := h.Store.SaveDistance(ctx, d.From, d.To, d.Km); err != nil {
			return fmt.Errorf("distance %s-%s: %w", d.From, d.To, err)
		}
	}
	return h.ReloadDistances(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func place(code region.Code) region.Region {
	return region.Region{CityCounty: code.Name(), Code: &code}
}

func session(instructorID string, role allowance.Role, date string, sessions int) settlement.Assignment {
	return settlement.Assignment{
		InstructorID: instructorID,
		Role:         role,
		Date:         generic.MustParseDate(date),
		Start:        "09:00",
		End:          "12:00",
		Sessions:     sessions,
	}
}

func suwonInstructor() settlement.Instructor {
	return settlement.Instructor{ID: "inst-kim", Name: "김민준", Home: place(region.Suwon)}
}

func singleDayScenario() scenarioData {
	return scenarioData{
		instructors: []settlement.Instructor{suwonInstructor()},
		institutions: []settlement.Institution{
			{ID: "sch-suwon", Name: "수원초등학교", Category: allowance.CategoryGeneral, Region: place(region.Suwon)},
		},
		trainings: []settlement.Training{{
			ID: "edu-101", Name: "코딩 교실", InstitutionID: "sch-suwon", Status: "CONFIRMED",
			Assignments: []settlement.Assignment{session("inst-kim", allowance.RoleMain, "2025-03-04", 2)},
		}},
	}
}

func longRouteScenario() scenarioData {
	return scenarioData{
		instructors: []settlement.Instructor{suwonInstructor()},
		institutions: []settlement.Institution{
			{ID: "sch-pocheon", Name: "포천초등학교", Category: allowance.CategoryGeneral, Region: place(region.Pocheon)},
		},
		trainings: []settlement.Training{{
			ID: "edu-201", Name: "코딩 교실", InstitutionID: "sch-pocheon", Status: "CONFIRMED",
			Assignments: []settlement.Assignment{session("inst-kim", allowance.RoleMain, "2025-03-04", 2)},
		}},
		// Home -> school -> home adds up to 65 km.
		distances: []region.Entry{{From: region.Suwon, To: region.Pocheon, Km: generic.Km(32.5)}},
	}
}

func remoteAssistantScenario() scenarioData {
	return scenarioData{
		instructors: []settlement.Instructor{{ID: "inst-lee", Name: "이서연", Home: place(region.Ansan)}},
		institutions: []settlement.Institution{
			{ID: "sch-pungdo", Name: "풍도분교", Category: allowance.CategoryGeneral, Region: place(region.Ansan)},
		},
		trainings: []settlement.Training{{
			ID: "edu-301", Name: "섬마을 과학", InstitutionID: "sch-pungdo", Status: "ENDED", RemoteIsland: true,
			Assignments: []settlement.Assignment{session("inst-lee", allowance.RoleAssistant, "2025-03-05", 3)},
		}},
	}
}

func understaffedScenario() scenarioData {
	return scenarioData{
		instructors: []settlement.Instructor{suwonInstructor()},
		institutions: []settlement.Institution{
			{ID: "sch-suwon", Name: "수원초등학교", Category: allowance.CategoryGeneral, Region: place(region.Suwon)},
		},
		trainings: []settlement.Training{{
			ID: "edu-401", Name: "로봇 캠프", InstitutionID: "sch-suwon", Status: "CONFIRMED", StudentCount: 20,
			Assignments: []settlement.Assignment{session("inst-kim", allowance.RoleMain, "2025-03-06", 15)},
		}},
	}
}

func equipmentCapScenario() scenarioData {
	t := settlement.Training{
		ID: "edu-501", Name: "이동 과학관", InstitutionID: "sch-suwon", Status: "CONFIRMED",
	}
	day := generic.MustParseDate("2025-03-03")
	for len(t.Assignments) < 20 {
		if !day.IsWeekend() {
			a := session("inst-kim", allowance.RoleMain, day.String(), 1)
			a.EquipmentTransport = true
			t.Assignments = append(t.Assignments, a)
		}
		day = day.AddDays(1)
	}
	return scenarioData{
		instructors: []settlement.Instructor{suwonInstructor()},
		institutions: []settlement.Institution{
			{ID: "sch-suwon", Name: "수원초등학교", Category: allowance.CategoryGeneral, Region: place(region.Suwon)},
		},
		trainings: []settlement.Training{t},
	}
}

func mixedMonthScenario() scenarioData {
	weekendEvent := session("inst-kim", allowance.RoleMain, "2025-03-08", 2) // Saturday
	weekendEvent.EventParticipation = true
	weekendEvent.EventHours = generic.Hours(3)

	mentoring := session("inst-park", allowance.RoleMain, "2025-03-12", 2)
	mentoring.MentoringHours = generic.Hours(4)

	afternoon := session("inst-kim", allowance.RoleMain, "2025-03-11", 2)
	afternoon.Start, afternoon.End = "13:00", "15:00"

	return scenarioData{
		instructors: []settlement.Instructor{
			suwonInstructor(),
			{ID: "inst-park", Name: "박지호", Home: place(region.Yongin)},
		},
		institutions: []settlement.Institution{
			{ID: "sch-suwon", Name: "수원초등학교", Category: allowance.CategoryGeneral, Region: place(region.Suwon)},
			{ID: "sch-osan", Name: "오산중학교", Category: allowance.CategoryGeneral, Region: place(region.Osan)},
			{ID: "sch-hwaseong", Name: "화성고등학교", Category: allowance.CategoryGeneral, Region: place(region.Hwaseong)},
		},
		trainings: []settlement.Training{
			{
				ID: "edu-601", Name: "AI 기초", InstitutionID: "sch-osan", Status: "CONFIRMED",
				SchoolLevel: allowance.SchoolLevelMiddle, StudentCount: 12,
				Assignments: []settlement.Assignment{
					session("inst-kim", allowance.RoleMain, "2025-03-11", 2),
					session("inst-park", allowance.RoleAssistant, "2025-03-11", 2),
				},
			},
			{
				ID: "edu-602", Name: "드론 실습", InstitutionID: "sch-hwaseong", Status: "ENDED",
				SchoolLevel: allowance.SchoolLevelHigh, SpecialEducation: true,
				Assignments: []settlement.Assignment{afternoon, mentoring},
			},
			{
				ID: "edu-603", Name: "과학 축제", InstitutionID: "sch-suwon", Status: "CONFIRMED",
				Assignments: []settlement.Assignment{weekendEvent},
			},
			{
				ID: "edu-604", Name: "방과후 코딩", InstitutionID: "sch-suwon", Status: "PENDING",
				Assignments: []settlement.Assignment{session("inst-kim", allowance.RoleMain, "2025-03-20", 3)},
			},
		},
	}
}
