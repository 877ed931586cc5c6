package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// INSTRUCTOR HANDLERS
// =============================================================================

// ListInstructors returns all instructors.
// GET /api/instructors
func (h *Handler) ListInstructors(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListInstructors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instructors", err)
		return
	}
	dtos := make([]InstructorDTO, 0, len(list))
	for _, inst := range list {
		dtos = append(dtos, InstructorDTO{ID: inst.ID, Name: inst.Name, RegionFieldsDTO: toRegionFields(inst.Home)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertInstructor creates or replaces an instructor. The home region code
// is filled from the city/county name when it can be resolved.
// PUT /api/instructors/{id}
func (h *Handler) UpsertInstructor(w http.ResponseWriter, r *http.Request) {
	var req InstructorDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	inst := settlement.Instructor{ID: req.ID, Name: req.Name, Home: h.Resolver.Apply(req.toRegion())}
	if err := h.Store.SaveInstructor(r.Context(), inst); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save instructor", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, InstructorDTO{ID: inst.ID, Name: inst.Name, RegionFieldsDTO: toRegionFields(inst.Home)})
}

// DeleteInstructor removes an instructor.
// DELETE /api/instructors/{id}
func (h *Handler) DeleteInstructor(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteInstructor(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete instructor", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// INSTITUTION HANDLERS
// =============================================================================

// ListInstitutions returns all institutions.
// GET /api/institutions
func (h *Handler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListInstitutions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list institutions", err)
		return
	}
	dtos := make([]InstitutionDTO, 0, len(list))
	for _, inst := range list {
		dtos = append(dtos, toInstitutionDTO(inst))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertInstitution creates or replaces an institution.
// PUT /api/institutions/{id}
func (h *Handler) UpsertInstitution(w http.ResponseWriter, r *http.Request) {
	var req InstitutionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	inst := settlement.Institution{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Category: allowance.Category(req.Category),
		Region:   h.Resolver.Apply(req.toRegion()),
	}
	if err := h.Store.SaveInstitution(r.Context(), inst); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save institution", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, toInstitutionDTO(inst))
}

// DeleteInstitution removes an institution.
// DELETE /api/institutions/{id}
func (h *Handler) DeleteInstitution(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteInstitution(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete institution", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func toInstitutionDTO(inst settlement.Institution) InstitutionDTO {
	return InstitutionDTO{
		ID:              inst.ID,
		Name:            inst.Name,
		Category:        string(inst.Category),
		RegionFieldsDTO: toRegionFields(inst.Region),
	}
}

// =============================================================================
// TRAINING HANDLERS
// =============================================================================

// ListTrainings returns all trainings with their assignments.
// GET /api/trainings
func (h *Handler) ListTrainings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.Trainings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trainings", err)
		return
	}
	dtos := make([]TrainingDTO, 0, len(list))
	for _, t := range list {
		dtos = append(dtos, toTrainingDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTraining returns one training.
// GET /api/trainings/{id}
func (h *Handler) GetTraining(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.Training(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Training not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrainingDTO(t))
}

// UpsertTraining creates or replaces a training and all its assignments.
// PUT /api/trainings/{id}
func (h *Handler) UpsertTraining(w http.ResponseWriter, r *http.Request) {
	var req TrainingDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")

	t, err := req.toTraining()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid training", err)
		return
	}
	if err := h.Store.SaveTraining(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save training", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, toTrainingDTO(t))
}

// DeleteTraining removes a training and its assignments.
// DELETE /api/trainings/{id}
func (h *Handler) DeleteTraining(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteTraining(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete training", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (req TrainingDTO) toTraining() (settlement.Training, error) {
	if strings.TrimSpace(req.Name) == "" || req.InstitutionID == "" {
		return settlement.Training{}, fmt.Errorf("name and institution_id are required")
	}
	t := settlement.Training{
		ID:               req.ID,
		Name:             req.Name,
		InstitutionID:    req.InstitutionID,
		Status:           strings.ToUpper(strings.TrimSpace(req.Status)),
		SpecialEducation: req.SpecialEducation,
		RemoteIsland:     req.RemoteIsland,
		SchoolLevel:      allowance.SchoolLevel(strings.ToLower(req.SchoolLevel)),
		StudentCount:     req.StudentCount,
		Assignments:      make([]settlement.Assignment, 0, len(req.Assignments)),
	}
	for i, a := range req.Assignments {
		date, err := generic.ParseDate(a.Date)
		if err != nil {
			return settlement.Training{}, fmt.Errorf("assignment %d: invalid date %q", i, a.Date)
		}
		role := allowance.Role(strings.ToLower(a.Role))
		if role != allowance.RoleMain && role != allowance.RoleAssistant {
			return settlement.Training{}, fmt.Errorf("assignment %d: unknown role %q", i, a.Role)
		}
		if a.InstructorID == "" || a.Sessions < 0 {
			return settlement.Training{}, fmt.Errorf("assignment %d: instructor_id and non-negative sessions are required", i)
		}
		t.Assignments = append(t.Assignments, settlement.Assignment{
			InstructorID:       a.InstructorID,
			Role:               role,
			Date:               date,
			Start:              a.Start,
			End:                a.End,
			Sessions:           a.Sessions,
			WeekendSessions:    a.WeekendSessions,
			EventParticipation: a.EventParticipation,
			EventHours:         generic.Hours(a.EventHours),
			MentoringSessions:  a.MentoringSessions,
			MentoringHours:     generic.Hours(a.MentoringHours),
			EquipmentTransport: a.EquipmentTransport,
		})
	}
	return t, nil
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns all holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.GetAllHolidays(r.Context(), r.URL.Query().Get("company_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, HolidayDTO{
			ID:        hol.ID,
			CompanyID: hol.CompanyID,
			Date:      hol.Date.String(),
			Name:      hol.Name,
			Recurring: hol.Recurring,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday creates a new holiday. Holidays pay the weekend allowance.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		ID:        "holiday-" + uuid.NewString(),
		CompanyID: req.CompanyID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "holiday": holiday.ID})
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddDefaultHolidays adds the fixed-date Korean public holidays.
// POST /api/holidays/defaults
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	defaults := []struct {
		date string
		name string
	}{
		{"2000-01-01", "신정"},
		{"2000-03-01", "삼일절"},
		{"2000-05-05", "어린이날"},
		{"2000-06-06", "현충일"},
		{"2000-08-15", "광복절"},
		{"2000-10-03", "개천절"},
		{"2000-10-09", "한글날"},
		{"2000-12-25", "성탄절"},
	}
	for _, d := range defaults {
		holiday := generic.Holiday{
			ID:        "holiday-" + uuid.NewString(),
			CompanyID: r.URL.Query().Get("company_id"),
			Date:      generic.MustParseDate(d.date),
			Name:      d.name,
			Recurring: true,
		}
		if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to add holidays", err)
			return
		}
	}
	h.recordsChanged()
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "count": len(defaults)})
}

// =============================================================================
// REGION HANDLERS
// =============================================================================

// ListRegions returns the known city/county codes.
// GET /api/regions
func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	all := region.All()
	dtos := make([]RegionDTO, 0, len(all))
	for _, cc := range all {
		dtos = append(dtos, RegionDTO{Code: string(cc.Code), Name: cc.Name, Lat: cc.Lat, Lng: cc.Lng})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveRegion maps free text to a city/county code.
// GET /api/regions/resolve?name=
func (h *Handler) ResolveRegion(w http.ResponseWriter, r *http.Request) {
	code, err := h.Resolver.ResolveRegion(r.URL.Query().Get("name"))
	if err != nil {
		writeDomainError(w, "Region not resolved", err)
		return
	}
	writeJSON(w, http.StatusOK, RegionDTO{Code: string(code), Name: code.Name()})
}

// GetDistance returns the distance between two regions, given as codes or
// names.
// GET /api/regions/distance?from=&to=
func (h *Handler) GetDistance(w http.ResponseWriter, r *http.Request) {
	from, err := h.regionParam(r.URL.Query().Get("from"))
	if err != nil {
		writeDomainError(w, "Invalid from region", err)
		return
	}
	to, err := h.regionParam(r.URL.Query().Get("to"))
	if err != nil {
		writeDomainError(w, "Invalid to region", err)
		return
	}
	res, err := h.Distances.Distance(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Distance lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, DistanceDTO{
		From:   string(from),
		To:     string(to),
		Km:     res.Km.Float64(),
		Found:  res.Found,
		Source: res.Source,
	})
}

// ListDistances returns the administrator-maintained distance table.
// GET /api/regions/distances
func (h *Handler) ListDistances(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.DistanceMatrix(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load distances", err)
		return
	}
	entries := m.Entries()
	dtos := make([]DistanceDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, DistanceDTO{From: string(e.From), To: string(e.To), Km: e.Km.Float64(), Found: true, Source: region.SourceMatrix})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveDistance stores one pair in the distance table and reloads the matrix.
// PUT /api/regions/distances
func (h *Handler) SaveDistance(w http.ResponseWriter, r *http.Request) {
	var req DistanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := h.regionParam(req.From)
	if err != nil {
		writeDomainError(w, "Invalid from region", err)
		return
	}
	to, err := h.regionParam(req.To)
	if err != nil {
		writeDomainError(w, "Invalid to region", err)
		return
	}
	if req.Km < 0 {
		writeError(w, http.StatusBadRequest, "Distance must not be negative", nil)
		return
	}

	if err := h.Store.SaveDistance(r.Context(), from, to, generic.Km(req.Km)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save distance", err)
		return
	}
	if err := h.ReloadDistances(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload distances", err)
		return
	}
	h.recordsChanged()
	writeJSON(w, http.StatusOK, DistanceDTO{From: string(from), To: string(to), Km: req.Km, Found: true, Source: region.SourceMatrix})
}

// regionParam accepts a region code or a name the resolver understands.
func (h *Handler) regionParam(v string) (region.Code, error) {
	if c := region.Code(strings.ToUpper(strings.TrimSpace(v))); c.Valid() {
		return c, nil
	}
	return h.Resolver.ResolveRegion(v)
}
