/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes settlements, settlement rows, overrides, policies and statements
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the settlement service.

ENDPOINTS:
  Settlements:
    GET    /api/settlements                    All instructors (?from&to | ?month | ?year)
    GET    /api/settlements/{instructorID}     One instructor's hierarchy
    GET    /api/snapshot                       Current run summary and warnings
    POST   /api/recompute                      Full recompute now

  Rows:
    GET    /api/rows                           Settlement rows (?instructor_id&training_id&eligible_only)
    PUT    /api/rows/{id}/override             Set a manual override
    DELETE /api/rows/{id}/override             Remove it

  Policies:
    GET    /api/policies                       Active policies with versions
    GET    /api/policies/{kind}                One policy
    PUT    /api/policies/{kind}                Replace (validated, versioned)
    DELETE /api/policies/{kind}                Back to the compiled-in default

  Statements (statements.go), directory and regions (directory.go),
  scenarios (scenarios.go), websocket events (hub.go).

ARCHITECTURE:
  Handler holds the service, the policy store and the SQLite store that
  backs the directory. Reads are served from the service's current
  snapshot; writes to source records ask the scheduler for a recompute.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (generic.IsClientError)
  - 404: Resource not found, no data for the instructor/period
  - 503: Optional collaborator not configured
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/archive"
	"github.com/warp/settlement-engine/factory"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators of a Handler. Archiver, Files, Matrix, Hub,
// Scheduler and Logger may be nil.
type Deps struct {
	Service   *settlement.Service
	Policies  *policy.Store
	Store     *sqlite.Store
	Archiver  *archive.Archiver
	Files     *archive.LocalSink
	Resolver  *region.Resolver
	Distances region.DistanceProvider
	Matrix    *region.MatrixProvider
	Hub       *Hub
	Scheduler *RecomputeScheduler
	Logger    *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Deps
	PolicyFactory *factory.PolicyFactory

	// Track currently loaded scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = region.NewResolver()
	}
	if deps.Distances == nil {
		deps.Distances = region.NewMatrixProvider(region.DefaultMatrix())
	}
	return &Handler{Deps: deps, PolicyFactory: factory.NewPolicyFactory()}
}

// ReloadDistances layers the stored distance table over the default
// matrix and swaps it into the matrix provider.
func (h *Handler) ReloadDistances(ctx context.Context) error {
	if h.Matrix == nil {
		return nil
	}
	stored, err := h.Store.DistanceMatrix(ctx)
	if err != nil {
		return fmt.Errorf("failed to load distance table: %w", err)
	}
	h.Matrix.Replace(region.DefaultMatrix().Overlay(stored))
	h.Logger.Info("distance table loaded", zap.Int("stored_pairs", stored.Len()))
	return nil
}

// recordsChanged asks for a recompute after a source record write.
func (h *Handler) recordsChanged() {
	if h.Scheduler != nil {
		h.Scheduler.Trigger()
	}
}

// Health reports liveness and whether a settlement has been published.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if snap := h.Service.Snapshot(); snap != nil {
		resp["run_id"] = snap.RunID
		resp["computed_at"] = snap.ComputedAt
	}
	if h.Hub != nil {
		resp["ws_clients"] = h.Hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ListSettlements returns every instructor's hierarchy restricted to a period.
// GET /api/settlements
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	list := h.Service.Settlements(period)
	dtos := make([]InstructorSettlementDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, toSettlementDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period.String(), "settlements": dtos})
}

// GetSettlement returns one instructor's hierarchy.
// GET /api/settlements/{instructorID}
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	s, err := h.Service.Settlement(chi.URLParam(r, "instructorID"), period)
	if err != nil {
		writeDomainError(w, "No data for this instructor/period", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// GetSnapshot returns the current run summary.
// GET /api/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.Service.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, "No settlement computed yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// Recompute runs a full recompute synchronously.
// POST /api/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Recompute(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// =============================================================================
// ROW HANDLERS
// =============================================================================

// ListRows returns settlement rows, optionally filtered.
// GET /api/rows
func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	q := r.URL.Query()
	instructorID := q.Get("instructor_id")
	trainingID := q.Get("training_id")
	eligibleOnly := boolParam(r, "eligible_only")
	overriddenOnly := boolParam(r, "overridden")

	rows := settlement.FilterRows(h.Service.RowsFor(period), func(row settlement.Row) bool {
		switch {
		case instructorID != "" && row.InstructorID != instructorID:
			return false
		case trainingID != "" && row.EducationID != trainingID:
			return false
		case eligibleOnly && !row.Eligible:
			return false
		case overriddenOnly && row.Override == nil:
			return false
		}
		return true
	})

	dtos := make([]RowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toRowDTO(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": dtos})
}

// SetOverride stores a manual override for one row.
// PUT /api/rows/{id}/override
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = actor(r)
	}
	row, err := h.Service.SetOverride(r.Context(), chi.URLParam(r, "id"), req.toOverride())
	if err != nil {
		writeDomainError(w, "Failed to set override", err)
		return
	}
	writeJSON(w, http.StatusOK, toRowDTO(row))
}

// RemoveOverride restores a row's computed values.
// DELETE /api/rows/{id}/override
func (h *Handler) RemoveOverride(w http.ResponseWriter, r *http.Request) {
	row, err := h.Service.RemoveOverride(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to remove override", err)
		return
	}
	writeJSON(w, http.StatusOK, toRowDTO(row))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all active policies.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	active := h.Policies.Snapshot(r.Context())
	dtos := make([]PolicyDTO, 0, len(policy.Kinds))
	for _, kind := range policy.Kinds {
		dto, err := h.policyDTO(r.Context(), kind, active)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode policy", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": dtos, "warnings": active.Diagnostics.Warnings})
}

// GetPolicy returns one active policy.
// GET /api/policies/{kind}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	kind, err := policy.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, "Unknown policy", err)
		return
	}
	dto, err := h.policyDTO(r.Context(), kind, h.Policies.Snapshot(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode policy", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// SetPolicy validates and stores a new policy version. The body is the
// policy payload itself.
// PUT /api/policies/{kind}
func (h *Handler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	kind, err := policy.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, "Unknown policy", err)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	if _, err := h.Policies.Set(r.Context(), kind, payload, actor(r)); err != nil {
		writeDomainError(w, "Failed to store policy", err)
		return
	}
	dto, err := h.policyDTO(r.Context(), kind, h.Policies.Snapshot(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode policy", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ResetPolicy deletes the stored policy so the default applies.
// DELETE /api/policies/{kind}
func (h *Handler) ResetPolicy(w http.ResponseWriter, r *http.Request) {
	kind, err := policy.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, "Unknown policy", err)
		return
	}
	if err := h.Policies.Reset(r.Context(), kind); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset policy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "kind": kind})
}

// policyDTO renders the active value of kind, normalized through the factory.
func (h *Handler) policyDTO(ctx context.Context, kind policy.Kind, active policy.Active) (PolicyDTO, error) {
	var payload any
	switch kind {
	case policy.KindAllowance:
		payload = h.PolicyFactory.ToAllowanceJSON(active.Allowance)
	case policy.KindTravelExpense:
		payload = h.PolicyFactory.ToTravelExpenseJSON(active.TravelExpense)
	case policy.KindCountingMode:
		payload = h.PolicyFactory.ToCountingModeJSON(active.CountingMode)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return PolicyDTO{}, err
	}

	dto := PolicyDTO{Kind: string(kind), Version: active.Versions[kind], Payload: raw}
	if dto.Version > 0 {
		if rec, err := h.Policies.Record(ctx, kind); err == nil {
			updatedAt := rec.UpdatedAt
			dto.UpdatedAt = &updatedAt
			dto.UpdatedBy = rec.UpdatedBy
		}
	}
	return dto, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error kind.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsClientError(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}

// parsePeriod reads ?from=YYYY-MM-DD&to=YYYY-MM-DD, or ?month=YYYY-MM, or
// ?year=YYYY. No parameters means the open period.
func parsePeriod(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	if m := q.Get("month"); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			return generic.Period{}, fmt.Errorf("month %q: %w", m, generic.ErrInvalidPeriod)
		}
		return generic.MonthPeriod(t.Year(), t.Month()), nil
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 1 {
			return generic.Period{}, fmt.Errorf("year %q: %w", y, generic.ErrInvalidPeriod)
		}
		return generic.YearPeriod(year), nil
	}

	var p generic.Period
	var err error
	if from := q.Get("from"); from != "" {
		if p.Start, err = generic.ParseDate(from); err != nil {
			return generic.Period{}, fmt.Errorf("from %q: %w", from, generic.ErrInvalidPeriod)
		}
	}
	if to := q.Get("to"); to != "" {
		if p.End, err = generic.ParseDate(to); err != nil {
			return generic.Period{}, fmt.Errorf("to %q: %w", to, generic.ErrInvalidPeriod)
		}
	}
	return p, p.Validate()
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return v
}

// actor names who made a change, from the X-User header.
func actor(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User")); u != "" {
		return u
	}
	return "api"
}
