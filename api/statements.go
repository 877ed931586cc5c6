package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/statement"
)

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

const csvContentType = "text/csv; charset=utf-8"

// statementRequest is the query shared by the statement endpoints:
// period parameters plus ?eligible_only and repeated ?instructor_id.
type statementRequest struct {
	period generic.Period
	opts   statement.Options
	format string
}

func parseStatementRequest(r *http.Request) (statementRequest, error) {
	period, err := parsePeriod(r)
	if err != nil {
		return statementRequest{}, err
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "":
		format = "json"
	case "json", "csv", "xlsx":
	default:
		return statementRequest{}, fmt.Errorf("unsupported format %q", format)
	}
	return statementRequest{
		period: period,
		format: format,
		opts: statement.Options{
			EligibleOnly:  boolParam(r, "eligible_only"),
			InstructorIDs: r.URL.Query()["instructor_id"],
		},
	}, nil
}

func (h *Handler) buildStatement(req statementRequest) []statement.Row {
	return statement.Build(h.Service.RowsFor(req.period), req.opts)
}

// render encodes rows in a file format and returns the body, extension and
// content type.
func render(format string, rows []statement.Row) ([]byte, string, string, error) {
	var buf bytes.Buffer
	switch format {
	case "xlsx":
		if err := statement.WriteXLSX(&buf, rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "xlsx", statement.XLSXContentType, nil
	default:
		if err := statement.WriteCSV(&buf, rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "csv", csvContentType, nil
	}
}

func statementName(period generic.Period) string {
	if period.IsOpen() {
		return "statement_all"
	}
	start, end := "begin", "end"
	if !period.Start.IsZero() {
		start = period.Start.String()
	}
	if !period.End.IsZero() {
		end = period.End.String()
	}
	return "statement_" + start + "_" + end
}

// GetStatement returns the per-instructor statement as JSON, CSV or XLSX.
// GET /api/statements
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	req, err := parseStatementRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid statement request", err)
		return
	}
	rows := h.buildStatement(req)

	if req.format == "json" {
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, statementJSON(row))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"columns": statement.Headers(),
			"rows":    out,
			"totals":  statementJSON(statement.Totals(rows)),
		})
		return
	}

	body, ext, contentType, err := render(req.format, rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render statement", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, statementName(req.period), ext))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ArchiveStatement renders the statement and stores it with the archiver.
// POST /api/statements/archive
func (h *Handler) ArchiveStatement(w http.ResponseWriter, r *http.Request) {
	if h.Archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "Statement archive is not configured", nil)
		return
	}
	req, err := parseStatementRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid statement request", err)
		return
	}
	if req.format == "json" {
		req.format = "xlsx"
	}

	body, ext, contentType, err := render(req.format, h.buildStatement(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render statement", err)
		return
	}
	obj, err := h.Archiver.Store(r.Context(), statementName(req.period), ext, contentType, body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to archive statement", err)
		return
	}
	h.Logger.Info("statement exported", zap.String("key", obj.Key), zap.String("format", req.format))
	writeJSON(w, http.StatusCreated, obj)
}

// ServeFile streams an archived statement written by the local sink.
// GET /files/{key}
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	if h.Files == nil {
		writeError(w, http.StatusNotFound, "File not found", nil)
		return
	}
	path, err := h.Files.Open(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found", err)
		return
	}
	http.ServeFile(w, r, path)
}

func statementJSON(r statement.Row) map[string]any {
	m := make(map[string]any, len(statement.Columns)+1)
	for _, c := range statement.Columns {
		m[c.Header] = c.Value(r)
	}
	if r.InstructorID != "" {
		m["instructor_id"] = r.InstructorID
	}
	return m
}
