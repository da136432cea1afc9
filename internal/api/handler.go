// Package api exposes the blueprint service over HTTP and a websocket live
// channel.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/p-n-ai/pai-matrix/internal/bank"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/matrix"
	"github.com/p-n-ai/pai-matrix/internal/schema"
	"github.com/p-n-ai/pai-matrix/internal/store"
)

// maxBodyBytes caps request bodies, imports included.
const maxBodyBytes = 8 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the /v1 API.
type Handler struct {
	svc       *matrix.Service
	validator *schema.Validator
	origins   []string
}

// NewHandler creates the API handler. origins are the allowed browser
// origins; they also gate websocket upgrades.
func NewHandler(svc *matrix.Service, validator *schema.Validator, origins []string) *Handler {
	return &Handler{svc: svc, validator: validator, origins: origins}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/allocate", h.handleAllocate)
	mux.HandleFunc("GET /v1/grades", h.handleGrades)
	mux.HandleFunc("GET /v1/exams", h.handleExams)

	mux.HandleFunc("POST /v1/blueprints", h.handleCreate)
	mux.HandleFunc("GET /v1/blueprints", h.handleList)
	mux.HandleFunc("GET /v1/blueprints/{id}", h.handleGet)
	mux.HandleFunc("DELETE /v1/blueprints/{id}", h.handleDelete)
	mux.HandleFunc("PATCH /v1/blueprints/{id}/rows", h.handleUpdateRows)
	mux.HandleFunc("POST /v1/blueprints/{id}/regenerate", h.handleRegenerate)
	mux.HandleFunc("POST /v1/blueprints/{id}/distribute", h.handleDistribute)
	mux.HandleFunc("GET /v1/blueprints/{id}/suggest", h.handleSuggest)
	mux.HandleFunc("GET /v1/blueprints/{id}/export.xlsx", h.handleExportWorkbook)
	mux.HandleFunc("GET /v1/blueprints/{id}/export.json", h.handleExportJSON)
	mux.HandleFunc("GET /v1/blueprints/{id}/live", h.handleLive)

	mux.HandleFunc("POST /v1/import", h.handleImport)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req matrix.AllocateRequest
	if !h.decode(w, r, schema.AllocateRequest, &req) {
		return
	}
	res, err := h.svc.Allocate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"grades": h.svc.Grades()})
}

func (h *Handler) handleExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.Exams()
	if err != nil {
		writeError(w, err)
		return
	}
	if exams == nil {
		exams = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exams": exams})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req matrix.CreateRequest
	if !h.decode(w, r, schema.CreateBlueprint, &req) {
		return
	}
	bp, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blueprints": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	bp, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rowEditsRequest struct {
	Version int              `json:"version"`
	Edits   []matrix.RowEdit `json:"edits"`
}

func (h *Handler) handleUpdateRows(w http.ResponseWriter, r *http.Request) {
	var req rowEditsRequest
	if !h.decode(w, r, schema.RowEdits, &req) {
		return
	}
	bp, err := h.svc.UpdateRows(r.Context(), r.PathValue("id"), req.Version, req.Edits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	bp, err := h.svc.Regenerate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (h *Handler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req matrix.DistributeRequest
	if !h.decodeOptional(w, r, schema.Distribute, &req) {
		return
	}
	bp, err := h.svc.Distribute(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Suggest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportWorkbook(r.Context(), id, &buf); err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, xlsxContentType, bp.ExamName+".xlsx", buf.Bytes())
}

func (h *Handler) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportJSON(r.Context(), id, &buf); err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, "application/json", bp.ExamName+".json", buf.Bytes())
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	bp, err := h.svc.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bp)
}

// decode reads the body, validates it against the named schema and
// unmarshals it into dst. It writes the error response and returns false
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return false
	}
	return h.decodeBytes(w, body, name, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	return h.decodeBytes(w, body, name, dst)
}

func (h *Handler) decodeBytes(w http.ResponseWriter, body []byte, name string, dst any) bool {
	if err := h.validator.Validate(name, body); err != nil {
		writeError(w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var ve *schema.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, matrix.ErrInvalidInput),
		errors.Is(err, blueprint.ErrUnknownRatio),
		errors.Is(err, bank.ErrBadExam):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, bank.ErrNoGrade), errors.Is(err, matrix.ErrNoBank):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error()}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
