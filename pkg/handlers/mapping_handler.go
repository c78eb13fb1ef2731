package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
	"github.com/ekaya-inc/ekaya-mapper/pkg/tabular"
)

// maxUploadBytes bounds source and knowledge-base uploads.
const maxUploadBytes = 10 << 20

// ============================================================================
// Request/Response Types
// ============================================================================

// SelectRequest for POST /api/sessions/{sid}/selections
type SelectRequest struct {
	Header string `json:"header"`
	Target string `json:"target"`
}

// SelectResponse for POST /api/sessions/{sid}/selections
type SelectResponse struct {
	State          services.SessionState `json:"state"`
	FeedbackErrors []string              `json:"feedback_errors,omitempty"`
}

// RestoreRequest for POST /api/sessions/{sid}/restore
type RestoreRequest struct {
	Rows []models.MappingRow `json:"rows"`
}

// AddPropertyRequest for POST /api/sessions/{sid}/properties
type AddPropertyRequest struct {
	DisplayName string `json:"display_name"`
}

// SuggestResponse for POST /api/sessions/{sid}/suggest
type SuggestResponse struct {
	Report        *services.RunReport   `json:"report"`
	ProviderError string                `json:"provider_error,omitempty"`
	State         services.SessionState `json:"state"`
}

// ExportResponse for GET /api/sessions/{sid}/export
type ExportResponse struct {
	Narrow      string   `json:"narrow"`
	Long        string   `json:"long"`
	Diagnostics []string `json:"diagnostics"`
}

// UploadFileResponse is the outcome for one delivered file.
type UploadFileResponse struct {
	FileName string `json:"file_name"`
	JobID    string `json:"job_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// ExportFileNames are the download names of the export files.
type ExportFileNames struct {
	Narrow string
	Long   string
}

// MappingHandler exposes mapping sessions over HTTP.
type MappingHandler struct {
	sessions *services.SessionRegistry
	files    ExportFileNames
	logger   *zap.Logger
}

// NewMappingHandler creates a new mapping handler.
func NewMappingHandler(sessions *services.SessionRegistry, files ExportFileNames, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		sessions: sessions,
		files:    files,
		logger:   logger.Named("mapping-handler"),
	}
}

// RegisterRoutes registers the mapping handler's routes on the given mux.
func (h *MappingHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/sessions"

	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{sid}", h.Get)
	mux.HandleFunc("DELETE "+base+"/{sid}", h.Delete)

	mux.HandleFunc("POST "+base+"/{sid}/source", h.LoadSource)
	mux.HandleFunc("POST "+base+"/{sid}/knowledge", h.LoadKnowledge)
	mux.HandleFunc("POST "+base+"/{sid}/schema", h.LoadSchema)
	mux.HandleFunc("POST "+base+"/{sid}/properties", h.AddProperty)

	mux.HandleFunc("POST "+base+"/{sid}/suggest", h.Suggest)
	mux.HandleFunc("POST "+base+"/{sid}/selections", h.Select)
	mux.HandleFunc("POST "+base+"/{sid}/restore", h.Restore)

	mux.HandleFunc("GET "+base+"/{sid}/export", h.Export)
	mux.HandleFunc("GET "+base+"/{sid}/export/{file}", h.Download)
	mux.HandleFunc("POST "+base+"/{sid}/upload", h.Upload)
}

// session resolves the {sid} path value, writing the error response on failure.
func (h *MappingHandler) session(w http.ResponseWriter, r *http.Request) (*services.MappingSession, bool) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return nil, false
	}
	return s, true
}

func (h *MappingHandler) writeData(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *MappingHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// Create handles POST /api/sessions
func (h *MappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	h.logger.Info("Session created", zap.String("session_id", s.ID().String()))
	h.writeData(w, http.StatusCreated, s.State())
}

// Get handles GET /api/sessions/{sid}
func (h *MappingHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeData(w, http.StatusOK, s.State())
}

// Delete handles DELETE /api/sessions/{sid}
func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.sessions.Delete(id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readText reads a raw file upload from the request body.
func (h *MappingHandler) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			if err := ErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("File exceeds %d bytes", maxErr.Limit)); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return "", false
		}
		h.badRequest(w, "invalid_request", "Failed to read request body")
		return "", false
	}
	return string(body), true
}

// LoadSource handles POST /api/sessions/{sid}/source
// The body is the source file text.
func (h *MappingHandler) LoadSource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	text, ok := h.readText(w, r)
	if !ok {
		return
	}
	st, err := s.LoadSource(text)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusOK, st)
}

// LoadKnowledge handles POST /api/sessions/{sid}/knowledge
// The body is a knowledge-base file with anchor, positive and negative columns.
func (h *MappingHandler) LoadKnowledge(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	text, ok := h.readText(w, r)
	if !ok {
		return
	}
	st, err := s.LoadKnowledge(text)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusOK, st)
}

// LoadSchema handles POST /api/sessions/{sid}/schema
func (h *MappingHandler) LoadSchema(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.LoadSchema(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusOK, st)
}

// AddProperty handles POST /api/sessions/{sid}/properties
func (h *MappingHandler) AddProperty(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AddPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}
	if req.DisplayName == "" {
		h.badRequest(w, "missing_display_name", "display_name is required")
		return
	}
	st, err := s.AddProperty(r.Context(), req.DisplayName)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusCreated, st)
}

// Suggest handles POST /api/sessions/{sid}/suggest
// A provider failure still returns 200 with the knowledge-phase results applied.
func (h *MappingHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	report, st, err := s.Suggest(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	resp := SuggestResponse{Report: report, State: st}
	if report.ProviderErr != nil {
		resp.ProviderError = report.ProviderErr.Error()
	}
	h.writeData(w, http.StatusOK, resp)
}

// Select handles POST /api/sessions/{sid}/selections
func (h *MappingHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}
	if req.Header == "" {
		h.badRequest(w, "missing_header", "header is required")
		return
	}
	st, feedbackErrs, err := s.Select(r.Context(), req.Header, req.Target)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	resp := SelectResponse{State: st}
	for _, fe := range feedbackErrs {
		resp.FeedbackErrors = append(resp.FeedbackErrors, fe.Error())
	}
	h.writeData(w, http.StatusOK, resp)
}

// Restore handles POST /api/sessions/{sid}/restore
func (h *MappingHandler) Restore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}
	st, err := s.Restore(req.Rows)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusOK, st)
}

// Export handles GET /api/sessions/{sid}/export
func (h *MappingHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := s.Export()
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeData(w, http.StatusOK, ExportResponse{
		Narrow:      result.NarrowCSV(),
		Long:        result.LongCSV(),
		Diagnostics: result.Diagnostics,
	})
}

// Download handles GET /api/sessions/{sid}/export/{file}
// file is one of narrow.csv, long.csv, mapped.csv or triplets.csv.
func (h *MappingHandler) Download(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var (
		name, content string
		err           error
	)
	switch r.PathValue("file") {
	case "narrow.csv":
		var result *services.ExportResult
		if result, err = s.Export(); err == nil {
			name, content = h.files.Narrow, result.NarrowCSV()
		}
	case "long.csv":
		var result *services.ExportResult
		if result, err = s.Export(); err == nil {
			name, content = h.files.Long, result.LongCSV()
		}
	case "mapped.csv":
		var t *tabular.Table
		if t, err = s.MappedData(); err == nil {
			name, content = "mapped_data.csv", t.Encode()
		}
	case "triplets.csv":
		name = "triplets.csv"
		content, err = s.TripletExport()
	default:
		if err := ErrorResponse(w, http.StatusNotFound, "unknown_export", "Unknown export file"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, content); err != nil {
		h.logger.Error("Failed to write export", zap.Error(err))
	}
}

// Upload handles POST /api/sessions/{sid}/upload
// Each file runs its own pipeline; a failure of one does not stop the other.
func (h *MappingHandler) Upload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	results, err := s.Upload(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	files := make([]UploadFileResponse, 0, len(results))
	failed := 0
	for _, res := range results {
		f := UploadFileResponse{FileName: res.FileName, JobID: res.JobID}
		if res.Err != nil {
			f.Error = res.Err.Error()
			failed++
		}
		files = append(files, f)
	}

	resp := ApiResponse{Success: failed == 0, Data: files}
	if failed > 0 {
		resp.Message = fmt.Sprintf("%d of %d files failed to upload", failed, len(files))
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
