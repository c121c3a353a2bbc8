package chart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/meridian-health/chartcore/pkg/annotation"
	"github.com/meridian-health/chartcore/pkg/common/logger"
	"github.com/meridian-health/chartcore/pkg/common/models"
	"github.com/meridian-health/chartcore/pkg/export"
)

type HTTPHandler struct {
	workspace *Workspace
	maxBody   int64
}

func NewHTTPHandler(workspace *Workspace, maxBody int64) *HTTPHandler {
	return &HTTPHandler{workspace: workspace, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/patients", h.handleCreatePatient).Methods(http.MethodPost)
	router.HandleFunc("/patients", h.handleListPatients).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}", h.handleGetPatient).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/select", h.handleSelectPatient).Methods(http.MethodPost)
	router.HandleFunc("/patients/{id}/export", h.handleExportPatient).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/fhir", h.handleExportFHIR).Methods(http.MethodGet)

	router.HandleFunc("/chart/issues/{bodyPartId}", h.handleUpdateIssue).Methods(http.MethodPut)
	router.HandleFunc("/chart/issues/{bodyPartId}/{noteId}", h.handleRemoveIssue).Methods(http.MethodDelete)
	router.HandleFunc("/chart/vitals/{field}", h.handleUpdateVital).Methods(http.MethodPut)
	router.HandleFunc("/chart/goals", h.handleSetGoals).Methods(http.MethodPut)
	router.HandleFunc("/chart/careplan", h.handleSetCarePlan).Methods(http.MethodPut)
	router.HandleFunc("/chart/draft-items", h.handleAddDraftItem).Methods(http.MethodPost)
	router.HandleFunc("/chart/draft-items/{index}", h.handleRemoveDraftItem).Methods(http.MethodDelete)
	router.HandleFunc("/chart/draft-items", h.handleClearDraftItems).Methods(http.MethodDelete)
	router.HandleFunc("/chart/state", h.handleGetState).Methods(http.MethodGet)

	router.HandleFunc("/chart/visits", h.handleSaveVisit).Methods(http.MethodPost)
	router.HandleFunc("/chart/archive", h.handleArchiveChart).Methods(http.MethodPost)
	router.HandleFunc("/chart/history", h.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/chart/bookmarks", h.handleAddBookmark).Methods(http.MethodPost)

	router.HandleFunc("/review/{index}", h.handleEnterReview).Methods(http.MethodPost)
	router.HandleFunc("/review", h.handleExitReview).Methods(http.MethodDelete)

	router.HandleFunc("/report/generate", h.handleGenerateReport).Methods(http.MethodPost)
	router.HandleFunc("/report", h.handleGetReport).Methods(http.MethodGet)

	router.HandleFunc("/annotations/{lens}", h.handleGetAnnotation).Methods(http.MethodGet)
	router.HandleFunc("/annotations/{lens}", h.handleSetAnnotation).Methods(http.MethodPut)
	router.HandleFunc("/annotations/{lens}/toggle", h.handleToggleMark).Methods(http.MethodPost)
	router.HandleFunc("/annotations/flush", h.handleFlushAnnotations).Methods(http.MethodPost)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Log.WithError(err).Warn("invalid chart payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core sentinels onto HTTP statuses: rejected review-mode
// writes are conflicts, missing references are not-found.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReviewing):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotReviewing):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNoPatient), errors.Is(err, ErrUnknownPatient), errors.Is(err, ErrNoSuchEntry):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error("chart operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *HTTPHandler) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var demo models.Demographics
	if !h.decode(w, r, &demo) {
		return
	}
	p := h.workspace.CreatePatient(demo)
	writeJSON(w, http.StatusCreated, p)
}

func (h *HTTPHandler) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.workspace.ExportPatient(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.workspace.ListPatients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *HTTPHandler) handleExportPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.workspace.ExportPatient(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := export.ExportPatient(p)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *HTTPHandler) handleExportFHIR(w http.ResponseWriter, r *http.Request) {
	p, err := h.workspace.ExportPatient(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	bundle, err := export.MapPatientToFHIRBundle(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/fhir+json")
	w.Write(bundle)
}

func (h *HTTPHandler) handleSelectPatient(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace.SelectPatient(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var issue models.Issue
	if !h.decode(w, r, &issue) {
		return
	}
	if err := h.workspace.UpdateIssue(mux.Vars(r)["bodyPartId"], issue); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.workspace.Store().Get())
}

func (h *HTTPHandler) handleRemoveIssue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.workspace.RemoveIssue(vars["bodyPartId"], vars["noteId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleUpdateVital(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.Store().UpdateVital(mux.Vars(r)["field"], req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleSetGoals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.Store().SetGoals(req.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleSetCarePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.Store().SetActiveCarePlan(req.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleAddDraftItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.Store().AddDraftItem(req.Item); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleRemoveDraftItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	if err := h.workspace.Store().RemoveDraftItem(index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleClearDraftItems(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace.Store().ClearDraftItems(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspace.Store().Get())
}

func (h *HTTPHandler) handleSaveVisit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.SaveVisit(req.Summary); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *HTTPHandler) handleArchiveChart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.ArchiveChart(req.Summary); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := h.workspace.CurrentPatientID()
	if id == "" {
		writeError(w, ErrNoPatient)
		return
	}
	writeJSON(w, http.StatusOK, h.workspace.History().ListFor(id))
}

func (h *HTTPHandler) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label      string `json:"label"`
		Lens       string `json:"lens"`
		ContentKey string `json:"content_key"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.workspace.AddBookmark(req.Label, req.Lens, req.ContentKey); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *HTTPHandler) handleEnterReview(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "invalid history index", http.StatusBadRequest)
		return
	}
	if err := h.workspace.EnterReviewAt(index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.workspace.Store().Get())
}

func (h *HTTPHandler) handleExitReview(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace.ExitReview(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.workspace.Store().Get())
}

func (h *HTTPHandler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	result, err := h.workspace.GenerateReport(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoPatient) || errors.Is(err, ErrReviewing) {
			writeError(w, err)
			return
		}
		logger.Log.WithError(err).Error("report generation failed")
		http.Error(w, "report generation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspace.CurrentReport())
}

func (h *HTTPHandler) handleGetAnnotation(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	writeJSON(w, http.StatusOK, h.workspace.GetAnnotation(mux.Vars(r)["lens"], key))
}

func (h *HTTPHandler) handleSetAnnotation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string            `json:"key"`
		Note *string           `json:"note,omitempty"`
		Mark *models.MarkState `json:"mark,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.workspace.SetAnnotation(mux.Vars(r)["lens"], req.Key, annotation.Patch{Note: req.Note, Mark: req.Mark})
	writeJSON(w, http.StatusOK, h.workspace.GetAnnotation(mux.Vars(r)["lens"], req.Key))
}

func (h *HTTPHandler) handleToggleMark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	mark := h.workspace.ToggleAnnotationMark(mux.Vars(r)["lens"], req.Key)
	writeJSON(w, http.StatusOK, map[string]models.MarkState{"mark": mark})
}

func (h *HTTPHandler) handleFlushAnnotations(w http.ResponseWriter, r *http.Request) {
	h.workspace.FlushAnnotations()
	w.WriteHeader(http.StatusNoContent)
}
