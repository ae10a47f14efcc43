package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/store"
)

type MedicationHandler struct {
	store   *store.MedicationStore
	ownerID string
	logger  *slog.Logger
}

func NewMedicationHandler(s *store.MedicationStore, ownerID string, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{store: s, ownerID: ownerID, logger: logger}
}

type createMedicationRequest struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
	Notes  string `json:"notes"`
}

// Create handles POST /api/medications
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMedicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	med, err := h.store.Create(r.Context(), h.ownerID, req.Name, strings.TrimSpace(req.Dosage), req.Notes)
	if err != nil {
		h.logger.Error("create medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create medication")
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

// List handles GET /api/medications
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	meds, err := h.store.List(r.Context(), h.ownerID)
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

// Logs handles GET /api/medications/{id}/logs
func (h *MedicationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	med, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if med == nil || med.OwnerID != h.ownerID {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}

	logs, err := h.store.ListLogs(r.Context(), med.ID)
	if err != nil {
		h.logger.Error("list medication logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if logs == nil {
		logs = []model.MedicationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
