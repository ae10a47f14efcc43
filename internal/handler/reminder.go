package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/reminder"
	"github.com/dukerupert/nudge/internal/store"
)

const defaultSnoozeMinutes = 5

type ReminderHandler struct {
	store         *store.ReminderStore
	evaluator     *reminder.Evaluator
	feedback      *reminder.Feedback
	ownerID       string
	snoozeMinutes int
	validate      *validator.Validate
	now           func() time.Time
	logger        *slog.Logger
}

func NewReminderHandler(rs *store.ReminderStore, ev *reminder.Evaluator, fb *reminder.Feedback, ownerID string, snoozeMinutes int, logger *slog.Logger) *ReminderHandler {
	if snoozeMinutes <= 0 {
		snoozeMinutes = defaultSnoozeMinutes
	}
	return &ReminderHandler{
		store:         rs,
		evaluator:     ev,
		feedback:      fb,
		ownerID:       ownerID,
		snoozeMinutes: snoozeMinutes,
		validate:      model.NewValidator(),
		now:           time.Now,
		logger:        logger,
	}
}

type createReminderRequest struct {
	Title          string   `json:"title" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	ScheduledTime  string   `json:"scheduled_time" validate:"required,datetime=15:04"`
	IsRecurring    bool     `json:"is_recurring"`
	Weekdays       []string `json:"weekdays" validate:"dive,weekday"`
	Kind           string   `json:"kind" validate:"omitempty,oneof=generic medication"`
	LinkedEntityID *string  `json:"linked_entity_id"`
	IsActive       *bool    `json:"is_active"`
}

type updateReminderRequest struct {
	Title          *string   `json:"title" validate:"omitnil,min=1,max=200"`
	Description    *string   `json:"description" validate:"omitnil,max=2000"`
	ScheduledTime  *string   `json:"scheduled_time" validate:"omitnil,datetime=15:04"`
	IsRecurring    *bool     `json:"is_recurring"`
	Weekdays       *[]string `json:"weekdays" validate:"omitnil,dive,weekday"`
	Kind           *string   `json:"kind" validate:"omitnil,oneof=generic medication"`
	LinkedEntityID *string   `json:"linked_entity_id"`
	IsActive       *bool     `json:"is_active"`
}

// List handles GET /api/reminders?active_only=
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))

	reminders, err := h.store.List(r.Context(), h.ownerID, activeOnly)
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

// Get handles GET /api/reminders/{id}
func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rem, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// Create handles POST /api/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	rem, err := h.store.Create(r.Context(), model.Reminder{
		OwnerID:        h.ownerID,
		Title:          req.Title,
		Description:    req.Description,
		ScheduledTime:  req.ScheduledTime,
		IsRecurring:    req.IsRecurring,
		Weekdays:       req.Weekdays,
		Kind:           req.Kind,
		LinkedEntityID: req.LinkedEntityID,
		IsActive:       active,
	})
	if err != nil {
		h.logger.Error("create reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}

	h.logger.Info("reminder created", "reminder_id", rem.ID, "scheduled_time", rem.ScheduledTime)
	writeJSON(w, http.StatusCreated, rem)
}

// Update handles PUT /api/reminders/{id}
func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.load(w, r); !ok {
		return
	}

	var req updateReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		req.Title = &t
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	u := model.ReminderUpdate{
		Title:          req.Title,
		Description:    req.Description,
		ScheduledTime:  req.ScheduledTime,
		IsRecurring:    req.IsRecurring,
		Weekdays:       req.Weekdays,
		Kind:           req.Kind,
		LinkedEntityID: req.LinkedEntityID,
		IsActive:       req.IsActive,
	}
	rem, err := h.store.Update(r.Context(), r.PathValue("id"), u)
	if err != nil {
		h.logger.Error("update reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}
	if rem == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// Delete handles DELETE /api/reminders/{id}
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.load(w, r); !ok {
		return
	}
	if _, err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.logger.Error("delete reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Due handles GET /api/reminders/due. It evaluates without dispatching.
func (h *ReminderHandler) Due(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.store.ListActive(r.Context(), h.ownerID)
	if err != nil {
		h.logger.Error("list active reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	due := h.evaluator.Due(h.now(), reminders)
	if due == nil {
		due = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, due)
}

// Snooze handles POST /api/reminders/{id}/snooze?minutes=
func (h *ReminderHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	minutes := h.snoozeMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "minutes must be an integer")
			return
		}
		minutes = n
	}
	if _, ok := h.load(w, r); !ok {
		return
	}

	rem, err := h.feedback.Snooze(r.Context(), r.PathValue("id"), minutes)
	if err != nil {
		h.writeFeedbackError(w, "snooze", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("Reminder snoozed for %d minutes", minutes),
		"snooze_until": rem.SnoozeUntil,
	})
}

// Complete handles POST /api/reminders/{id}/complete?medication_id=
func (h *ReminderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.load(w, r); !ok {
		return
	}

	var entityID *string
	if v := r.URL.Query().Get("medication_id"); v != "" {
		entityID = &v
	}
	rem, err := h.feedback.Complete(r.Context(), r.PathValue("id"), entityID)
	if err != nil {
		h.writeFeedbackError(w, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Reminder marked as completed",
		"completed_at": rem.LastTriggered,
	})
}

// load fetches the path reminder and checks it belongs to the owner,
// writing the error response itself.
func (h *ReminderHandler) load(w http.ResponseWriter, r *http.Request) (*model.Reminder, bool) {
	rem, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return nil, false
	}
	if rem == nil || rem.OwnerID != h.ownerID {
		writeError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	return rem, true
}

func (h *ReminderHandler) writeFeedbackError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		writeError(w, http.StatusNotFound, "reminder not found")
	case errors.Is(err, reminder.ErrInvalidSnooze):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(action+" reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action+" reminder")
	}
}
