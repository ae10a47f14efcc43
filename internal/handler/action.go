package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dukerupert/nudge/internal/action"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/reminder"
	"github.com/dukerupert/nudge/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// ActionHandler serves the links embedded in notifications. GET shows a
// confirmation page so that link previews and prefetchers never act on a
// reminder; POST performs the action.
type ActionHandler struct {
	sealer    *action.Sealer
	store     *store.ReminderStore
	feedback  *reminder.Feedback
	templates *template.Template
	logger    *slog.Logger
}

func NewActionHandler(sealer *action.Sealer, rs *store.ReminderStore, fb *reminder.Feedback, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		sealer:    sealer,
		store:     rs,
		feedback:  fb,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		logger:    logger,
	}
}

type actionPage struct {
	Heading string
	Title   string
	Message string
	Confirm string
	Action  string
	Error   string
}

// Show handles GET /actions/{token}
func (h *ActionHandler) Show(w http.ResponseWriter, r *http.Request) {
	claims, rem, ok := h.resolve(w, r)
	if !ok {
		return
	}

	page := actionPage{
		Title:  rem.Title,
		Action: r.URL.Path,
	}
	switch claims.Kind {
	case model.ActionComplete:
		page.Heading = "Mark as done?"
		page.Confirm = "Done"
	case model.ActionSnooze:
		page.Heading = "Snooze reminder?"
		page.Message = fmt.Sprintf("It will come back in %d minutes.", claims.Minutes)
		page.Confirm = fmt.Sprintf("Snooze %d min", claims.Minutes)
	}
	h.render(w, http.StatusOK, page)
}

// Perform handles POST /actions/{token}
func (h *ActionHandler) Perform(w http.ResponseWriter, r *http.Request) {
	claims, rem, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var err error
	page := actionPage{Title: rem.Title}
	switch claims.Kind {
	case model.ActionComplete:
		_, err = h.feedback.Complete(r.Context(), rem.ID, nil)
		page.Heading = "Marked as done"
		page.Message = "See you tomorrow."
	case model.ActionSnooze:
		_, err = h.feedback.Snooze(r.Context(), rem.ID, claims.Minutes)
		page.Heading = "Snoozed"
		page.Message = fmt.Sprintf("You will be reminded again in %d minutes.", claims.Minutes)
	}

	switch {
	case errors.Is(err, reminder.ErrNotFound):
		h.render(w, http.StatusNotFound, actionPage{Heading: "Not found", Error: "This reminder no longer exists."})
		return
	case errors.Is(err, reminder.ErrInvalidSnooze):
		h.render(w, http.StatusBadRequest, actionPage{Heading: "Invalid link", Error: "This link cannot be used."})
		return
	case err != nil:
		h.logger.Error("action link", "kind", claims.Kind, "reminder_id", rem.ID, "error", err)
		h.render(w, http.StatusInternalServerError, actionPage{Heading: "Something went wrong", Error: "Please try again."})
		return
	}

	h.logger.Info("action link used", "kind", claims.Kind, "reminder_id", rem.ID)
	h.render(w, http.StatusOK, page)
}

// resolve opens the path token and loads its reminder, rendering an error
// page itself when either fails.
func (h *ActionHandler) resolve(w http.ResponseWriter, r *http.Request) (action.Claims, *model.Reminder, bool) {
	claims, err := h.sealer.Open(r.PathValue("token"))
	switch {
	case errors.Is(err, action.ErrExpiredToken):
		h.render(w, http.StatusGone, actionPage{Heading: "Link expired", Error: "This link has expired."})
		return claims, nil, false
	case err != nil:
		h.render(w, http.StatusBadRequest, actionPage{Heading: "Invalid link", Error: "This link is not valid."})
		return claims, nil, false
	}

	rem, err := h.store.GetByID(r.Context(), claims.ReminderID)
	if err != nil {
		h.logger.Error("action link lookup", "reminder_id", claims.ReminderID, "error", err)
		h.render(w, http.StatusInternalServerError, actionPage{Heading: "Something went wrong", Error: "Please try again."})
		return claims, nil, false
	}
	if rem == nil {
		h.render(w, http.StatusNotFound, actionPage{Heading: "Not found", Error: "This reminder no longer exists."})
		return claims, nil, false
	}
	return claims, rem, true
}

func (h *ActionHandler) render(w http.ResponseWriter, status int, page actionPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "action.html", page); err != nil {
		h.logger.Error("render action page", "error", err)
	}
}
