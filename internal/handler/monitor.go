package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/nudge/internal/scheduler"
)

// MonitorHandler exposes start/stop/status over the reminder scheduler.
type MonitorHandler struct {
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func NewMonitorHandler(s *scheduler.Scheduler, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{scheduler: s, logger: logger}
}

type monitorStatus struct {
	Running  bool       `json:"running"`
	InFlight bool       `json:"in_flight"`
	Interval string     `json:"interval"`
	OwnerID  string     `json:"owner_id"`
	LastTick *time.Time `json:"last_tick,omitempty"`
}

func toMonitorStatus(s scheduler.Status) monitorStatus {
	return monitorStatus{
		Running:  s.Running,
		InFlight: s.InFlight,
		Interval: s.Interval.String(),
		OwnerID:  s.OwnerID,
		LastTick: s.LastTick,
	}
}

// parseInterval accepts whole seconds ("45") or a Go duration ("1m30s").
func parseInterval(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Start handles POST /api/reminders/monitor/start?interval=
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.scheduler.Running() {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Monitoring already running",
			"status":  toMonitorStatus(h.scheduler.Status()),
		})
		return
	}

	if v := r.URL.Query().Get("interval"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid interval")
			return
		}
		if err := h.scheduler.SetInterval(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// The loop outlives the request.
	if !h.scheduler.Start(context.Background()) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Monitoring already running",
			"status":  toMonitorStatus(h.scheduler.Status()),
		})
		return
	}

	st := h.scheduler.Status()
	h.logger.Info("reminder monitoring started", "interval", st.Interval)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Reminder monitoring started",
		"status":  toMonitorStatus(st),
	})
}

// Stop handles POST /api/reminders/monitor/stop
func (h *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	h.logger.Info("reminder monitoring stopped")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Reminder monitoring stopped",
		"status":  toMonitorStatus(h.scheduler.Status()),
	})
}

// Status handles GET /api/reminders/monitor/status
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toMonitorStatus(h.scheduler.Status()))
}

type tickResult struct {
	ReminderID string `json:"reminder_id"`
	EventID    string `json:"event_id"`
	Delivered  bool   `json:"delivered"`
	Marked     bool   `json:"marked"`
	Error      string `json:"error,omitempty"`
}

// Tick handles POST /api/reminders/monitor/tick and runs one check now.
func (h *MonitorHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.RunOnce(r.Context())
	if errors.Is(err, scheduler.ErrTickInFlight) {
		writeError(w, http.StatusConflict, "a check is already running")
		return
	}
	if err != nil {
		h.logger.Error("manual tick", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check reminders")
		return
	}

	results := make([]tickResult, 0, len(report.Results))
	for _, res := range report.Results {
		tr := tickResult{
			ReminderID: res.ReminderID,
			EventID:    res.EventID,
			Delivered:  res.Delivered(),
			Marked:     res.Marked,
		}
		if res.Err != nil {
			tr.Error = res.Err.Error()
		}
		results = append(results, tr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":      report.At,
		"checked": report.Checked,
		"due":     report.Due,
		"results": results,
	})
}
