package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/nudge/internal/backup"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/store"
)

const backupHistoryLimit = 50

// BackupRunner is the part of backup.Manager the API drives.
type BackupRunner interface {
	RunNow(ctx context.Context) (*model.Backup, error)
	Status() backup.Status
	Fetch(ctx context.Context, id int64, w io.Writer) error
}

type BackupHandler struct {
	runner  BackupRunner
	store   *store.BackupStore
	ownerID string
	logger  *slog.Logger
}

func NewBackupHandler(runner BackupRunner, s *store.BackupStore, ownerID string, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{runner: runner, store: s, ownerID: ownerID, logger: logger}
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.store.List(r.Context(), h.ownerID, backupHistoryLimit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

// Status handles GET /api/backups/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.Status())
}

// Run handles POST /api/backups
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	b, err := h.runner.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	case errors.Is(err, backup.ErrBusy):
		writeError(w, http.StatusConflict, "a backup is already running")
		return
	case err != nil:
		h.logger.Error("run backup", "error", err)
		writeError(w, http.StatusBadGateway, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Download handles GET /api/backups/{id}/download
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	var buf bytes.Buffer
	err = h.runner.Fetch(r.Context(), id, &buf)
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
		return
	case err != nil:
		h.logger.Error("fetch backup", "backup_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch backup")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="nudge-backup-%d.db"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
