package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/nudge/internal/notify"
)

type ChannelHandler struct {
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

func NewChannelHandler(d *notify.Dispatcher, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{dispatcher: d, logger: logger}
}

// List handles GET /api/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.Channels())
}

type setAvailableRequest struct {
	Available *bool `json:"available"`
}

// SetAvailable handles PUT /api/channels/{name}
func (h *ChannelHandler) SetAvailable(w http.ResponseWriter, r *http.Request) {
	var req setAvailableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}

	name := r.PathValue("name")
	if !h.dispatcher.SetAvailable(name, *req.Available) {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Channels())
}
