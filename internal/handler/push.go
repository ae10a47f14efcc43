package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/store"
)

// PushHandler manages browser push subscriptions. service and channel are
// nil when web push is not configured.
type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	channel   *push.Channel
	ownerID   string
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, ch *push.Channel, ownerID string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, channel: ch, ownerID: ownerID, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), h.ownerID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.pushStore.DeleteSubscription(r.Context(), id, h.ownerID); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByOwner(r.Context(), h.ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if h.channel == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}

	ev := model.NotificationEvent{
		ID:       uuid.NewString(),
		Title:    "Test Notification",
		Body:     "Push notifications are working!",
		Priority: model.PriorityNormal,
	}
	err := h.channel.Send(r.Context(), ev)
	switch {
	case errors.Is(err, push.ErrNoSubscriptions):
		writeError(w, http.StatusNotFound, "no push subscriptions")
	case err != nil:
		h.logger.Warn("test push send", "error", err)
		writeError(w, http.StatusBadGateway, "push delivery failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Test notification sent"})
	}
}
