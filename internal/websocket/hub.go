// Package websocket is the desktop notification channel and the live outcome
// feed. Connected desktop clients receive notifications and reminder events,
// and can send complete or snooze actions back.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/nudge/internal/events"
	"github.com/dukerupert/nudge/internal/model"
)

// ErrNoClients is returned by Send when no desktop client is connected.
var ErrNoClients = errors.New("no desktop clients connected")

// MessageNotification is the type of messages carrying a notification.
// Event messages use the event type as their type.
const (
	MessageNotification = "notification"
	MessageError        = "error"
)

// Message is a frame pushed to connected clients.
type Message struct {
	Type         string                   `json:"type"`
	ReminderID   string                   `json:"reminder_id,omitempty"`
	Notification *model.NotificationEvent `json:"notification,omitempty"`
	Event        *events.Event            `json:"event,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// NotificationMessage wraps a notification event for the wire.
func NotificationMessage(ev model.NotificationEvent) Message {
	return Message{Type: MessageNotification, ReminderID: ev.ReminderID, Notification: &ev}
}

// EventMessage wraps a reminder outcome for the wire.
func EventMessage(e events.Event) Message {
	return Message{Type: string(e.Type), ReminderID: e.ReminderID, Event: &e}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients and returns how many
// accepted it.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	accepted := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			accepted++
		default:
			// Client buffer full, drop rather than block.
		}
	}
	return accepted
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "desktop" }

// Send delivers a notification to every connected desktop client.
func (h *Hub) Send(_ context.Context, ev model.NotificationEvent) error {
	if h.ClientCount() == 0 {
		return ErrNoClients
	}
	if n := h.Broadcast(NotificationMessage(ev)); n == 0 {
		return fmt.Errorf("no desktop client accepted notification %s", ev.ID)
	}
	return nil
}

// HandleEvent forwards reminder outcomes to the live feed.
func (h *Hub) HandleEvent(_ context.Context, e events.Event) error {
	h.Broadcast(EventMessage(e))
	return nil
}
