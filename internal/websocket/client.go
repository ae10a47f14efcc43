package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/nudge/internal/model"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// ActionHandler applies actions sent by desktop clients.
type ActionHandler interface {
	Complete(ctx context.Context, reminderID string, linkedEntityID *string) (*model.Reminder, error)
	Snooze(ctx context.Context, reminderID string, minutes int) (*model.Reminder, error)
}

// Inbound is an action frame sent by a client.
type Inbound struct {
	Action         string  `json:"action"`
	ReminderID     string  `json:"reminder_id"`
	Minutes        int     `json:"minutes,omitempty"`
	LinkedEntityID *string `json:"linked_entity_id,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	send    chan []byte
	actions ActionHandler
	logger  *slog.Logger
}

// NewClient creates a Client tied to the given hub and connection. actions
// may be nil, in which case inbound frames are ignored.
func NewClient(hub *Hub, conn *ws.Conn, actions ActionHandler, logger *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		actions: actions,
		logger:  logger,
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump handles inbound action frames until the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText || c.actions == nil {
			continue
		}
		if err := c.handle(ctx, data); err != nil {
			c.logger.Warn("client action failed", "error", err)
			c.reply(Message{Type: MessageError, Error: err.Error()})
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) error {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	if in.ReminderID == "" {
		return fmt.Errorf("action %q: missing reminder_id", in.Action)
	}

	var err error
	switch in.Action {
	case model.ActionComplete:
		_, err = c.actions.Complete(ctx, in.ReminderID, in.LinkedEntityID)
	case model.ActionSnooze:
		_, err = c.actions.Snooze(ctx, in.ReminderID, in.Minutes)
	default:
		return fmt.Errorf("unknown action %q", in.Action)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", in.Action, in.ReminderID, err)
	}
	return nil
}

// reply queues a message for this client only.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
