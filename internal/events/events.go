// Package events publishes typed reminder outcomes to registered listeners.
// Dispatch results and user actions flow through an Emitter instead of
// ad hoc callbacks, so the WebSocket feed, logs and tests all observe the
// same stream.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Type string

const (
	ReminderDispatched Type = "reminder_dispatched"
	ReminderCompleted  Type = "reminder_completed"
	ReminderSnoozed    Type = "reminder_snoozed"
)

// ChannelResult is the outcome of sending one notification on one channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Event describes something that happened to a reminder.
type Event struct {
	Type        Type            `json:"type"`
	ReminderID  string          `json:"reminder_id"`
	OwnerID     string          `json:"owner_id"`
	At          time.Time       `json:"at"`
	EventID     string          `json:"event_id,omitempty"`
	Channels    []ChannelResult `json:"channels,omitempty"`
	SnoozeUntil *time.Time      `json:"snooze_until,omitempty"`
}

// Listener receives events. Errors are logged by the emitter and never
// stop delivery to other listeners.
type Listener interface {
	HandleEvent(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Publisher is the emitting side, as seen by producers.
type Publisher interface {
	Emit(ctx context.Context, e Event)
}

// Emitter fans events out to listeners synchronously, in registration order.
type Emitter struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Subscribe registers a listener.
func (e *Emitter) Subscribe(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Emit delivers ev to every listener.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	e.mu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for i, l := range listeners {
		if err := l.HandleEvent(ctx, ev); err != nil {
			e.logger.Warn("event listener failed",
				"listener", i,
				"type", ev.Type,
				"reminder_id", ev.ReminderID,
				"error", err)
		}
	}
}

// Recorder is a Listener that keeps every event it sees.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) HandleEvent(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
