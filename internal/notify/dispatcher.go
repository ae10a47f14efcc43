package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/nudge/internal/events"
	"github.com/dukerupert/nudge/internal/model"
)

// Channel is one delivery mechanism (browser push, desktop, email).
// Send must be safe to call concurrently with other channels' Send.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev model.NotificationEvent) error
}

// Marker persists the trigger mark. It returns nil, nil when the reminder no
// longer exists.
type Marker interface {
	Update(ctx context.Context, id string, u model.ReminderUpdate) (*model.Reminder, error)
}

// Result is the outcome of dispatching one reminder.
type Result struct {
	ReminderID string
	EventID    string
	Channels   []events.ChannelResult
	Marked     bool
	Err        error
}

// Delivered reports whether at least one channel accepted the event.
func (r Result) Delivered() bool {
	for _, c := range r.Channels {
		if c.OK {
			return true
		}
	}
	return false
}

// Dispatcher delivers due reminders and marks them triggered. Which channels
// are usable is reported from outside through SetAvailable; every configured
// channel starts out available.
type Dispatcher struct {
	builder   *Builder
	marker    Marker
	channels  []Channel
	publisher events.Publisher
	logger    *slog.Logger

	mu          sync.RWMutex
	unavailable map[string]bool
}

func NewDispatcher(builder *Builder, marker Marker, channels []Channel, publisher events.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		builder:     builder,
		marker:      marker,
		channels:    channels,
		publisher:   publisher,
		logger:      logger,
		unavailable: make(map[string]bool),
	}
}

// ChannelState is a configured channel and whether it is currently usable.
type ChannelState struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Channels returns the configured channels in send order.
func (d *Dispatcher) Channels() []ChannelState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ChannelState, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ChannelState{Name: ch.Name(), Available: !d.unavailable[ch.Name()]}
	}
	return out
}

// SetAvailable records whether the named channel may be used. It reports
// false for a channel that is not configured.
func (d *Dispatcher) SetAvailable(name string, available bool) bool {
	for _, ch := range d.channels {
		if ch.Name() != name {
			continue
		}
		d.mu.Lock()
		if available {
			delete(d.unavailable, name)
		} else {
			d.unavailable[name] = true
		}
		d.mu.Unlock()
		d.logger.Info("channel availability changed", "channel", name, "available", available)
		return true
	}
	return false
}

func (d *Dispatcher) available() []Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		if !d.unavailable[ch.Name()] {
			out = append(out, ch)
		}
	}
	return out
}

// Dispatch handles due reminders one at a time, in order. Each reminder is
// sent to every channel concurrently and, once all sends have returned,
// marked triggered at now exactly once. Channel and mark failures are
// logged and reported in the results; they never stop the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time, due []model.Reminder) []Result {
	results := make([]Result, 0, len(due))
	for _, r := range due {
		results = append(results, d.dispatchOne(ctx, now, r))
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, now time.Time, r model.Reminder) Result {
	ev := d.builder.Build(ctx, r)
	res := Result{ReminderID: r.ID, EventID: ev.ID}

	channels := d.available()
	if len(channels) == 0 {
		d.logger.Warn("no notification channels available", "reminder_id", r.ID)
	}
	res.Channels = fanOut(ctx, channels, ev)

	for _, c := range res.Channels {
		if c.OK {
			d.logger.Info("notification delivered", "reminder_id", r.ID, "channel", c.Channel)
		} else {
			d.logger.Warn("notification failed", "reminder_id", r.ID, "channel", c.Channel, "error", c.Error)
		}
	}

	updated, err := d.marker.Update(ctx, r.ID, model.ReminderUpdate{LastTriggered: &now})
	switch {
	case err != nil:
		res.Err = fmt.Errorf("mark triggered: %w", err)
		d.logger.Error("mark triggered", "reminder_id", r.ID, "error", err)
	case updated == nil:
		res.Err = fmt.Errorf("mark triggered: reminder %s no longer exists", r.ID)
		d.logger.Warn("reminder vanished before mark", "reminder_id", r.ID)
	default:
		res.Marked = true
	}

	if d.publisher != nil {
		d.publisher.Emit(ctx, events.Event{
			Type:       events.ReminderDispatched,
			ReminderID: r.ID,
			OwnerID:    r.OwnerID,
			At:         now,
			EventID:    ev.ID,
			Channels:   res.Channels,
		})
	}
	return res
}

// fanOut sends ev on every channel and waits for all of them. A failing or
// panicking channel does not affect the others.
func fanOut(ctx context.Context, channels []Channel, ev model.NotificationEvent) []events.ChannelResult {
	out := make([]events.ChannelResult, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			out[i] = send(ctx, ch, ev)
			return nil
		})
	}
	g.Wait()
	return out
}

func send(ctx context.Context, ch Channel, ev model.NotificationEvent) (res events.ChannelResult) {
	res.Channel = ch.Name()
	defer func() {
		if p := recover(); p != nil {
			res.OK = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
	}()
	if err := ch.Send(ctx, ev); err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}
