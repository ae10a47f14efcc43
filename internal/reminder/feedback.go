package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/nudge/internal/events"
	"github.com/dukerupert/nudge/internal/model"
)

var (
	ErrNotFound      = errors.New("reminder not found")
	ErrInvalidSnooze = errors.New("snooze minutes must be between 1 and 10080")
)

// MaxSnoozeMinutes caps a snooze at one week.
const MaxSnoozeMinutes = 7 * 24 * 60

// Store is the reminder persistence the core depends on. Update returns
// nil, nil when the id is unknown.
type Store interface {
	ListActive(ctx context.Context, ownerID string) ([]model.Reminder, error)
	Update(ctx context.Context, id string, u model.ReminderUpdate) (*model.Reminder, error)
}

// EntityStore resolves linked entities for notification text and records
// completions against them. Lookup returns nil, nil for unknown ids.
type EntityStore interface {
	Lookup(ctx context.Context, entityID string) (*model.LinkedEntity, error)
	RecordCompletion(ctx context.Context, ownerID, entityID string, at time.Time, scheduledTime string) error
}

// Feedback applies user actions coming back from delivered notifications.
type Feedback struct {
	store     Store
	entities  EntityStore
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// FeedbackOption configures a Feedback.
type FeedbackOption func(*Feedback)

// WithClock overrides the time source.
func WithClock(now func() time.Time) FeedbackOption {
	return func(f *Feedback) { f.now = now }
}

func NewFeedback(store Store, entities EntityStore, publisher events.Publisher, loc *time.Location, logger *slog.Logger, opts ...FeedbackOption) *Feedback {
	if loc == nil {
		loc = time.Local
	}
	f := &Feedback{
		store:     store,
		entities:  entities,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Complete marks a reminder done for today: the snooze is cleared and
// last_triggered is set to now. When a linked entity id is given, or the
// reminder carries one, a completion is recorded against it; failing to
// record it is logged and does not fail the action.
func (f *Feedback) Complete(ctx context.Context, reminderID string, linkedEntityID *string) (*model.Reminder, error) {
	now := f.now()

	r, err := f.store.Update(ctx, reminderID, model.ReminderUpdate{
		ClearSnooze:   true,
		LastTriggered: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("complete reminder: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}

	entityID := linkedEntityID
	if entityID == nil || *entityID == "" {
		entityID = r.LinkedEntityID
	}
	if entityID != nil && *entityID != "" && f.entities != nil {
		scheduled := now.In(f.loc).Format("15:04")
		if err := f.entities.RecordCompletion(ctx, r.OwnerID, *entityID, now, scheduled); err != nil {
			f.logger.Warn("record completion", "reminder_id", r.ID, "entity_id", *entityID, "error", err)
		} else {
			f.logger.Info("completion recorded", "reminder_id", r.ID, "entity_id", *entityID)
		}
	}

	f.publish(ctx, events.Event{
		Type:       events.ReminderCompleted,
		ReminderID: r.ID,
		OwnerID:    r.OwnerID,
		At:         now,
	})
	return r, nil
}

// Snooze suppresses a reminder until now + minutes. last_triggered is left
// alone, so a reminder that already fired today stays quiet for the rest of
// the day even after the snooze runs out.
func (f *Feedback) Snooze(ctx context.Context, reminderID string, minutes int) (*model.Reminder, error) {
	if minutes <= 0 || minutes > MaxSnoozeMinutes {
		return nil, ErrInvalidSnooze
	}
	now := f.now()
	until := now.Add(time.Duration(minutes) * time.Minute)

	r, err := f.store.Update(ctx, reminderID, model.ReminderUpdate{SnoozeUntil: &until})
	if err != nil {
		return nil, fmt.Errorf("snooze reminder: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}

	f.publish(ctx, events.Event{
		Type:        events.ReminderSnoozed,
		ReminderID:  r.ID,
		OwnerID:     r.OwnerID,
		At:          now,
		SnoozeUntil: &until,
	})
	return r, nil
}

func (f *Feedback) publish(ctx context.Context, e events.Event) {
	if f.publisher != nil {
		f.publisher.Emit(ctx, e)
	}
}
