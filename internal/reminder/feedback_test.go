package reminder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dukerupert/nudge/internal/events"
	"github.com/dukerupert/nudge/internal/logging"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/reminder/remindertest"
)

func strPtr(s string) *string { return &s }

func newFeedback(t *testing.T, store Store, entities EntityStore, now time.Time) (*Feedback, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	em := events.NewEmitter(logging.Discard())
	em.Subscribe(rec)
	f := NewFeedback(store, entities, em, time.UTC, logging.Discard(),
		WithClock(func() time.Time { return now }))
	return f, rec
}

func TestComplete(t *testing.T) {
	r := baseReminder()
	r.SnoozeUntil = ptrTime(at(6, 9, 30))
	store := remindertest.NewStore(r)
	now := at(6, 9, 10)
	f, rec := newFeedback(t, store, nil, now)

	got, err := f.Complete(context.Background(), "r1", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.SnoozeUntil != nil {
		t.Error("snooze should be cleared")
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(now) {
		t.Errorf("LastTriggered = %v, want %v", got.LastTriggered, now)
	}

	// Done for today: not due again within the window.
	stored, _ := store.Get("r1")
	if due, _ := IsDue(stored, at(6, 9, 0), time.UTC); due {
		t.Error("completed reminder should not be due again today")
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.ReminderCompleted {
		t.Fatalf("events = %+v, want one completed", evs)
	}
}

func TestComplete_RecordsLinkedEntity(t *testing.T) {
	r := baseReminder()
	r.Kind = model.KindMedication
	r.LinkedEntityID = strPtr("med-1")
	store := remindertest.NewStore(r)
	entities := remindertest.NewEntities(
		model.LinkedEntity{ID: "med-1", Name: "Aspirin"},
		model.LinkedEntity{ID: "med-2", Name: "Ibuprofen"},
	)
	now := at(6, 9, 2)

	tests := []struct {
		name   string
		param  *string
		wantID string
	}{
		{"falls back to reminder link", nil, "med-1"},
		{"empty param falls back", strPtr(""), "med-1"},
		{"explicit param wins", strPtr("med-2"), "med-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities.Completions = nil
			f, _ := newFeedback(t, store, entities, now)
			if _, err := f.Complete(context.Background(), "r1", tt.param); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if len(entities.Completions) != 1 {
				t.Fatalf("got %d completions, want 1", len(entities.Completions))
			}
			c := entities.Completions[0]
			if c.EntityID != tt.wantID {
				t.Errorf("EntityID = %q, want %q", c.EntityID, tt.wantID)
			}
			if c.ScheduledTime != "09:02" {
				t.Errorf("ScheduledTime = %q, want 09:02", c.ScheduledTime)
			}
			if c.OwnerID != "owner" {
				t.Errorf("OwnerID = %q, want owner", c.OwnerID)
			}
		})
	}
}

func TestComplete_EntityFailureIsNotFatal(t *testing.T) {
	r := baseReminder()
	r.LinkedEntityID = strPtr("med-1")
	store := remindertest.NewStore(r)
	entities := remindertest.NewEntities()
	entities.RecordErr = errors.New("disk full")

	f, rec := newFeedback(t, store, entities, at(6, 9, 0))
	got, err := f.Complete(context.Background(), "r1", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.LastTriggered == nil {
		t.Error("reminder should still be marked complete")
	}
	if len(rec.Events()) != 1 {
		t.Error("completion event should still be emitted")
	}
}

func TestComplete_NotFound(t *testing.T) {
	f, rec := newFeedback(t, remindertest.NewStore(), nil, at(6, 9, 0))
	_, err := f.Complete(context.Background(), "missing", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(rec.Events()) != 0 {
		t.Error("no event expected for a missing reminder")
	}
}

func TestComplete_StoreError(t *testing.T) {
	store := remindertest.NewStore(baseReminder())
	store.UpdateErr = errors.New("locked")
	f, _ := newFeedback(t, store, nil, at(6, 9, 0))
	_, err := f.Complete(context.Background(), "r1", nil)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestSnooze(t *testing.T) {
	r := baseReminder()
	last := at(5, 9, 0)
	r.LastTriggered = &last
	store := remindertest.NewStore(r)
	now := at(6, 9, 0)
	f, rec := newFeedback(t, store, nil, now)

	got, err := f.Snooze(context.Background(), "r1", 5)
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	want := at(6, 9, 5)
	if got.SnoozeUntil == nil || !got.SnoozeUntil.Equal(want) {
		t.Errorf("SnoozeUntil = %v, want %v", got.SnoozeUntil, want)
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(last) {
		t.Errorf("LastTriggered changed to %v", got.LastTriggered)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.ReminderSnoozed {
		t.Fatalf("events = %+v, want one snoozed", evs)
	}
	if evs[0].SnoozeUntil == nil || !evs[0].SnoozeUntil.Equal(want) {
		t.Errorf("event SnoozeUntil = %v, want %v", evs[0].SnoozeUntil, want)
	}
}

func TestSnooze_InvalidMinutes(t *testing.T) {
	store := remindertest.NewStore(baseReminder())
	f, _ := newFeedback(t, store, nil, at(6, 9, 0))
	for _, m := range []int{0, -5, MaxSnoozeMinutes + 1, math.MaxInt} {
		if _, err := f.Snooze(context.Background(), "r1", m); !errors.Is(err, ErrInvalidSnooze) {
			t.Errorf("Snooze(%d) err = %v, want ErrInvalidSnooze", m, err)
		}
	}
	if store.Updates("r1") != 0 {
		t.Error("invalid snooze must not touch the store")
	}
}

func TestSnooze_OneWeekIsAllowed(t *testing.T) {
	store := remindertest.NewStore(baseReminder())
	now := at(6, 9, 0)
	f, _ := newFeedback(t, store, nil, now)

	got, err := f.Snooze(context.Background(), "r1", MaxSnoozeMinutes)
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if want := now.Add(7 * 24 * time.Hour); got.SnoozeUntil == nil || !got.SnoozeUntil.Equal(want) {
		t.Errorf("SnoozeUntil = %v, want %v", got.SnoozeUntil, want)
	}
}

func TestSnooze_NotFound(t *testing.T) {
	f, _ := newFeedback(t, remindertest.NewStore(), nil, at(6, 9, 0))
	if _, err := f.Snooze(context.Background(), "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
