package events

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/nudge/internal/logging"
)

func TestEmitWithNoListeners(t *testing.T) {
	e := NewEmitter(logging.Discard())
	// Should not panic
	e.Emit(context.Background(), Event{Type: ReminderDispatched, ReminderID: "r1"})
}

func TestEmitDeliversToAllListeners(t *testing.T) {
	e := NewEmitter(logging.Discard())

	var a, b Recorder
	e.Subscribe(&a)
	e.Subscribe(&b)

	e.Emit(context.Background(), Event{Type: ReminderSnoozed, ReminderID: "r1"})

	for i, r := range []*Recorder{&a, &b} {
		got := r.Events()
		if len(got) != 1 {
			t.Fatalf("listener %d: got %d events, want 1", i, len(got))
		}
		if got[0].Type != ReminderSnoozed || got[0].ReminderID != "r1" {
			t.Errorf("listener %d: got %+v", i, got[0])
		}
	}
}

func TestEmitContinuesAfterListenerError(t *testing.T) {
	e := NewEmitter(logging.Discard())

	var rec Recorder
	e.Subscribe(ListenerFunc(func(context.Context, Event) error {
		return errors.New("boom")
	}))
	e.Subscribe(&rec)

	e.Emit(context.Background(), Event{Type: ReminderCompleted, ReminderID: "r2"})

	if got := len(rec.Events()); got != 1 {
		t.Errorf("second listener got %d events, want 1", got)
	}
}
