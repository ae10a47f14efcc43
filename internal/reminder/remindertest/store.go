// Package remindertest provides in-memory collaborators for tests of the
// evaluate-dispatch-feedback path.
package remindertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

// Store is an in-memory reminder store. It counts Update calls per id so
// tests can assert how many trigger writes happened.
type Store struct {
	mu        sync.Mutex
	reminders []model.Reminder
	updates   map[string]int

	// ListErr, when set, is returned by ListActive.
	ListErr error
	// UpdateErr, when set, is returned by Update.
	UpdateErr error
	// ListDelay blocks ListActive for the given duration.
	ListDelay time.Duration
}

func NewStore(reminders ...model.Reminder) *Store {
	return &Store{reminders: reminders, updates: make(map[string]int)}
}

func (s *Store) ListActive(ctx context.Context, ownerID string) ([]model.Reminder, error) {
	if s.ListDelay > 0 {
		select {
		case <-time.After(s.ListDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []model.Reminder
	for _, r := range s.reminders {
		if r.OwnerID == ownerID && r.IsActive {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, u model.ReminderUpdate) (*model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	for i := range s.reminders {
		r := &s.reminders[i]
		if r.ID != id {
			continue
		}
		s.updates[id]++
		if u.Title != nil {
			r.Title = *u.Title
		}
		if u.IsActive != nil {
			r.IsActive = *u.IsActive
		}
		if u.LastTriggered != nil {
			t := *u.LastTriggered
			r.LastTriggered = &t
		}
		switch {
		case u.ClearSnooze:
			r.SnoozeUntil = nil
		case u.SnoozeUntil != nil:
			t := *u.SnoozeUntil
			r.SnoozeUntil = &t
		}
		out := clone(*r)
		return &out, nil
	}
	return nil, nil
}

// Get returns a copy of the stored reminder.
func (s *Store) Get(id string) (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reminders {
		if r.ID == id {
			return clone(r), true
		}
	}
	return model.Reminder{}, false
}

// Updates returns how many times Update hit the given id.
func (s *Store) Updates(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

func clone(r model.Reminder) model.Reminder {
	if r.Weekdays != nil {
		r.Weekdays = append([]string(nil), r.Weekdays...)
	}
	return r
}

// Entities is an in-memory linked-entity store.
type Entities struct {
	mu          sync.Mutex
	entities    map[string]model.LinkedEntity
	Completions []Completion

	LookupErr error
	RecordErr error
}

type Completion struct {
	OwnerID       string
	EntityID      string
	At            time.Time
	ScheduledTime string
}

func NewEntities(entities ...model.LinkedEntity) *Entities {
	m := make(map[string]model.LinkedEntity)
	for _, e := range entities {
		m[e.ID] = e
	}
	return &Entities{entities: m}
}

func (e *Entities) Lookup(_ context.Context, id string) (*model.LinkedEntity, error) {
	if e.LookupErr != nil {
		return nil, e.LookupErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[id]
	if !ok {
		return nil, nil
	}
	return &ent, nil
}

func (e *Entities) RecordCompletion(_ context.Context, ownerID, entityID string, at time.Time, scheduledTime string) error {
	if e.RecordErr != nil {
		return e.RecordErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[entityID]; !ok {
		return errors.New("unknown entity")
	}
	e.Completions = append(e.Completions, Completion{ownerID, entityID, at, scheduledTime})
	return nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
