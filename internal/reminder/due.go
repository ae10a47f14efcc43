// Package reminder decides which reminders are due and applies the user
// actions (complete, snooze) that change a reminder's daily state.
package reminder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/nudge/internal/model"
)

// ToleranceMinutes is the symmetric window around the scheduled time inside
// which a reminder still matches. It absorbs poll jitter.
const ToleranceMinutes = 1

// IsDue reports whether r is due at now. Times of day, weekdays and calendar
// days are all taken in loc, the owner's zone.
//
// The minute comparison is on a plain 0-1439 scale and does not wrap, so a
// reminder at 23:59 does not match 00:00 of the next day. A snooze only
// suppresses; once it runs out the normal window applies again.
func IsDue(r model.Reminder, now time.Time, loc *time.Location) (bool, error) {
	if !r.IsActive {
		return false, nil
	}

	if r.SnoozeUntil != nil && r.SnoozeUntil.After(now) {
		return false, nil
	}

	scheduled, err := model.ParseTimeOfDay(r.ScheduledTime)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	current := minuteOfDay(local)
	if abs(current-scheduled) > ToleranceMinutes {
		return false, nil
	}

	// Recurring with no weekdays never fires; it is not read as "every day".
	if r.IsRecurring && !r.HasWeekday(local.Weekday()) {
		return false, nil
	}

	if r.LastTriggered != nil && SameDay(*r.LastTriggered, now, loc) {
		return false, nil
	}

	return true, nil
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Evaluator filters a reminder set down to the ones due at an instant.
// It performs no I/O.
type Evaluator struct {
	loc      *time.Location
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEvaluator(loc *time.Location, logger *slog.Logger) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{
		loc:      loc,
		validate: model.NewValidator(),
		logger:   logger,
	}
}

// Location returns the zone calendar days are evaluated in.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Due returns the due reminders in input order. Malformed records are
// skipped with a warning and do not affect the others.
func (e *Evaluator) Due(now time.Time, reminders []model.Reminder) []model.Reminder {
	var due []model.Reminder
	for _, r := range reminders {
		if err := e.Check(r); err != nil {
			e.logger.Warn("skipping malformed reminder", "reminder_id", r.ID, "error", err)
			continue
		}
		ok, err := IsDue(r, now, e.loc)
		if err != nil {
			e.logger.Warn("skipping malformed reminder", "reminder_id", r.ID, "error", err)
			continue
		}
		if ok {
			due = append(due, r)
		}
	}
	return due
}

// Check validates the fields evaluation depends on.
func (e *Evaluator) Check(r model.Reminder) error {
	if err := e.validate.Struct(r); err != nil {
		return fmt.Errorf("invalid reminder: %w", err)
	}
	return nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
