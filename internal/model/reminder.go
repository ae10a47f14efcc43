package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reminder kinds
const (
	KindGeneric    = "generic"
	KindMedication = "medication"
)

// Reminder is a scheduled personal reminder. ScheduledTime is a wall-clock
// time of day in "HH:MM" form, interpreted in the owner's time zone.
type Reminder struct {
	ID             string     `json:"id" validate:"required"`
	OwnerID        string     `json:"owner_id" validate:"required"`
	Title          string     `json:"title" validate:"required"`
	Description    string     `json:"description"`
	ScheduledTime  string     `json:"scheduled_time" validate:"required,datetime=15:04"`
	IsRecurring    bool       `json:"is_recurring"`
	Weekdays       []string   `json:"weekdays" validate:"dive,weekday"`
	Kind           string     `json:"kind" validate:"omitempty,oneof=generic medication"`
	LinkedEntityID *string    `json:"linked_entity_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	LastTriggered  *time.Time `json:"last_triggered,omitempty"`
	SnoozeUntil    *time.Time `json:"snooze_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasWeekday reports whether day is in the reminder's weekday set.
func (r Reminder) HasWeekday(day time.Weekday) bool {
	name := day.String()
	for _, d := range r.Weekdays {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// ReminderUpdate carries the fields to change on a reminder. Nil fields are
// left untouched. ClearSnooze sets snooze_until to NULL and wins over SnoozeUntil.
type ReminderUpdate struct {
	Title          *string
	Description    *string
	ScheduledTime  *string
	IsRecurring    *bool
	Weekdays       *[]string
	Kind           *string
	LinkedEntityID *string
	IsActive       *bool
	LastTriggered  *time.Time
	SnoozeUntil    *time.Time
	ClearSnooze    bool
}

// Empty reports whether the update changes nothing.
func (u ReminderUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.ScheduledTime == nil &&
		u.IsRecurring == nil && u.Weekdays == nil && u.Kind == nil &&
		u.LinkedEntityID == nil && u.IsActive == nil && u.LastTriggered == nil &&
		u.SnoozeUntil == nil && !u.ClearSnooze
}

// ParseTimeOfDay parses "HH:MM" into minutes since midnight (0-1439).
func ParseTimeOfDay(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day: %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// ParseWeekday maps a full English weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, true
		}
	}
	return 0, false
}
