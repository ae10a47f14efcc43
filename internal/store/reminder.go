package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/dukerupert/nudge/internal/model"
)

const reminderColumns = `id, owner_id, title, description, scheduled_time, is_recurring, weekdays, kind,
	linked_entity_id, is_active, last_triggered, snooze_until, created_at, updated_at`

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Create inserts a reminder. An empty ID is replaced with a new UUID and an
// empty Kind defaults to generic.
func (s *ReminderStore) Create(ctx context.Context, r model.Reminder) (*model.Reminder, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Kind == "" {
		r.Kind = model.KindGeneric
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, owner_id, title, description, scheduled_time, is_recurring, weekdays, kind,
		 linked_entity_id, is_active, last_triggered, snooze_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Title, r.Description, r.ScheduledTime, boolInt(r.IsRecurring),
		joinWeekdays(r.Weekdays), r.Kind, nullString(r.LinkedEntityID), boolInt(r.IsActive),
		nullTime(r.LastTriggered), nullTime(r.SnoozeUntil),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}

	return s.GetByID(ctx, r.ID)
}

func (s *ReminderStore) GetByID(ctx context.Context, id string) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// List returns the owner's reminders in creation order.
func (s *ReminderStore) List(ctx context.Context, ownerID string, activeOnly bool) ([]model.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// ListActive returns the owner's active reminders.
func (s *ReminderStore) ListActive(ctx context.Context, ownerID string) ([]model.Reminder, error) {
	return s.List(ctx, ownerID, true)
}

// Update applies the non-nil fields of u. It returns nil, nil when no reminder
// has the given id. Writes are last-write-wins per column.
func (s *ReminderStore) Update(ctx context.Context, id string, u model.ReminderUpdate) (*model.Reminder, error) {
	q := squirrel.Update("reminders").
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id})

	if u.Title != nil {
		q = q.Set("title", *u.Title)
	}
	if u.Description != nil {
		q = q.Set("description", *u.Description)
	}
	if u.ScheduledTime != nil {
		q = q.Set("scheduled_time", *u.ScheduledTime)
	}
	if u.IsRecurring != nil {
		q = q.Set("is_recurring", boolInt(*u.IsRecurring))
	}
	if u.Weekdays != nil {
		q = q.Set("weekdays", joinWeekdays(*u.Weekdays))
	}
	if u.Kind != nil {
		q = q.Set("kind", *u.Kind)
	}
	if u.LinkedEntityID != nil {
		q = q.Set("linked_entity_id", nullString(u.LinkedEntityID))
	}
	if u.IsActive != nil {
		q = q.Set("is_active", boolInt(*u.IsActive))
	}
	if u.LastTriggered != nil {
		q = q.Set("last_triggered", u.LastTriggered.UTC())
	}
	switch {
	case u.ClearSnooze:
		q = q.Set("snooze_until", nil)
	case u.SnoozeUntil != nil:
		q = q.Set("snooze_until", u.SnoozeUntil.UTC())
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reminder update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}

	return s.GetByID(ctx, id)
}

// Delete removes a reminder. It reports whether a row was deleted.
func (s *ReminderStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var r model.Reminder
	var recurringInt, activeInt int
	var weekdays string
	var linked sql.NullString
	var lastTriggered, snoozeUntil sql.NullTime

	err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Description, &r.ScheduledTime, &recurringInt, &weekdays,
		&r.Kind, &linked, &activeInt, &lastTriggered, &snoozeUntil, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.IsRecurring = recurringInt != 0
	r.IsActive = activeInt != 0
	r.Weekdays = splitWeekdays(weekdays)
	if linked.Valid {
		r.LinkedEntityID = &linked.String
	}
	if lastTriggered.Valid {
		r.LastTriggered = &lastTriggered.Time
	}
	if snoozeUntil.Valid {
		r.SnoozeUntil = &snoozeUntil.Time
	}
	return &r, nil
}

func joinWeekdays(days []string) string {
	return strings.Join(days, ",")
}

func splitWeekdays(s string) []string {
	days := []string{}
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	return days
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
