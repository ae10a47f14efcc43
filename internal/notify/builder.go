// Package notify turns due reminders into notification events and delivers
// them over the configured channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/nudge/internal/model"
)

// EntityLookup resolves a linked entity for enrichment. It returns nil, nil
// for unknown ids.
type EntityLookup interface {
	Lookup(ctx context.Context, entityID string) (*model.LinkedEntity, error)
}

// ActionLinker produces a URL that performs an action on a reminder when
// followed. Channels that cannot carry interactive buttons use it.
type ActionLinker interface {
	URL(reminderID, kind string, minutes int) (string, error)
}

// Builder creates the NotificationEvent for a reminder.
type Builder struct {
	entities      EntityLookup
	links         ActionLinker
	snoozeMinutes int
	logger        *slog.Logger
}

// NewBuilder returns a Builder. entities and links may be nil.
func NewBuilder(entities EntityLookup, links ActionLinker, snoozeMinutes int, logger *slog.Logger) *Builder {
	if snoozeMinutes <= 0 {
		snoozeMinutes = 5
	}
	return &Builder{
		entities:      entities,
		links:         links,
		snoozeMinutes: snoozeMinutes,
		logger:        logger,
	}
}

// Build creates the event for r. A failed entity lookup is logged and the
// event goes out with the plain body.
func (b *Builder) Build(ctx context.Context, r model.Reminder) model.NotificationEvent {
	ev := model.NotificationEvent{
		ID:             uuid.NewString(),
		Title:          r.Title,
		Body:           plainBody(r),
		Priority:       priorityFor(r),
		ReminderID:     r.ID,
		LinkedEntityID: r.LinkedEntityID,
	}

	if r.LinkedEntityID != nil && *r.LinkedEntityID != "" && b.entities != nil {
		ent, err := b.entities.Lookup(ctx, *r.LinkedEntityID)
		switch {
		case err != nil:
			b.logger.Warn("entity lookup failed", "reminder_id", r.ID, "entity_id", *r.LinkedEntityID, "error", err)
		case ent == nil:
			b.logger.Warn("linked entity not found", "reminder_id", r.ID, "entity_id", *r.LinkedEntityID)
		default:
			ev.Body = enrichedBody(*ent, ev.Body)
		}
	}

	ev.Actions = []model.NotificationAction{
		b.action(r.ID, model.ActionComplete, "Done", 0),
		b.action(r.ID, model.ActionSnooze, fmt.Sprintf("Snooze %dm", b.snoozeMinutes), b.snoozeMinutes),
	}
	return ev
}

func (b *Builder) action(reminderID, kind, label string, minutes int) model.NotificationAction {
	a := model.NotificationAction{Kind: kind, Label: label, Minutes: minutes}
	if b.links == nil {
		return a
	}
	url, err := b.links.URL(reminderID, kind, minutes)
	if err != nil {
		b.logger.Warn("action link", "reminder_id", reminderID, "kind", kind, "error", err)
		return a
	}
	a.URL = url
	return a
}

func plainBody(r model.Reminder) string {
	if r.Description != "" {
		return r.Description
	}
	return "Scheduled for " + r.ScheduledTime
}

func enrichedBody(ent model.LinkedEntity, body string) string {
	name := ent.Name
	if ent.Detail != "" {
		name = fmt.Sprintf("%s (%s)", ent.Name, ent.Detail)
	}
	return name + ": " + body
}

func priorityFor(r model.Reminder) string {
	if r.Kind == model.KindMedication {
		return model.PriorityHigh
	}
	return model.PriorityNormal
}
