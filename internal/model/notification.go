package model

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Action kinds offered on a notification.
const (
	ActionComplete = "complete"
	ActionSnooze   = "snooze"
)

// NotificationAction is a user action offered alongside a notification.
// Minutes is only meaningful for snooze actions.
type NotificationAction struct {
	Kind    string `json:"kind"`
	Label   string `json:"label"`
	Minutes int    `json:"minutes,omitempty"`
	URL     string `json:"url,omitempty"`
}

// NotificationEvent is built for one due reminder and handed to every channel.
// It lives only for the duration of one dispatch.
type NotificationEvent struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Body           string               `json:"body"`
	Priority       string               `json:"priority"`
	ReminderID     string               `json:"reminder_id"`
	LinkedEntityID *string              `json:"linked_entity_id,omitempty"`
	Actions        []NotificationAction `json:"actions"`
}
