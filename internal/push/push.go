// Package push delivers notifications to browsers over Web Push (VAPID).
package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/nudge/internal/model"
)

var (
	// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
	ErrExpired = errors.New("push subscription expired")
	// ErrNoSubscriptions is returned when the owner has no browser registered.
	ErrNoSubscriptions = errors.New("no push subscriptions")
)

// Payload is the JSON sent to the push service. The service worker reads
// Actions to render buttons.
type Payload struct {
	Title      string                     `json:"title"`
	Body       string                     `json:"body"`
	URL        string                     `json:"url,omitempty"`
	Tag        string                     `json:"tag,omitempty"`
	Priority   string                     `json:"priority,omitempty"`
	ReminderID string                     `json:"reminder_id,omitempty"`
	Actions    []model.NotificationAction `json:"actions,omitempty"`
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
}

// NewService creates a new push service with VAPID keys. subscriber is the
// contact sent to push services, an email address or https URL.
func NewService(publicKey, privateKey, subscriber string) *Service {
	if subscriber == "" {
		subscriber = "mailto:noreply@localhost"
	}
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send sends a push notification to a subscription.
func (s *Service) Send(ctx context.Context, sub model.PushSubscription, payload Payload, urgency webpush.Urgency) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
		Urgency:         urgency,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}

// SubscriptionStore is the subscription persistence the channel needs.
type SubscriptionStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Channel is the browser notification channel. It sends every event to all
// of the owner's subscriptions and prunes the ones the push service reports
// gone.
type Channel struct {
	service *Service
	subs    SubscriptionStore
	ownerID string
	logger  *slog.Logger
}

func NewChannel(service *Service, subs SubscriptionStore, ownerID string, logger *slog.Logger) *Channel {
	return &Channel{
		service: service,
		subs:    subs,
		ownerID: ownerID,
		logger:  logger,
	}
}

func (c *Channel) Name() string { return "browser" }

// Send succeeds if at least one subscription accepted the event.
func (c *Channel) Send(ctx context.Context, ev model.NotificationEvent) error {
	subs, err := c.subs.ListByOwner(ctx, c.ownerID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	payload := Payload{
		Title:      ev.Title,
		Body:       ev.Body,
		URL:        "/",
		Tag:        "reminder-" + ev.ReminderID,
		Priority:   ev.Priority,
		ReminderID: ev.ReminderID,
		Actions:    ev.Actions,
	}
	urgency := urgencyFor(ev.Priority)

	var errs []error
	delivered := 0
	for _, sub := range subs {
		err := c.service.Send(ctx, sub, payload, urgency)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrExpired):
			c.logger.Info("removing expired subscription", "subscription_id", sub.ID)
			if derr := c.subs.DeleteByEndpoint(ctx, sub.Endpoint); derr != nil {
				c.logger.Warn("delete expired subscription", "subscription_id", sub.ID, "error", derr)
			}
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		default:
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		c.logger.Warn("push partially delivered", "reminder_id", ev.ReminderID, "delivered", delivered, "failed", len(errs))
	}
	return nil
}

func urgencyFor(priority string) webpush.Urgency {
	switch priority {
	case model.PriorityLow:
		return webpush.UrgencyLow
	case model.PriorityHigh, model.PriorityUrgent:
		return webpush.UrgencyHigh
	default:
		return webpush.UrgencyNormal
	}
}
