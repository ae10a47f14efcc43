// Package email is the optional email notification channel, sent through the
// Postmark HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/dukerupert/nudge/internal/model"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	toEmail     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, toEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		toEmail:     toEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token and recipient are set.
func (c *Client) Configured() bool {
	return c.serverToken != "" && c.toEmail != ""
}

func (c *Client) Name() string { return "email" }

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// Send emails the notification to the owner. Actions that carry a URL are
// rendered as links; the rest are left out since mail has no buttons.
func (c *Client) Send(ctx context.Context, ev model.NotificationEvent) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       c.toEmail,
		Subject:  subject(ev),
		TextBody: textBody(ev),
		HtmlBody: htmlBody(ev),
		Tag:      "reminder",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

func subject(ev model.NotificationEvent) string {
	switch ev.Priority {
	case model.PriorityHigh, model.PriorityUrgent:
		return "Reminder (important): " + ev.Title
	default:
		return "Reminder: " + ev.Title
	}
}

func textBody(ev model.NotificationEvent) string {
	var b strings.Builder
	b.WriteString(ev.Body)
	for _, a := range ev.Actions {
		if a.URL == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s: %s", a.Label, a.URL)
	}
	return b.String()
}

func htmlBody(ev model.NotificationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2><p>%s</p>", html.EscapeString(ev.Title), html.EscapeString(ev.Body))
	var links []string
	for _, a := range ev.Actions {
		if a.URL == "" {
			continue
		}
		links = append(links, fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(a.URL), html.EscapeString(a.Label)))
	}
	if len(links) > 0 {
		fmt.Fprintf(&b, "<p>%s</p>", strings.Join(links, " | "))
	}
	return b.String()
}
