package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/nudge/internal/action"
	"github.com/dukerupert/nudge/internal/logging"
	"github.com/dukerupert/nudge/internal/model"
)

func newActionHandler(t *testing.T, env *testEnv) (*ActionHandler, *action.Sealer) {
	t.Helper()
	sealer, err := action.NewSealer("test-secret", "http://nudge.test", time.Hour)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return NewActionHandler(sealer, env.reminders, env.feedback, logging.Discard()), sealer
}

func actionRequest(t *testing.T, method string, sealer *action.Sealer, c action.Claims) *http.Request {
	t.Helper()
	token, err := sealer.Seal(c)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	req := httptest.NewRequest(method, "/actions/"+token, nil)
	req.SetPathValue("token", token)
	return req
}

func TestActionShowDoesNotAct(t *testing.T) {
	env := newTestEnv(t)
	h, sealer := newActionHandler(t, env)
	r := env.seed(t, model.Reminder{Title: "Water plants", ScheduledTime: "09:00", IsActive: true})

	req := actionRequest(t, "GET", sealer, action.Claims{
		ReminderID: r.ID,
		Kind:       model.ActionSnooze,
		Minutes:    10,
		Expires:    time.Now().Add(time.Hour),
	})
	rec := httptest.NewRecorder()
	h.Show(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Water plants", "Snooze 10 min", `method="post"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	stored, _ := env.reminders.GetByID(context.Background(), r.ID)
	if stored.SnoozeUntil != nil {
		t.Error("GET must not snooze the reminder")
	}
}

func TestActionPerform(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		check func(t *testing.T, r *model.Reminder)
	}{
		{
			name: "snooze",
			kind: model.ActionSnooze,
			check: func(t *testing.T, r *model.Reminder) {
				if r.SnoozeUntil == nil || !r.SnoozeUntil.Equal(testNow.Add(5*time.Minute)) {
					t.Errorf("snooze_until = %v, want %v", r.SnoozeUntil, testNow.Add(5*time.Minute))
				}
			},
		},
		{
			name: "complete",
			kind: model.ActionComplete,
			check: func(t *testing.T, r *model.Reminder) {
				if r.LastTriggered == nil || !r.LastTriggered.Equal(testNow) {
					t.Errorf("last_triggered = %v, want %v", r.LastTriggered, testNow)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h, sealer := newActionHandler(t, env)
			r := env.seed(t, model.Reminder{Title: "Stretch", ScheduledTime: "09:00", IsActive: true})

			req := actionRequest(t, "POST", sealer, action.Claims{
				ReminderID: r.ID,
				Kind:       tt.kind,
				Minutes:    5,
				Expires:    time.Now().Add(time.Hour),
			})
			rec := httptest.NewRecorder()
			h.Perform(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			stored, _ := env.reminders.GetByID(context.Background(), r.ID)
			tt.check(t, stored)
		})
	}
}

func TestActionBadLinks(t *testing.T) {
	env := newTestEnv(t)
	h, sealer := newActionHandler(t, env)
	r := env.seed(t, model.Reminder{Title: "Stretch", ScheduledTime: "09:00", IsActive: true})

	expired := actionRequest(t, "GET", sealer, action.Claims{
		ReminderID: r.ID,
		Kind:       model.ActionComplete,
		Expires:    time.Now().Add(-time.Minute),
	})
	missing := actionRequest(t, "POST", sealer, action.Claims{
		ReminderID: "gone",
		Kind:       model.ActionComplete,
		Expires:    time.Now().Add(time.Hour),
	})
	garbage := httptest.NewRequest("GET", "/actions/not-a-token", nil)
	garbage.SetPathValue("token", "not-a-token")

	tests := []struct {
		name    string
		req     *http.Request
		handler http.HandlerFunc
		status  int
	}{
		{"expired", expired, h.Show, http.StatusGone},
		{"unknown reminder", missing, h.Perform, http.StatusNotFound},
		{"garbage token", garbage, h.Show, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, tt.req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("content type = %q, want html", ct)
			}
		})
	}
}
