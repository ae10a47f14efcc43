package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/nudge/internal/database"
	"github.com/dukerupert/nudge/internal/logging"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/reminder"
	"github.com/dukerupert/nudge/internal/store"
)

const testOwner = "owner-1"

// Monday 6 January 2025, 09:00 UTC.
var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db        *sql.DB
	reminders *store.ReminderStore
	meds      *store.MedicationStore
	pushes    *store.PushStore
	evaluator *reminder.Evaluator
	feedback  *reminder.Feedback
	handler   *ReminderHandler
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	logger := logging.Discard()

	env := &testEnv{
		db:        db,
		reminders: store.NewReminderStore(db),
		meds:      store.NewMedicationStore(db),
		pushes:    store.NewPushStore(db),
		evaluator: reminder.NewEvaluator(time.UTC, logger),
	}
	env.feedback = reminder.NewFeedback(env.reminders, env.meds, nil, time.UTC, logger,
		reminder.WithClock(func() time.Time { return testNow }))
	env.handler = NewReminderHandler(env.reminders, env.evaluator, env.feedback, testOwner, 5, logger)
	env.handler.now = func() time.Time { return testNow }
	return env
}

func (e *testEnv) seed(t *testing.T, r model.Reminder) *model.Reminder {
	t.Helper()
	if r.OwnerID == "" {
		r.OwnerID = testOwner
	}
	created, err := e.reminders.Create(context.Background(), r)
	if err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	return created
}

func jsonRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}
