// Package server wires the reminder core, its delivery channels and the
// HTTP surface together from configuration.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/nudge/internal/action"
	"github.com/dukerupert/nudge/internal/backup"
	"github.com/dukerupert/nudge/internal/config"
	"github.com/dukerupert/nudge/internal/email"
	"github.com/dukerupert/nudge/internal/events"
	"github.com/dukerupert/nudge/internal/handler"
	"github.com/dukerupert/nudge/internal/middleware"
	"github.com/dukerupert/nudge/internal/notify"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/reminder"
	"github.com/dukerupert/nudge/internal/scheduler"
	"github.com/dukerupert/nudge/internal/store"
	ws "github.com/dukerupert/nudge/internal/websocket"
)

// Action links are opened from mail clients and lock screens; they are
// limited harder than the token-protected API.
const (
	actionRateLimit = 20
	actionRateBurst = 5
)

type Server struct {
	hub         *ws.Hub
	scheduler   *scheduler.Scheduler
	backups     *backup.Manager
	feedback    *reminder.Feedback
	reminderH   *handler.ReminderHandler
	monitorH    *handler.MonitorHandler
	channelH    *handler.ChannelHandler
	medicationH *handler.MedicationHandler
	pushH       *handler.PushHandler
	actionH     *handler.ActionHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	apiToken    string
	logger      *slog.Logger
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ownerID := cfg.Owner.ID

	reminderStore := store.NewReminderStore(db)
	medicationStore := store.NewMedicationStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	hub := ws.NewHub(logger.With("component", "websocket"))

	eventLogger := logger.With("component", "events")
	emitter := events.NewEmitter(eventLogger)
	emitter.Subscribe(hub)
	emitter.Subscribe(events.ListenerFunc(func(_ context.Context, e events.Event) error {
		eventLogger.Debug("reminder event", "type", e.Type, "reminder_id", e.ReminderID, "event_id", e.EventID)
		return nil
	}))

	sealer, err := action.NewSealer(cfg.Actions.Secret, cfg.Notify.BaseURL, cfg.Actions.TTL)
	if err != nil {
		return nil, fmt.Errorf("action links: %w", err)
	}
	if cfg.Actions.Secret == "" {
		logger.Warn("actions.secret is empty; action links will not survive a restart")
	}

	// Channel order is send order in status listings; sends run concurrently.
	var channels []notify.Channel
	var pushSvc *push.Service
	var pushCh *push.Channel
	if cfg.BrowserConfigured() {
		b := cfg.Channels.Browser
		pushSvc = push.NewService(b.VAPIDPublicKey, b.VAPIDPrivateKey, b.Subscriber)
		pushCh = push.NewChannel(pushSvc, pushStore, ownerID, logger.With("component", "push"))
		channels = append(channels, pushCh)
	} else if cfg.Channels.Browser.Enabled {
		logger.Warn("browser channel enabled without VAPID keys; skipping it")
	}
	if cfg.Channels.Desktop.Enabled {
		channels = append(channels, hub)
	}
	if cfg.Channels.Email.Enabled {
		e := cfg.Channels.Email
		channels = append(channels, email.NewClient(e.ServerToken, e.From, e.To))
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels configured; reminders will be marked without delivery")
	}

	builder := notify.NewBuilder(medicationStore, sealer, cfg.Notify.SnoozeMinutes, logger.With("component", "notify"))
	dispatcher := notify.NewDispatcher(builder, reminderStore, channels, emitter, logger.With("component", "dispatch"))

	evaluator := reminder.NewEvaluator(loc, logger.With("component", "evaluator"))
	feedback := reminder.NewFeedback(reminderStore, medicationStore, emitter, loc, logger.With("component", "feedback"))

	sched := scheduler.New(ownerID, reminderStore, evaluator, dispatcher, logger.With("component", "scheduler"),
		scheduler.WithInterval(cfg.Scheduler.Interval))

	var backupCfg backup.Config
	if b := cfg.Backup; b.Enabled {
		backupCfg = backup.Config{
			S3: backup.S3Config{
				Endpoint:  b.S3.Endpoint,
				Bucket:    b.S3.Bucket,
				Region:    b.S3.Region,
				AccessKey: b.S3.AccessKey,
				SecretKey: b.S3.SecretKey,
			},
			Passphrase: b.Passphrase,
			OwnerID:    ownerID,
			Interval:   b.Interval,
			Retention:  b.Retention,
		}
	}
	backups := backup.NewManager(backupCfg, db, backupStore, logger.With("component", "backup"))

	return &Server{
		hub:         hub,
		scheduler:   sched,
		backups:     backups,
		feedback:    feedback,
		reminderH:   handler.NewReminderHandler(reminderStore, evaluator, feedback, ownerID, cfg.Notify.SnoozeMinutes, logger.With("component", "reminder")),
		monitorH:    handler.NewMonitorHandler(sched, logger.With("component", "monitor")),
		channelH:    handler.NewChannelHandler(dispatcher, logger.With("component", "channel")),
		medicationH: handler.NewMedicationHandler(medicationStore, ownerID, logger.With("component", "medication")),
		pushH:       handler.NewPushHandler(pushStore, pushSvc, pushCh, ownerID, logger.With("component", "push_handler")),
		actionH:     handler.NewActionHandler(sealer, reminderStore, feedback, logger.With("component", "action")),
		backupH:     handler.NewBackupHandler(backups, backupStore, ownerID, logger.With("component", "backup_handler")),
		rateLimiter: middleware.NewRateLimiter(actionRateLimit, actionRateBurst),
		apiToken:    cfg.HTTP.APIToken,
		logger:      logger,
	}, nil
}

// Scheduler returns the reminder scheduler so main can start and stop it.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Backups returns the backup manager so main can run its schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	limited := middleware.RateLimit(s.rateLimiter)
	outerMux.Handle("GET /actions/{token}", limited(http.HandlerFunc(s.actionH.Show)))
	outerMux.Handle("POST /actions/{token}", limited(http.HandlerFunc(s.actionH.Perform)))

	// Token-protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	requireToken := middleware.RequireToken(s.apiToken)
	outerMux.Handle("/api/", requireToken(protectedMux))
	outerMux.Handle("GET /ws", requireToken(ws.HandleWebSocket(s.hub, s.feedback, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":            "ok",
		"monitoring":        s.scheduler.Running(),
		"websocket_clients": s.hub.ClientCount(),
	})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Reminder routes
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("POST /api/reminders", s.reminderH.Create)
	mux.HandleFunc("GET /api/reminders/due", s.reminderH.Due)
	mux.HandleFunc("GET /api/reminders/{id}", s.reminderH.Get)
	mux.HandleFunc("PUT /api/reminders/{id}", s.reminderH.Update)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)
	mux.HandleFunc("POST /api/reminders/{id}/snooze", s.reminderH.Snooze)
	mux.HandleFunc("POST /api/reminders/{id}/complete", s.reminderH.Complete)

	// Monitor routes
	mux.HandleFunc("POST /api/reminders/monitor/start", s.monitorH.Start)
	mux.HandleFunc("POST /api/reminders/monitor/stop", s.monitorH.Stop)
	mux.HandleFunc("GET /api/reminders/monitor/status", s.monitorH.Status)
	mux.HandleFunc("POST /api/reminders/monitor/tick", s.monitorH.Tick)

	// Channel availability
	mux.HandleFunc("GET /api/channels", s.channelH.List)
	mux.HandleFunc("PUT /api/channels/{name}", s.channelH.SetAvailable)

	// Medication routes
	mux.HandleFunc("POST /api/medications", s.medicationH.Create)
	mux.HandleFunc("GET /api/medications", s.medicationH.List)
	mux.HandleFunc("GET /api/medications/{id}/logs", s.medicationH.Logs)

	// Push subscription routes
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// Backup routes
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.Run)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
}
