// Package scheduler drives the fetch, evaluate and dispatch cycle on a fixed
// interval for the configured owner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/notify"
	"github.com/dukerupert/nudge/internal/reminder"
)

// ErrTickInFlight is returned by RunOnce when the owner already has a tick
// running.
var ErrTickInFlight = errors.New("tick already in flight")

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 30 * time.Second

// Fetcher loads the owner's active reminders.
type Fetcher interface {
	ListActive(ctx context.Context, ownerID string) ([]model.Reminder, error)
}

// Dispatcher delivers due reminders and marks them triggered.
type Dispatcher interface {
	Dispatch(ctx context.Context, now time.Time, due []model.Reminder) []notify.Result
}

// Report summarizes one tick.
type Report struct {
	At      time.Time
	Checked int
	Due     int
	Results []notify.Result
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running  bool          `json:"running"`
	InFlight bool          `json:"in_flight"`
	Interval time.Duration `json:"interval"`
	OwnerID  string        `json:"owner_id"`
	LastTick *time.Time    `json:"last_tick,omitempty"`
}

// Scheduler periodically checks the owner's reminders and dispatches the due
// ones. At most one tick per owner runs at a time; a tick that would overlap
// is skipped.
type Scheduler struct {
	fetcher    Fetcher
	evaluator  *reminder.Evaluator
	dispatcher Dispatcher
	guard      *OwnerGuard
	ownerID    string
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.RWMutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	lastTick *time.Time

	inFlight atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGuard shares a tick guard between schedulers.
func WithGuard(g *OwnerGuard) Option {
	return func(s *Scheduler) { s.guard = g }
}

func New(ownerID string, fetcher Fetcher, evaluator *reminder.Evaluator, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:    fetcher,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		guard:      NewOwnerGuard(),
		ownerID:    ownerID,
		now:        time.Now,
		logger:     logger,
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the poll loop and runs a first tick straight away. It returns
// false if the loop is already running. The loop stops when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	interval := s.interval
	s.mu.Unlock()

	s.logger.Info("scheduler started", "owner_id", s.ownerID, "interval", interval)

	go func() {
		// Ticks belong to this run; done closes only after they finish.
		var ticks sync.WaitGroup
		defer func() {
			ticks.Wait()
			s.mu.Lock()
			if s.done == done {
				s.cancel = nil
				s.done = nil
			}
			s.mu.Unlock()
			close(done)
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.spawnTick(ctx, &ticks)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.spawnTick(ctx, &ticks)
			}
		}
	}()
	return true
}

// Stop ends the poll loop and waits for any tick in flight to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if cancel != nil {
		s.logger.Info("scheduler stopped", "owner_id", s.ownerID)
	}
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

// SetInterval changes the poll interval. A running loop keeps its interval
// until it is restarted.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Running:  s.cancel != nil,
		InFlight: s.inFlight.Load(),
		Interval: s.interval,
		OwnerID:  s.ownerID,
	}
	if s.lastTick != nil {
		t := *s.lastTick
		st.LastTick = &t
	}
	return st
}

// spawnTick runs a tick in its own goroutine so a slow tick never delays the
// ticker; the guard turns the overlap into a skip. The tick is detached from
// loop cancellation so Stop lets it finish.
func (s *Scheduler) spawnTick(ctx context.Context, ticks *sync.WaitGroup) {
	ticks.Add(1)
	go func() {
		defer ticks.Done()
		if _, err := s.RunOnce(context.WithoutCancel(ctx)); errors.Is(err, ErrTickInFlight) {
			s.logger.Info("tick skipped, previous tick still running", "owner_id", s.ownerID)
		}
	}()
}

// RunOnce performs a single fetch, evaluate and dispatch cycle. A failed
// fetch aborts the tick before anything is dispatched or written.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.guard.TryAcquire(s.ownerID) {
		return Report{}, ErrTickInFlight
	}
	defer s.guard.Release(s.ownerID)

	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	now := s.now()
	report := Report{At: now}

	reminders, err := s.fetcher.ListActive(ctx, s.ownerID)
	if err != nil {
		s.logger.Error("fetch reminders", "owner_id", s.ownerID, "error", err)
		return report, fmt.Errorf("fetch reminders: %w", err)
	}
	report.Checked = len(reminders)

	due := s.evaluator.Due(now, reminders)
	report.Due = len(due)
	if len(due) > 0 {
		report.Results = s.dispatcher.Dispatch(ctx, now, due)
	}

	s.mu.Lock()
	s.lastTick = &now
	s.mu.Unlock()

	s.logger.Debug("tick complete", "owner_id", s.ownerID, "checked", report.Checked, "due", report.Due)
	return report, nil
}
