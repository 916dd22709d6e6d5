/*
scheduler.go - Automated expiry sweep and renewal reminders

PURPOSE:
  Periodically expires renewals whose expiry date has passed and sends
  reminders for renewals expiring soon. Both jobs are idempotent, so a
  missed tick or a manual run never double-processes anything.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run executes the sweep and the reminder pass concurrently; they
    touch disjoint renewals (expiry before now vs. expiry after now)
  - The last run result is kept for the admin endpoint

CONFIGURATION:
  - CheckInterval:  How often to run (default: 1 hour)
  - ReminderWindow: How far ahead reminders look (default: 7 days)
  - Enabled:        Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(lifecycle, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual run)
  - insurance/lifecycle.go: SweepExpired, SendReminders
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/motor-insurance/insurance"
)

// SweepResult is the outcome of one scheduler run.
type SweepResult struct {
	Expired  int
	Reminded int
	RanAt    time.Time
}

// ExpiryScheduler runs the renewal expiry sweep and reminder pass.
type ExpiryScheduler struct {
	Lifecycle      *insurance.Lifecycle
	CheckInterval  time.Duration
	ReminderWindow time.Duration
	Enabled        bool
	Now            func() time.Time

	logger  *slog.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	runMu   sync.Mutex
	resMu   sync.Mutex
	lastRun *SweepResult
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(lifecycle *insurance.Lifecycle, logger *slog.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryScheduler{
		Lifecycle:      lifecycle,
		CheckInterval:  1 * time.Hour,
		ReminderWindow: 7 * 24 * time.Hour,
		Enabled:        true,
		Now:            time.Now,
		logger:         logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (s *ExpiryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("started", "interval", s.CheckInterval, "reminder_window", s.ReminderWindow)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *ExpiryScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *ExpiryScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.CheckInterval)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("run failed", "error", err)
	}
}

// RunNow runs the sweep and the reminder pass once. Concurrent calls are
// serialized.
func (s *ExpiryScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.Now().UTC()
	res := SweepResult{RanAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.Lifecycle.SweepExpired(gctx, now)
		if err != nil {
			return fmt.Errorf("sweep expired renewals: %w", err)
		}
		res.Expired = n
		return nil
	})
	g.Go(func() error {
		n, err := s.Lifecycle.SendReminders(gctx, now, s.ReminderWindow)
		if err != nil {
			return fmt.Errorf("send renewal reminders: %w", err)
		}
		res.Reminded = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	if res.Expired > 0 || res.Reminded > 0 {
		s.logger.Info("run completed", "expired", res.Expired, "reminded", res.Reminded)
	}

	s.resMu.Lock()
	s.lastRun = &res
	s.resMu.Unlock()
	return res, nil
}

// LastRun returns the result of the most recent successful run.
func (s *ExpiryScheduler) LastRun() (SweepResult, bool) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.lastRun == nil {
		return SweepResult{}, false
	}
	return *s.lastRun, true
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *ExpiryScheduler) GetNextRunTime() time.Time {
	return s.Now().Add(s.CheckInterval)
}
