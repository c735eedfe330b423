/*
scheduler.go - Automated year-end close

PURPOSE:
  Periodically checks whether the previous calendar year is due to be
  closed and, if so, locks its Approved and Paid salary records.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - The previous year is due once the clock passes CloseAfterDay of January
  - A year that still has Draft records is reported and retried on the
    next tick; nothing is forced
  - A successfully closed year is remembered and not retried

USAGE:
  s := NewYearEndScheduler(pipeline, logger)
  s.CloseAfterDay = cfg.Scheduler.CloseAfterDay
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - payroll/lifecycle.go: CloseYear
  - payroll.go: POST /api/payroll/close-year (manual close)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// YearCloser locks a year's settled records.
type YearCloser interface {
	CloseYear(ctx context.Context, year int, actor generic.Actor) (int, error)
}

// YearEndScheduler handles automated year-end closing.
type YearEndScheduler struct {
	Closer        YearCloser
	CheckInterval time.Duration
	CloseAfterDay int
	Enabled       bool
	Now           func() time.Time

	log        *zap.Logger
	lastClosed int
	ticker     *time.Ticker
	stop       chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
}

// NewYearEndScheduler creates a scheduler with a one hour interval that
// closes the previous year after January 15.
func NewYearEndScheduler(closer YearCloser, log *zap.Logger) *YearEndScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &YearEndScheduler{
		Closer:        closer,
		CheckInterval: time.Hour,
		CloseAfterDay: 15,
		Enabled:       true,
		Now:           time.Now,
		log:           log.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *YearEndScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.log.Info("started", zap.Duration("interval", s.CheckInterval), zap.Int("close_after_day", s.CloseAfterDay))
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *YearEndScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("stopped")
}

func (s *YearEndScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one check. It returns the year it closed, or 0 when no
// year was due or closing failed.
func (s *YearEndScheduler) RunNow(ctx context.Context) int {
	now := s.Now()
	year := now.Year() - 1
	due := time.Date(now.Year(), time.January, s.CloseAfterDay, 23, 59, 59, 0, now.Location())
	if !now.After(due) || year <= s.lastClosed {
		return 0
	}

	closed, err := s.Closer.CloseYear(ctx, year, generic.ActorSystem)
	switch {
	case errors.Is(err, generic.ErrInvalidTransition), errors.Is(err, generic.ErrConflict):
		s.log.Warn("year not closable yet", zap.Int("year", year), zap.Error(err))
		return 0
	case err != nil:
		s.log.Error("year-end close failed", zap.Int("year", year), zap.Error(err))
		return 0
	}

	s.lastClosed = year
	s.log.Info("year closed", zap.Int("year", year), zap.Int("records", closed))
	return year
}
