// Package sweeper periodically auto-submits quiz sessions whose deadline
// has passed.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
)

// Expirer grades expired quiz sessions and reports how many it handled.
type Expirer interface {
	ExpireSessions(ctx context.Context) (int, error)
}

// Sweeper runs an Expirer on a fixed interval.
type Sweeper struct {
	scheduler *gocron.Scheduler
	expirer   Expirer
	logger    logging.Logger
	interval  time.Duration
}

// New creates a sweeper. Nothing runs until Start.
func New(expirer Expirer, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		expirer:   expirer,
		logger:    logger,
		interval:  interval,
	}
}

// Start schedules the sweep and returns immediately. Runs never overlap.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("sweeper: interval must be > 0, got %s", s.interval)
	}
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run); err != nil {
		return fmt.Errorf("sweeper: schedule: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the schedule.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("expire quiz sessions", "err", err)
	}
}

// RunOnce performs one sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.expirer.ExpireSessions(ctx)
	if n > 0 {
		s.logger.Info("auto-submitted expired quiz sessions", "count", n)
	}
	return n, err
}
