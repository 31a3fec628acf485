// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kyeo-hub/worktools/internal/slogs"
)

// Runner performs one silent check-and-offer round.
type Runner interface {
	Run(ctx context.Context, silent bool) error
}

// Scheduler triggers silent update checks: once shortly after startup and
// then on an optional cron schedule.
type Scheduler struct {
	runner  Runner
	logger  *slog.Logger
	delay   time.Duration
	startup bool
	spec    string
	onError func(error)

	mu    sync.Mutex
	cron  *cron.Cron
	timer *time.Timer
	wg    sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithStartupCheck enables the one-shot check after delay.
func WithStartupCheck(delay time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.startup = true
		s.delay = delay
	}
}

// WithSchedule adds a periodic check in standard cron syntax.
func WithSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		s.spec = spec
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithErrorHandler receives errors other than ErrBusy, such as a declined
// mandatory update.
func WithErrorHandler(fn func(error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// NewScheduler creates a scheduler around r.
func NewScheduler(r Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner: r,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the startup check and the cron schedule. Runs stop when ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New()
	if s.spec != "" {
		if _, err := c.AddFunc(s.spec, func() { s.run(ctx, "schedule") }); err != nil {
			return fmt.Errorf("invalid update schedule %q: %w", s.spec, err)
		}
	}
	c.Start()
	s.cron = c

	if s.startup {
		s.wg.Add(1)
		s.timer = time.AfterFunc(s.delay, func() {
			defer s.wg.Done()
			s.run(ctx, "startup")
		})
	}

	s.logger.Debug("update scheduler started",
		"startup", s.startup,
		slogs.Duration, s.delay,
		"schedule", s.spec)
	return nil
}

// Stop disarms every trigger and waits for a running check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, timer := s.cron, s.timer
	s.cron, s.timer = nil, nil
	s.mu.Unlock()

	if timer != nil && timer.Stop() {
		s.wg.Done()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	err := s.runner.Run(ctx, true)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		s.logger.Debug("update check skipped", slogs.Status, trigger, slogs.Error, err)
	default:
		s.logger.Warn("scheduled update check failed", slogs.Status, trigger, slogs.Error, err)
		if s.onError != nil {
			s.onError(err)
		}
	}
}
