// Package scheduler drives the trade cycle engine at a fixed cadence.
//
// Each tick runs one attempt with the next poller in rotation. A helper that
// spots an opportunity hands control back to the primary for an immediate
// re-check; a successful non-bursting trade spends the burst balance on
// back-to-back cycles. The next tick is armed only after all of that work
// finishes, with the tick's own runtime subtracted from the interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
)

// CycleRunner runs one trade cycle. *executor.Engine satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context, p executor.Poller, bursting bool) (domain.TradeCycle, error)
}

// Scheduler owns the polling loop. Only one cycle runs at a time.
type Scheduler struct {
	engine   CycleRunner
	rotator  *executor.Rotator
	burst    *executor.Burst
	interval time.Duration
	logger   *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	ticks atomic.Int64
}

// New creates a Scheduler that ticks every interval.
func New(engine CycleRunner, rotator *executor.Rotator, burst *executor.Burst, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		rotator:  rotator,
		burst:    burst,
		interval: interval,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
		wait:     sleep,
	}
}

// Interval returns the calibrated tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// Run ticks until ctx is cancelled or a cycle reports an unrecoverable
// position. An in-flight tick always completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("pollers", s.rotator.Len()),
		slog.Int("burst_ceiling", s.burst.Ceiling()),
	)
	defer s.logger.Info("scheduler stopped", slog.Int64("ticks", s.ticks.Load()))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := s.now()
		if err := s.Tick(ctx); err != nil {
			return err
		}
		s.ticks.Add(1)

		delay := s.interval - s.now().Sub(start)
		if delay < 0 {
			s.logger.Debug("tick overran interval", slog.Duration("overrun", -delay))
			delay = 0
		}
		if err := s.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Tick runs one scheduled attempt plus any re-check and burst chain it
// triggers.
func (s *Scheduler) Tick(ctx context.Context) error {
	traded, err := s.runChecked(ctx, false)
	if err != nil || !traded {
		return err
	}

	for {
		// Finish the chain early on shutdown without spending a unit.
		if ctx.Err() != nil || !s.burst.Take() {
			return nil
		}
		traded, err := s.runChecked(ctx, true)
		if err != nil {
			return err
		}
		if !traded {
			return nil
		}
	}
}

// runChecked runs one attempt. If a helper spotted profit it spends a burst
// unit when one is left, points the rotation at the primary and re-checks
// with it. Quiet non-bursting attempts earn a burst unit.
func (s *Scheduler) runChecked(ctx context.Context, bursting bool) (bool, error) {
	cycle, err := s.attempt(ctx, bursting)
	for err == nil && cycle.Outcome == domain.OutcomeReverted {
		s.burst.Take()
		s.rotator.Reset()
		cycle, err = s.attempt(ctx, bursting)
	}
	if err != nil {
		return false, err
	}
	if !bursting && cycle.Outcome == domain.OutcomeNoOp {
		s.burst.Earn()
	}
	return cycle.Traded(), nil
}

// attempt runs one cycle with the current poller. The rotation advances
// exactly once per attempt whatever the outcome. Shutdown never reaches a
// running cycle: cancelling between the legs would strand a position.
func (s *Scheduler) attempt(ctx context.Context, bursting bool) (domain.TradeCycle, error) {
	p := s.rotator.Next()
	defer s.rotator.Advance()
	return s.engine.RunCycle(context.WithoutCancel(ctx), p, bursting)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
