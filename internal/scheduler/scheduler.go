package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of a job. A failing or panicking tick
// is logged and never stops the loop.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, invoking tick every interval until ctx is cancelled. The first
// tick fires after StartupDelay plus one interval.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := wait(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	next := s.nextTick(s.now())
	for {
		if missed := s.missedSlots(next); missed > 0 {
			s.logger.Warn().Int64("missed", missed).Msg("previous tick overran; skipping missed slots")
			next = s.nextTick(s.now())
		}

		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if err := wait(ctx, next.Sub(s.now())); err != nil {
			return err
		}

		at := s.tickStart(next)
		if err := s.safeTick(ctx, tick, at); err != nil {
			s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

// missedSlots reports how many whole intervals have elapsed past next.
func (s *Scheduler) missedSlots(next time.Time) int64 {
	late := s.now().Sub(next)
	if late <= 0 {
		return 0
	}
	return int64(late/s.opts.Interval) + 1
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) safeTick(ctx context.Context, tick TickFunc, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
			s.logger.Error().Str("stack", string(debug.Stack())).Time("tick", at).Msg("recovered panic in scheduled tick")
		}
	}()
	return tick(ctx, at)
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) tickStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
