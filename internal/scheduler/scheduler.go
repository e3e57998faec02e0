// Package scheduler drives the fixed-rate orchestration loop. The cadence
// is a target, not a hard real-time guarantee: when a tick overruns its
// period the loop runs subsequent ticks back-to-back until the schedule is
// caught up. The tick counter is never skipped and never repeated.
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// TickState is owned by the scheduler and mutated only by its advance
// step. The counter is monotonic and never rolled back.
type TickState struct {
	Tick    uint64
	Elapsed time.Duration
}

type Scheduler struct {
	cadenceHz int

	// Injectable for tests; real clock by default.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cadenceHz int) (*Scheduler, error) {
	if cadenceHz <= 0 {
		return nil, fmt.Errorf("cadence must be positive, got %d", cadenceHz)
	}
	return &Scheduler{
		cadenceHz: cadenceHz,
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run invokes onTick once per cadence period until stop reports true or
// the context is cancelled. Cancellation is cooperative: it is observed
// between ticks, never pre-empting an in-flight one. Deadlines are
// computed from the start time, so a slow tick produces catch-up ticks
// rather than a shifted schedule.
func (s *Scheduler) Run(ctx context.Context, onTick func(TickState) error, stop func(TickState) bool) error {
	period := time.Second / time.Duration(s.cadenceHz)
	start := s.now()

	var tick uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		state := TickState{Tick: tick, Elapsed: s.now().Sub(start)}
		if stop != nil && stop(state) {
			return nil
		}
		if err := onTick(state); err != nil {
			return err
		}
		tick++

		next := start.Add(time.Duration(tick) * period)
		if d := next.Sub(s.now()); d > 0 {
			if err := s.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
}
