package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/linkerlin/tgmonitor/internal/types"
)

// Phase is the scheduler's position in its run loop.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSleeping
	PhaseErrorRecovery
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSleeping:
		return "sleeping"
	case PhaseErrorRecovery:
		return "error_recovery"
	}
	return "unknown"
}

// Scanner performs one scan cycle.
type Scanner interface {
	Scan(ctx context.Context, state types.State, now time.Time) (types.State, []types.Event, error)
}

// Notifier delivers events without reporting failures.
type Notifier interface {
	Deliver(ctx context.Context, events []types.Event)
}

// Options configure the cadences of a Scheduler.
type Options struct {
	// Poll decides when the next cycle starts after a successful one.
	Poll cron.Schedule
	// Retry decides when the next cycle starts after a failed one.
	Retry cron.Schedule
	// StatusInterval is the minimum time between two status reports.
	StatusInterval time.Duration
	// KeywordCount is reported in status messages.
	KeywordCount int
	// AfterCycle, if set, runs after every successful cycle.
	AfterCycle func(ctx context.Context, state types.State)
}

// Scheduler drives scan cycles one at a time. A cycle never overlaps the
// previous one or its sleep.
type Scheduler struct {
	scanner  Scanner
	notifier Notifier
	opts     Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	phase atomic.Int32
	mu    sync.Mutex
	state types.State
}

// New creates a Scheduler starting from state.
func New(scanner Scanner, notifier Notifier, state types.State, opts Options) *Scheduler {
	return &Scheduler{
		scanner:  scanner,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepContext,
		state:    state,
	}
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// State returns a snapshot of the state after the last cycle.
func (s *Scheduler) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run loops until ctx is cancelled and returns ctx's error. Cycle failures
// never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setPhase(PhaseIdle)

	state := s.State()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var delay time.Duration
		state, delay = s.Step(ctx, state)

		s.mu.Lock()
		s.state = state
		s.mu.Unlock()

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Step runs one cycle from state and returns the next state and how long to
// wait before the next cycle.
func (s *Scheduler) Step(ctx context.Context, state types.State) (types.State, time.Duration) {
	id := uuid.NewString()
	start := s.now()
	s.setPhase(PhaseRunning)
	slog.Debug("scan cycle started", "cycle", id, "watermark", state.Watermark)

	next, events, err := s.scan(ctx, state, start)
	if err != nil {
		end := s.now()
		s.setPhase(PhaseErrorRecovery)
		slog.Error("scan cycle failed", "cycle", id, "err", err)
		if ctx.Err() == nil {
			s.notifier.Deliver(ctx, []types.Event{types.ErrorEvent(end, err)})
		}
		return state, s.opts.Retry.Next(end).Sub(end)
	}

	s.notifier.Deliver(ctx, events)

	end := s.now()
	if next.StatusDue(end, s.opts.StatusInterval) {
		s.notifier.Deliver(ctx, []types.Event{types.StatusEvent(end, next.Stats, s.opts.KeywordCount)})
		next.LastStatus = end
	}
	if s.opts.AfterCycle != nil {
		s.opts.AfterCycle(ctx, next)
	}

	slog.Info("scan cycle finished",
		"cycle", id,
		"matches", len(events),
		"total_matches", next.Stats.Matches,
		"cycles", next.Stats.Cycles,
		"duration", end.Sub(start).String(),
	)
	s.setPhase(PhaseSleeping)
	return next, s.opts.Poll.Next(end).Sub(end)
}

// scan turns a panic inside the cycle into a cycle error.
func (s *Scheduler) scan(ctx context.Context, state types.State, now time.Time) (next types.State, events []types.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, events, err = state, nil, fmt.Errorf("scan panic: %v", r)
		}
	}()
	return s.scanner.Scan(ctx, state, now)
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
