// Package orchestrator wires the messaging client, keyword store, scanner,
// notifier and scheduler into one running monitor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linkerlin/tgmonitor/internal/config"
	"github.com/linkerlin/tgmonitor/internal/keywords"
	"github.com/linkerlin/tgmonitor/internal/notifier"
	"github.com/linkerlin/tgmonitor/internal/scanner"
	"github.com/linkerlin/tgmonitor/internal/scheduler"
	"github.com/linkerlin/tgmonitor/internal/types"
)

// Telegram is everything the monitor needs from the messaging client.
type Telegram interface {
	scanner.Source
	notifier.Client
	Authenticate(ctx context.Context) (types.Identity, error)
	Run(ctx context.Context) error
	// Ready is closed once updates pending at start are in the store.
	Ready() <-chan struct{}
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Orchestrator owns the monitor's lifecycle.
type Orchestrator struct {
	cfg *config.Config
	tg  Telegram
	now func() time.Time

	sched *scheduler.Scheduler
}

// New creates an Orchestrator. cfg must already be validated.
func New(cfg *config.Config, tg Telegram) *Orchestrator {
	return &Orchestrator{cfg: cfg, tg: tg, now: time.Now}
}

// Scheduler returns the running scheduler, or nil before Start.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler {
	return o.sched
}

// Start authenticates, loads keywords and prepares the scheduler. An
// authentication failure is fatal; everything else degrades gracefully.
func (o *Orchestrator) Start(ctx context.Context) error {
	me, err := o.tg.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	username := "no username"
	if me.Username != "" {
		username = "@" + me.Username
	}
	slog.Info("authorized as",
		"id", me.ID,
		"name", types.Sender{FirstName: me.FirstName, LastName: me.LastName}.Name(),
		"username", username,
	)

	o.logContainers(ctx)

	store := keywords.NewStore(o.cfg.KeywordsPath())
	kw, err := store.Load()
	if err != nil {
		slog.Error("load keywords, monitoring with none", "path", store.Path(), "err", err)
	}
	matcher := keywords.NewMatcher(kw)
	slog.Info("keywords loaded", "path", store.Path(), "count", matcher.Len(), "keywords", matcher.Keywords())

	sc := scanner.New(o.tg, matcher, me.ID, scanner.Options{
		FetchLimit:  o.cfg.FetchLimit,
		CallTimeout: o.cfg.CallTimeout,
		SettleDelay: o.cfg.SettleDelay,
	})
	n := notifier.New(o.tg, o.cfg.TargetUserID, o.retryDelay(), o.cfg.CallTimeout)

	o.sched = scheduler.New(sc, n, types.NewState(o.now(), o.cfg.Lookback), scheduler.Options{
		Poll:           o.cfg.Poll(),
		Retry:          o.cfg.Retry(),
		StatusInterval: o.cfg.StatusInterval,
		KeywordCount:   matcher.Len(),
		AfterCycle:     o.prune,
	})
	return nil
}

// Run starts the monitor and blocks until ctx is cancelled or the update
// pump fails. The first cycle waits until the pump has recorded the updates
// pending at start, so the initial lookback window is populated.
// Cancellation is a clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.tg.Run(gctx); err != nil {
			return fmt.Errorf("update pump: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-o.tg.Ready():
		case <-gctx.Done():
			return gctx.Err()
		}
		return o.sched.Run(gctx)
	})

	slog.Info("monitor started",
		"target", o.cfg.TargetUserID,
		"poll", o.cfg.PollSchedule,
		"status_interval", o.cfg.StatusInterval.String(),
	)
	err := g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		slog.Info("monitor stopped", "stats", o.sched.State().Stats)
		return nil
	}
	return err
}

func (o *Orchestrator) logContainers(ctx context.Context) {
	cs, err := o.tg.ListContainers(ctx)
	if err != nil {
		slog.Warn("list containers", "err", err)
		return
	}
	slog.Info("watching containers", "count", len(cs))
	for _, c := range cs {
		slog.Info("container", "id", c.ID, "title", c.Title, "kind", c.Kind())
	}
}

// prune drops buffered messages that no future cycle can match. Messages
// after the watermark are always kept.
func (o *Orchestrator) prune(ctx context.Context, state types.State) {
	cutoff := o.now().Add(-o.cfg.Retention)
	if state.Watermark.Before(cutoff) {
		cutoff = state.Watermark
	}
	n, err := o.tg.Prune(ctx, cutoff)
	if err != nil {
		slog.Warn("prune messages", "err", err)
		return
	}
	if n > 0 {
		slog.Debug("pruned messages", "count", n, "cutoff", cutoff)
	}
}

// retryDelay is the retry schedule's delay as seen from a whole second, so
// error notices announce "1 minute" rather than 59.x seconds.
func (o *Orchestrator) retryDelay() time.Duration {
	t := o.now().Truncate(time.Second)
	return o.cfg.Retry().Next(t).Sub(t)
}
