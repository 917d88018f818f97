// Package scanner implements one polling pass over all watched containers.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkerlin/tgmonitor/internal/keywords"
	"github.com/linkerlin/tgmonitor/internal/types"
)

// Source lists containers and fetches their recent messages.
type Source interface {
	ListContainers(ctx context.Context) ([]types.Container, error)
	FetchRecent(ctx context.Context, c types.Container, limit int) ([]types.Message, error)
}

// Options tune a Scanner.
type Options struct {
	// FetchLimit bounds how many recent messages are read per container.
	// Older messages beyond it are not seen.
	FetchLimit int
	// CallTimeout bounds each fetch. Zero means no timeout.
	CallTimeout time.Duration
	// SettleDelay is how long a message may take to reach the source after
	// it was sent. Messages dated within it are left for a later cycle.
	SettleDelay time.Duration
}

// Scanner runs scan cycles for one authenticated account.
type Scanner struct {
	src     Source
	matcher *keywords.Matcher
	selfID  int64
	opts    Options
}

// New creates a Scanner. selfID is the authenticated account; its own
// messages are never matched.
func New(src Source, matcher *keywords.Matcher, selfID int64, opts Options) *Scanner {
	return &Scanner{src: src, matcher: matcher, selfID: selfID, opts: opts}
}


// Scan performs one cycle at time now. Messages dated in the window
// (state.Watermark, Cutoff(now)] that are not self-authored and carry text
// are matched; each match yields a forward event. A failing container is
// logged and skipped. On success the returned state has its watermark
// advanced to the cutoff and its counters updated. An error means the
// containers could not be listed; the input state is returned unchanged.
func (s *Scanner) Scan(ctx context.Context, state types.State, now time.Time) (types.State, []types.Event, error) {
	until := s.Cutoff(now)
	containers, err := s.src.ListContainers(ctx)
	if err != nil {
		return state, nil, fmt.Errorf("list containers: %w", err)
	}

	var events []types.Event
	for _, c := range containers {
		if !c.Watched() {
			continue
		}
		found, err := s.scanContainer(ctx, c, state.Watermark, until)
		if err != nil {
			slog.Warn("scan container", "chat", c.Title, "chat_id", c.ID, "err", err)
			continue
		}
		events = append(events, found...)
	}

	next := state.Advance(until)
	next.Stats.Cycles++
	next.Stats.Matches += len(events)
	return next, events, nil
}

func (s *Scanner) scanContainer(ctx context.Context, c types.Container, watermark, until time.Time) ([]types.Event, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	msgs, err := s.src.FetchRecent(ctx, c, s.opts.FetchLimit)
	if err != nil {
		return nil, err
	}

	var events []types.Event
	for _, m := range msgs {
		if !m.Timestamp.After(watermark) || m.Timestamp.After(until) {
			continue
		}
		if m.SenderID == s.selfID || m.Body == "" {
			continue
		}
		if kw := s.matcher.FindMatches(m.Body); len(kw) > 0 {
			slog.Debug("keyword match", "chat", c.Title, "message_id", m.ID, "keywords", kw)
			events = append(events, types.ForwardEvent(m, c, kw))
		}
	}
	return events, nil
}

// Cutoff is the newest message date a cycle starting at now accepts. Message
// dates have whole-second precision, so the second containing now minus the
// settle delay is left open: messages still on their way may carry it.
func (s *Scanner) Cutoff(now time.Time) time.Time {
	return now.Add(-s.opts.SettleDelay).Truncate(time.Second).Add(-time.Second)
}
