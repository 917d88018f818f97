// Package notifier delivers forward, status and error notifications to the
// single target recipient. Delivery is fire-and-forget: failures are logged
// and never returned to the caller.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkerlin/tgmonitor/internal/router"
	"github.com/linkerlin/tgmonitor/internal/types"
)

// Client is the outbound side of the messaging client.
type Client interface {
	SendMessage(ctx context.Context, recipientID int64, text string) error
	ResolveSender(ctx context.Context, m types.Message) (types.Sender, error)
}

// Notifier sends events to one recipient.
type Notifier struct {
	client  Client
	target  int64
	retry   time.Duration
	timeout time.Duration
}

// New creates a Notifier. retry is the delay announced in error notices;
// timeout bounds each send (zero means none).
func New(client Client, target int64, retry, timeout time.Duration) *Notifier {
	return &Notifier{client: client, target: target, retry: retry, timeout: timeout}
}

// Deliver sends every event in order.
func (n *Notifier) Deliver(ctx context.Context, events []types.Event) {
	for _, e := range events {
		switch e.Kind {
		case types.EventForward:
			n.Forward(ctx, e)
		case types.EventStatus:
			n.SendStatus(ctx, e)
		case types.EventError:
			n.SendError(ctx, e)
		}
	}
}

// Forward relays a matched message. An unresolvable sender is shown as a
// placeholder instead of aborting the send.
func (n *Notifier) Forward(ctx context.Context, e types.Event) {
	sender, err := n.client.ResolveSender(ctx, e.Message)
	if err != nil {
		slog.Warn("resolve sender", "message_id", e.Message.ID, "chat_id", e.Container.ID, "err", err)
		sender = types.Sender{}
	}
	if n.send(ctx, e.Kind, router.FormatForward(e, sender)) {
		slog.Info("forwarded message", "keywords", e.Keywords, "chat", e.Container.Title, "message_id", e.Message.ID)
	}
}

// SendStatus sends the periodic status report.
func (n *Notifier) SendStatus(ctx context.Context, e types.Event) {
	if n.send(ctx, e.Kind, router.FormatStatus(e)) {
		slog.Info("status sent", "cycles", e.Stats.Cycles, "matches", e.Stats.Matches)
	}
}

// SendError sends a scan failure notice.
func (n *Notifier) SendError(ctx context.Context, e types.Event) {
	n.send(ctx, e.Kind, router.FormatError(e, n.retry))
}

func (n *Notifier) send(ctx context.Context, kind types.EventKind, text string) bool {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.client.SendMessage(ctx, n.target, text); err != nil {
		slog.Error("send notification", "kind", kind.String(), "target", n.target, "err", err)
		return false
	}
	return true
}
