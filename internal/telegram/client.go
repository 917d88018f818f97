// Package telegram connects the monitor to the Telegram Bot API. An update
// pump records every group and channel message the bot can see into the
// local store; the scan cycle then reads containers and recent messages
// back from that store.
//
// What the bot can see is set by Telegram, not by this package. In groups it
// receives every message only when its privacy mode is disabled (or it is a
// group admin); otherwise it gets commands and replies to itself alone.
// Channel posts arrive only in channels where the bot is an administrator.
// The pump starts by recording the updates Telegram kept while the bot was
// offline, then switches to long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/linkerlin/tgmonitor/internal/db"
	"github.com/linkerlin/tgmonitor/internal/types"
)

const (
	// longPollTimeout is the server-side wait of one getUpdates call, in seconds.
	longPollTimeout = 30
	// maxUpdateBatch is the most updates one getUpdates call returns.
	maxUpdateBatch = 100
)

var allowedUpdates = []string{"message", "channel_post"}

type bot interface {
	GetMe(ctx context.Context) (*telego.User, error)
	GetUpdates(ctx context.Context, params *telego.GetUpdatesParams) ([]telego.Update, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Client is the external messaging client used by the monitor.
type Client struct {
	bot     bot
	updates func(ctx context.Context, offset int) (<-chan telego.Update, error)
	store   *db.DB

	ready     chan struct{}
	readyOnce sync.Once
}

func newClient(b bot, updates func(ctx context.Context, offset int) (<-chan telego.Update, error), store *db.DB) *Client {
	return &Client{bot: b, updates: updates, store: store, ready: make(chan struct{})}
}

// New creates a Client for the bot token, recording observed messages in store.
func New(token string, store *db.DB, debug bool) (*Client, error) {
	opt := telego.WithDiscardLogger()
	if debug {
		opt = telego.WithDefaultDebugLogger()
	}
	b, err := telego.NewBot(token, opt)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	updates := func(ctx context.Context, offset int) (<-chan telego.Update, error) {
		return b.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			Offset:         offset,
			Timeout:        longPollTimeout,
			AllowedUpdates: allowedUpdates,
		})
	}
	return newClient(b, updates, store), nil
}

// Authenticate resolves the identity behind the token.
func (c *Client) Authenticate(ctx context.Context) (types.Identity, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return types.Identity{}, fmt.Errorf("get me: %w", err)
	}
	return types.Identity{
		ID:        me.ID,
		FirstName: me.FirstName,
		LastName:  me.LastName,
		Username:  me.Username,
	}, nil
}

// Ready is closed once the updates pending at start have been recorded.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Run records pending updates, signals Ready, then pumps new updates into the
// store until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	offset, err := c.drain(ctx)
	if err != nil {
		return err
	}
	c.readyOnce.Do(func() { close(c.ready) })

	updates, err := c.updates(ctx, offset)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram update pump started", "offset", offset)
	for u := range updates {
		if err := c.HandleUpdate(ctx, u); err != nil {
			slog.Error("record update", "update_id", u.UpdateID, "err", err)
		}
	}
	slog.Info("telegram update pump stopped")
	return nil
}

// drain records every update Telegram is holding for the bot and returns the
// offset of the first update not yet seen.
func (c *Client) drain(ctx context.Context) (int, error) {
	offset, total := 0, 0
	for {
		batch, err := c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:         offset,
			Limit:          maxUpdateBatch,
			AllowedUpdates: allowedUpdates,
		})
		if err != nil {
			return offset, fmt.Errorf("get pending updates: %w", err)
		}
		for _, u := range batch {
			if err := c.HandleUpdate(ctx, u); err != nil {
				slog.Error("record update", "update_id", u.UpdateID, "err", err)
			}
			offset = u.UpdateID + 1
		}
		total += len(batch)
		if len(batch) < maxUpdateBatch {
			slog.Info("pending updates recorded", "count", total)
			return offset, nil
		}
	}
}

// HandleUpdate records the chat and message carried by one update. Updates
// without a message are ignored.
func (c *Client) HandleUpdate(ctx context.Context, u telego.Update) error {
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil {
		return nil
	}

	if err := c.store.SaveChat(ctx, containerOf(msg.Chat)); err != nil {
		return err
	}
	return c.store.SaveMessage(ctx, recordOf(msg))
}

// ListContainers returns every group and channel the bot has seen.
func (c *Client) ListContainers(ctx context.Context) ([]types.Container, error) {
	return c.store.ListWatchedChats(ctx)
}

// FetchRecent returns up to limit most recent messages of a container.
func (c *Client) FetchRecent(ctx context.Context, container types.Container, limit int) ([]types.Message, error) {
	return c.store.GetRecentMessages(ctx, container.ID, limit)
}

// ResolveSender returns the author of a recorded message.
func (c *Client) ResolveSender(ctx context.Context, m types.Message) (types.Sender, error) {
	return c.store.GetSender(ctx, m.ContainerID, m.ID)
}

// SendMessage delivers text to a user or chat id.
func (c *Client) SendMessage(ctx context.Context, recipientID int64, text string) error {
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(recipientID), text)); err != nil {
		return fmt.Errorf("send message to %d: %w", recipientID, err)
	}
	return nil
}

// Prune drops recorded messages at or before cutoff.
func (c *Client) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.store.PruneMessages(ctx, cutoff)
}

func containerOf(chat telego.Chat) types.Container {
	c := types.Container{
		ID:        chat.ID,
		Title:     chat.Title,
		IsGroup:   chat.Type == telego.ChatTypeGroup || chat.Type == telego.ChatTypeSupergroup,
		IsChannel: chat.Type == telego.ChatTypeChannel,
	}
	if c.Title == "" {
		c.Title = types.Sender{FirstName: chat.FirstName, LastName: chat.LastName, Username: chat.Username}.Display()
	}
	return c
}

func recordOf(msg *telego.Message) db.Record {
	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	r := db.Record{Message: types.Message{
		ID:          int64(msg.MessageID),
		ContainerID: msg.Chat.ID,
		Body:        body,
		Timestamp:   time.Unix(msg.Date, 0),
	}}
	switch {
	case msg.From != nil:
		r.Message.SenderID = msg.From.ID
		r.Sender = types.Sender{FirstName: msg.From.FirstName, LastName: msg.From.LastName, Username: msg.From.Username}
	case msg.SenderChat != nil:
		r.Message.SenderID = msg.SenderChat.ID
		r.Sender = types.Sender{FirstName: msg.SenderChat.Title, Username: msg.SenderChat.Username}
	}
	return r
}
