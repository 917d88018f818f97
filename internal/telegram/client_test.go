package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkerlin/tgmonitor/internal/db"
	"github.com/linkerlin/tgmonitor/internal/types"
)

type fakeBot struct {
	me      *telego.User
	meErr   error
	sent    []*telego.SendMessageParams
	sendErr error

	pending    []telego.Update
	pendingErr error
	offsets    []int
}

func (f *fakeBot) GetUpdates(_ context.Context, p *telego.GetUpdatesParams) ([]telego.Update, error) {
	f.offsets = append(f.offsets, p.Offset)
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []telego.Update
	for _, u := range f.pending {
		if u.UpdateID >= p.Offset && len(out) < p.Limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeBot) GetMe(context.Context) (*telego.User, error) {
	return f.me, f.meErr
}

func (f *fakeBot) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, p)
	return &telego.Message{MessageID: len(f.sent)}, nil
}

func newTestClient(t *testing.T, b *fakeBot, updates ...telego.Update) *Client {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return newClient(b, func(context.Context, int) (<-chan telego.Update, error) {
		ch := make(chan telego.Update, len(updates))
		for _, u := range updates {
			ch <- u
		}
		close(ch)
		return ch, nil
	}, store)
}

func TestClient_Authenticate(t *testing.T) {
	c := newTestClient(t, &fakeBot{me: &telego.User{ID: 99, FirstName: "Watch", Username: "watch_bot"}})

	id, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Identity{ID: 99, FirstName: "Watch", Username: "watch_bot"}, id)
}

func TestClient_AuthenticateFails(t *testing.T) {
	c := newTestClient(t, &fakeBot{meErr: errors.New("unauthorized")})

	_, err := c.Authenticate(context.Background())
	assert.ErrorContains(t, err, "unauthorized")
}

func TestClient_RunRecordsGroupsAndChannels(t *testing.T) {
	date := time.Unix(1_700_000_000, 0)
	c := newTestClient(t, &fakeBot{},
		telego.Update{UpdateID: 1, Message: &telego.Message{
			MessageID: 10,
			Date:      date.Unix(),
			Chat:      telego.Chat{ID: -5, Type: telego.ChatTypeSupergroup, Title: "Team"},
			From:      &telego.User{ID: 7, FirstName: "Ada", LastName: "Lovelace", Username: "ada"},
			Text:      "This is Urgent news",
		}},
		telego.Update{UpdateID: 2, ChannelPost: &telego.Message{
			MessageID:  3,
			Date:       date.Unix() + 1,
			Chat:       telego.Chat{ID: -100, Type: telego.ChatTypeChannel, Title: "News"},
			SenderChat: &telego.Chat{ID: -100, Type: telego.ChatTypeChannel, Title: "News", Username: "news"},
			Caption:    "photo caption",
		}},
		telego.Update{UpdateID: 3, Message: &telego.Message{
			MessageID: 1,
			Date:      date.Unix(),
			Chat:      telego.Chat{ID: 7, Type: telego.ChatTypePrivate, FirstName: "Ada"},
			From:      &telego.User{ID: 7, FirstName: "Ada"},
			Text:      "private urgent",
		}},
		telego.Update{UpdateID: 4},
	)
	ctx := context.Background()
	require.NoError(t, c.Run(ctx))

	containers, err := c.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.Equal(t, types.Container{ID: -100, Title: "News", IsChannel: true}, containers[0])
	assert.Equal(t, types.Container{ID: -5, Title: "Team", IsGroup: true}, containers[1])

	msgs, err := c.FetchRecent(ctx, containers[1], 200)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].ID)
	assert.Equal(t, int64(7), msgs[0].SenderID)
	assert.Equal(t, "This is Urgent news", msgs[0].Body)
	assert.True(t, msgs[0].Timestamp.Equal(date))

	sender, err := c.ResolveSender(ctx, msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace (@ada)", sender.Display())

	posts, err := c.FetchRecent(ctx, containers[0], 200)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "photo caption", posts[0].Body)
	assert.Equal(t, int64(-100), posts[0].SenderID)

	sender, err = c.ResolveSender(ctx, posts[0])
	require.NoError(t, err)
	assert.Equal(t, "News (@news)", sender.Display())
}

func TestClient_SendMessage(t *testing.T) {
	b := &fakeBot{}
	c := newTestClient(t, b)

	require.NoError(t, c.SendMessage(context.Background(), 927144138, "hello"))
	require.Len(t, b.sent, 1)
	assert.Equal(t, int64(927144138), b.sent[0].ChatID.ID)
	assert.Equal(t, "hello", b.sent[0].Text)

	b.sendErr = errors.New("blocked by user")
	assert.ErrorContains(t, c.SendMessage(context.Background(), 1, "x"), "blocked by user")
}

func TestClient_Prune(t *testing.T) {
	date := time.Unix(1_700_000_000, 0)
	c := newTestClient(t, &fakeBot{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.HandleUpdate(ctx, telego.Update{Message: &telego.Message{
			MessageID: i + 1,
			Date:      date.Unix() + int64(i*60),
			Chat:      telego.Chat{ID: -5, Type: telego.ChatTypeGroup, Title: "Team"},
			Text:      "x",
		}}))
	}

	n, err := c.Prune(ctx, date.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_RunRecordsPendingUpdatesBeforeReady(t *testing.T) {
	date := time.Unix(1_700_000_000, 0)
	b := &fakeBot{}
	for i := 0; i < maxUpdateBatch+5; i++ {
		b.pending = append(b.pending, telego.Update{UpdateID: 500 + i, Message: &telego.Message{
			MessageID: i + 1,
			Date:      date.Unix() - 60,
			Chat:      telego.Chat{ID: -5, Type: telego.ChatTypeGroup, Title: "Team"},
			From:      &telego.User{ID: 7, FirstName: "Ada"},
			Text:      "urgent backlog",
		}})
	}

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var pollOffset int
	var readyAtPoll bool
	var c *Client
	c = newClient(b, func(_ context.Context, offset int) (<-chan telego.Update, error) {
		pollOffset = offset
		select {
		case <-c.Ready():
			readyAtPoll = true
		default:
		}
		ch := make(chan telego.Update)
		close(ch)
		return ch, nil
	}, store)

	ctx := context.Background()
	require.NoError(t, c.Run(ctx))

	assert.True(t, readyAtPoll)
	assert.Equal(t, 500+maxUpdateBatch+5, pollOffset)
	assert.Equal(t, []int{0, 500 + maxUpdateBatch}, b.offsets)

	msgs, err := c.FetchRecent(ctx, types.Container{ID: -5}, 500)
	require.NoError(t, err)
	assert.Len(t, msgs, maxUpdateBatch+5)
}

func TestClient_RunFailsWhenPendingUpdatesUnavailable(t *testing.T) {
	c := newTestClient(t, &fakeBot{pendingErr: errors.New("conflict: webhook is active")})

	err := c.Run(context.Background())
	assert.ErrorContains(t, err, "get pending updates")
	select {
	case <-c.Ready():
		t.Fatal("ready must not be signalled")
	default:
	}
}
