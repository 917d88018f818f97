package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkerlin/tgmonitor/internal/types"
)

type sent struct {
	to   int64
	text string
}

type fakeClient struct {
	sent       []sent
	sendErr    error
	sender     types.Sender
	resolveErr error
}

func (f *fakeClient) SendMessage(_ context.Context, to int64, text string) error {
	f.sent = append(f.sent, sent{to, text})
	return f.sendErr
}

func (f *fakeClient) ResolveSender(context.Context, types.Message) (types.Sender, error) {
	return f.sender, f.resolveErr
}

func TestNotifier_Forward(t *testing.T) {
	c := &fakeClient{sender: types.Sender{FirstName: "Ada", Username: "ada"}}
	n := New(c, 927144138, time.Minute, time.Second)

	e := types.ForwardEvent(
		types.Message{ID: 1, Body: "This is Urgent news", Timestamp: time.Now()},
		types.Container{ID: -5, Title: "Team", IsGroup: true},
		[]string{"urgent"},
	)
	n.Forward(context.Background(), e)

	require.Len(t, c.sent, 1)
	assert.Equal(t, int64(927144138), c.sent[0].to)
	assert.Contains(t, c.sent[0].text, "Team")
	assert.Contains(t, c.sent[0].text, "Ada (@ada)")
	assert.Contains(t, c.sent[0].text, "urgent")
}

func TestNotifier_ForwardWithUnresolvableSender(t *testing.T) {
	c := &fakeClient{resolveErr: errors.New("not found")}
	n := New(c, 1, time.Minute, 0)

	n.Forward(context.Background(), types.ForwardEvent(types.Message{Body: "x"}, types.Container{Title: "Team"}, []string{"x"}))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0].text, "Sender: unknown")
}

func TestNotifier_SendFailuresAreSwallowed(t *testing.T) {
	c := &fakeClient{sendErr: errors.New("forbidden")}
	n := New(c, 1, time.Minute, 0)
	now := time.Now()

	assert.NotPanics(t, func() {
		n.Deliver(context.Background(), []types.Event{
			types.ForwardEvent(types.Message{Body: "x"}, types.Container{Title: "Team"}, []string{"x"}),
			types.StatusEvent(now, types.Stats{StartedAt: now}, 6),
			types.ErrorEvent(now, errors.New("boom")),
		})
	})
	assert.Len(t, c.sent, 3)
}

func TestNotifier_DeliverDispatchesByKind(t *testing.T) {
	c := &fakeClient{}
	n := New(c, 1, time.Minute, 0)
	now := time.Now()

	n.Deliver(context.Background(), []types.Event{
		types.StatusEvent(now, types.Stats{Cycles: 2, StartedAt: now}, 6),
		types.ErrorEvent(now, errors.New("boom")),
	})

	require.Len(t, c.sent, 2)
	assert.Contains(t, c.sent[0].text, "Monitor status")
	assert.Contains(t, c.sent[1].text, "boom")
	assert.Contains(t, c.sent[1].text, "Retrying in 1 minute")
}
