package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/apperr"
	"github.com/relaychat/relay/internal/realtime"
)

type chatFixture struct {
	svc      *ChatService
	broker   *realtime.Broker
	messages *fakeMessages
	reads    *fakeReads
	archive  *fakeArchive
}

func newChatFixture(t *testing.T, access ChannelAccess, throttle time.Duration) *chatFixture {
	t.Helper()
	broker := realtime.NewBroker(realtime.NewRegistry(), realtime.NewMemoryTransport(), zap.NewNop())
	messages := newFakeMessages()
	reads := newFakeReads()
	archive := &fakeArchive{}
	svc := NewChatService(messages, access, fakeProfiles{}, reads, broker.Chat(), archive, throttle, zap.NewNop())
	return &chatFixture{svc: svc, broker: broker, messages: messages, reads: reads, archive: archive}
}

// collect subscribes to one chat channel and appends everything delivered.
func (f *chatFixture) collect(t *testing.T, channelID string) *[]realtime.Event {
	t.Helper()
	var got []realtime.Event
	sub := f.broker.Chat().Subscribe(realtime.SubscribeOptions{Enabled: true}, func(ev realtime.Event, _ realtime.Meta) {
		got = append(got, ev)
	}, channelID)
	t.Cleanup(sub.Close)
	return &got
}

func TestSendEchoesNonce(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	got := f.collect(t, "c1")

	nonce := int64(1234)
	msg, err := f.svc.Send(context.Background(), "alice", SendInput{
		ChannelID: "c1",
		Content:   "hello",
		Nonce:     &nonce,
	})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)

	require.Len(t, *got, 1)
	sent, ok := (*got)[0].(realtime.MessageSent)
	require.True(t, ok)
	assert.Equal(t, msg.ID, sent.Message.ID)
	assert.Equal(t, "hello", sent.Message.Content)
	require.NotNil(t, sent.Nonce)
	assert.Equal(t, nonce, *sent.Nonce)

	// committed before the event went out
	stored, err := f.messages.Get(context.Background(), "c1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)
}

func TestSendWithoutNonceOmitsIt(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	got := f.collect(t, "c1")

	_, err := f.svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "hi"})
	require.NoError(t, err)

	require.Len(t, *got, 1)
	sent := (*got)[0].(realtime.MessageSent)
	assert.Nil(t, sent.Nonce)
}

func TestSendDeniedWithoutAccess(t *testing.T) {
	f := newChatFixture(t, &fakeAccess{allowed: map[string]bool{}}, time.Millisecond)
	got := f.collect(t, "c1")

	_, err := f.svc.Send(context.Background(), "mallory", SendInput{ChannelID: "c1", Content: "hi"})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, *got)
}

func TestSendRecordsToArchive(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)

	msg, err := f.svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "keep"})
	require.NoError(t, err)

	require.Len(t, f.archive.msgs, 1)
	assert.Equal(t, msg.ID, f.archive.msgs[0].ID)
}

func TestEditPublishesOnlyMutatedFields(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	msg, err := f.svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "before"})
	require.NoError(t, err)

	got := f.collect(t, "c1")
	require.NoError(t, f.svc.Edit(context.Background(), "alice", "c1", msg.ID, "after"))

	require.Len(t, *got, 1)
	upd, ok := (*got)[0].(realtime.MessageUpdated)
	require.True(t, ok)
	assert.Equal(t, msg.ID, upd.ID)
	assert.Equal(t, "c1", upd.ChannelID)
	assert.Equal(t, "after", upd.Content)

	stored, err := f.messages.Get(context.Background(), "c1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Content)
}

func TestEditByNonAuthorFails(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	msg, err := f.svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "hers"})
	require.NoError(t, err)

	got := f.collect(t, "c1")
	err = f.svc.Edit(context.Background(), "bob", "c1", msg.ID, "mine now")
	require.Error(t, err)
	assert.Empty(t, *got)
}

func TestDeleteAuthorOnly(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	msg, err := f.svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "x"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(context.Background(), "bob", "c1", msg.ID), apperr.ErrForbidden)

	got := f.collect(t, "c1")
	require.NoError(t, f.svc.Delete(context.Background(), "alice", "c1", msg.ID))
	require.Len(t, *got, 1)
	del, ok := (*got)[0].(realtime.MessageDeleted)
	require.True(t, ok)
	assert.Equal(t, msg.ID, del.ID)

	_, err = f.messages.Get(context.Background(), "c1", msg.ID)
	require.Error(t, err)
}

func TestTypingThrottled(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Hour)
	got := f.collect(t, "c1")

	require.NoError(t, f.svc.Typing(context.Background(), "alice", "c1"))
	require.ErrorIs(t, f.svc.Typing(context.Background(), "alice", "c1"), apperr.ErrRateLimited)

	// another user has their own limiter
	require.NoError(t, f.svc.Typing(context.Background(), "bob", "c1"))

	require.Len(t, *got, 2)
	typ := (*got)[0].(realtime.Typing)
	assert.Equal(t, "alice", typ.User.ID)
}

func TestMarkReadStoresWatermark(t *testing.T) {
	f := newChatFixture(t, allowAll(), time.Millisecond)
	require.NoError(t, f.svc.MarkRead(context.Background(), "alice", "c1"))

	seen, err := f.reads.LastReadMany(context.Background(), "alice", []string{"c1"})
	require.NoError(t, err)
	assert.Contains(t, seen, "c1")
}

type failingTransport struct {
	realtime.Transport
}

func (f failingTransport) Publish(context.Context, string, realtime.Envelope) error {
	return errors.New("broker down")
}

func TestSendSurvivesPublishFailure(t *testing.T) {
	broker := realtime.NewBroker(realtime.NewRegistry(), failingTransport{realtime.NewMemoryTransport()}, zap.NewNop())
	messages := newFakeMessages()
	svc := NewChatService(messages, allowAll(), fakeProfiles{}, newFakeReads(), broker.Chat(), nil, time.Millisecond, zap.NewNop())

	msg, err := svc.Send(context.Background(), "alice", SendInput{ChannelID: "c1", Content: "durable"})
	require.NoError(t, err)

	stored, err := messages.Get(context.Background(), "c1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", stored.Content)
}
