package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/domain"
)

func newTestBroker() (*Broker, *MemoryTransport) {
	tr := NewMemoryTransport()
	return NewBroker(NewRegistry(), tr, zap.NewNop()), tr
}

func enabled() SubscribeOptions { return SubscribeOptions{Enabled: true} }

func TestPublishDeliversToSubscriber(t *testing.T) {
	b, tr := newTestBroker()

	var got []Event
	sub := b.Chat().Subscribe(enabled(), func(ev Event, meta Meta) {
		got = append(got, ev)
		assert.Equal(t, "chat:c1", meta.Address)
		assert.Equal(t, tr.ClientID(), meta.ClientID)
	}, "c1")
	defer sub.Close()

	err := b.Chat().Publish(context.Background(), MessageDeleted{ID: 5, ChannelID: "c1"}, "c1")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, MessageDeleted{ID: 5, ChannelID: "c1"}, got[0])
}

func TestPublishRejectsInvalidPayloadBeforeNetwork(t *testing.T) {
	b, tr := newTestBroker()

	var delivered int
	sub := b.Chat().Subscribe(enabled(), func(Event, Meta) { delivered++ }, "c1")
	defer sub.Close()

	// missing channel_id
	err := b.Chat().Publish(context.Background(), MessageDeleted{ID: 5}, "c1")
	require.ErrorIs(t, err, ErrPayloadInvalid)
	assert.Zero(t, delivered)

	// event name not declared by the family
	err = b.Group().Publish(context.Background(), Typing{User: domain.Profile{ID: "u1"}}, "g1")
	require.ErrorIs(t, err, ErrUnknownEvent)
	_ = tr
}

func TestUnknownEventNameIsDroppedNotFatal(t *testing.T) {
	b, tr := newTestBroker()

	var delivered int
	sub := b.Chat().Subscribe(enabled(), func(Event, Meta) { delivered++ }, "c1")
	defer sub.Close()

	require.NotPanics(t, func() {
		err := tr.Publish(context.Background(), "chat:c1", Envelope{
			Name: "reaction_added",
			Data: json.RawMessage(`{"whatever": true}`),
		})
		require.NoError(t, err)
	})
	assert.Zero(t, delivered)

	// the subscription still works afterwards
	err := b.Chat().Publish(context.Background(), MessageDeleted{ID: 1, ChannelID: "c1"}, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestInvalidIncomingPayloadIsDropped(t *testing.T) {
	b, tr := newTestBroker()

	var delivered int
	sub := b.Chat().Subscribe(enabled(), func(Event, Meta) { delivered++ }, "c1")
	defer sub.Close()

	err := tr.Publish(context.Background(), "chat:c1", Envelope{
		Name: string(EventMessageDeleted),
		Data: json.RawMessage(`{"id": 0}`),
	})
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestDisabledSubscriptionIsNoop(t *testing.T) {
	b, _ := newTestBroker()

	var delivered int
	sub := b.Chat().Subscribe(SubscribeOptions{Enabled: false}, func(Event, Meta) { delivered++ }, "c1")
	assert.False(t, sub.Active())

	err := b.Chat().Publish(context.Background(), MessageDeleted{ID: 1, ChannelID: "c1"}, "c1")
	require.NoError(t, err)
	assert.Zero(t, delivered)

	sub.Close() // must not panic
}

func TestMuxSharesOneTransportSubscription(t *testing.T) {
	b, tr := newTestBroker()

	var a, c int
	subA := b.Chat().Subscribe(enabled(), func(Event, Meta) { a++ }, "c1")
	subC := b.Chat().Subscribe(enabled(), func(Event, Meta) { c++ }, "c1")

	require.NoError(t, b.Chat().Publish(context.Background(), MessageDeleted{ID: 1, ChannelID: "c1"}, "c1"))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)

	// closing one handler leaves the other delivering
	subA.Close()
	require.NoError(t, b.Chat().Publish(context.Background(), MessageDeleted{ID: 2, ChannelID: "c1"}, "c1"))
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, c)

	// double close is safe
	subA.Close()
	subC.Close()

	// last close tears down the transport subscription entirely
	require.NoError(t, b.Chat().Publish(context.Background(), MessageDeleted{ID: 3, ChannelID: "c1"}, "c1"))
	assert.Equal(t, 2, c)
	_ = tr
}

func TestNoCrossChannelDelivery(t *testing.T) {
	b, _ := newTestBroker()

	var c1, c2 int
	s1 := b.Chat().Subscribe(enabled(), func(Event, Meta) { c1++ }, "c1")
	s2 := b.Chat().Subscribe(enabled(), func(Event, Meta) { c2++ }, "c2")
	defer s1.Close()
	defer s2.Close()

	require.NoError(t, b.Chat().Publish(context.Background(), MessageDeleted{ID: 1, ChannelID: "c1"}, "c1"))
	assert.Equal(t, 1, c1)
	assert.Zero(t, c2)
}
