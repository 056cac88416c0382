package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

type fakeMemberships struct {
	mu     sync.Mutex
	groups []domain.Group
	dms    []domain.DMChannel
}

func (f *fakeMemberships) Memberships(context.Context, string) ([]domain.Group, []domain.DMChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, f.dms, nil
}

func (f *fakeMemberships) set(groups []domain.Group, dms []domain.DMChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = groups
	f.dms = dms
}

type fakeTyping struct{}

func (fakeTyping) Typing(context.Context, string, string) error { return nil }

// wireFrame mirrors Frame with the payload left raw for assertions.
type wireFrame struct {
	Channel  string          `json:"channel"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	ClientID string          `json:"client_id"`
}

// newTestConn builds a connection the way serve does, minus the socket and
// pumps. The memory transport delivers synchronously, so every publish below
// has fully dispatched by the time it returns.
func newTestConn(t *testing.T, m *fakeMemberships, buf int) (*Gateway, *conn) {
	t.Helper()
	broker := realtime.NewBroker(realtime.NewRegistry(), realtime.NewMemoryTransport(), zap.NewNop())
	g := New(broker, m, fakeTyping{}, nil, Config{
		PingInterval:   25 * time.Second,
		WriteDeadline:  10 * time.Second,
		MaxMessageSize: 65536,
	}, zap.NewNop())

	c := &conn{
		g:         g,
		uid:       "u1",
		send:      make(chan []byte, buf),
		done:      make(chan struct{}),
		chatSubs:  make(map[string]*realtime.Subscription),
		groupSubs: make(map[string]*realtime.Subscription),
	}
	c.privateSub = g.broker.Private().Subscribe(realtime.SubscribeOptions{Enabled: true}, c.onPrivate, c.uid)
	require.NoError(t, c.resync())
	t.Cleanup(c.close)
	return g, c
}

func sendMessage(t *testing.T, g *Gateway, channelID string, id int64) {
	t.Helper()
	err := g.broker.Chat().Publish(context.Background(), realtime.MessageSent{
		Message: domain.Message{ID: id, ChannelID: channelID, Content: "hi", Timestamp: time.Now()},
	}, channelID)
	require.NoError(t, err)
}

func recvFrame(t *testing.T, c *conn) wireFrame {
	t.Helper()
	select {
	case b := <-c.send:
		var f wireFrame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	default:
		t.Fatal("no frame queued")
		return wireFrame{}
	}
}

func TestMembershipEventsResubscribe(t *testing.T) {
	m := &fakeMemberships{groups: []domain.Group{{ID: "g1", ChannelID: "c1"}}}
	g, c := newTestConn(t, m, 16)

	sendMessage(t, g, "c1", 1)
	f := recvFrame(t, c)
	assert.Equal(t, "chat:c1", f.Channel)
	assert.Equal(t, "message_sent", f.Name)

	// losing the group swaps the subscription set for the new memberships
	m.set(nil, []domain.DMChannel{{ID: "c2", UserIDs: [2]string{"u1", "u2"}}})
	err := g.broker.Private().Publish(context.Background(), realtime.GroupRemoved{GroupID: "g1"}, "u1")
	require.NoError(t, err)
	f = recvFrame(t, c)
	assert.Equal(t, "group_removed", f.Name)

	sendMessage(t, g, "c1", 2)
	assert.Empty(t, c.send)

	err = g.broker.Group().Publish(context.Background(), realtime.GroupDeleted{GroupID: "g1"}, "g1")
	require.NoError(t, err)
	assert.Empty(t, c.send)

	sendMessage(t, g, "c2", 3)
	f = recvFrame(t, c)
	assert.Equal(t, "chat:c2", f.Channel)
}

func TestCloseTearsDownSubscriptions(t *testing.T) {
	m := &fakeMemberships{groups: []domain.Group{{ID: "g1", ChannelID: "c1"}}}
	g, c := newTestConn(t, m, 16)

	c.close()
	c.close() // idempotent

	sendMessage(t, g, "c1", 1)
	err := g.broker.Private().Publish(context.Background(), realtime.CloseDM{ChannelID: "c9"}, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.send)
}

func TestSlowConsumerShedsFrames(t *testing.T) {
	m := &fakeMemberships{groups: []domain.Group{{ID: "g1", ChannelID: "c1"}}}
	g, c := newTestConn(t, m, 1)

	// second publish must neither block the dispatch loop nor queue
	sendMessage(t, g, "c1", 1)
	sendMessage(t, g, "c1", 2)

	f := recvFrame(t, c)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, int64(1), msg.ID)
	assert.Empty(t, c.send)
}
