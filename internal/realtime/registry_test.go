package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relay/internal/domain"
)

func TestAddressDeterminism(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, "chat:abc123", reg.Chat().Address("abc123"))
	assert.Equal(t, reg.Chat().Address("c1"), reg.Chat().Address("c1"))
	assert.NotEqual(t, reg.Chat().Address("c1"), reg.Chat().Address("c2"))
	assert.Equal(t, "private:u1", reg.Private().Address("u1"))
	assert.Equal(t, "group:g1", reg.Group().Address("g1"))
}

func TestArgsInvertsAddress(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, []string{"abc123"}, reg.Chat().Args(reg.Chat().Address("abc123")))
	assert.Equal(t, []string{"u1"}, reg.Private().Args("private:u1"))
	assert.Nil(t, reg.Chat().Args("private:u1"))
	assert.Nil(t, reg.Chat().Args("chat"))
}

func TestDecodeMessageSent(t *testing.T) {
	reg := NewRegistry()
	raw := []byte(`{
		"id": 42,
		"channel_id": "c1",
		"author": {"id": "u1", "name": "alice"},
		"content": "hello",
		"timestamp": "2024-01-01T00:00:00Z",
		"nonce": 1000
	}`)

	ev, err := reg.Chat().Decode(EventMessageSent, raw)
	require.NoError(t, err)

	sent, ok := ev.(MessageSent)
	require.True(t, ok)
	assert.Equal(t, int64(42), sent.ID)
	assert.Equal(t, "c1", sent.ChannelID)
	assert.Equal(t, "hello", sent.Content)
	require.NotNil(t, sent.Nonce)
	assert.Equal(t, int64(1000), *sent.Nonce)
	require.NotNil(t, sent.Author)
	assert.Equal(t, "alice", sent.Author.Name)
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	reg := NewRegistry()

	// message_updated without a channel_id
	_, err := reg.Chat().Decode(EventMessageUpdated, []byte(`{"id": 7, "content": "x"}`))
	require.ErrorIs(t, err, ErrPayloadInvalid)

	// message_deleted without an id
	_, err = reg.Chat().Decode(EventMessageDeleted, []byte(`{"channel_id": "c1"}`))
	require.ErrorIs(t, err, ErrPayloadInvalid)
}

func TestDecodeUnknownEventName(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Chat().Decode("reaction_added", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	// declared elsewhere but not in this family
	_, err = reg.Group().Decode(EventMessageSent, []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedJSON(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Chat().Decode(EventTyping, []byte(`{"user":`))
	require.ErrorIs(t, err, ErrPayloadInvalid)
}

func TestEventRoundTrip(t *testing.T) {
	reg := NewRegistry()
	nonce := int64(1234)
	ev := MessageSent{
		Message: domain.Message{
			ID:        9,
			ChannelID: "c9",
			Author:    &domain.Profile{ID: "u2", Name: "bob"},
			Content:   "hey",
			Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Nonce: &nonce,
	}

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := reg.Chat().Decode(EventMessageSent, b)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}
