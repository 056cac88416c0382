// Package store holds the client-side chat state: confirmed messages,
// optimistic placeholders, typing indicators, unread counters and the
// pagination cursor, reconciled against realtime events.
//
// Every operation is a single synchronous transform of previous state to
// next state. Channels are isolated: no operation on one channel's data
// touches another channel's lists.
package store

import (
	"sync"
	"time"

	"github.com/relaychat/relay/internal/domain"
)

// TypingTTL is how long a typing signal stays visible without being
// refreshed. Entries are never deleted, only aged out at read time.
const TypingTTL = 5 * time.Second

// OutgoingMessage is the payload of a not-yet-confirmed send.
type OutgoingMessage struct {
	Content    string
	Attachment *domain.Attachment
}

// Placeholder is a message the local user submitted but the server has not
// confirmed. A failed send keeps its placeholder with Error set until the
// user dismisses it.
type Placeholder struct {
	Nonce   int64
	Data    OutgoingMessage
	ReplyTo *domain.Message
	Error   string
}

type TypingUser struct {
	User domain.Profile
	At   time.Time
}

// ChannelState is everything the client holds for one channel.
type ChannelState struct {
	Messages     []domain.Message
	Placeholders []Placeholder
	Typing       []TypingUser
	Unread       int
	// Cursor is the timestamp of the oldest loaded message, used to fetch
	// the next older page. Nil until pagination starts.
	Cursor *time.Time
}

// State is an immutable snapshot. Transitions never mutate a snapshot in
// place; they return a new one sharing unchanged channels.
type State struct {
	Channels map[string]ChannelState
}

func emptyState() State {
	return State{Channels: make(map[string]ChannelState)}
}

// Channel returns the state for id, zero-valued when nothing is loaded.
func (s State) Channel(id string) ChannelState {
	return s.Channels[id]
}

func (s State) withChannel(id string, f func(ChannelState) ChannelState) State {
	next := State{Channels: make(map[string]ChannelState, len(s.Channels)+1)}
	for k, v := range s.Channels {
		next.Channels[k] = v
	}
	next.Channels[id] = f(s.Channels[id])
	return next
}

// Store is the thin stateful adapter over the pure transitions: it owns the
// current snapshot, the nonce set, and change notification.
type Store struct {
	mu        sync.Mutex
	state     State
	nonces    *NonceSet
	listeners map[int64]func(State)
	nextID    int64
}

func New(nonces *NonceSet) *Store {
	return &Store{
		state:     emptyState(),
		nonces:    nonces,
		listeners: make(map[int64]func(State)),
	}
}

func (st *Store) Nonces() *NonceSet { return st.nonces }

// State returns the current snapshot. Snapshots are safe to read without
// locking; transitions never mutate them.
func (st *Store) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// OnChange registers fn to run after every transition. Returns an
// unsubscribe func.
func (st *Store) OnChange(fn func(State)) func() {
	st.mu.Lock()
	st.nextID++
	id := st.nextID
	st.listeners[id] = fn
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		delete(st.listeners, id)
		st.mu.Unlock()
	}
}

func (st *Store) apply(f func(State) State) {
	st.mu.Lock()
	st.state = f(st.state)
	next := st.state
	fns := make([]func(State), 0, len(st.listeners))
	for _, fn := range st.listeners {
		fns = append(fns, fn)
	}
	st.mu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// AppendConfirmed appends a server-confirmed message to the end of the
// channel's list. When nonce is pending in the suppression set this is the
// echo of our own optimistic send: the matching placeholder is removed in
// the same transition, so the message is rendered exactly once.
func (st *Store) AppendConfirmed(channelID string, msg domain.Message, nonce *int64) {
	mine := nonce != nil && st.nonces.Take(*nonce)
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			c.Messages = append(append([]domain.Message{}, c.Messages...), msg)
			if mine {
				c.Placeholders = removePlaceholder(c.Placeholders, *nonce)
			}
			return c
		})
	})
}

// PrependHistory inserts an older page of messages ahead of the loaded
// window. Used by pagination; msgs must be in ascending timestamp order.
func (st *Store) PrependHistory(channelID string, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			c.Messages = append(append([]domain.Message{}, msgs...), c.Messages...)
			return c
		})
	})
}

// MessagePatch carries the mutable fields of a message_updated event.
type MessagePatch struct {
	Content *string
	Embeds  []domain.Embed
}

// UpdateMessage merges patch into the matching message. A message not in
// the loaded window is a no-op; refetching the channel picks up the
// authoritative state.
func (st *Store) UpdateMessage(channelID string, id int64, patch MessagePatch) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			idx := -1
			for i := range c.Messages {
				if c.Messages[i].ID == id {
					idx = i
					break
				}
			}
			if idx < 0 {
				return c
			}
			msgs := append([]domain.Message{}, c.Messages...)
			if patch.Content != nil {
				msgs[idx].Content = *patch.Content
			}
			if patch.Embeds != nil {
				msgs[idx].Embeds = patch.Embeds
			}
			c.Messages = msgs
			return c
		})
	})
}

// RemoveMessage filters the message out of the list; no-op if absent.
func (st *Store) RemoveMessage(channelID string, id int64) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			out := make([]domain.Message, 0, len(c.Messages))
			for _, m := range c.Messages {
				if m.ID != id {
					out = append(out, m)
				}
			}
			c.Messages = out
			return c
		})
	})
}

// AddPlaceholder records an optimistic send and returns its fresh nonce,
// already registered as pending.
func (st *Store) AddPlaceholder(channelID string, data OutgoingMessage, replyTo *domain.Message) int64 {
	nonce := st.nonces.Next()
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			c.Placeholders = append(append([]Placeholder{}, c.Placeholders...), Placeholder{
				Nonce:   nonce,
				Data:    data,
				ReplyTo: replyTo,
			})
			return c
		})
	})
	return nonce
}

// MarkPlaceholderError attaches an error to the placeholder matching nonce.
// The placeholder stays visible; the user dismisses it explicitly.
func (st *Store) MarkPlaceholderError(channelID string, nonce int64, message string) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			out := append([]Placeholder{}, c.Placeholders...)
			for i := range out {
				if out[i].Nonce == nonce {
					out[i].Error = message
				}
			}
			c.Placeholders = out
			return c
		})
	})
}

// RemovePlaceholder drops the placeholder and releases its nonce.
func (st *Store) RemovePlaceholder(channelID string, nonce int64) {
	st.nonces.Release(nonce)
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			c.Placeholders = removePlaceholder(c.Placeholders, nonce)
			return c
		})
	})
}

func removePlaceholder(in []Placeholder, nonce int64) []Placeholder {
	out := make([]Placeholder, 0, len(in))
	for _, p := range in {
		if p.Nonce != nonce {
			out = append(out, p)
		}
	}
	return out
}

// SetTyping replaces any existing entry for the user with a fresh
// timestamp. Supersede, never accumulate.
func (st *Store) SetTyping(channelID string, user domain.Profile, at time.Time) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			out := make([]TypingUser, 0, len(c.Typing)+1)
			for _, t := range c.Typing {
				if t.User.ID != user.ID {
					out = append(out, t)
				}
			}
			c.Typing = append(out, TypingUser{User: user, At: at})
			return c
		})
	})
}

// TypingUsers is the read path for typing indicators: entries older than
// TypingTTL relative to now are filtered out.
func (st *Store) TypingUsers(channelID string, now time.Time) []domain.Profile {
	c := st.State().Channel(channelID)
	out := make([]domain.Profile, 0, len(c.Typing))
	for _, t := range c.Typing {
		if now.Sub(t.At) < TypingTTL {
			out = append(out, t.User)
		}
	}
	return out
}

// AdvanceCursor sets the pagination cursor to the timestamp of the oldest
// loaded message. No-op when nothing is loaded.
func (st *Store) AdvanceCursor(channelID string) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			if len(c.Messages) == 0 {
				return c
			}
			ts := c.Messages[0].Timestamp
			c.Cursor = &ts
			return c
		})
	})
}

// SetUnread applies a pure updater to the channel's unread counter.
func (st *Store) SetUnread(channelID string, update func(int) int) {
	st.apply(func(s State) State {
		return s.withChannel(channelID, func(c ChannelState) ChannelState {
			c.Unread = update(c.Unread)
			return c
		})
	})
}
