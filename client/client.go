// Package client is the connected-session side of the realtime layer: it
// subscribes the channels a user must hear, routes decoded events into the
// reconciliation store, and performs optimistic sends against the data
// layer.
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/relay/client/store"
	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

// DataLayer is the request/response boundary behind the session: message
// mutations, history fetches and read acknowledgements. The session treats
// all of these as opaque async calls.
type DataLayer interface {
	CreateMessage(ctx context.Context, channelID, content string, attachment *domain.Attachment, replyTo *int64, nonce int64) error
	UpdateMessage(ctx context.Context, channelID string, id int64, content string) error
	DeleteMessage(ctx context.Context, channelID string, id int64) error
	FetchMessages(ctx context.Context, channelID string, count int, after, before *time.Time) ([]domain.Message, error)
	AckRead(ctx context.Context, channelID string) error
	Typing(ctx context.Context, channelID string) error
	Memberships(ctx context.Context) ([]domain.Group, []domain.DMChannel, error)
}

// Callbacks surface sidebar-level changes that live outside the message
// store. All are optional and must not block.
type Callbacks struct {
	GroupCreated func(domain.Group)
	GroupUpdated func(domain.Group)
	GroupRemoved func(groupID string)
	DMOpened     func(domain.DMChannel)
	DMClosed     func(channelID string)
}

// Config assembles a Session. Enabled gates everything behind auth state:
// Start on a disabled session is a no-op, so it subscribes nothing and
// delivers no events. Auth changes mean building a fresh session.
type Config struct {
	Self      domain.Profile
	Broker    *realtime.Broker
	Store     *store.Store
	Data      DataLayer
	Callbacks Callbacks
	Logger    *zap.Logger
	Enabled   bool
}

// NewSession builds a session. Call Start to connect it.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		self:      cfg.Self,
		broker:    cfg.Broker,
		store:     cfg.Store,
		data:      cfg.Data,
		cb:        cfg.Callbacks,
		log:       cfg.Logger,
		enabled:   cfg.Enabled,
		groups:    make(map[string]domain.Group),
		dms:       make(map[string]domain.DMChannel),
		chatSubs:  make(map[string]*realtime.Subscription),
		groupSubs: make(map[string]*realtime.Subscription),
	}
}

func (s *Session) Store() *store.Store { return s.store }

// SendMessage performs an optimistic send: a placeholder appears at once,
// the confirming message_sent event replaces it, and a failed request pins
// an inline error onto the placeholder instead of removing it.
func (s *Session) SendMessage(ctx context.Context, channelID, content string, attachment *domain.Attachment, replyTo *domain.Message) error {
	nonce := s.store.AddPlaceholder(channelID, store.OutgoingMessage{
		Content:    content,
		Attachment: attachment,
	}, replyTo)

	var replyID *int64
	if replyTo != nil {
		replyID = &replyTo.ID
	}
	if err := s.data.CreateMessage(ctx, channelID, content, attachment, replyID, nonce); err != nil {
		s.store.MarkPlaceholderError(channelID, nonce, err.Error())
		return err
	}
	return nil
}

// DismissPlaceholder removes a failed send the user has acknowledged.
func (s *Session) DismissPlaceholder(channelID string, nonce int64) {
	s.store.RemovePlaceholder(channelID, nonce)
}

func (s *Session) EditMessage(ctx context.Context, channelID string, id int64, content string) error {
	return s.data.UpdateMessage(ctx, channelID, id, content)
}

func (s *Session) DeleteMessage(ctx context.Context, channelID string, id int64) error {
	return s.data.DeleteMessage(ctx, channelID, id)
}

// Typing sends a fire-and-forget typing ping for the channel.
func (s *Session) Typing(ctx context.Context, channelID string) error {
	return s.data.Typing(ctx, channelID)
}

// LoadOlder fetches the page before the channel's pagination cursor and
// prepends it, then advances the cursor to the new oldest message.
func (s *Session) LoadOlder(ctx context.Context, channelID string, count int) error {
	c := s.store.State().Channel(channelID)
	msgs, err := s.data.FetchMessages(ctx, channelID, count, nil, c.Cursor)
	if err != nil {
		return err
	}
	s.store.PrependHistory(channelID, msgs)
	s.store.AdvanceCursor(channelID)
	return nil
}

// SetActiveChannel marks channelID as the one currently being viewed:
// its unread counter resets and a read acknowledgement is sent. Events for
// any other channel go down the background path (unread increment).
func (s *Session) SetActiveChannel(ctx context.Context, channelID string) {
	s.mu.Lock()
	s.active = channelID
	s.mu.Unlock()
	if channelID == "" {
		return
	}
	s.store.SetUnread(channelID, func(int) int { return 0 })
	if err := s.data.AckRead(ctx, channelID); err != nil {
		s.log.Warn("read ack failed", zap.String("channel", channelID), zap.Error(err))
	}
}

// ActiveChannel returns the channel currently being viewed, "" when none.
func (s *Session) ActiveChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
