// Package service holds the mutation handlers that commit state and then
// fan the change out over the realtime channels. Publishing always happens
// after the database write: a client that reacts to an event and re-queries
// must observe the committed data. A failed publish is logged and accepted,
// the write stays durable and is never rolled back or retried.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relaychat/relay/internal/apperr"
	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

// MessageStore is the slice of the data layer the chat service needs.
type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, channelID string, id int64) (*domain.Message, error)
	UpdateContent(ctx context.Context, channelID string, id int64, authorID, content string) error
	Delete(ctx context.Context, channelID string, id int64) error
	Fetch(ctx context.Context, channelID string, count int, after, before *time.Time) ([]domain.Message, error)
}

// ChannelAccess answers whether a user may read/write a chat channel.
type ChannelAccess interface {
	CanAccess(ctx context.Context, userID, channelID string) (bool, error)
}

// ProfileStore resolves the minimal profile embedded in payloads.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
}

// ReadStore keeps last-read watermarks.
type ReadStore interface {
	SetLastRead(ctx context.Context, userID, channelID string, at time.Time) error
	LastReadMany(ctx context.Context, userID string, channelIDs []string) (map[string]time.Time, error)
}

// ArchiveSink receives committed messages, best-effort.
type ArchiveSink interface {
	Record(ctx context.Context, msg domain.Message)
}

type ChatService struct {
	messages MessageStore
	access   ChannelAccess
	profiles ProfileStore
	reads    ReadStore
	chat     *realtime.Channel
	archive  ArchiveSink
	log      *zap.Logger

	typingMu       sync.Mutex
	typingLimiters map[string]*rate.Limiter
	typingEvery    time.Duration
}

func NewChatService(
	messages MessageStore,
	access ChannelAccess,
	profiles ProfileStore,
	reads ReadStore,
	chat *realtime.Channel,
	archive ArchiveSink,
	typingThrottle time.Duration,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		messages:       messages,
		access:         access,
		profiles:       profiles,
		reads:          reads,
		chat:           chat,
		archive:        archive,
		log:            log,
		typingLimiters: make(map[string]*rate.Limiter),
		typingEvery:    typingThrottle,
	}
}

// SendInput is one message send. Nonce, when present, is echoed verbatim on
// the message_sent event so the sender reconciles its own placeholder.
type SendInput struct {
	ChannelID  string
	Content    string
	Attachment *domain.Attachment
	ReplyTo    *int64
	Nonce      *int64
}

func (s *ChatService) Send(ctx context.Context, userID string, in SendInput) (*domain.Message, error) {
	if err := s.authorize(ctx, userID, in.ChannelID); err != nil {
		return nil, err
	}
	author, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ChannelID:  in.ChannelID,
		Author:     author,
		Content:    in.Content,
		Attachment: in.Attachment,
		ReplyTo:    in.ReplyTo,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(ctx, in.ChannelID, realtime.MessageSent{Message: *msg, Nonce: in.Nonce})
	if s.archive != nil {
		s.archive.Record(ctx, *msg)
	}
	return msg, nil
}

// Edit rewrites a message's content. Only mutated fields plus ids go out on
// the wire.
func (s *ChatService) Edit(ctx context.Context, userID, channelID string, id int64, content string) error {
	if err := s.authorize(ctx, userID, channelID); err != nil {
		return err
	}
	if err := s.messages.UpdateContent(ctx, channelID, id, userID, content); err != nil {
		return err
	}
	s.publish(ctx, channelID, realtime.MessageUpdated{
		ID:        id,
		ChannelID: channelID,
		Content:   content,
	})
	return nil
}

func (s *ChatService) Delete(ctx context.Context, userID, channelID string, id int64) error {
	msg, err := s.messages.Get(ctx, channelID, id)
	if err != nil {
		return err
	}
	if msg.Author == nil || msg.Author.ID != userID {
		return apperr.ErrForbidden
	}
	if err := s.messages.Delete(ctx, channelID, id); err != nil {
		return err
	}
	s.publish(ctx, channelID, realtime.MessageDeleted{ID: id, ChannelID: channelID})
	return nil
}

// Typing publishes a fire-and-forget typing signal, throttled per user.
// Nothing is persisted; receivers age the indicator out themselves.
func (s *ChatService) Typing(ctx context.Context, userID, channelID string) error {
	if err := s.authorize(ctx, userID, channelID); err != nil {
		return err
	}
	if !s.typingLimiter(userID).Allow() {
		return apperr.ErrRateLimited
	}
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return err
	}
	s.publish(ctx, channelID, realtime.Typing{User: *profile})
	return nil
}

// MarkRead stores the user's read watermark for the channel.
func (s *ChatService) MarkRead(ctx context.Context, userID, channelID string) error {
	if err := s.authorize(ctx, userID, channelID); err != nil {
		return err
	}
	return s.reads.SetLastRead(ctx, userID, channelID, time.Now().UTC())
}

// History returns up to count messages, optionally bounded by after/before
// timestamps, ascending.
func (s *ChatService) History(ctx context.Context, userID, channelID string, count int, after, before *time.Time) ([]domain.Message, error) {
	if err := s.authorize(ctx, userID, channelID); err != nil {
		return nil, err
	}
	if count <= 0 || count > 100 {
		count = 50
	}
	return s.messages.Fetch(ctx, channelID, count, after, before)
}

func (s *ChatService) authorize(ctx context.Context, userID, channelID string) error {
	ok, err := s.access.CanAccess(ctx, userID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrForbidden
	}
	return nil
}

func (s *ChatService) publish(ctx context.Context, channelID string, ev realtime.Event) {
	if err := s.chat.Publish(ctx, ev, channelID); err != nil {
		s.log.Warn("realtime publish failed",
			zap.String("channel", channelID),
			zap.String("event", string(ev.Name())),
			zap.Error(err))
	}
}

func (s *ChatService) typingLimiter(userID string) *rate.Limiter {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	l, ok := s.typingLimiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.typingEvery), 1)
		s.typingLimiters[userID] = l
	}
	return l
}
