package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/relay/client/store"
	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

// Session is a long-lived per-user subscriber. It holds one chat
// subscription per group channel and open DM, one group subscription per
// group membership, and the user's private channel, recomputing the set
// whenever membership changes arrive.
type Session struct {
	self    domain.Profile
	broker  *realtime.Broker
	store   *store.Store
	data    DataLayer
	cb      Callbacks
	log     *zap.Logger
	enabled bool

	mu         sync.Mutex
	active     string
	groups     map[string]domain.Group
	dms        map[string]domain.DMChannel
	chatSubs   map[string]*realtime.Subscription
	groupSubs  map[string]*realtime.Subscription
	privateSub *realtime.Subscription
}

// Start connects the session: subscribes the private channel, loads the
// current membership list and brings the chat/group subscription sets in
// line with it. A disabled session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.mu.Lock()
	if s.privateSub == nil || !s.privateSub.Active() {
		s.privateSub = s.broker.Private().Subscribe(
			realtime.SubscribeOptions{Enabled: true}, s.handlePrivate, s.self.ID)
	}
	s.mu.Unlock()

	groups, dms, err := s.data.Memberships(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[string]domain.Group, len(groups))
	for _, g := range groups {
		s.groups[g.ID] = g
	}
	s.dms = make(map[string]domain.DMChannel, len(dms))
	for _, d := range dms {
		s.dms[d.ID] = d
	}
	s.syncLocked()
	return nil
}

// Close tears down every subscription. The session can be started again.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateSub != nil {
		s.privateSub.Close()
		s.privateSub = nil
	}
	for id, sub := range s.chatSubs {
		sub.Close()
		delete(s.chatSubs, id)
	}
	for id, sub := range s.groupSubs {
		sub.Close()
		delete(s.groupSubs, id)
	}
}

// syncLocked diffs the desired subscription sets against the held ones:
// stale addresses are torn down, new ones established, existing ones left
// untouched so no address is ever double-subscribed.
func (s *Session) syncLocked() {
	wantChat := make(map[string]struct{}, len(s.groups)+len(s.dms))
	for _, g := range s.groups {
		wantChat[g.ChannelID] = struct{}{}
	}
	for id := range s.dms {
		wantChat[id] = struct{}{}
	}
	for id, sub := range s.chatSubs {
		if _, ok := wantChat[id]; !ok {
			sub.Close()
			delete(s.chatSubs, id)
		}
	}
	for id := range wantChat {
		if _, ok := s.chatSubs[id]; !ok {
			s.chatSubs[id] = s.broker.Chat().Subscribe(
				realtime.SubscribeOptions{Enabled: true}, s.handleChat, id)
		}
	}

	for id, sub := range s.groupSubs {
		if _, ok := s.groups[id]; !ok {
			sub.Close()
			delete(s.groupSubs, id)
		}
	}
	for id := range s.groups {
		if _, ok := s.groupSubs[id]; !ok {
			s.groupSubs[id] = s.broker.Group().Subscribe(
				realtime.SubscribeOptions{Enabled: true}, s.handleGroup, id)
		}
	}
}

// handleChat routes per-chat events into the store. Runs on the transport
// receive loop, so everything here is a synchronous store transition; the
// read acknowledgement is the only network call and goes async.
func (s *Session) handleChat(ev realtime.Event, meta realtime.Meta) {
	switch e := ev.(type) {
	case realtime.MessageSent:
		s.store.AppendConfirmed(e.ChannelID, e.Message, e.Nonce)
		viewing := s.ActiveChannel() == e.ChannelID
		mine := e.Author != nil && e.Author.ID == s.self.ID
		switch {
		case viewing:
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.data.AckRead(ctx, e.ChannelID); err != nil {
					s.log.Warn("read ack failed", zap.String("channel", e.ChannelID), zap.Error(err))
				}
			}()
		case !mine:
			s.store.SetUnread(e.ChannelID, func(n int) int { return n + 1 })
		}
	case realtime.MessageUpdated:
		content := e.Content
		s.store.UpdateMessage(e.ChannelID, e.ID, store.MessagePatch{
			Content: &content,
			Embeds:  e.Embeds,
		})
	case realtime.MessageDeleted:
		s.store.RemoveMessage(e.ChannelID, e.ID)
	case realtime.Typing:
		if e.User.ID == s.self.ID {
			return
		}
		// the chat family has exactly one argument, the channel id
		args := s.broker.Chat().Args(meta.Address)
		if len(args) != 1 {
			return
		}
		s.store.SetTyping(args[0], e.User, time.Now())
	default:
		s.log.Warn("unhandled chat event", zap.String("event", string(ev.Name())))
	}
}

// handlePrivate reacts to account-level notifications: membership and DM
// changes recompute the subscription set before any callback fires, so the
// newly visible channel is already being listened to.
func (s *Session) handlePrivate(ev realtime.Event, meta realtime.Meta) {
	selfOrigin := meta.ClientID == s.broker.Transport().ClientID()
	switch e := ev.(type) {
	case realtime.GroupCreated:
		s.mu.Lock()
		s.groups[e.Group.ID] = e.Group
		s.syncLocked()
		s.mu.Unlock()
		if s.cb.GroupCreated != nil && !selfOrigin {
			s.cb.GroupCreated(e.Group)
		}
	case realtime.GroupRemoved:
		s.dropGroup(e.GroupID)
		if s.cb.GroupRemoved != nil {
			s.cb.GroupRemoved(e.GroupID)
		}
	case realtime.OpenDM:
		s.mu.Lock()
		s.dms[e.Channel.ID] = e.Channel
		s.syncLocked()
		s.mu.Unlock()
		if s.cb.DMOpened != nil && !selfOrigin {
			s.cb.DMOpened(e.Channel)
		}
	case realtime.CloseDM:
		s.mu.Lock()
		delete(s.dms, e.ChannelID)
		s.syncLocked()
		s.mu.Unlock()
		if s.cb.DMClosed != nil {
			s.cb.DMClosed(e.ChannelID)
		}
	default:
		s.log.Warn("unhandled private event", zap.String("event", string(ev.Name())))
	}
}

// handleGroup reacts to group broadcast events visible to all members.
func (s *Session) handleGroup(ev realtime.Event, _ realtime.Meta) {
	switch e := ev.(type) {
	case realtime.GroupUpdated:
		s.mu.Lock()
		if _, ok := s.groups[e.Group.ID]; ok {
			s.groups[e.Group.ID] = e.Group
		}
		s.mu.Unlock()
		if s.cb.GroupUpdated != nil {
			s.cb.GroupUpdated(e.Group)
		}
	case realtime.GroupDeleted:
		s.dropGroup(e.GroupID)
		if s.cb.GroupRemoved != nil {
			s.cb.GroupRemoved(e.GroupID)
		}
	default:
		s.log.Warn("unhandled group event", zap.String("event", string(ev.Name())))
	}
}

func (s *Session) dropGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	s.syncLocked()
}

// Groups returns the current group memberships the session is tracking.
func (s *Session) Groups() []domain.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

// DMs returns the currently open direct-message channels.
func (s *Session) DMs() []domain.DMChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DMChannel, 0, len(s.dms))
	for _, d := range s.dms {
		out = append(out, d)
	}
	return out
}
