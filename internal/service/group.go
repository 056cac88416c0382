package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/apperr"
	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

// GroupStore is the slice of the data layer the group service needs.
type GroupStore interface {
	Create(ctx context.Context, g *domain.Group) error
	Get(ctx context.Context, id string) (*domain.Group, error)
	Update(ctx context.Context, g *domain.Group) error
	Delete(ctx context.Context, id string) ([]string, error)
	AddMember(ctx context.Context, groupID, userID string, admin bool) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	GroupsOf(ctx context.Context, userID string) ([]domain.Group, error)
	CreateInvite(ctx context.Context, groupID string) (*domain.Invite, error)
	InviteByCode(ctx context.Context, code string) (*domain.Invite, error)
	OpenDM(ctx context.Context, a, b string) (*domain.DMChannel, bool, error)
	GetDM(ctx context.Context, channelID string) (*domain.DMChannel, error)
	CloseDM(ctx context.Context, channelID string) error
	DMsOf(ctx context.Context, userID string) ([]domain.DMChannel, error)
}

// GroupService owns group/DM lifecycle mutations and their fanout: private
// channels carry membership changes to the affected users, the group
// broadcast channel carries metadata changes to everyone in the group.
type GroupService struct {
	groups  GroupStore
	private *realtime.Channel
	group   *realtime.Channel
	log     *zap.Logger
}

func NewGroupService(groups GroupStore, private, group *realtime.Channel, log *zap.Logger) *GroupService {
	return &GroupService{groups: groups, private: private, group: group, log: log}
}

func (s *GroupService) CreateGroup(ctx context.Context, ownerID, name string) (*domain.Group, error) {
	g := &domain.Group{Name: name, OwnerID: ownerID}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	s.toPrivate(ctx, ownerID, realtime.GroupCreated{Group: *g})
	return g, nil
}

// GroupPatch carries the mutable group metadata fields.
type GroupPatch struct {
	Name   *string
	Icon   *string
	Public *bool
}

func (s *GroupService) UpdateGroup(ctx context.Context, userID, groupID string, patch GroupPatch) (*domain.Group, error) {
	if err := s.requireAdmin(ctx, groupID, userID); err != nil {
		return nil, err
	}
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Icon != nil {
		g.Icon = *patch.Icon
	}
	if patch.Public != nil {
		g.Public = *patch.Public
	}
	if err := s.groups.Update(ctx, g); err != nil {
		return nil, err
	}
	s.toGroup(ctx, groupID, realtime.GroupUpdated{Group: *g})
	return g, nil
}

// DeleteGroup tears the group down. Every member gets group_removed on
// their private channel so out-of-view sidebars update too.
func (s *GroupService) DeleteGroup(ctx context.Context, userID, groupID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != userID {
		return apperr.ErrForbidden
	}
	memberIDs, err := s.groups.Delete(ctx, groupID)
	if err != nil {
		return err
	}
	s.toGroup(ctx, groupID, realtime.GroupDeleted{GroupID: groupID})
	for _, uid := range memberIDs {
		s.toPrivate(ctx, uid, realtime.GroupRemoved{GroupID: groupID})
	}
	return nil
}

func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID == userID {
		// the owner deletes, never leaves
		return apperr.ErrConflict
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.toPrivate(ctx, userID, realtime.GroupRemoved{GroupID: groupID})
	return nil
}

func (s *GroupService) Kick(ctx context.Context, adminID, groupID, targetID string) error {
	if err := s.requireAdmin(ctx, groupID, adminID); err != nil {
		return err
	}
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if targetID == g.OwnerID {
		return apperr.ErrForbidden
	}
	if err := s.groups.RemoveMember(ctx, groupID, targetID); err != nil {
		return err
	}
	s.toPrivate(ctx, targetID, realtime.GroupRemoved{GroupID: groupID})
	return nil
}

func (s *GroupService) CreateInvite(ctx context.Context, userID, groupID string) (*domain.Invite, error) {
	if err := s.requireAdmin(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.groups.CreateInvite(ctx, groupID)
}

// JoinByInvite adds the user and notifies their private channel, so every
// open session of theirs starts listening to the group immediately.
func (s *GroupService) JoinByInvite(ctx context.Context, userID, code string) (*domain.Group, error) {
	inv, err := s.groups.InviteByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	g, err := s.groups.Get(ctx, inv.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.groups.AddMember(ctx, g.ID, userID, false); err != nil {
		return nil, err
	}
	s.toPrivate(ctx, userID, realtime.GroupCreated{Group: *g})
	return g, nil
}

// OpenDM opens (or returns) the DM channel with peer. Both sides are
// notified on their private channels when the channel is new or was closed;
// opening an already open channel is silent.
func (s *GroupService) OpenDM(ctx context.Context, userID, peerID string) (*domain.DMChannel, error) {
	if userID == peerID {
		return nil, apperr.ErrBadRequest
	}
	d, existed, err := s.groups.OpenDM(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if !existed {
		s.toPrivate(ctx, userID, realtime.OpenDM{Channel: *d})
		s.toPrivate(ctx, peerID, realtime.OpenDM{Channel: *d})
	}
	return d, nil
}

func (s *GroupService) CloseDM(ctx context.Context, userID, channelID string) error {
	d, err := s.groups.GetDM(ctx, channelID)
	if err != nil {
		return err
	}
	if d.Peer(userID) == "" {
		return apperr.ErrForbidden
	}
	if err := s.groups.CloseDM(ctx, channelID); err != nil {
		return err
	}
	s.toPrivate(ctx, d.UserIDs[0], realtime.CloseDM{ChannelID: channelID})
	s.toPrivate(ctx, d.UserIDs[1], realtime.CloseDM{ChannelID: channelID})
	return nil
}

// Memberships lists the user's groups and open DMs; the gateway and the
// client derive their subscription sets from this.
func (s *GroupService) Memberships(ctx context.Context, userID string) ([]domain.Group, []domain.DMChannel, error) {
	groups, err := s.groups.GroupsOf(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	dms, err := s.groups.DMsOf(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return groups, dms, nil
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID, userID string) error {
	ok, err := s.groups.IsAdmin(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrForbidden
	}
	return nil
}

func (s *GroupService) toPrivate(ctx context.Context, userID string, ev realtime.Event) {
	if err := s.private.Publish(ctx, ev, userID); err != nil {
		s.log.Warn("realtime publish failed",
			zap.String("user", userID), zap.String("event", string(ev.Name())), zap.Error(err))
	}
}

func (s *GroupService) toGroup(ctx context.Context, groupID string, ev realtime.Event) {
	if err := s.group.Publish(ctx, ev, groupID); err != nil {
		s.log.Warn("realtime publish failed",
			zap.String("group", groupID), zap.String("event", string(ev.Name())), zap.Error(err))
	}
}
