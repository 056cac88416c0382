package repository

import (
	"context"
	"errors"
)

// Access answers chat-channel authorization: a channel id names either a
// group's chat channel or a DM channel, and the user must be a member or a
// participant respectively.
type Access struct {
	groups *GroupRepo
}

func NewAccess(groups *GroupRepo) *Access {
	return &Access{groups: groups}
}

func (a *Access) CanAccess(ctx context.Context, userID, channelID string) (bool, error) {
	g, err := a.groups.GroupByChannel(ctx, channelID)
	if err == nil {
		return a.groups.IsMember(ctx, g.ID, userID)
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	d, err := a.groups.GetDM(ctx, channelID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.Peer(userID) != "", nil
}
