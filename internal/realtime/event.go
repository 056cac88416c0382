package realtime

import (
	"github.com/relaychat/relay/internal/domain"
)

// EventName identifies an event within a channel family. Each family declares
// a closed set of names; anything else arriving off the wire is dropped.
type EventName string

const (
	EventMessageSent    EventName = "message_sent"
	EventMessageUpdated EventName = "message_updated"
	EventMessageDeleted EventName = "message_deleted"
	EventTyping         EventName = "typing"

	EventGroupCreated EventName = "group_created"
	EventGroupUpdated EventName = "group_updated"
	EventGroupRemoved EventName = "group_removed"
	EventGroupDeleted EventName = "group_deleted"

	EventOpenDM  EventName = "open_dm"
	EventCloseDM EventName = "close_dm"
)

// Event is the decoded form of a realtime payload. The concrete types below
// are a closed set, so subscriber switches stay exhaustive.
type Event interface {
	Name() EventName
}

// MessageSent carries the full committed message. Nonce echoes the sender's
// client-generated identifier so the origin client can reconcile its own
// placeholder.
type MessageSent struct {
	domain.Message
	Nonce *int64 `json:"nonce,omitempty"`
}

func (MessageSent) Name() EventName { return EventMessageSent }

// MessageUpdated carries only the mutated fields plus the identifying ids.
type MessageUpdated struct {
	ID        int64          `json:"id" validate:"required"`
	ChannelID string         `json:"channel_id" validate:"required"`
	Content   string         `json:"content"`
	Embeds    []domain.Embed `json:"embeds,omitempty"`
}

func (MessageUpdated) Name() EventName { return EventMessageUpdated }

type MessageDeleted struct {
	ID        int64  `json:"id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
}

func (MessageDeleted) Name() EventName { return EventMessageDeleted }

// Typing is fire-and-forget. There is no matching stop event; receivers age
// entries out with a TTL.
type Typing struct {
	User domain.Profile `json:"user" validate:"required"`
}

func (Typing) Name() EventName { return EventTyping }

// GroupCreated is sent to a user's private channel when they gain membership
// of a group (created it, joined it, or were added).
type GroupCreated struct {
	Group domain.Group `json:"group" validate:"required"`
}

func (GroupCreated) Name() EventName { return EventGroupCreated }

// GroupUpdated is broadcast on the group channel after metadata changes.
type GroupUpdated struct {
	Group domain.Group `json:"group" validate:"required"`
}

func (GroupUpdated) Name() EventName { return EventGroupUpdated }

// GroupRemoved is sent to a user's private channel when they lose membership
// (left, kicked, or the group was deleted).
type GroupRemoved struct {
	GroupID string `json:"group_id" validate:"required"`
}

func (GroupRemoved) Name() EventName { return EventGroupRemoved }

// GroupDeleted is broadcast on the group channel itself.
type GroupDeleted struct {
	GroupID string `json:"group_id" validate:"required"`
}

func (GroupDeleted) Name() EventName { return EventGroupDeleted }

type OpenDM struct {
	Channel domain.DMChannel `json:"channel" validate:"required"`
}

func (OpenDM) Name() EventName { return EventOpenDM }

type CloseDM struct {
	ChannelID string `json:"channel_id" validate:"required"`
}

func (CloseDM) Name() EventName { return EventCloseDM }
