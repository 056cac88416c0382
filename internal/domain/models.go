package domain

import "time"

// Profile is the minimal user record carried inside realtime payloads.
type Profile struct {
	ID    string `bson:"_id" json:"id" validate:"required"`
	Name  string `bson:"name" json:"name"`
	Image string `bson:"image,omitempty" json:"image,omitempty"`
}

type Attachment struct {
	ID          string `bson:"_id" json:"id"`
	URL         string `bson:"url" json:"url"`
	Name        string `bson:"name" json:"name"`
	ContentType string `bson:"content_type" json:"content_type"`
	Size        int64  `bson:"size" json:"size"`
	Width       int    `bson:"width,omitempty" json:"width,omitempty"`
	Height      int    `bson:"height,omitempty" json:"height,omitempty"`
}

type Embed struct {
	URL         string `bson:"url" json:"url"`
	Title       string `bson:"title,omitempty" json:"title,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Image       string `bson:"image,omitempty" json:"image,omitempty"`
}

// Message is a committed chat message. Author is nil when the account has
// been deleted since the message was written.
type Message struct {
	ID         int64       `bson:"_id" json:"id" validate:"required"`
	ChannelID  string      `bson:"channel_id" json:"channel_id" validate:"required"`
	Author     *Profile    `bson:"author,omitempty" json:"author"`
	Content    string      `bson:"content" json:"content"`
	Attachment *Attachment `bson:"attachment,omitempty" json:"attachment,omitempty"`
	ReplyTo    *int64      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Embeds     []Embed     `bson:"embeds,omitempty" json:"embeds,omitempty"`
	Timestamp  time.Time   `bson:"timestamp" json:"timestamp"`
}

// Group is a named multi-member chat. Every group owns exactly one chat
// channel, addressed by ChannelID.
type Group struct {
	ID        string    `bson:"_id" json:"id" validate:"required"`
	ChannelID string    `bson:"channel_id" json:"channel_id"`
	Name      string    `bson:"name" json:"name"`
	Icon      string    `bson:"icon,omitempty" json:"icon,omitempty"`
	OwnerID   string    `bson:"owner_id" json:"owner_id"`
	Public    bool      `bson:"public" json:"public"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Member struct {
	GroupID  string    `bson:"group_id" json:"group_id"`
	UserID   string    `bson:"user_id" json:"user_id"`
	Admin    bool      `bson:"admin" json:"admin"`
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
}

// DMChannel is a direct-message channel between two users. Closing a DM
// only hides it: the document and its message history stay, and reopening
// the pair returns the same channel id.
type DMChannel struct {
	ID        string    `bson:"_id" json:"id" validate:"required"`
	UserIDs   [2]string `bson:"user_ids" json:"user_ids"`
	Closed    bool      `bson:"closed,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Peer returns the other participant of the DM, or "" if userID is not a
// participant.
func (d DMChannel) Peer(userID string) string {
	switch userID {
	case d.UserIDs[0]:
		return d.UserIDs[1]
	case d.UserIDs[1]:
		return d.UserIDs[0]
	}
	return ""
}

// Invite is a one-code group invitation.
type Invite struct {
	Code      string    `bson:"_id" json:"code"`
	GroupID   string    `bson:"group_id" json:"group_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
