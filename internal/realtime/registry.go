package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownEvent marks an event name outside the family's declared set.
	// Subscribers log and drop these, they never reach a handler.
	ErrUnknownEvent = errors.New("unknown event name")

	// ErrPayloadInvalid marks a payload that failed schema validation.
	ErrPayloadInvalid = errors.New("invalid event payload")
)

var validate = validator.New()

type decoder func(data json.RawMessage) (Event, error)

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return ev, nil
}

// Family declares one addressing scheme plus its closed event set. Families
// are pure metadata, they hold no connection state.
type Family struct {
	Key      string
	decoders map[EventName]decoder
}

// Address derives the transport channel name for the given arguments.
// The join is order-sensitive and deterministic: publisher and subscriber
// must agree on it bit-exactly.
func (f *Family) Address(args ...string) string {
	if len(args) == 0 {
		return f.Key
	}
	return f.Key + ":" + strings.Join(args, ":")
}

// Args is the inverse of Address: it splits an address of this family back
// into its argument segments. Returns nil when the address does not belong
// to the family.
func (f *Family) Args(address string) []string {
	if address == f.Key {
		return nil
	}
	rest, ok := strings.CutPrefix(address, f.Key+":")
	if !ok {
		return nil
	}
	return strings.Split(rest, ":")
}

// Decode validates and narrows a raw payload into the declared shape for
// name. Returns ErrUnknownEvent when the name is not part of the family.
func (f *Family) Decode(name EventName, data json.RawMessage) (Event, error) {
	dec, ok := f.decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in family %q", ErrUnknownEvent, name, f.Key)
	}
	return dec(data)
}

// Declares returns whether name is part of the family's event set.
func (f *Family) Declares(name EventName) bool {
	_, ok := f.decoders[name]
	return ok
}

// Registry holds the channel families of this deployment.
type Registry struct {
	chat    *Family
	private *Family
	group   *Family
}

// NewRegistry declares the three channel families:
//
//	chat:<channelID>   per-chat events (messages, typing)
//	private:<userID>   account-level notifications
//	group:<groupID>    group metadata broadcasts
func NewRegistry() *Registry {
	return &Registry{
		chat: &Family{
			Key: "chat",
			decoders: map[EventName]decoder{
				EventMessageSent:    decodeAs[MessageSent],
				EventMessageUpdated: decodeAs[MessageUpdated],
				EventMessageDeleted: decodeAs[MessageDeleted],
				EventTyping:         decodeAs[Typing],
			},
		},
		private: &Family{
			Key: "private",
			decoders: map[EventName]decoder{
				EventGroupCreated: decodeAs[GroupCreated],
				EventGroupRemoved: decodeAs[GroupRemoved],
				EventOpenDM:       decodeAs[OpenDM],
				EventCloseDM:      decodeAs[CloseDM],
			},
		},
		group: &Family{
			Key: "group",
			decoders: map[EventName]decoder{
				EventGroupUpdated: decodeAs[GroupUpdated],
				EventGroupDeleted: decodeAs[GroupDeleted],
			},
		},
	}
}

func (r *Registry) Chat() *Family    { return r.chat }
func (r *Registry) Private() *Family { return r.private }
func (r *Registry) Group() *Family   { return r.group }
