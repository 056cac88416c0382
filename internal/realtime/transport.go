package realtime

import (
	"context"
	"encoding/json"
)

// Envelope is the wire format moved by a Transport. ClientID identifies the
// publishing connection so receivers can recognise self-originated
// broadcasts when no nonce is available.
type Envelope struct {
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	ClientID string          `json:"client_id,omitempty"`
}

// CancelFunc tears down one transport subscription. Safe to call twice.
type CancelFunc func()

// Transport is the pub/sub backend moving envelopes between processes.
// Channels exist implicitly: publishing or subscribing to an address is all
// it takes. Delivery is at-least-once, ordered within a channel, with no
// ordering across channels. Reconnection is the transport's own concern;
// callers never retry publishes.
type Transport interface {
	// ClientID identifies this connection in published envelopes.
	ClientID() string

	Publish(ctx context.Context, address string, env Envelope) error

	// Subscribe registers fn for every envelope arriving on address.
	// fn must not block; it is invoked from the transport's receive loop.
	Subscribe(address string, fn func(Envelope)) (CancelFunc, error)

	Close() error
}
