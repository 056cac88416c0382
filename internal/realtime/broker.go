package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/metrics"
)

// Meta carries the transport metadata of a received event.
type Meta struct {
	Address string
	// ClientID identifies the publishing connection. Receivers compare it
	// against their own transport's ClientID to detect self-originated
	// broadcasts when the payload carries no nonce.
	ClientID string
}

// Handler receives decoded events. Handlers run on the transport's receive
// goroutine and must not block.
type Handler func(ev Event, meta Meta)

// SubscribeOptions gates a subscription. A disabled subscription is a no-op
// handle; it is used to park managers behind auth state.
type SubscribeOptions struct {
	Enabled bool
}

// Broker binds the schema registry to a transport and hands out typed
// channel handles. One transport subscription is held per address no matter
// how many handlers are attached, so attaching twice never doubles delivery.
type Broker struct {
	reg *Registry
	tr  Transport
	log *zap.Logger

	mu     sync.Mutex
	muxes  map[string]*subscriberMux
	nextID int64
}

func NewBroker(reg *Registry, tr Transport, log *zap.Logger) *Broker {
	return &Broker{
		reg:   reg,
		tr:    tr,
		log:   log,
		muxes: make(map[string]*subscriberMux),
	}
}

func (b *Broker) Transport() Transport { return b.tr }

// Chat returns the per-chat channel handle (one channel per chat id).
func (b *Broker) Chat() *Channel { return &Channel{fam: b.reg.Chat(), b: b} }

// Private returns the per-user private channel handle.
func (b *Broker) Private() *Channel { return &Channel{fam: b.reg.Private(), b: b} }

// Group returns the per-group broadcast channel handle.
func (b *Broker) Group() *Channel { return &Channel{fam: b.reg.Group(), b: b} }

// Channel is the addressed handle for one family: deterministic naming plus
// typed publish and subscribe against the family's schemas.
type Channel struct {
	fam *Family
	b   *Broker
}

// Address is the deterministic transport name for args. Equal arguments
// always yield the identical string.
func (c *Channel) Address(args ...string) string { return c.fam.Address(args...) }

// Args recovers the argument segments from an address of this channel's
// family, nil when the address belongs to another family.
func (c *Channel) Args(address string) []string { return c.fam.Args(address) }

// Publish validates ev against the family schema and publishes it to the
// channel named by args. A payload that fails validation is a contract
// violation: the error returns before any network call.
func (c *Channel) Publish(ctx context.Context, ev Event, args ...string) error {
	name := ev.Name()
	if !c.fam.Declares(name) {
		return fmt.Errorf("%w: %q not declared by family %q", ErrUnknownEvent, name, c.fam.Key)
	}
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, name, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, name, err)
	}
	addr := c.fam.Address(args...)
	if err := c.b.tr.Publish(ctx, addr, Envelope{Name: string(name), Data: data}); err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues(c.fam.Key, string(name)).Inc()
	return nil
}

// Subscribe attaches fn to the channel named by args. Decoding failures and
// unknown event names are logged and dropped; they never reach fn and never
// kill the subscription. The returned handle must be closed when the caller
// is torn down or its arguments change.
func (c *Channel) Subscribe(opts SubscribeOptions, fn Handler, args ...string) *Subscription {
	if !opts.Enabled {
		return &Subscription{}
	}
	addr := c.fam.Address(args...)
	return c.b.attach(addr, c.fam, fn)
}

// Subscription is one attached handler. The zero value is a disabled no-op.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Close detaches the handler. When it is the last handler on the address the
// underlying transport subscription is torn down too. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Active reports whether the subscription is delivering events.
func (s *Subscription) Active() bool { return s.cancel != nil }

type subscriberMux struct {
	fam      *Family
	cancel   CancelFunc
	mu       sync.RWMutex
	handlers map[int64]Handler
}

func (b *Broker) attach(addr string, fam *Family, fn Handler) *Subscription {
	b.mu.Lock()
	mux, ok := b.muxes[addr]
	if !ok {
		mux = &subscriberMux{fam: fam, handlers: make(map[int64]Handler)}
		cancel, err := b.tr.Subscribe(addr, func(env Envelope) {
			b.dispatch(addr, mux, env)
		})
		if err != nil {
			b.mu.Unlock()
			b.log.Error("subscribe failed", zap.String("address", addr), zap.Error(err))
			return &Subscription{}
		}
		mux.cancel = cancel
		b.muxes[addr] = mux
	}
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	mux.mu.Lock()
	mux.handlers[id] = fn
	mux.mu.Unlock()

	return &Subscription{cancel: func() { b.detach(addr, id) }}
}

func (b *Broker) detach(addr string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mux, ok := b.muxes[addr]
	if !ok {
		return
	}
	mux.mu.Lock()
	delete(mux.handlers, id)
	empty := len(mux.handlers) == 0
	mux.mu.Unlock()
	if empty {
		mux.cancel()
		delete(b.muxes, addr)
	}
}

func (b *Broker) dispatch(addr string, mux *subscriberMux, env Envelope) {
	ev, err := mux.fam.Decode(EventName(env.Name), env.Data)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownEvent):
			metrics.EventsDropped.WithLabelValues("unknown_event").Inc()
			b.log.Warn("dropping unknown event",
				zap.String("address", addr), zap.String("event", env.Name))
		default:
			metrics.EventsDropped.WithLabelValues("invalid_payload").Inc()
			b.log.Warn("dropping invalid payload",
				zap.String("address", addr), zap.String("event", env.Name), zap.Error(err))
		}
		return
	}

	meta := Meta{Address: addr, ClientID: env.ClientID}
	mux.mu.RLock()
	handlers := make([]Handler, 0, len(mux.handlers))
	for _, h := range mux.handlers {
		handlers = append(handlers, h)
	}
	mux.mu.RUnlock()
	for _, h := range handlers {
		h(ev, meta)
	}
}
