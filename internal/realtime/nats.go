package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSTransport moves envelopes over NATS core subjects. Addresses map to
// subjects unchanged; colons are plain characters to NATS. Reconnect and
// backoff come from the nats client itself.
type NATSTransport struct {
	nc       *nats.Conn
	clientID string
	log      *zap.Logger
}

func NewNATSTransport(url string, log *zap.Logger) (*NATSTransport, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSTransport{nc: nc, clientID: uuid.NewString(), log: log}, nil
}

func (t *NATSTransport) ClientID() string { return t.clientID }

func (t *NATSTransport) Publish(_ context.Context, address string, env Envelope) error {
	if env.ClientID == "" {
		env.ClientID = t.clientID
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.nc.Publish(address, b)
}

func (t *NATSTransport) Subscribe(address string, fn func(Envelope)) (CancelFunc, error) {
	sub, err := t.nc.Subscribe(address, func(m *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			t.log.Warn("malformed envelope", zap.String("address", address), zap.Error(err))
			return
		}
		fn(env)
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				t.log.Warn("unsubscribe", zap.String("address", address), zap.Error(err))
			}
		})
	}
	return cancel, nil
}

func (t *NATSTransport) Close() error {
	t.nc.Close()
	return nil
}
