package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport moves envelopes over Redis pub/sub. One PubSub is held per
// subscribed address; go-redis reconnects it transparently, so a dropped
// connection only means missed messages during the gap, never an error
// surfaced here.
type RedisTransport struct {
	rdb      *redis.Client
	prefix   string
	clientID string
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewRedisTransport(rdb *redis.Client, prefix string, log *zap.Logger) *RedisTransport {
	return &RedisTransport{
		rdb:      rdb,
		prefix:   strings.TrimSuffix(prefix, ":"),
		clientID: uuid.NewString(),
		log:      log,
	}
}

func (t *RedisTransport) key(address string) string {
	if t.prefix == "" {
		return address
	}
	return t.prefix + ":" + address
}

func (t *RedisTransport) ClientID() string { return t.clientID }

func (t *RedisTransport) Publish(ctx context.Context, address string, env Envelope) error {
	if env.ClientID == "" {
		env.ClientID = t.clientID
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, t.key(address), b).Err()
}

func (t *RedisTransport) Subscribe(address string, fn func(Envelope)) (CancelFunc, error) {
	pubsub := t.rdb.Subscribe(context.Background(), t.key(address))
	// force the SUBSCRIBE round-trip so a dead server surfaces here
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.log.Warn("malformed envelope", zap.String("address", address), zap.Error(err))
				continue
			}
			fn(env)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				t.log.Warn("pubsub close", zap.String("address", address), zap.Error(err))
			}
		})
	}
	return cancel, nil
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.rdb.Close()
}
