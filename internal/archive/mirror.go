// Package archive mirrors committed messages onto a Kafka topic for the
// analytics/audit pipeline. The mirror is strictly best-effort: the realtime
// path never waits on it and a dead broker trips a breaker instead of
// piling up timeouts.
package archive

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/domain"
)

type Mirror struct {
	writer  *kafkago.Writer
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewMirror(brokers []string, topic string, log *zap.Logger) *Mirror {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kafka-archive",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("archive breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Mirror{writer: w, breaker: cb, log: log}
}

// Record writes one committed message to the archive topic, keyed by
// channel so a channel's history stays in partition order. Failures are
// logged and swallowed.
func (m *Mirror) Record(ctx context.Context, msg domain.Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("archive marshal", zap.Error(err))
		return
	}
	_, err = m.breaker.Execute(func() (interface{}, error) {
		return nil, m.writer.WriteMessages(ctx, kafkago.Message{
			Key:   []byte(msg.ChannelID),
			Value: b,
			Time:  msg.Timestamp,
		})
	})
	if err != nil {
		m.log.Warn("archive write skipped", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
}

func (m *Mirror) Close() error {
	return m.writer.Close()
}
