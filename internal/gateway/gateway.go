// Package gateway bridges server-side realtime channels to browser websocket
// connections. Each connection holds one subscription set derived from the
// user's memberships and is resubscribed when those memberships change.
package gateway

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/realtime"
)

// MembershipSource lists the groups and DMs a user belongs to.
type MembershipSource interface {
	Memberships(ctx context.Context, userID string) ([]domain.Group, []domain.DMChannel, error)
}

// TypingSink accepts typing pings sent upstream over the socket.
type TypingSink interface {
	Typing(ctx context.Context, userID, channelID string) error
}

// Presence records online state while a socket is open.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

type Config struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

type Gateway struct {
	broker      *realtime.Broker
	memberships MembershipSource
	typing      TypingSink
	presence    Presence
	cfg         Config
	log         *zap.Logger
}

func New(broker *realtime.Broker, m MembershipSource, t TypingSink, p Presence, cfg Config, log *zap.Logger) *Gateway {
	return &Gateway{broker: broker, memberships: m, typing: t, presence: p, cfg: cfg, log: log}
}

// Handler upgrades the request and runs the connection until either side
// closes. Auth middleware must have run first.
func (g *Gateway) Handler() fiber.Handler {
	upgrade := websocket.New(func(ws *websocket.Conn) {
		uid, _ := ws.Locals("user_id").(string)
		if uid == "" {
			_ = ws.Close()
			return
		}
		g.serve(ws, uid)
	})
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}
