package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/metrics"
	"github.com/relaychat/relay/internal/realtime"
)

// Frame is one realtime event as delivered downstream.
type Frame struct {
	Channel  string             `json:"channel"`
	Name     realtime.EventName `json:"name"`
	Data     realtime.Event     `json:"data"`
	ClientID string             `json:"client_id,omitempty"`
}

type clientFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
}

type conn struct {
	g    *Gateway
	ws   *websocket.Conn
	uid  string
	send chan []byte
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	chatSubs   map[string]*realtime.Subscription
	groupSubs  map[string]*realtime.Subscription
	privateSub *realtime.Subscription
}

func (g *Gateway) serve(ws *websocket.Conn, uid string) {
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	c := &conn{
		g:         g,
		ws:        ws,
		uid:       uid,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		chatSubs:  make(map[string]*realtime.Subscription),
		groupSubs: make(map[string]*realtime.Subscription),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if g.presence != nil {
		if err := g.presence.SetOnline(ctx, uid); err != nil {
			g.log.Warn("presence online", zap.String("user", uid), zap.Error(err))
		}
	}
	cancel()

	c.privateSub = g.broker.Private().Subscribe(realtime.SubscribeOptions{Enabled: true}, c.onPrivate, uid)
	if err := c.resync(); err != nil {
		g.log.Error("membership load", zap.String("user", uid), zap.Error(err))
		c.close()
		return
	}

	go c.writePump()
	c.readPump()
	c.close()

	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.presence.SetOffline(ctx, uid); err != nil {
			g.log.Warn("presence offline", zap.String("user", uid), zap.Error(err))
		}
	}
}

// resync diffs the wanted subscription set against what the connection holds.
// Existing subscriptions survive, so no event is delivered twice across a
// membership change.
func (c *conn) resync() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	groups, dms, err := c.g.memberships.Memberships(ctx, c.uid)
	if err != nil {
		return err
	}

	wantChat := make(map[string]bool)
	wantGroup := make(map[string]bool)
	for _, g := range groups {
		wantChat[g.ChannelID] = true
		wantGroup[g.ID] = true
	}
	for _, dm := range dms {
		wantChat[dm.ID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.chatSubs {
		if !wantChat[id] {
			sub.Close()
			delete(c.chatSubs, id)
		}
	}
	for id, sub := range c.groupSubs {
		if !wantGroup[id] {
			sub.Close()
			delete(c.groupSubs, id)
		}
	}
	opts := realtime.SubscribeOptions{Enabled: true}
	for id := range wantChat {
		if _, ok := c.chatSubs[id]; !ok {
			c.chatSubs[id] = c.g.broker.Chat().Subscribe(opts, c.forward, id)
		}
	}
	for id := range wantGroup {
		if _, ok := c.groupSubs[id]; !ok {
			c.groupSubs[id] = c.g.broker.Group().Subscribe(opts, c.onGroup, id)
		}
	}
	return nil
}

func (c *conn) forward(ev realtime.Event, meta realtime.Meta) {
	b, err := json.Marshal(Frame{
		Channel:  meta.Address,
		Name:     ev.Name(),
		Data:     ev,
		ClientID: meta.ClientID,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
		// slow consumer, shed the frame rather than block the broker
		c.g.log.Warn("ws send buffer full", zap.String("user", c.uid))
	}
}

func (c *conn) onPrivate(ev realtime.Event, meta realtime.Meta) {
	c.forward(ev, meta)
	switch ev.Name() {
	case realtime.EventGroupCreated, realtime.EventGroupRemoved,
		realtime.EventOpenDM, realtime.EventCloseDM:
		if err := c.resync(); err != nil {
			c.g.log.Warn("resync", zap.String("user", c.uid), zap.Error(err))
		}
	}
}

func (c *conn) onGroup(ev realtime.Event, meta realtime.Meta) {
	c.forward(ev, meta)
	if ev.Name() == realtime.EventGroupDeleted {
		if err := c.resync(); err != nil {
			c.g.log.Warn("resync", zap.String("user", c.uid), zap.Error(err))
		}
	}
}

func (c *conn) readPump() {
	cfg := c.g.cfg
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	readWait := cfg.PingInterval * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "typing" && frame.ChannelID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.g.typing.Typing(ctx, c.uid, frame.ChannelID); err != nil {
				c.g.log.Debug("typing rejected", zap.String("user", c.uid), zap.Error(err))
			}
			cancel()
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.g.cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.g.cfg.WriteDeadline))
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
			if c.g.presence != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = c.g.presence.SetOnline(ctx, c.uid)
				cancel()
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.privateSub != nil {
			c.privateSub.Close()
		}
		for _, sub := range c.chatSubs {
			sub.Close()
		}
		for _, sub := range c.groupSubs {
			sub.Close()
		}
		c.chatSubs = map[string]*realtime.Subscription{}
		c.groupSubs = map[string]*realtime.Subscription{}
	})
}
