package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/metrics"
)

type Server struct {
	app *fiber.App
	log *zap.Logger
}

// Deps bundles everything the HTTP surface needs. WS, when non-nil, is
// mounted at GET /ws behind auth.
type Deps struct {
	Verifier *Verifier
	Chat     *ChatHandler
	Groups   *GroupHandler
	Users    *UserHandler
	Media    *MediaHandler
	WS       fiber.Handler
}

func NewServer(log *zap.Logger, d Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	auth := Auth(d.Verifier)

	if d.WS != nil {
		app.Get("/ws", auth, d.WS)
	}

	v1 := app.Group("/v1", auth)

	v1.Get("/users/me", d.Users.Me)
	v1.Put("/users/me", d.Users.UpdateMe)

	v1.Get("/memberships", d.Groups.Memberships)

	v1.Post("/channels/:id/messages", d.Chat.Send)
	v1.Get("/channels/:id/messages", d.Chat.History)
	v1.Patch("/channels/:id/messages/:msgID", d.Chat.Edit)
	v1.Delete("/channels/:id/messages/:msgID", d.Chat.Delete)
	v1.Post("/channels/:id/typing", d.Chat.Typing)
	v1.Post("/channels/:id/read", d.Chat.MarkRead)

	v1.Post("/groups", d.Groups.Create)
	v1.Patch("/groups/:id", d.Groups.Update)
	v1.Delete("/groups/:id", d.Groups.Delete)
	v1.Post("/groups/:id/leave", d.Groups.Leave)
	v1.Delete("/groups/:id/members/:userID", d.Groups.Kick)
	v1.Post("/groups/:id/invites", d.Groups.CreateInvite)
	v1.Post("/invites/:code/join", d.Groups.Join)

	v1.Post("/dm", d.Groups.OpenDM)
	v1.Delete("/dm/:id", d.Groups.CloseDM)

	if d.Media != nil {
		v1.Post("/media/upload-url", d.Media.SignUpload)
		v1.Post("/media/upload", d.Media.Upload)
	}

	return &Server{app: app, log: log}
}

func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info("http",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("took", time.Since(start)))
		return err
	}
}
