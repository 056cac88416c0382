package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type sendMessageRequest struct {
	Content    string             `json:"content"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	ReplyTo    *int64             `json:"reply_to,omitempty"`
	Nonce      *int64             `json:"nonce,omitempty"`
}

// POST /channels/:id/messages
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var body sendMessageRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	msg, err := h.chat.Send(c.Context(), userID(c), service.SendInput{
		ChannelID:  c.Params("id"),
		Content:    body.Content,
		Attachment: body.Attachment,
		ReplyTo:    body.ReplyTo,
		Nonce:      body.Nonce,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// PATCH /channels/:id/messages/:msgID
func (h *ChatHandler) Edit(c *fiber.Ctx) error {
	msgID, err := strconv.ParseInt(c.Params("msgID"), 10, 64)
	if err != nil {
		return fiber.ErrBadRequest
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	if err := h.chat.Edit(c.Context(), userID(c), c.Params("id"), msgID, body.Content); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DELETE /channels/:id/messages/:msgID
func (h *ChatHandler) Delete(c *fiber.Ctx) error {
	msgID, err := strconv.ParseInt(c.Params("msgID"), 10, 64)
	if err != nil {
		return fiber.ErrBadRequest
	}
	if err := h.chat.Delete(c.Context(), userID(c), c.Params("id"), msgID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GET /channels/:id/messages?count=50&before=...&after=...
func (h *ChatHandler) History(c *fiber.Ctx) error {
	count := c.QueryInt("count", 50)
	after, err := queryTime(c, "after")
	if err != nil {
		return fiber.ErrBadRequest
	}
	before, err := queryTime(c, "before")
	if err != nil {
		return fiber.ErrBadRequest
	}
	msgs, err := h.chat.History(c.Context(), userID(c), c.Params("id"), count, after, before)
	if err != nil {
		return fail(c, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(msgs)
}

// POST /channels/:id/typing
func (h *ChatHandler) Typing(c *fiber.Ctx) error {
	if err := h.chat.Typing(c.Context(), userID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /channels/:id/read
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.chat.MarkRead(c.Context(), userID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
