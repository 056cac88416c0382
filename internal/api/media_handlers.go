package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relaychat/relay/internal/media"
)

type MediaHandler struct {
	store *media.Store
}

func NewMediaHandler(store *media.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

// POST /media/upload-url
func (h *MediaHandler) SignUpload(c *fiber.Ctx) error {
	var body struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}
	if err := c.BodyParser(&body); err != nil || body.Filename == "" {
		return fiber.ErrBadRequest
	}
	if body.ContentType == "" {
		body.ContentType = "application/octet-stream"
	}
	ticket, err := h.store.SignUpload(c.Context(), userID(c), body.Filename, body.ContentType)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ticket)
}

// POST /media/upload, multipart field "file". Images get a thumbnail.
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.ErrBadRequest
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.ErrBadRequest
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uid := userID(c)
	if media.IsImage(fh.Filename) {
		att, err := h.store.UploadImage(c.Context(), uid, fh.Filename, contentType, f)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(att)
	}
	att, err := h.store.UploadFile(c.Context(), uid, fh.Filename, contentType, f)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(att)
}
