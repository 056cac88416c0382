package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/repository"
)

type UserHandler struct {
	users *repository.UserRepo
}

func NewUserHandler(users *repository.UserRepo) *UserHandler {
	return &UserHandler{users: users}
}

// GET /users/me
func (h *UserHandler) Me(c *fiber.Ctx) error {
	p, err := h.users.Profile(c.Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

// PUT /users/me
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var body struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return fiber.ErrBadRequest
	}
	p := &domain.Profile{ID: userID(c), Name: body.Name, Image: body.Image}
	if err := h.users.UpdateProfile(c.Context(), p); err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}
