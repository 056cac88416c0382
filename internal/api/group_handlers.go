package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relaychat/relay/internal/domain"
	"github.com/relaychat/relay/internal/service"
)

type GroupHandler struct {
	groups *service.GroupService
}

func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// POST /groups
func (h *GroupHandler) Create(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return fiber.ErrBadRequest
	}
	g, err := h.groups.CreateGroup(c.Context(), userID(c), body.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

// PATCH /groups/:id
func (h *GroupHandler) Update(c *fiber.Ctx) error {
	var body service.GroupPatch
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	g, err := h.groups.UpdateGroup(c.Context(), userID(c), c.Params("id"), body)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(g)
}

// DELETE /groups/:id
func (h *GroupHandler) Delete(c *fiber.Ctx) error {
	if err := h.groups.DeleteGroup(c.Context(), userID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /groups/:id/leave
func (h *GroupHandler) Leave(c *fiber.Ctx) error {
	if err := h.groups.Leave(c.Context(), userID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DELETE /groups/:id/members/:userID
func (h *GroupHandler) Kick(c *fiber.Ctx) error {
	if err := h.groups.Kick(c.Context(), userID(c), c.Params("id"), c.Params("userID")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /groups/:id/invites
func (h *GroupHandler) CreateInvite(c *fiber.Ctx) error {
	inv, err := h.groups.CreateInvite(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// POST /invites/:code/join
func (h *GroupHandler) Join(c *fiber.Ctx) error {
	g, err := h.groups.JoinByInvite(c.Context(), userID(c), c.Params("code"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(g)
}

// POST /dm
func (h *GroupHandler) OpenDM(c *fiber.Ctx) error {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserID == "" {
		return fiber.ErrBadRequest
	}
	dm, err := h.groups.OpenDM(c.Context(), userID(c), body.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dm)
}

// DELETE /dm/:id
func (h *GroupHandler) CloseDM(c *fiber.Ctx) error {
	if err := h.groups.CloseDM(c.Context(), userID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GET /memberships
func (h *GroupHandler) Memberships(c *fiber.Ctx) error {
	groups, dms, err := h.groups.Memberships(c.Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	if dms == nil {
		dms = []domain.DMChannel{}
	}
	return c.JSON(fiber.Map{"groups": groups, "dms": dms})
}
