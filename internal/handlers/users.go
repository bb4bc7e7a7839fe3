package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pickings/internal/models"
	"pickings/internal/services"
)

// UserHandler serves the user registry.
type UserHandler struct {
	users *services.UserRegistry
}

// NewUserHandler creates a user handler.
func NewUserHandler(users *services.UserRegistry) *UserHandler {
	return &UserHandler{users: users}
}

type userRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Session handles POST /api/session. Selecting a registered name is the
// whole login; the server keeps no session.
func (h *UserHandler) Session(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	user, err := h.users.Login(c.UserContext(), req.Username)
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Bienvenido, "+user.Username, user)
}

// List handles GET /api/users
func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.users.List(c.UserContext())
	if err != nil {
		return sendError(c, err, []models.User{})
	}
	return SendOK(c, fiber.StatusOK, "", users)
}

// Create handles POST /api/users
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	user, err := h.users.Add(c.UserContext(), req.Username, req.Role)
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusCreated, "Usuario "+user.Username+" creado.", user)
}

// Delete handles DELETE /api/users/:username
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	name := c.Params("username")
	if err := h.users.Delete(c.UserContext(), name); err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Usuario "+name+" eliminado.", nil)
}
