package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pickings/internal/services"
)

// DetailHandler serves the detail ledger.
type DetailHandler struct {
	details *services.DetailLedger
}

// NewDetailHandler creates a detail handler.
func NewDetailHandler(details *services.DetailLedger) *DetailHandler {
	return &DetailHandler{details: details}
}

// Counts handles GET /api/details/counts
func (h *DetailHandler) Counts(c *fiber.Ctx) error {
	counts, err := h.details.CountByFolio(c.UserContext())
	if err != nil {
		return sendError(c, err, map[string]int{})
	}
	return SendOK(c, fiber.StatusOK, "", counts)
}

// Register handles POST /api/details
func (h *DetailHandler) Register(c *fiber.Ctx) error {
	var req services.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	detail, err := h.details.Register(c.UserContext(), req)
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusCreated, "Registrado en folio "+detail.ParentFolio, detail)
}

type itemStatusRequest struct {
	QRData string `json:"qr_data"`
	Status string `json:"status"`
}

// UpdateStatus handles PUT /api/details/status
func (h *DetailHandler) UpdateStatus(c *fiber.Ctx) error {
	var req itemStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if err := h.details.UpdateItemStatus(c.UserContext(), req.QRData, req.Status); err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Estatus actualizado a "+req.Status, nil)
}

// Delete handles DELETE /api/details?qr_data=
func (h *DetailHandler) Delete(c *fiber.Ctx) error {
	qr := c.Query("qr_data")
	if qr == "" {
		return badRequest("qr_data is required")
	}
	if err := h.details.Delete(c.UserContext(), qr); err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Registro eliminado.", nil)
}
