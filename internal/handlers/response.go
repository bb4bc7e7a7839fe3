package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pickings/internal/apperrors"
	"pickings/internal/logging"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(err error) int {
	switch apperrors.Kind(err) {
	case apperrors.ErrNotFound:
		return fiber.StatusNotFound
	case apperrors.ErrDuplicateScan, apperrors.ErrAlreadyExists:
		return fiber.StatusConflict
	case apperrors.ErrInvalidFormat:
		return fiber.StatusUnprocessableEntity
	case apperrors.ErrProtected:
		return fiber.StatusForbidden
	case apperrors.ErrQuotaExceeded, apperrors.ErrStoreUnavailable:
		return fiber.StatusServiceUnavailable
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// SendOK writes a successful envelope.
func SendOK(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data})
}

// SendError writes the failure envelope for err. Unclassified errors are
// logged and answered with a generic message.
func SendError(c *fiber.Ctx, err error) error {
	return sendError(c, err, nil)
}

// sendError is SendError with a fallback payload, for reads that degrade to
// an empty result.
func sendError(c *fiber.Ctx, err error, data interface{}) error {
	status := StatusFor(err)
	message := apperrors.Message(err)

	var fe *fiber.Error
	switch {
	case apperrors.Kind(err) != nil:
	case errors.As(err, &fe):
		message = fe.Message
	default:
		logging.WithContext(c.UserContext()).Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		message = "Internal server error"
	}
	return c.Status(status).JSON(Envelope{Success: false, Message: message, Data: data})
}

// ErrorHandler is the fiber.Config error handler: errors returned by
// handlers and routing failures leave in the envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return SendError(c, err)
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}
