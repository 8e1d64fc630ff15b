package api

import (
	"errors"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps a task error kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return fiber.StatusBadRequest
	case domain.ErrForbidden:
		return fiber.StatusForbidden
	case domain.ErrNotFound:
		return fiber.StatusNotFound
	case domain.ErrConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes a task error. Server errors are logged and answered
// with the generic message only.
func (h *Handlers) respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error("Task request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err)
	}
	return c.Status(status).JSON(MessageResponse{Message: domain.MessageOf(err)})
}

// errorHandler handles errors returned through Fiber, including panics
// recovered by the recover middleware.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(MessageResponse{Message: fe.Message})
	}

	m.logger.Error("HTTP error",
		"method", c.Method(),
		"path", c.Path(),
		"error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(MessageResponse{Message: msgInternalError})
}
