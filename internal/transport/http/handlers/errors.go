package handlers

import (
	"context"
	"errors"

	"github.com/cklxx/NanoBee/internal/core/services"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
	"github.com/cklxx/NanoBee/internal/progress"
	"github.com/cklxx/NanoBee/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps service and harness errors onto HTTP statuses. Anything
// unrecognised came from the harness or the network and is a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTaskNotFound), errors.Is(err, services.ErrProjectNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrTaskInvalidInput),
		errors.Is(err, services.ErrProjectInvalidInput),
		errors.Is(err, progress.ErrEmptyTaskID):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrStagePrerequisite):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrTaskUnavailable),
		errors.Is(err, services.ErrProjectStoreClosed),
		errors.Is(err, services.ErrHubClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, services.ErrKVCorrupt):
		return fiber.StatusInternalServerError
	}
	var se *harness.StatusError
	if errors.As(err, &se) && se.StatusCode == fiber.StatusNotFound {
		return fiber.StatusNotFound
	}
	return fiber.StatusBadGateway
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string, details ...string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, Details: details})
}
