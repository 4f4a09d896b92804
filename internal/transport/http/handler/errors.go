package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/onstechno/storefront/internal/service"
)

// statusFromError maps service-level failures to HTTP status codes: business
// rule violations are 400, missing resources 404, authorization failures 403,
// uniqueness conflicts 409.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrSlugTaken):
		return fiber.StatusConflict
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOrderNotCancellable),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrMissingCustomer):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := statusFromError(err)

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
