package httpserver

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/pkg/utils"
	"go.uber.org/zap"
)

func StatusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.Validation:
		return fiber.StatusBadRequest
	case faults.NotFound:
		return fiber.StatusNotFound
	case faults.Conflict, faults.InvalidStatus:
		return fiber.StatusConflict
	case faults.InsufficientResource:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// WriteError renders err with the status of its fault kind. Infrastructure
// faults are logged and hidden from the caller.
func WriteError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status := StatusFor(err)
	if status == fiber.StatusInternalServerError {
		mylogger.Error(c.UserContext(), logger, "Request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)

		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  faults.KindOf(err).String(),
	})
}

// RequestError is a rejected request body, rendered as 400 with per-field
// messages.
type RequestError struct {
	Fields map[string]string
}

func (e *RequestError) Error() string { return "invalid request body" }

// BindJSON parses the body into dst and validates it.
func BindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "error parsing body")
	}

	if err := utils.Validate.Struct(dst); err != nil {
		return &RequestError{Fields: utils.FormatValidationError(err)}
	}

	return nil
}
