package apperr

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders handler errors as {success: false, error, kind}.
// Errors outside the taxonomy answer 500 without leaking their text.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"error":   fe.Message,
		})
	}

	var ae *Error
	if errors.As(err, &ae) {
		return c.Status(HTTPStatus(ae.Kind)).JSON(fiber.Map{
			"success": false,
			"error":   ae.Error(),
			"kind":    ae.Kind,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "unexpected server error",
	})
}

// QueryID reads an optional numeric id filter. Missing or empty is 0;
// anything else that is not a positive integer is a validation error.
func QueryID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, Validation("invalid %s %q", name, raw)
	}
	return uint(id), nil
}
