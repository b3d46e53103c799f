package api

import "github.com/gofiber/fiber/v3"

// Every endpoint answers the same envelope: {"status": "ok", "data": ...}
// on success and {"status": "error", "error": ...} on failure, so review
// clients can switch on a single field.

// jsonSuccess writes the success envelope around data.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError writes the error envelope with the given HTTP status.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}
