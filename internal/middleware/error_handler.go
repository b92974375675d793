package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
)

// ErrorHandler отвечает на необработанные ошибки в JSON формате { "error": ... }
func ErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
