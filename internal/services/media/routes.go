package media

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для работы с медиафайлами
func (s *MediaService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/media")

	// Защищенные маршруты
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/upload-params", s.GenerateUploadParams)
	api.Get("/", s.List)
	api.Post("/", s.Upload)
	api.Delete("/*", s.Remove)
}
