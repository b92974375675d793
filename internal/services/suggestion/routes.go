package suggestion

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты подборки обменов
func (s *SuggestionService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/suggestions")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/", s.GetSuggestions)
}
