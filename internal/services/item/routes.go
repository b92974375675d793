package item

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API вещей
func (s *ItemService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/items")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateItem)
	api.Get("/my", s.GetMyItems)
	api.Get("/:id", s.GetItem)
	api.Put("/:id/status", s.UpdateItemStatus)
	api.Delete("/:id", s.DeleteItem)
}
