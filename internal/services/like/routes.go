package like

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API лайков
func (s *LikeService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/likes")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Список лайкнутых вещей
	api.Get("/", s.GetLikes)

	api.Post("/", s.AddLike)
	api.Delete("/:item_id", s.RemoveLike)

	// Проверка, лайкнута ли вещь
	api.Get("/:item_id/check", s.CheckLike)
}
