package suggestion

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/matcher"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

const (
	cappedHeader = "X-Suggestions-Capped"
	retryAfter   = "5"
)

// SuggestionService отдаёт подборку трёхсторонних обменов
type SuggestionService struct {
	suggester  matcher.Suggester
	jwtService *utils.JWTService
	logger     *zap.SugaredLogger
}

// NewSuggestionService создает новый экземпляр SuggestionService
func NewSuggestionService(suggester matcher.Suggester, jwtService *utils.JWTService, logger *zap.SugaredLogger) *SuggestionService {
	return &SuggestionService{
		suggester:  suggester,
		jwtService: jwtService,
		logger:     logger,
	}
}

// GetSuggestions возвращает циклы обмена, где вызывающий - пользователь A.
// Пустой массив - нормальный ответ.
func (s *SuggestionService) GetSuggestions(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// контекст запроса: при остановке сервера поиск прерывается
	res, err := s.suggester.FindSuggestedTrades(c.Context(), userID)
	switch {
	case errors.Is(err, matcher.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не найден"})
	case errors.Is(err, matcher.ErrDataUnavailable):
		s.logger.Warnw("Подбор обменов недоступен", "user_id", userID, "error", err)
		c.Set(fiber.HeaderRetryAfter, retryAfter)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Данные временно недоступны, повторите позже"})
	case err != nil:
		s.logger.Errorw("Ошибка подбора обменов", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка подбора обменов"})
	}

	suggestions := res.Suggestions
	if suggestions == nil {
		suggestions = []models.SuggestedTrade{}
	}
	if res.Capped {
		c.Set(cappedHeader, "true")
	}

	return c.JSON(suggestions)
}
