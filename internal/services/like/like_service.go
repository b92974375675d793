package like

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

const pageSize = 20

// LikeStore - хранилище лайков
type LikeStore interface {
	Add(ctx context.Context, userID, itemID uuid.UUID) (*models.Like, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Exists(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Like, int, error)
}

// Invalidator сбрасывает кэш подборок обменов
type Invalidator interface {
	Invalidate()
}

// LikeService представляет сервис для лайков вещей
type LikeService struct {
	likes       LikeStore
	invalidator Invalidator
	jwtService  *utils.JWTService
	logger      *zap.SugaredLogger
}

// NewLikeService создает новый экземпляр LikeService
func NewLikeService(likes LikeStore, invalidator Invalidator, jwtService *utils.JWTService, logger *zap.SugaredLogger) *LikeService {
	return &LikeService{
		likes:       likes,
		invalidator: invalidator,
		jwtService:  jwtService,
		logger:      logger,
	}
}

// AddLike добавляет лайк на чужую активную вещь
func (s *LikeService) AddLike(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		ItemID string `json:"item_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.ItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID вещи не указан"})
	}
	itemID, err := uuid.Parse(requestData.ItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID вещи"})
	}

	like, err := s.likes.Add(context.Background(), userID, itemID)
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, models.ErrItemUnavailable):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Вещь не найдена или не активна"})
	case errors.Is(err, models.ErrOwnLike):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нельзя лайкнуть свою вещь"})
	case errors.Is(err, db.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Вещь уже лайкнута"})
	case err != nil:
		s.logger.Errorw("Ошибка добавления лайка", "user_id", userID, "item_id", itemID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка добавления лайка"})
	}
	s.invalidator.Invalidate()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"like":    like,
	})
}

// RemoveLike удаляет лайк
func (s *LikeService) RemoveLike(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	itemID, err := uuid.Parse(c.Params("item_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID вещи"})
	}

	err = s.likes.Remove(context.Background(), userID, itemID)
	if errors.Is(err, db.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Лайк не найден"})
	}
	if err != nil {
		s.logger.Errorw("Ошибка удаления лайка", "user_id", userID, "item_id", itemID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления лайка"})
	}
	s.invalidator.Invalidate()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Лайк удалён",
	})
}

// GetLikes возвращает лайкнутые вещи, новые первыми
func (s *LikeService) GetLikes(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	likes, total, err := s.likes.ListByUser(context.Background(), userID, pageSize, offset)
	if err != nil {
		s.logger.Errorw("Ошибка получения лайков", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения лайков"})
	}
	if likes == nil {
		likes = []models.Like{}
	}

	return c.JSON(fiber.Map{
		"likes":  likes,
		"total":  total,
		"limit":  pageSize,
		"offset": offset,
	})
}

// CheckLike проверяет, лайкнул ли пользователь вещь
func (s *LikeService) CheckLike(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	itemID, err := uuid.Parse(c.Params("item_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID вещи"})
	}

	liked, err := s.likes.Exists(context.Background(), userID, itemID)
	if err != nil {
		s.logger.Errorw("Ошибка проверки лайка", "user_id", userID, "item_id", itemID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки лайка"})
	}

	return c.JSON(fiber.Map{
		"liked": liked,
	})
}
