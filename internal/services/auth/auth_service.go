package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	initdata "github.com/telegram-mini-apps/init-data-golang"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// initDataTTL - сколько живут подписанные Telegram данные
const initDataTTL = 24 * time.Hour

// UserStore - хранилище пользователей
type UserStore interface {
	CreateOrUpdateTelegramUser(ctx context.Context, p db.TelegramProfile) (*models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// AuthService – структура для обработки авторизации
type AuthService struct {
	botToken   string
	jwtService *utils.JWTService
	users      UserStore
	logger     *zap.SugaredLogger
}

// NewAuthService – конструктор AuthService
func NewAuthService(botToken string, jwtService *utils.JWTService, users UserStore, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{
		botToken:   botToken,
		jwtService: jwtService,
		users:      users,
		logger:     logger,
	}
}

// TelegramAuthHandler проверяет initData, создаёт или обновляет пользователя и возвращает JWT
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}

	if err := c.Bind().Body(&payload); err != nil || payload.InitData == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	if err := initdata.Validate(payload.InitData, s.botToken, initDataTTL); err != nil {
		s.logger.Debugw("Невалидные данные Telegram", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Telegram data"})
	}

	data, err := initdata.Parse(payload.InitData)
	if err != nil || data.User.ID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to parse initData"})
	}

	rawUser, _ := json.Marshal(data.User)
	user, err := s.users.CreateOrUpdateTelegramUser(context.Background(), db.TelegramProfile{
		TelegramID:   data.User.ID,
		Username:     data.User.Username,
		FirstName:    data.User.FirstName,
		LastName:     data.User.LastName,
		PhotoURL:     data.User.PhotoURL,
		IsPremium:    data.User.IsPremium,
		LanguageCode: data.User.LanguageCode,
		RawData:      rawUser,
	})
	if err != nil {
		s.logger.Errorw("Ошибка сохранения пользователя Telegram", "telegram_id", data.User.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save user"})
	}

	// В токене UUID пользователя, а не Telegram ID
	jwtToken, err := s.jwtService.GenerateToken(user.ID)
	if err != nil {
		s.logger.Errorw("Ошибка генерации JWT", "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate JWT"})
	}

	return c.JSON(fiber.Map{
		"token": jwtToken,
		"user":  user,
	})
}

// ProfileHandler возвращает профиль текущего пользователя
func (s *AuthService) ProfileHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	user, err := s.users.GetUserByID(context.Background(), userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Пользователь не найден"})
		}
		s.logger.Errorw("Ошибка получения профиля", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения профиля"})
	}

	return c.JSON(fiber.Map{
		"user":         user,
		"display_name": user.DisplayName(),
	})
}
