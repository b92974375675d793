package media

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

const (
	maxUploadSize = 10 << 20
	listLimit     = 100
	uploadTimeout = 30 * time.Second
)

// MediaService загружает и удаляет изображения вещей
type MediaService struct {
	cfg        config.CloudinaryConfig
	storage    Storage
	jwtService *utils.JWTService
	logger     *zap.SugaredLogger
}

// NewMediaService создает новый экземпляр MediaService
func NewMediaService(cfg config.CloudinaryConfig, storage Storage, jwtService *utils.JWTService, logger *zap.SugaredLogger) *MediaService {
	return &MediaService{
		cfg:        cfg,
		storage:    storage,
		jwtService: jwtService,
		logger:     logger,
	}
}

// userFolder - папка пользователя в хранилище, все его файлы лежат внутри
func (s *MediaService) userFolder(userID uuid.UUID) string {
	return s.cfg.UploadFolder + "/" + userID.String()
}

// GenerateUploadParams создаёт подписанные параметры для загрузки напрямую из клиента
func (s *MediaService) GenerateUploadParams(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	folder := s.userFolder(userID)
	publicID := uuid.New().String()

	params := url.Values{}
	params.Set("timestamp", timestamp)
	params.Set("folder", folder)
	params.Set("public_id", publicID)
	if s.cfg.UploadPreset != "" {
		params.Set("upload_preset", s.cfg.UploadPreset)
	}

	signature, err := api.SignParameters(params, s.cfg.APISecret)
	if err != nil {
		s.logger.Errorw("Ошибка подписи параметров загрузки", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка генерации параметров загрузки"})
	}

	return c.JSON(fiber.Map{
		"timestamp":     timestamp,
		"folder":        folder,
		"public_id":     publicID,
		"upload_preset": s.cfg.UploadPreset,
		"signature":     signature,
		"api_key":       s.cfg.APIKey,
		"cloud_name":    s.cfg.CloudName,
	})
}

// Upload принимает изображение multipart-формой и кладёт его в папку пользователя
func (s *MediaService) Upload(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Файл не передан"})
	}
	if fh.Size > maxUploadSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "Файл слишком большой"})
	}
	if !strings.HasPrefix(fh.Header.Get(fiber.HeaderContentType), "image/") {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "Можно загружать только изображения"})
	}

	file, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Не удалось прочитать файл"})
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	asset, err := s.storage.Upload(ctx, file, s.userFolder(userID), uuid.New().String())
	if err != nil {
		s.logger.Errorw("Ошибка загрузки файла", "user_id", userID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Ошибка загрузки файла"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"asset":   asset,
	})
}

// List возвращает файлы пользователя
func (s *MediaService) List(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	assets, err := s.storage.List(context.Background(), s.userFolder(userID)+"/", listLimit)
	if err != nil {
		s.logger.Errorw("Ошибка получения списка файлов", "user_id", userID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Ошибка получения списка файлов"})
	}
	if assets == nil {
		assets = []Asset{}
	}

	return c.JSON(fiber.Map{
		"assets": assets,
		"count":  len(assets),
	})
}

// Remove удаляет файл. Удалять можно только из своей папки.
func (s *MediaService) Remove(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	publicID, err := url.PathUnescape(c.Params("*"))
	if err != nil || publicID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Не указан файл"})
	}
	if !strings.HasPrefix(publicID, s.userFolder(userID)+"/") || strings.Contains(publicID, "..") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Нельзя удалить чужой файл"})
	}

	removed, err := s.storage.Remove(context.Background(), publicID)
	if err != nil {
		s.logger.Errorw("Ошибка удаления файла", "public_id", publicID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Ошибка удаления файла"})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Файл не найден"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Файл удалён",
	})
}
