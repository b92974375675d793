package item

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

// ItemStore - хранилище вещей
type ItemStore interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Item, int, error)
	SetStatus(ctx context.Context, itemID uuid.UUID, status string) error
	Delete(ctx context.Context, itemID uuid.UUID) error
}

// Invalidator сбрасывает кэш подборок обменов
type Invalidator interface {
	Invalidate()
}

// RequestImage представляет изображение, загруженное через media API
type RequestImage struct {
	URL        string               `json:"url"`
	PreviewURL string               `json:"preview_url"`
	PublicID   string               `json:"public_id"`
	Metadata   models.ImageMetadata `json:"metadata"`
}

// ItemService представляет сервис для работы с вещами
type ItemService struct {
	items       ItemStore
	invalidator Invalidator
	jwtService  *utils.JWTService
	logger      *zap.SugaredLogger
}

// NewItemService создает новый экземпляр ItemService
func NewItemService(items ItemStore, invalidator Invalidator, jwtService *utils.JWTService, logger *zap.SugaredLogger) *ItemService {
	return &ItemService{
		items:       items,
		invalidator: invalidator,
		jwtService:  jwtService,
		logger:      logger,
	}
}

// CreateItem обрабатывает создание новой вещи
func (s *ItemService) CreateItem(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Category    string         `json:"category"`
		Status      string         `json:"status"`
		Images      []RequestImage `json:"images"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно"})
	}

	if requestData.Status != models.ItemStatusActive {
		requestData.Status = models.ItemStatusDraft // По умолчанию - черновик
	}

	// Активная вещь сразу попадает в подборки, ей нужны категория и фото
	if requestData.Status == models.ItemStatusActive {
		if requestData.Category == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Выберите категорию"})
		}
		if len(requestData.Images) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Добавьте хотя бы одно изображение"})
		}
	}

	item := &models.Item{
		UserID:      userID,
		Name:        requestData.Name,
		Description: requestData.Description,
		Category:    requestData.Category,
		Status:      requestData.Status,
	}
	for _, img := range requestData.Images {
		if img.URL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "У изображения нет URL"})
		}
		item.Images = append(item.Images, models.ItemImage{
			URL:        img.URL,
			PreviewURL: img.PreviewURL,
			PublicID:   img.PublicID,
			Metadata:   img.Metadata,
		})
	}

	if err := s.items.Create(context.Background(), item); err != nil {
		s.logger.Errorw("Ошибка сохранения вещи", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения вещи"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"item":    item,
	})
}

// GetMyItems возвращает список вещей текущего пользователя
func (s *ItemService) GetMyItems(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	status := c.Query("status")
	if status == "all" {
		status = ""
	}
	if status != "" && status != models.ItemStatusTraded && !models.ValidItemStatus(status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый статус"})
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.items.ListByOwner(context.Background(), userID, status, pageSize, offset)
	if err != nil {
		s.logger.Errorw("Ошибка получения вещей", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения вещей"})
	}
	if items == nil {
		items = []models.Item{}
	}

	return c.JSON(fiber.Map{
		"items":  items,
		"total":  total,
		"limit":  pageSize,
		"offset": offset,
	})
}

// GetItem возвращает вещь по ID. Неактивные вещи видит только владелец.
func (s *ItemService) GetItem(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	item, err := s.loadItem(c)
	if err != nil {
		return err
	}

	if !item.Available() && item.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этой вещи"})
	}

	return c.JSON(fiber.Map{
		"item":     item,
		"is_owner": item.UserID == userID,
	})
}

// UpdateItemStatus меняет статус вещи владельцем
func (s *ItemService) UpdateItemStatus(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		Status string `json:"status"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if !models.ValidItemStatus(requestData.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый статус"})
	}

	item, err := s.loadItem(c)
	if err != nil {
		return err
	}
	if item.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к редактированию этой вещи"})
	}
	if item.Status == models.ItemStatusTraded {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Вещь уже обменяна"})
	}

	if err := s.items.SetStatus(context.Background(), item.ID, requestData.Status); err != nil {
		s.logger.Errorw("Ошибка обновления статуса вещи", "item_id", item.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления вещи"})
	}
	s.invalidator.Invalidate()

	return c.JSON(fiber.Map{
		"success": true,
		"item_id": item.ID,
		"status":  requestData.Status,
	})
}

// DeleteItem удаляет вещь
func (s *ItemService) DeleteItem(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	item, err := s.loadItem(c)
	if err != nil {
		return err
	}
	if item.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к удалению этой вещи"})
	}

	err = s.items.Delete(context.Background(), item.ID)
	if errors.Is(err, db.ErrConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Вещь участвует в обменах, снимите её с обмена"})
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Errorw("Ошибка удаления вещи", "item_id", item.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления вещи"})
	}
	s.invalidator.Invalidate()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Вещь удалена",
	})
}

// loadItem читает :id и загружает вещь
func (s *ItemService) loadItem(c fiber.Ctx) (*models.Item, error) {
	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Неверный формат ID вещи")
	}

	item, err := s.items.GetByID(context.Background(), itemID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Вещь не найдена")
		}
		s.logger.Errorw("Ошибка получения вещи", "item_id", itemID, "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Ошибка получения вещи")
	}
	return item, nil
}
