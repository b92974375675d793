package trade

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
	"github.com/rajivgeraev/barter-api/internal/websocket"
)

// TradeStore - хранилище предложений обмена
type TradeStore interface {
	Create(ctx context.Context, t *models.Trade) error
	GetByID(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error)
	List(ctx context.Context, userID uuid.UUID, tradeType, status string) ([]models.Trade, error)
	UpdateStatus(ctx context.Context, tradeID uuid.UUID, from, to string) error
	Confirm(ctx context.Context, tradeID, userID uuid.UUID) (*models.Trade, error)
}

// ItemLookup - чтение вещей для проверки предложения
type ItemLookup interface {
	GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error)
}

// Publisher рассылает события в комнаты realtime
type Publisher interface {
	PublishJSON(room string, eventType websocket.EventType, payload any)
}

// Invalidator сбрасывает кэш подборок обменов
type Invalidator interface {
	Invalidate()
}

// TradeService представляет сервис для работы с обменами
type TradeService struct {
	trades      TradeStore
	items       ItemLookup
	publisher   Publisher
	invalidator Invalidator
	jwtService  *utils.JWTService
	logger      *zap.SugaredLogger
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(trades TradeStore, items ItemLookup, publisher Publisher, invalidator Invalidator,
	jwtService *utils.JWTService, logger *zap.SugaredLogger) *TradeService {
	return &TradeService{
		trades:      trades,
		items:       items,
		publisher:   publisher,
		invalidator: invalidator,
		jwtService:  jwtService,
		logger:      logger,
	}
}

// CreateTrade создает новое предложение обмена.
// Подборка могла устареть, поэтому владение и доступность вещей проверяются заново.
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
	proposerID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		OfferedItemID   string `json:"offered_item_id"`
		RequestedItemID string `json:"requested_item_id"`
		CashAmount      int64  `json:"cash_amount"`
		Message         string `json:"message"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.OfferedItemID == "" || requestData.RequestedItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать ID вещей для обмена"})
	}
	offeredID, err := uuid.Parse(requestData.OfferedItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предлагаемой вещи"})
	}
	requestedID, err := uuid.Parse(requestData.RequestedItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID запрашиваемой вещи"})
	}
	if requestData.CashAmount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Доплата не может быть отрицательной"})
	}

	ctx := context.Background()

	offered, err := s.items.GetByID(ctx, offeredID)
	if err != nil {
		return s.itemError(c, err, "Предлагаемая вещь не найдена")
	}
	if offered.UserID != proposerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Вы не можете предложить чужую вещь для обмена"})
	}

	requested, err := s.items.GetByID(ctx, requestedID)
	if err != nil {
		return s.itemError(c, err, "Запрашиваемая вещь не найдена")
	}
	if requested.UserID == proposerID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Вы не можете предложить обмен самому себе"})
	}
	if !offered.Available() || !requested.Available() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Одна из вещей больше не доступна для обмена"})
	}

	trade := &models.Trade{
		ProposerID:      proposerID,
		ReceiverID:      requested.UserID,
		OfferedItemID:   offeredID,
		RequestedItemID: requestedID,
		CashAmount:      requestData.CashAmount,
		Message:         requestData.Message,
	}

	err = s.trades.Create(ctx, trade)
	switch {
	case errors.Is(err, db.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Такое предложение обмена уже существует"})
	case errors.Is(err, models.ErrItemUnavailable), errors.Is(err, models.ErrNotOwner), errors.Is(err, db.ErrNotFound):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Одна из вещей больше не доступна для обмена"})
	case err != nil:
		s.logger.Errorw("Ошибка создания предложения обмена", "proposer_id", proposerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения предложения обмена"})
	}

	s.notify(trade, websocket.EventTradeCreated)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"trade":   trade,
		"message": "Предложение обмена успешно создано",
	})
}

// GetMyTrades возвращает список входящих и исходящих предложений обмена
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	tradeType := c.Query("type", db.TradesAll)
	switch tradeType {
	case db.TradesAll, db.TradesIncoming, db.TradesOutgoing:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый тип обменов"})
	}

	status := c.Query("status", "all")
	switch status {
	case "all":
		status = ""
	case models.TradeStatusPending, models.TradeStatusAccepted, models.TradeStatusRejected, models.TradeStatusCompleted:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый статус"})
	}

	trades, err := s.trades.List(context.Background(), userID, tradeType, status)
	if err != nil {
		s.logger.Errorw("Ошибка запроса предложений обмена", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения предложений обмена"})
	}
	if trades == nil {
		trades = []models.Trade{}
	}

	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetTrade возвращает обмен его участнику
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	trade, err := s.loadTrade(c)
	if err != nil {
		return err
	}
	if !trade.IsParticipant(userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Вы не участник этого обмена"})
	}

	return c.JSON(fiber.Map{"trade": trade})
}

// UpdateTradeStatus принимает или отклоняет предложение. Доступно только получателю.
func (s *TradeService) UpdateTradeStatus(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		Status string `json:"status"` // accepted, rejected
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.Status != models.TradeStatusAccepted && requestData.Status != models.TradeStatusRejected {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый статус предложения обмена"})
	}

	trade, err := s.loadTrade(c)
	if err != nil {
		return err
	}
	if trade.ReceiverID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Только получатель предложения может его принять или отклонить"})
	}
	if !models.CanTransition(trade.Status, requestData.Status) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Нельзя изменить статус предложения, которое уже не находится в ожидании",
		})
	}

	err = s.trades.UpdateStatus(context.Background(), trade.ID, trade.Status, requestData.Status)
	if errors.Is(err, models.ErrInvalidTransition) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Статус предложения уже изменился"})
	}
	if err != nil {
		s.logger.Errorw("Ошибка обновления статуса предложения", "trade_id", trade.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления статуса предложения"})
	}
	trade.Status = requestData.Status

	s.notify(trade, websocket.EventTradeUpdated)

	message := "Предложение обмена отклонено"
	if trade.Status == models.TradeStatusAccepted {
		message = "Предложение обмена принято"
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  message,
		"trade_id": trade.ID,
		"status":   trade.Status,
	})
}

// ConfirmTrade фиксирует подтверждение участника. После второго подтверждения обмен завершается.
func (s *TradeService) ConfirmTrade(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения обмена"})
	}

	trade, err := s.trades.Confirm(context.Background(), tradeID, userID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Предложение обмена не найдено"})
	case errors.Is(err, models.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Вы не участник этого обмена"})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Подтвердить можно только принятый обмен"})
	case errors.Is(err, models.ErrItemUnavailable), errors.Is(err, models.ErrNotOwner):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Одна из вещей больше не доступна для обмена"})
	case err != nil:
		s.logger.Errorw("Ошибка подтверждения обмена", "trade_id", tradeID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка подтверждения обмена"})
	}

	if trade.Status == models.TradeStatusCompleted {
		// вещи ушли из обмена, подборки с ними устарели
		s.invalidator.Invalidate()
		s.notify(trade, websocket.EventTradeComplete)
	} else {
		s.notify(trade, websocket.EventTradeUpdated)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"trade":   trade,
	})
}

// notify отправляет событие обоим участникам и в комнату обмена
func (s *TradeService) notify(trade *models.Trade, eventType websocket.EventType) {
	s.publisher.PublishJSON(websocket.UserRoom(trade.ProposerID), eventType, trade)
	s.publisher.PublishJSON(websocket.UserRoom(trade.ReceiverID), eventType, trade)
	s.publisher.PublishJSON(websocket.TradeRoom(trade.ID), eventType, trade)
}

func (s *TradeService) loadTrade(c fiber.Ctx) (*models.Trade, error) {
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Неверный формат ID предложения обмена")
	}

	trade, err := s.trades.GetByID(context.Background(), tradeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Предложение обмена не найдено")
		}
		s.logger.Errorw("Ошибка запроса предложения обмена", "trade_id", tradeID, "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Ошибка получения предложения обмена")
	}
	return trade, nil
}

func (s *TradeService) itemError(c fiber.Ctx, err error, notFoundMsg string) error {
	if errors.Is(err, db.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFoundMsg})
	}
	s.logger.Errorw("Ошибка проверки вещи", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки вещи"})
}
