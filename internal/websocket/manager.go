package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// EventType определяет тип события WebSocket
type EventType string

const (
	// От клиента
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventPublish     EventType = "publish"

	// От сервера
	EventSubscribed    EventType = "subscribed"
	EventUnsubscribed  EventType = "unsubscribed"
	EventMessage       EventType = "message"
	EventError         EventType = "error"
	EventTradeCreated  EventType = "trade_created"
	EventTradeUpdated  EventType = "trade_updated"
	EventTradeComplete EventType = "trade_completed"
)

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type      EventType       `json:"type"`
	Room      string          `json:"room,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

var (
	ErrForbiddenRoom = errors.New("room access denied")
	ErrUnknownRoom   = errors.New("unknown room")
	ErrNotSubscribed = errors.New("not subscribed to room")
)

// UserRoom - личная комната пользователя для серверных уведомлений
func UserRoom(userID uuid.UUID) string { return "user:" + userID.String() }

// TradeRoom - комната участников обмена
func TradeRoom(tradeID uuid.UUID) string { return "trade:" + tradeID.String() }

// RoomAuthorizer решает, может ли пользователь войти в комнату
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID uuid.UUID, room string) error
}

// TradeLookup - источник обменов для проверки участия
type TradeLookup interface {
	GetByID(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error)
}

// RoomPolicy пускает в user:<id> только владельца, в trade:<id> только участников обмена
type RoomPolicy struct {
	Trades TradeLookup
}

func (p RoomPolicy) CanJoin(ctx context.Context, userID uuid.UUID, room string) error {
	kind, rawID, ok := strings.Cut(room, ":")
	if !ok {
		return ErrUnknownRoom
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return ErrUnknownRoom
	}

	switch kind {
	case "user":
		if id != userID {
			return ErrForbiddenRoom
		}
		return nil
	case "trade":
		if p.Trades == nil {
			return ErrForbiddenRoom
		}
		trade, err := p.Trades.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !trade.IsParticipant(userID) {
			return ErrForbiddenRoom
		}
		return nil
	}
	return ErrUnknownRoom
}

// Manager представляет центральный менеджер для всех WebSocket соединений
type Manager struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID]*Client
	rooms       map[string]map[uuid.UUID]*Client // room -> clientID -> client
	authorizer  RoomAuthorizer
	logger      *zap.SugaredLogger
	authTimeout time.Duration
}

// NewManager создает новый экземпляр Manager
func NewManager(authorizer RoomAuthorizer, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		clients:     make(map[uuid.UUID]*Client),
		rooms:       make(map[string]map[uuid.UUID]*Client),
		authorizer:  authorizer,
		logger:      logger,
		authTimeout: 5 * time.Second,
	}
}

// AddClient регистрирует нового клиента и подписывает его на личную комнату
func (m *Manager) AddClient(client *Client) {
	m.mu.Lock()
	m.clients[client.ID] = client
	m.join(client, UserRoom(client.UserID))
	m.mu.Unlock()

	m.logger.Debugw("WebSocket клиент подключен", "client_id", client.ID, "user_id", client.UserID)
}

// RemoveClient удаляет клиента из всех комнат
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.mu.Lock()
	client, exists := m.clients[clientID]
	if exists {
		delete(m.clients, clientID)
		for room := range client.rooms {
			m.leave(client, room)
		}
	}
	m.mu.Unlock()

	if exists {
		m.logger.Debugw("WebSocket клиент отключен", "client_id", clientID, "user_id", client.UserID)
	}
}

// Subscribe подписывает клиента на комнату после проверки доступа
func (m *Manager) Subscribe(ctx context.Context, client *Client, room string) error {
	if m.authorizer == nil {
		return ErrForbiddenRoom
	}

	ctx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()
	if err := m.authorizer.CanJoin(ctx, client.UserID, room); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return ErrNotSubscribed
	}
	m.join(client, room)
	return nil
}

// Unsubscribe отписывает клиента от комнаты
func (m *Manager) Unsubscribe(client *Client, room string) {
	m.mu.Lock()
	m.leave(client, room)
	m.mu.Unlock()
}

// PublishFrom рассылает событие клиента в комнату, на которую он подписан. Отправитель его не получает.
func (m *Manager) PublishFrom(client *Client, room string, payload json.RawMessage) error {
	m.mu.RLock()
	_, subscribed := client.rooms[room]
	m.mu.RUnlock()
	if !subscribed {
		return ErrNotSubscribed
	}

	m.deliver(room, Event{
		Type:    EventMessage,
		Room:    room,
		UserID:  client.UserID.String(),
		Payload: payload,
	}, client.ID)
	return nil
}

// Publish рассылает серверное событие всем подписчикам комнаты и возвращает число получателей
func (m *Manager) Publish(room string, event Event) int {
	event.Room = room
	return m.deliver(room, event, uuid.Nil)
}

// SendToUser отправляет событие всем соединениям пользователя
func (m *Manager) SendToUser(userID uuid.UUID, event Event) int {
	return m.Publish(UserRoom(userID), event)
}

// PublishJSON сериализует payload и публикует событие типа eventType
func (m *Manager) PublishJSON(room string, eventType EventType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.Errorw("Ошибка сериализации события", "type", eventType, "error", err)
		return
	}
	m.Publish(room, Event{Type: eventType, Payload: raw})
}

func (m *Manager) deliver(room string, event Event, exclude uuid.UUID) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.logger.Errorw("Ошибка сериализации события", "room", room, "error", err)
		return 0
	}

	m.mu.RLock()
	targets := make([]*Client, 0, len(m.rooms[room]))
	for id, c := range m.rooms[room] {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(eventJSON) {
			delivered++
			continue
		}
		// Канал заполнен, клиент слишком медленный - закрываем соединение
		m.logger.Warnw("Очередь клиента переполнена, закрываем соединение", "client_id", c.ID)
		c.close()
		m.RemoveClient(c.ID)
	}
	return delivered
}

// Rooms возвращает комнаты клиента
func (m *Manager) Rooms(client *Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// join и leave вызываются под m.mu
func (m *Manager) join(client *Client, room string) {
	if m.rooms[room] == nil {
		m.rooms[room] = make(map[uuid.UUID]*Client)
	}
	m.rooms[room][client.ID] = client
	client.rooms[room] = struct{}{}
}

func (m *Manager) leave(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := m.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[uuid.UUID]*Client)
	m.rooms = make(map[string]map[uuid.UUID]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}
