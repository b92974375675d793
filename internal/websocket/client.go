package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	// Максимальный размер сообщения от клиента
	maxMessageSize = 64 * 1024

	// Размер буфера для отправляемых сообщений
	writeBufferSize = 256
)

// Client представляет собой отдельное WebSocket соединение
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn      *websocket.Conn
	send      chan []byte // Буферизованный канал исходящих сообщений
	manager   *Manager
	rooms     map[string]struct{} // защищено manager.mu
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewClient создает новый экземпляр Client
func NewClient(userID uuid.UUID, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, writeBufferSize),
		manager:   manager,
		rooms:     make(map[string]struct{}),
		closeChan: make(chan struct{}),
	}
}

// Start запускает клиентские горутины для чтения и записи
func (c *Client) Start() {
	c.manager.AddClient(c)

	go c.readPump()
	go c.writePump()
}

func (c *Client) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warnw("Неожиданное закрытие соединения", "client_id", c.ID, "error", err)
			}
			return
		}

		c.handleIncomingMessage(message)
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.logger.Debugw("Ошибка записи в WebSocket", "client_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		}
	}
}

// handleIncomingMessage обрабатывает команды клиента
func (c *Client) handleIncomingMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.reply(Event{Type: EventError, Error: "invalid message"})
		return
	}
	if event.Room == "" {
		c.reply(Event{Type: EventError, Error: "room is required"})
		return
	}

	switch event.Type {
	case EventSubscribe:
		if err := c.manager.Subscribe(context.Background(), c, event.Room); err != nil {
			c.manager.logger.Debugw("Отказ в подписке", "user_id", c.UserID, "room", event.Room, "error", err)
			c.reply(Event{Type: EventError, Room: event.Room, Error: ErrForbiddenRoom.Error()})
			return
		}
		c.reply(Event{Type: EventSubscribed, Room: event.Room})

	case EventUnsubscribe:
		c.manager.Unsubscribe(c, event.Room)
		c.reply(Event{Type: EventUnsubscribed, Room: event.Room})

	case EventPublish:
		if err := c.manager.PublishFrom(c, event.Room, event.Payload); err != nil {
			c.reply(Event{Type: EventError, Room: event.Room, Error: err.Error()})
		}

	default:
		c.reply(Event{Type: EventError, Error: "unknown event type"})
	}
}

func (c *Client) reply(event Event) {
	event.Timestamp = time.Now()
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.enqueue(raw)
}
