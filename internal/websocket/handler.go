package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/rajivgeraev/barter-api/internal/utils"
)

// Handler принимает WebSocket соединения. Токен передаётся в ?token= или в Authorization.
type Handler struct {
	manager    *Manager
	jwtService *utils.JWTService
	upgrader   websocket.Upgrader
}

func NewHandler(manager *Manager, jwtService *utils.JWTService) *Handler {
	return &Handler{
		manager:    manager,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mini App открывается с домена Telegram, доступ проверяется по токену
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID, err := h.jwtService.ExtractUserID(token)
	if err != nil {
		http.Error(w, `{"error":"Invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.manager.logger.Warnw("Ошибка установки WebSocket соединения", "error", err)
		return
	}

	NewClient(userID, conn, h.manager).Start()
}
