package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOwnLike - владелец не может лайкнуть свою вещь
	ErrOwnLike = errors.New("owner cannot like own item")
	// ErrItemUnavailable - вещь не активна и не участвует в обменах
	ErrItemUnavailable = errors.New("item is not available")
)

// Like фиксирует интерес пользователя к чужой вещи.
// Владелец не может лайкнуть собственную вещь.
type Like struct {
	UserID    uuid.UUID `json:"user_id"`
	ItemID    uuid.UUID `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`

	Item *Item `json:"item,omitempty"`
}

// LikedItem - доступная вещь вместе с моментом, когда её лайкнули
type LikedItem struct {
	Item    Item
	LikedAt time.Time
}
