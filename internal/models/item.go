package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы вещи
const (
	ItemStatusActive  = "active"
	ItemStatusDraft   = "draft"
	ItemStatusTraded  = "traded"
	ItemStatusRemoved = "removed"
)

// Item представляет вещь, выставленную пользователем на обмен
type Item struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category"`
	Status      string      `json:"status"`
	Images      []ItemImage `json:"images,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Главное изображение, заполняется в выборках для подбора обменов
	ImageURL      string `json:"image_url,omitempty"`
	ImagePublicID string `json:"-"`
}

// Available сообщает, можно ли сейчас отдать вещь в обмен
func (i Item) Available() bool {
	return i.Status == ItemStatusActive
}

// ItemImage представляет изображение вещи
type ItemImage struct {
	ID         uuid.UUID     `json:"id"`
	ItemID     uuid.UUID     `json:"item_id"`
	URL        string        `json:"url"`
	PreviewURL string        `json:"preview_url,omitempty"`
	PublicID   string        `json:"public_id"`
	IsMain     bool          `json:"is_main"`
	Position   int           `json:"position"`
	Metadata   ImageMetadata `json:"metadata,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ImageMetadata содержит ключевые метаданные изображения из Cloudinary
type ImageMetadata struct {
	AssetID  string `json:"asset_id"`
	PublicID string `json:"public_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int    `json:"bytes"`
}

// ValidItemStatus проверяет, что статус может быть выставлен владельцем
func ValidItemStatus(status string) bool {
	switch status {
	case ItemStatusActive, ItemStatusDraft, ItemStatusRemoved:
		return true
	}
	return false
}
