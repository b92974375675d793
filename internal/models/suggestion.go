package models

import "github.com/google/uuid"

// SuggestedTrade - предложенный трёхсторонний обмен.
// A отдаёт item_a пользователю B, B отдаёт item_b пользователю C, C отдаёт item_c пользователю A.
// Запись вычисляется на лету и не хранится.
type SuggestedTrade struct {
	UserAID     uuid.UUID `json:"user_a_id"`
	UserAName   string    `json:"user_a_name"`
	UserAAvatar string    `json:"user_a_avatar"`
	ItemAID     uuid.UUID `json:"item_a_id"`
	ItemAName   string    `json:"item_a_name"`
	ItemAImage  string    `json:"item_a_image"`

	UserBID     uuid.UUID `json:"user_b_id"`
	UserBName   string    `json:"user_b_name"`
	UserBAvatar string    `json:"user_b_avatar"`
	ItemBID     uuid.UUID `json:"item_b_id"`
	ItemBName   string    `json:"item_b_name"`
	ItemBImage  string    `json:"item_b_image"`

	UserCID     uuid.UUID `json:"user_c_id"`
	UserCName   string    `json:"user_c_name"`
	UserCAvatar string    `json:"user_c_avatar"`
	ItemCID     uuid.UUID `json:"item_c_id"`
	ItemCName   string    `json:"item_c_name"`
	ItemCImage  string    `json:"item_c_image"`
}
