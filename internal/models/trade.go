package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы предложения обмена
const (
	TradeStatusPending   = "pending"
	TradeStatusAccepted  = "accepted"
	TradeStatusRejected  = "rejected"
	TradeStatusCompleted = "completed"
)

var (
	// ErrInvalidTransition возвращается при недопустимой смене статуса обмена
	ErrInvalidTransition = errors.New("invalid trade status transition")
	ErrNotParticipant    = errors.New("user is not a trade participant")
	// ErrNotOwner - вещь в обмене принадлежит не тому участнику
	ErrNotOwner = errors.New("item is not owned by the trade party")
)

// Trade представляет предложение об обмене
type Trade struct {
	ID                uuid.UUID `json:"id"`
	ProposerID        uuid.UUID `json:"proposer_id"`
	ReceiverID        uuid.UUID `json:"receiver_id"`
	OfferedItemID     uuid.UUID `json:"offered_item_id"`
	RequestedItemID   uuid.UUID `json:"requested_item_id"`
	CashAmount        int64     `json:"cash_amount"` // доплата в минимальных единицах валюты
	Status            string    `json:"status"`      // pending, accepted, rejected, completed
	Message           string    `json:"message"`
	ProposerConfirmed bool      `json:"proposer_confirmed"`
	ReceiverConfirmed bool      `json:"receiver_confirmed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Дополнительные поля для API
	OfferedItem   *Item `json:"offered_item,omitempty"`
	RequestedItem *Item `json:"requested_item,omitempty"`
	Proposer      *User `json:"proposer,omitempty"`
	Receiver      *User `json:"receiver,omitempty"`
}

var tradeTransitions = map[string][]string{
	TradeStatusPending:  {TradeStatusAccepted, TradeStatusRejected},
	TradeStatusAccepted: {TradeStatusCompleted},
}

// CanTransition проверяет, разрешён ли переход между статусами.
// rejected и completed - терминальные.
func CanTransition(from, to string) bool {
	for _, next := range tradeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsParticipant сообщает, участвует ли пользователь в обмене
func (t *Trade) IsParticipant(userID uuid.UUID) bool {
	return t.ProposerID == userID || t.ReceiverID == userID
}

// Confirm отмечает подтверждение участника и возвращает true,
// когда обе стороны подтвердили и обмен можно завершать.
func (t *Trade) Confirm(userID uuid.UUID) (bool, error) {
	if t.Status != TradeStatusAccepted {
		return false, ErrInvalidTransition
	}
	switch userID {
	case t.ProposerID:
		t.ProposerConfirmed = true
	case t.ReceiverID:
		t.ReceiverConfirmed = true
	default:
		return false, ErrNotParticipant
	}
	return t.ProposerConfirmed && t.ReceiverConfirmed, nil
}
