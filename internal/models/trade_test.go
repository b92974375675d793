package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{TradeStatusPending, TradeStatusAccepted, true},
		{TradeStatusPending, TradeStatusRejected, true},
		{TradeStatusPending, TradeStatusCompleted, false},
		{TradeStatusAccepted, TradeStatusCompleted, true},
		{TradeStatusAccepted, TradeStatusRejected, false},
		{TradeStatusRejected, TradeStatusAccepted, false},
		{TradeStatusRejected, TradeStatusPending, false},
		{TradeStatusCompleted, TradeStatusPending, false},
		{TradeStatusCompleted, TradeStatusAccepted, false},
		{"unknown", TradeStatusAccepted, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTradeConfirm(t *testing.T) {
	proposer, receiver := uuid.New(), uuid.New()
	trade := &Trade{ProposerID: proposer, ReceiverID: receiver, Status: TradeStatusAccepted}

	done, err := trade.Confirm(proposer)
	require.NoError(t, err)
	assert.False(t, done)

	// повторное подтверждение не меняет результата
	done, err = trade.Confirm(proposer)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = trade.Confirm(receiver)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTradeConfirm_Errors(t *testing.T) {
	proposer, receiver := uuid.New(), uuid.New()

	pending := &Trade{ProposerID: proposer, ReceiverID: receiver, Status: TradeStatusPending}
	_, err := pending.Confirm(proposer)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	accepted := &Trade{ProposerID: proposer, ReceiverID: receiver, Status: TradeStatusAccepted}
	_, err = accepted.Confirm(uuid.New())
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.False(t, accepted.ProposerConfirmed || accepted.ReceiverConfirmed)
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", User{FirstName: "Ann", LastName: "Lee", Username: "ann"}.DisplayName())
	assert.Equal(t, "Ann", User{FirstName: "Ann"}.DisplayName())
	assert.Equal(t, "ann", User{Username: "ann"}.DisplayName())
}

func TestItemAvailable(t *testing.T) {
	assert.True(t, Item{Status: ItemStatusActive}.Available())
	assert.False(t, Item{Status: ItemStatusDraft}.Available())
	assert.False(t, Item{Status: ItemStatusTraded}.Available())
	assert.False(t, ValidItemStatus(ItemStatusTraded))
	assert.True(t, ValidItemStatus(ItemStatusRemoved))
}
