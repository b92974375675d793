package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/models"
)

type mockSuggester struct{ mock.Mock }

func (m *mockSuggester) FindSuggestedTrades(ctx context.Context, userID uuid.UUID) (Result, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(Result), args.Error(1)
}

func oneSuggestion() Result {
	return Result{Suggestions: []models.SuggestedTrade{{ItemAID: uuid.New()}}}
}

func TestCachedFinder_HitAndInvalidate(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	next := &mockSuggester{}
	next.On("FindSuggestedTrades", ctx, user).Return(oneSuggestion(), nil).Twice()

	cf, err := NewCachedFinder(next, 16, time.Minute)
	require.NoError(t, err)

	first, err := cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)
	second, err := cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	next.AssertNumberOfCalls(t, "FindSuggestedTrades", 1)

	cf.Invalidate()
	_, err = cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)
	next.AssertNumberOfCalls(t, "FindSuggestedTrades", 2)
}

func TestCachedFinder_TTL(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	next := &mockSuggester{}
	next.On("FindSuggestedTrades", ctx, user).Return(oneSuggestion(), nil)

	cf, err := NewCachedFinder(next, 16, time.Minute)
	require.NoError(t, err)
	now := time.Now()
	cf.now = func() time.Time { return now }

	_, err = cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)
	next.AssertNumberOfCalls(t, "FindSuggestedTrades", 2)
}

func TestCachedFinder_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	next := &mockSuggester{}
	next.On("FindSuggestedTrades", ctx, user).Return(Result{}, ErrDataUnavailable).Once()
	next.On("FindSuggestedTrades", ctx, user).Return(oneSuggestion(), nil).Once()

	cf, err := NewCachedFinder(next, 16, time.Minute)
	require.NoError(t, err)

	_, err = cf.FindSuggestedTrades(ctx, user)
	assert.True(t, errors.Is(err, ErrDataUnavailable))

	res, err := cf.FindSuggestedTrades(ctx, user)
	require.NoError(t, err)
	assert.Len(t, res.Suggestions, 1)
}

// invalidatingSuggester сбрасывает кэш посреди вычисления
type invalidatingSuggester struct {
	cf    *CachedFinder
	calls int
}

func (s *invalidatingSuggester) FindSuggestedTrades(context.Context, uuid.UUID) (Result, error) {
	s.calls++
	s.cf.Invalidate()
	return oneSuggestion(), nil
}

func TestCachedFinder_StaleComputationNotStored(t *testing.T) {
	next := &invalidatingSuggester{}
	cf, err := NewCachedFinder(next, 16, time.Minute)
	require.NoError(t, err)
	next.cf = cf

	user := uuid.New()
	_, err = cf.FindSuggestedTrades(context.Background(), user)
	require.NoError(t, err)
	_, err = cf.FindSuggestedTrades(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedFinder_Disabled(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	next := &mockSuggester{}
	next.On("FindSuggestedTrades", ctx, user).Return(oneSuggestion(), nil)

	cf, err := NewCachedFinder(next, 0, time.Minute)
	require.NoError(t, err)
	_, _ = cf.FindSuggestedTrades(ctx, user)
	_, _ = cf.FindSuggestedTrades(ctx, user)
	next.AssertNumberOfCalls(t, "FindSuggestedTrades", 2)
	cf.Invalidate()
}
