package trade

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
	"github.com/rajivgeraev/barter-api/internal/websocket"
)

type fakeItems map[uuid.UUID]*models.Item

func (f fakeItems) GetByID(_ context.Context, id uuid.UUID) (*models.Item, error) {
	if item, ok := f[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

type fakeTrades struct {
	items  fakeItems
	trades map[uuid.UUID]*models.Trade
}

func (f *fakeTrades) Create(_ context.Context, t *models.Trade) error {
	for _, existing := range f.trades {
		if existing.Status == models.TradeStatusPending && existing.ProposerID == t.ProposerID &&
			existing.OfferedItemID == t.OfferedItemID && existing.RequestedItemID == t.RequestedItemID {
			return db.ErrConflict
		}
	}
	t.ID = uuid.New()
	t.Status = models.TradeStatusPending
	t.CreatedAt = time.Now()
	cp := *t
	f.trades[t.ID] = &cp
	return nil
}

func (f *fakeTrades) GetByID(_ context.Context, id uuid.UUID) (*models.Trade, error) {
	if t, ok := f.trades[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeTrades) List(_ context.Context, userID uuid.UUID, tradeType, status string) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range f.trades {
		match := t.IsParticipant(userID)
		if tradeType == db.TradesIncoming {
			match = t.ReceiverID == userID
		} else if tradeType == db.TradesOutgoing {
			match = t.ProposerID == userID
		}
		if match && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTrades) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	t, ok := f.trades[id]
	if !ok || t.Status != from || !models.CanTransition(from, to) {
		return models.ErrInvalidTransition
	}
	t.Status = to
	return nil
}

func (f *fakeTrades) Confirm(_ context.Context, id, userID uuid.UUID) (*models.Trade, error) {
	stored, ok := f.trades[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	// работаем с копией: при ошибке транзакция откатывается
	t := *stored
	done, err := t.Confirm(userID)
	if err != nil {
		return nil, err
	}
	if done {
		offered, requested := f.items[t.OfferedItemID], f.items[t.RequestedItemID]
		if offered == nil || requested == nil {
			return nil, models.ErrItemUnavailable
		}
		if offered.UserID != t.ProposerID || requested.UserID != t.ReceiverID {
			return nil, models.ErrNotOwner
		}
		if !offered.Available() || !requested.Available() {
			return nil, models.ErrItemUnavailable
		}
		t.Status = models.TradeStatusCompleted
		offered.Status = models.ItemStatusTraded
		requested.Status = models.ItemStatusTraded
	}
	*stored = t
	return &t, nil
}

type published struct {
	room  string
	event websocket.EventType
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) PublishJSON(room string, eventType websocket.EventType, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room, eventType})
}

func (r *recorder) rooms(eventType websocket.EventType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.event == eventType {
			out = append(out, e.room)
		}
	}
	return out
}

type invalidations struct{ n int }

func (i *invalidations) Invalidate() { i.n++ }

type harness struct {
	app    *fiber.App
	items  fakeItems
	trades *fakeTrades
	events *recorder
	inv    *invalidations
	jwt    *utils.JWTService
}

func newHarness() *harness {
	items := fakeItems{}
	h := &harness{
		items:  items,
		trades: &fakeTrades{items: items, trades: map[uuid.UUID]*models.Trade{}},
		events: &recorder{},
		inv:    &invalidations{},
		jwt:    utils.NewJWTService("secret", time.Hour),
	}
	h.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	NewTradeService(h.trades, h.items, h.events, h.inv, h.jwt, zap.NewNop().Sugar()).SetupRoutes(h.app)
	return h
}

func (h *harness) item(owner uuid.UUID, status string) uuid.UUID {
	id := uuid.New()
	h.items[id] = &models.Item{ID: id, UserID: owner, Name: "item", Status: status}
	return id
}

func (h *harness) do(t *testing.T, user uuid.UUID, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	token, err := h.jwt.GenerateToken(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestCreateTrade(t *testing.T) {
	h := newHarness()
	alice, bob := uuid.New(), uuid.New()
	aliceBike := h.item(alice, models.ItemStatusActive)
	aliceDraft := h.item(alice, models.ItemStatusDraft)
	aliceLamp := h.item(alice, models.ItemStatusActive)
	bobChair := h.item(bob, models.ItemStatusActive)

	req := func(offered, requested uuid.UUID, cash int64) map[string]any {
		return map[string]any{
			"offered_item_id":   offered.String(),
			"requested_item_id": requested.String(),
			"cash_amount":       cash,
		}
	}

	tests := []struct {
		name string
		user uuid.UUID
		body any
		code int
	}{
		{"negative cash", alice, req(aliceBike, bobChair, -1), http.StatusBadRequest},
		{"missing ids", alice, map[string]any{"cash_amount": 0}, http.StatusBadRequest},
		{"bad id", alice, map[string]any{"offered_item_id": "x", "requested_item_id": bobChair.String()}, http.StatusBadRequest},
		{"foreign offered item", bob, req(aliceBike, bobChair, 0), http.StatusForbidden},
		{"with self", alice, req(aliceBike, aliceLamp, 0), http.StatusBadRequest},
		{"draft offered", alice, req(aliceDraft, bobChair, 0), http.StatusConflict},
		{"unknown requested", alice, req(aliceBike, uuid.New(), 0), http.StatusNotFound},
		{"created", alice, req(aliceBike, bobChair, 500), http.StatusCreated},
		{"duplicate", alice, req(aliceBike, bobChair, 500), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := h.do(t, tt.user, http.MethodPost, "/api/trades", tt.body)
			assert.Equal(t, tt.code, code)
		})
	}

	require.Len(t, h.trades.trades, 1)
	var created *models.Trade
	for _, tr := range h.trades.trades {
		created = tr
	}
	assert.Equal(t, bob, created.ReceiverID)
	assert.EqualValues(t, 500, created.CashAmount)
	assert.ElementsMatch(t, []string{
		websocket.UserRoom(alice), websocket.UserRoom(bob), websocket.TradeRoom(created.ID),
	}, h.events.rooms(websocket.EventTradeCreated))

	code, out := h.do(t, bob, http.MethodGet, "/api/trades?type=incoming", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["count"])

	code, out = h.do(t, bob, http.MethodGet, "/api/trades?type=outgoing", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, out["count"])
	assert.NotNil(t, out["trades"])

	code, _ = h.do(t, bob, http.MethodGet, "/api/trades?type=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTradeLifecycle(t *testing.T) {
	h := newHarness()
	alice, bob, eve := uuid.New(), uuid.New(), uuid.New()
	bike := h.item(alice, models.ItemStatusActive)
	chair := h.item(bob, models.ItemStatusActive)

	code, out := h.do(t, alice, http.MethodPost, "/api/trades", map[string]any{
		"offered_item_id":   bike.String(),
		"requested_item_id": chair.String(),
	})
	require.Equal(t, http.StatusCreated, code)
	tradeID := out["trade"].(map[string]any)["id"].(string)
	base := "/api/trades/" + tradeID

	code, _ = h.do(t, eve, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, alice, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, code, "pending trade cannot be confirmed")

	code, _ = h.do(t, alice, http.MethodPut, base+"/status", map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, code, "only receiver decides")

	code, _ = h.do(t, bob, http.MethodPut, base+"/status", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, bob, http.MethodPut, base+"/status", map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, bob, http.MethodPut, base+"/status", map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(t, eve, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, out = h.do(t, alice, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.TradeStatusAccepted, out["trade"].(map[string]any)["status"])
	assert.Zero(t, h.inv.n)

	code, out = h.do(t, bob, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.TradeStatusCompleted, out["trade"].(map[string]any)["status"])
	assert.Equal(t, 1, h.inv.n)
	assert.Equal(t, models.ItemStatusTraded, h.items[bike].Status)
	assert.Len(t, h.events.rooms(websocket.EventTradeComplete), 3)

	code, _ = h.do(t, bob, http.MethodPost, "/api/trades/"+uuid.NewString()+"/confirm", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestConfirmTrade_ItemWithdrawnAfterAccept(t *testing.T) {
	h := newHarness()
	alice, bob := uuid.New(), uuid.New()
	bike := h.item(alice, models.ItemStatusActive)
	chair := h.item(bob, models.ItemStatusActive)

	code, out := h.do(t, alice, http.MethodPost, "/api/trades", map[string]any{
		"offered_item_id":   bike.String(),
		"requested_item_id": chair.String(),
	})
	require.Equal(t, http.StatusCreated, code)
	tradeID := uuid.MustParse(out["trade"].(map[string]any)["id"].(string))
	base := "/api/trades/" + tradeID.String()

	code, _ = h.do(t, bob, http.MethodPut, base+"/status", map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, alice, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)

	// Боб снял стул с обмена между принятием и подтверждением
	h.items[chair].Status = models.ItemStatusRemoved

	code, _ = h.do(t, bob, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, code)

	stored := h.trades.trades[tradeID]
	assert.Equal(t, models.TradeStatusAccepted, stored.Status)
	assert.False(t, stored.ReceiverConfirmed)
	assert.Equal(t, models.ItemStatusActive, h.items[bike].Status)
	assert.Equal(t, models.ItemStatusRemoved, h.items[chair].Status)
	assert.Zero(t, h.inv.n)
	assert.Empty(t, h.events.rooms(websocket.EventTradeComplete))
}
