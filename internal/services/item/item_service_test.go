package item

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
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
)

type fakeItems struct {
	items map[uuid.UUID]*models.Item
}

func (f *fakeItems) Create(_ context.Context, item *models.Item) error {
	item.ID = uuid.New()
	item.CreatedAt = time.Now()
	f.items[item.ID] = item
	return nil
}

func (f *fakeItems) GetByID(_ context.Context, id uuid.UUID) (*models.Item, error) {
	if item, ok := f.items[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeItems) ListByOwner(_ context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Item, int, error) {
	var out []models.Item
	for _, item := range f.items {
		if item.UserID == userID && (status == "" || item.Status == status) {
			out = append(out, *item)
		}
	}
	return out, len(out), nil
}

func (f *fakeItems) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	f.items[id].Status = status
	return nil
}

func (f *fakeItems) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.items, id)
	return nil
}

type counter struct{ n atomic.Int32 }

func (c *counter) Invalidate() { c.n.Add(1) }

type harness struct {
	app   *fiber.App
	store *fakeItems
	inv   *counter
	jwt   *utils.JWTService
}

func newHarness() *harness {
	h := &harness{
		store: &fakeItems{items: map[uuid.UUID]*models.Item{}},
		inv:   &counter{},
		jwt:   utils.NewJWTService("secret", time.Hour),
	}
	h.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	NewItemService(h.store, h.inv, h.jwt, zap.NewNop().Sugar()).SetupRoutes(h.app)
	return h
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

func TestCreateItem(t *testing.T) {
	h := newHarness()
	owner := uuid.New()

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"no name", map[string]any{"status": "draft"}, http.StatusBadRequest},
		{"active without category", map[string]any{"name": "Bike", "status": "active",
			"images": []map[string]any{{"url": "https://img/1.jpg"}}}, http.StatusBadRequest},
		{"active without images", map[string]any{"name": "Bike", "status": "active", "category": "sport"}, http.StatusBadRequest},
		{"draft", map[string]any{"name": "Lamp"}, http.StatusCreated},
		{"active", map[string]any{"name": "Bike", "status": "active", "category": "sport",
			"images": []map[string]any{{"url": "https://img/1.jpg", "public_id": "barter/1"}}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := h.do(t, owner, http.MethodPost, "/api/items", tt.body)
			assert.Equal(t, tt.code, code)
		})
	}

	code, out := h.do(t, owner, http.MethodGet, "/api/items/my", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["total"])

	code, out = h.do(t, owner, http.MethodGet, "/api/items/my?status=draft", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["total"])

	code, _ = h.do(t, owner, http.MethodGet, "/api/items/my?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestItemAccessAndStatus(t *testing.T) {
	h := newHarness()
	owner, other := uuid.New(), uuid.New()

	draft := &models.Item{UserID: owner, Name: "Lamp", Status: models.ItemStatusDraft}
	active := &models.Item{UserID: owner, Name: "Bike", Status: models.ItemStatusActive}
	traded := &models.Item{UserID: owner, Name: "Chair", Status: models.ItemStatusTraded}
	for _, it := range []*models.Item{draft, active, traded} {
		require.NoError(t, h.store.Create(context.Background(), it))
	}

	code, _ := h.do(t, other, http.MethodGet, "/api/items/"+draft.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, out := h.do(t, other, http.MethodGet, "/api/items/"+active.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["is_owner"])

	code, out = h.do(t, owner, http.MethodGet, "/api/items/"+draft.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["is_owner"])

	code, out = h.do(t, owner, http.MethodGet, "/api/items/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, out["error"])

	code, _ = h.do(t, owner, http.MethodGet, "/api/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	path := "/api/items/" + active.ID.String() + "/status"
	code, _ = h.do(t, other, http.MethodPut, path, map[string]string{"status": "removed"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, owner, http.MethodPut, path, map[string]string{"status": "traded"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, owner, http.MethodPut, path, map[string]string{"status": "removed"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.ItemStatusRemoved, h.store.items[active.ID].Status)
	assert.EqualValues(t, 1, h.inv.n.Load())

	code, _ = h.do(t, owner, http.MethodPut, "/api/items/"+traded.ID.String()+"/status", map[string]string{"status": "active"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(t, other, http.MethodDelete, "/api/items/"+draft.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, owner, http.MethodDelete, "/api/items/"+draft.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, h.store.items, draft.ID)
	assert.EqualValues(t, 2, h.inv.n.Load())
}
