package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

type fakeStorage struct {
	assets map[string]Asset
}

func (f *fakeStorage) Upload(_ context.Context, file io.Reader, folder, publicID string) (*Asset, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	a := Asset{PublicID: folder + "/" + publicID, Bytes: len(raw), URL: "https://cdn/" + publicID}
	f.assets[a.PublicID] = a
	return &a, nil
}

func (f *fakeStorage) List(_ context.Context, prefix string, limit int) ([]Asset, error) {
	var out []Asset
	for id, a := range f.assets {
		if strings.HasPrefix(id, prefix) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStorage) Remove(_ context.Context, publicID string) (bool, error) {
	_, ok := f.assets[publicID]
	delete(f.assets, publicID)
	return ok, nil
}

var testCloudinary = config.CloudinaryConfig{
	CloudName:    "demo",
	APIKey:       "key",
	APISecret:    "secret",
	UploadPreset: "barter_mvp",
	UploadFolder: "barter",
}

type harness struct {
	app     *fiber.App
	storage *fakeStorage
	jwt     *utils.JWTService
}

func newHarness() *harness {
	h := &harness{
		storage: &fakeStorage{assets: map[string]Asset{}},
		jwt:     utils.NewJWTService("secret", time.Hour),
	}
	h.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	NewMediaService(testCloudinary, h.storage, h.jwt, zap.NewNop().Sugar()).SetupRoutes(h.app)
	return h
}

func (h *harness) do(t *testing.T, user uuid.UUID, req *http.Request) *http.Response {
	t.Helper()
	token, err := h.jwt.GenerateToken(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	return resp
}

func uploadRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestGenerateUploadParams(t *testing.T) {
	h := newHarness()
	user := uuid.New()

	resp := h.do(t, user, httptest.NewRequest(http.MethodGet, "/api/media/upload-params", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "barter/"+user.String(), out["folder"])
	assert.Equal(t, "demo", out["cloud_name"])
	assert.Equal(t, "key", out["api_key"])
	require.NotEmpty(t, out["signature"])

	// клиент отправит те же параметры, подпись должна сойтись
	params := url.Values{}
	for _, k := range []string{"timestamp", "folder", "public_id", "upload_preset"} {
		params.Set(k, out[k])
	}
	expected, err := api.SignParameters(params, testCloudinary.APISecret)
	require.NoError(t, err)
	assert.Equal(t, expected, out["signature"])
}

func TestUploadListRemove(t *testing.T) {
	h := newHarness()
	user, other := uuid.New(), uuid.New()

	resp := h.do(t, user, uploadRequest(t, "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = h.do(t, user, uploadRequest(t, "image/png", []byte("\x89PNG fake")))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Asset Asset `json:"asset"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, strings.HasPrefix(created.Asset.PublicID, "barter/"+user.String()+"/"))
	assert.Equal(t, 9, created.Asset.Bytes)

	resp = h.do(t, user, httptest.NewRequest(http.MethodGet, "/api/media", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Assets []Asset `json:"assets"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, 1, listed.Count)

	resp = h.do(t, other, httptest.NewRequest(http.MethodGet, "/api/media", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, 0, listed.Count)
	assert.NotNil(t, listed.Assets)

	path := "/api/media/" + created.Asset.PublicID
	resp = h.do(t, other, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, user, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, h.storage.assets)

	resp = h.do(t, user, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCloudinaryStorage_ImageURL(t *testing.T) {
	storage, err := NewCloudinaryStorage(testCloudinary)
	require.NoError(t, err)

	u, err := storage.ImageURL("barter/user/photo")
	require.NoError(t, err)
	assert.Contains(t, u, "res.cloudinary.com/demo/image/upload/")
	assert.Contains(t, u, "barter/user/photo")
}
