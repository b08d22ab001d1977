package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/config"
	"github.com/whristorium/backend/internal/handlers"
	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/routes"
	"github.com/whristorium/backend/internal/testutil"
	"github.com/whristorium/backend/internal/utils"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:    "test-secret",
		TokenExpires: time.Hour,
		TaxRate:      0.13,
		FrontendURL:  "http://shop.test",
		BackendURL:   "http://api.test",
		Esewa: config.EsewaConfig{
			MerchantCode: "EPAYTEST",
			SecretKey:    "test-key",
			PaymentURL:   "https://esewa.test/form",
			StatusURL:    "http://127.0.0.1:1/status",
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	routes.Register(app, db, cfg)

	return &testServer{app: app, db: db, cfg: cfg}
}

func (s *testServer) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(s.cfg.JWTSecret, user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request and decodes a JSON response body when there is one.
func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return data
}
