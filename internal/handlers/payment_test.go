package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whristorium/backend/internal/config"
	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/testutil"
)

func TestInitiateEsewaReturnsSignedForm(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser)
	token := s.token(t, user)
	watch := testutil.CreateProduct(t, s.db, "presage", 1000, 5)

	_, body := s.do(t, http.MethodPost, "/api/orders", token, orderPayload(watch.ID, "esewa"))
	orderID := dataOf(t, body)["order"].(map[string]any)["id"].(string)

	resp, body := s.do(t, http.MethodPost, "/api/payments/esewa/initiate", token, map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	data := dataOf(t, body)
	assert.Equal(t, "https://esewa.test/form", data["paymentUrl"])
	params := data["params"].(map[string]any)
	assert.Equal(t, "1130", params["total_amount"])
	assert.Equal(t, orderID, params["transaction_uuid"])
	assert.NotEmpty(t, params["signature"])
}

func TestEsewaSuccessRedirectsToFailureOnBadPayload(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api/payments/esewa/success?data=bm90LWpzb24=", "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.test", location.Host)
	assert.Equal(t, "/payment/failure", location.Path)
	assert.Equal(t, "Invalid payment response", location.Query().Get("error"))

	resp, _ = s.do(t, http.MethodGet, "/api/payments/esewa/success", "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/payment/failure")
}

func TestEsewaFailureMarksOrderFailed(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser)
	watch := testutil.CreateProduct(t, s.db, "presage", 1000, 5)

	_, body := s.do(t, http.MethodPost, "/api/orders", s.token(t, user), orderPayload(watch.ID, "esewa"))
	orderID := dataOf(t, body)["order"].(map[string]any)["id"].(string)

	resp, _ := s.do(t, http.MethodGet, "/api/payments/esewa/failure?orderId="+orderID, "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, orderID, location.Query().Get("orderId"))

	var order models.Order
	require.NoError(t, s.db.First(&order, "id = ?", orderID).Error)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
}

// completedGateway answers every status query with COMPLETE for the amount
// and transaction it was asked about.
func completedGateway(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product_code":     q.Get("product_code"),
			"transaction_uuid": q.Get("transaction_uuid"),
			"total_amount":     q.Get("total_amount"),
			"status":           "COMPLETE",
			"ref_id":           "000AE01",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyEsewaAndPaymentStatus(t *testing.T) {
	gateway := completedGateway(t)
	s := newTestServer(t, func(cfg *config.Config) { cfg.Esewa.StatusURL = gateway.URL })
	owner := testutil.CreateUser(t, s.db, models.RoleUser)
	stranger := testutil.CreateUser(t, s.db, models.RoleUser)
	admin := testutil.CreateUser(t, s.db, models.RoleAdmin)
	token := s.token(t, owner)
	watch := testutil.CreateProduct(t, s.db, "presage", 1000, 5)

	_, body := s.do(t, http.MethodPost, "/api/orders", token, orderPayload(watch.ID, "esewa"))
	order := dataOf(t, body)["order"].(map[string]any)
	orderID := order["id"].(string)

	resp, body := s.do(t, http.MethodGet, "/api/payments/status/"+orderID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	status := dataOf(t, body)
	assert.Equal(t, "pending", status["paymentStatus"])
	assert.Equal(t, "esewa", status["paymentMethod"])
	assert.Equal(t, order["orderNumber"], status["orderNumber"])

	resp, _ = s.do(t, http.MethodGet, "/api/payments/status/"+orderID, s.token(t, stranger), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/api/payments/esewa/verify", s.token(t, stranger), map[string]any{"orderId": orderID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/payments/esewa/verify", token, map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	verified := dataOf(t, body)
	assert.Equal(t, "paid", verified["order"].(map[string]any)["paymentStatus"])
	assert.Equal(t, "000AE01", verified["order"].(map[string]any)["transactionId"])
	assert.Equal(t, "paid", verified["payment"].(map[string]any)["status"])

	resp, body = s.do(t, http.MethodGet, "/api/payments/status/"+orderID, s.token(t, admin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	status = dataOf(t, body)
	assert.Equal(t, "paid", status["paymentStatus"])
	assert.NotEmpty(t, status["payment"].(map[string]any)["paidAt"])
}

func TestVerifyEsewaGatewayUnavailable(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser)
	token := s.token(t, user)
	watch := testutil.CreateProduct(t, s.db, "presage", 1000, 5)

	_, body := s.do(t, http.MethodPost, "/api/orders", token, orderPayload(watch.ID, "esewa"))
	orderID := dataOf(t, body)["order"].(map[string]any)["id"].(string)

	resp, body := s.do(t, http.MethodPost, "/api/payments/esewa/verify", token, map[string]any{"orderId": orderID})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode, body)

	var order models.Order
	require.NoError(t, s.db.First(&order, "id = ?", orderID).Error)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	_, body = s.do(t, http.MethodPost, "/api/orders", token, orderPayload(watch.ID, "cod"))
	codID := dataOf(t, body)["order"].(map[string]any)["id"].(string)
	resp, _ = s.do(t, http.MethodPost, "/api/payments/esewa/verify", token, map[string]any{"orderId": codID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
