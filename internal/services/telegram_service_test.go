package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whristorium/backend/internal/models"
)

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		0:          "0.00 NPR",
		999.5:      "999.50 NPR",
		1130:       "1,130.00 NPR",
		1234567.89: "1,234,567.89 NPR",
		-2500:      "-2,500.00 NPR",
	}
	for amount, want := range cases {
		assert.Equal(t, want, FormatPrice(amount, ""))
	}
	assert.Equal(t, "12.00 USD", FormatPrice(12, "USD"))
}

func TestNewOrderMessage(t *testing.T) {
	order := &models.Order{
		OrderNumber:     "WH-250314-12345678",
		Phone:           "9800000000",
		TotalAmount:     1130,
		PaymentMethod:   models.PaymentMethodEsewa,
		ShippingAddress: models.ShippingAddress{Street: "Durbar Marg 4", City: "Kathmandu"},
		Items:           []models.OrderItem{{Name: "Presage", Quantity: 1, Price: 1000}},
	}

	msg := NewOrderMessage(order, "Sita")
	assert.Contains(t, msg, "WH-250314-12345678")
	assert.Contains(t, msg, "Sita")
	assert.Contains(t, msg, "1. <b>Presage</b>")
	assert.Contains(t, msg, "1 x 1,000.00 NPR")
	assert.Contains(t, msg, "1,130.00 NPR")
	assert.Contains(t, msg, "eSewa")
}

func TestSendToAdmin(t *testing.T) {
	var got telegramMessage
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewTelegramService("token", "42")
	svc.apiBaseURL = server.URL

	require.NoError(t, svc.SendToAdmin("hello"))
	assert.Equal(t, "/bottoken/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
}

func TestSendMessageWithoutTokenIsNoop(t *testing.T) {
	svc := NewTelegramService("", "42")
	svc.apiBaseURL = "http://127.0.0.1:0"
	assert.NoError(t, svc.SendToAdmin("hello"))
}
