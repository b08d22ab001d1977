package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whristorium/backend/internal/models"
)

const shopCurrency = "NPR"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBaseURL  string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBaseURL:  "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// FormatPrice formats an amount with thousand separators, two decimals and currency.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = shopCurrency
	}
	fixed := decimal.NewFromFloat(amount).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return fmt.Sprintf("%s%s.%s %s", sign, result.String(), frac, currency)
}

func paymentMethodLabel(method string) string {
	if method == models.PaymentMethodEsewa {
		return "eSewa"
	}
	return "Cash on delivery"
}

// NewOrderMessage renders the admin notification for a freshly placed order.
func NewOrderMessage(order *models.Order, customer string) string {
	var itemsList strings.Builder
	for i, item := range order.Items {
		fmt.Fprintf(&itemsList, "%d. <b>%s</b>\n   %d x %s\n",
			i+1,
			item.Name,
			item.Quantity,
			FormatPrice(item.Price, shopCurrency),
		)
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>📋 Order:</b> %s
<b>👤 Customer:</b> %s
<b>📞 Phone:</b> %s
<b>📍 Ship to:</b> %s, %s
<b>📦 Items:</b>
%s
<b>💰 Total:</b> %s
<b>💳 Payment:</b> %s`,
		order.OrderNumber,
		customer,
		order.Phone,
		order.ShippingAddress.Street,
		order.ShippingAddress.City,
		itemsList.String(),
		FormatPrice(order.TotalAmount, shopCurrency),
		paymentMethodLabel(order.PaymentMethod),
	)

	return strings.TrimSpace(message)
}

// NotifyNewOrder sends notification about a new order to the admin chat.
func (s *TelegramService) NotifyNewOrder(order *models.Order, customer string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendToAdmin(NewOrderMessage(order, customer))
}

// NotifyPaymentSuccess sends notification about a completed gateway payment.
func (s *TelegramService) NotifyPaymentSuccess(order *models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>📋 Order:</b> %s
<b>🔖 Transaction:</b> %s
<b>💰 Amount:</b> %s
<b>💳 Method:</b> %s
━━━━━━━━━━━━━━━━━━
<i>WHRISTORIUM</i>`,
		order.OrderNumber,
		order.TransactionID,
		FormatPrice(order.TotalAmount, shopCurrency),
		paymentMethodLabel(order.PaymentMethod),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
