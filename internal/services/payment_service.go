package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/utils"
)

// PaymentService runs the eSewa checkout: building the signed request,
// reconciling callbacks and answering status queries.
type PaymentService struct {
	db          *gorm.DB
	esewa       *EsewaClient
	telegram    *TelegramService
	backendURL  string
	frontendURL string
	now         func() time.Time
}

func NewPaymentService(db *gorm.DB, esewa *EsewaClient, telegram *TelegramService, backendURL, frontendURL string) *PaymentService {
	return &PaymentService{
		db:          db,
		esewa:       esewa,
		telegram:    telegram,
		backendURL:  backendURL,
		frontendURL: frontendURL,
		now:         time.Now,
	}
}

// Caller identifies who is asking; admins may act on any order.
type Caller struct {
	UserID  uuid.UUID
	IsAdmin bool
}

func (c Caller) owns(order *models.Order) bool {
	return c.IsAdmin || order.UserID == c.UserID
}

// InitiateResult is what the frontend needs to post the gateway form.
type InitiateResult struct {
	Params     EsewaPaymentParams `json:"params"`
	PaymentURL string             `json:"paymentUrl"`
}

// InitiateEsewa signs a payment request for an unpaid eSewa order.
func (s *PaymentService) InitiateEsewa(ctx context.Context, orderID uuid.UUID, caller Caller) (*InitiateResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.owns(order) {
		return nil, forbidden("Not authorized to pay for this order")
	}
	if order.PaymentMethod != models.PaymentMethodEsewa {
		return nil, badRequest("Order is not an eSewa order")
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, badRequest("Order is already paid")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, badRequest("Order is cancelled")
	}

	successURL := s.backendURL + "/api/payments/esewa/success"
	failureURL := s.backendURL + "/api/payments/esewa/failure?orderId=" + url.QueryEscape(order.ID.String())

	log.Printf("[Payment] eSewa checkout initiated for %s (%s)", order.OrderNumber, utils.FormatAmount(order.TotalAmount))

	return &InitiateResult{
		Params:     s.esewa.BuildPaymentParams(order.TotalAmount, order.ID.String(), successURL, failureURL),
		PaymentURL: s.esewa.PaymentURL(),
	}, nil
}

// CompleteEsewa reconciles a success redirect. The order is marked paid only
// when the signature verifies and the gateway confirms the transaction.
func (s *PaymentService) CompleteEsewa(ctx context.Context, data string) (*models.Order, error) {
	cb, err := s.esewa.DecodeCallback(data)
	if err != nil {
		log.Printf("[Payment] eSewa callback rejected: %v", err)
		return nil, badRequest("Invalid payment response")
	}

	if err := s.esewa.VerifyCallback(cb); err != nil {
		log.Printf("[Payment] eSewa callback for %s rejected: %v, payload %s", cb.TransactionUUID, err, string(cb.Raw()))
		return nil, badRequest("Payment signature verification failed")
	}

	if cb.Status != esewaStatusComplete {
		log.Printf("[Payment] eSewa callback for %s has status %s", cb.TransactionUUID, cb.Status)
		return nil, badRequest("Payment was not completed")
	}

	orderID, err := uuid.Parse(cb.TransactionUUID)
	if err != nil {
		log.Printf("[Payment] eSewa callback with unknown transaction_uuid %q", cb.TransactionUUID)
		return nil, badRequest("Invalid payment reference")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return order, nil
	}

	if !amountMatches(string(cb.TotalAmount), order.TotalAmount) {
		log.Printf("[Payment] eSewa callback amount %s does not match order %s total %s", cb.TotalAmount, order.OrderNumber, utils.FormatAmount(order.TotalAmount))
		return nil, badRequest("Payment amount mismatch")
	}

	status, err := s.confirm(ctx, order)
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(map[string]json.RawMessage{
		"callback": json.RawMessage(cb.Raw()),
		"status":   json.RawMessage(status.Raw()),
	})
	return s.markPaid(ctx, order.ID, cb.TransactionCode, raw)
}

// FailEsewa records a failure redirect for a still pending order.
func (s *PaymentService) FailEsewa(ctx context.Context, orderID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ? AND payment_method = ?", orderID, models.PaymentStatusPending, models.PaymentMethodEsewa).
			Update("payment_status", models.PaymentStatusFailed)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return syncPaymentStatus(tx, orderID, models.PaymentStatusFailed, s.now())
	})
}

// VerifyEsewa asks the gateway directly and marks the order paid when the
// transaction is complete. Used when the browser never reached the callback.
func (s *PaymentService) VerifyEsewa(ctx context.Context, orderID uuid.UUID, caller Caller) (*models.Order, *models.Payment, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if !caller.owns(order) {
		return nil, nil, forbidden("Not authorized to verify this order")
	}
	if order.PaymentMethod != models.PaymentMethodEsewa {
		return nil, nil, badRequest("Order is not an eSewa order")
	}

	if order.PaymentStatus != models.PaymentStatusPaid {
		status, err := s.confirm(ctx, order)
		if err != nil {
			return nil, nil, err
		}
		refID := ""
		if status.RefID != nil {
			refID = *status.RefID
		}
		raw, _ := json.Marshal(map[string]json.RawMessage{"status": json.RawMessage(status.Raw())})
		if order, err = s.markPaid(ctx, order.ID, refID, raw); err != nil {
			return nil, nil, err
		}
	}

	payment, err := s.paymentFor(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return order, payment, nil
}

// confirm runs the server-to-server status query for order.
func (s *PaymentService) confirm(ctx context.Context, order *models.Order) (*EsewaStatus, error) {
	status, err := s.esewa.CheckStatus(ctx, utils.FormatAmount(order.TotalAmount), order.ID.String())
	if err != nil {
		log.Printf("[Payment] eSewa status query for %s failed: %v", order.OrderNumber, err)
		return nil, upstream("Could not confirm payment with eSewa")
	}
	if !status.Complete() {
		log.Printf("[Payment] eSewa reports %s for %s: %s", status.Status, order.OrderNumber, string(status.Raw()))
		return nil, &Error{
			Status:  400,
			Message: "Payment not confirmed by eSewa",
			Data:    map[string]any{"gatewayStatus": status.Status},
		}
	}
	if status.TransactionUUID != order.ID.String() || !amountMatches(string(status.TotalAmount), order.TotalAmount) {
		log.Printf("[Payment] eSewa status for %s does not match the order: %s", order.OrderNumber, string(status.Raw()))
		return nil, badRequest("Payment details do not match the order")
	}
	return status, nil
}

// markPaid flips order and payment to paid. Calling it twice is harmless.
func (s *PaymentService) markPaid(ctx context.Context, orderID uuid.UUID, transactionID string, raw []byte) (*models.Order, error) {
	now := s.now()
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
			Updates(map[string]any{
				"payment_status":   models.PaymentStatusPaid,
				"transaction_id":   transactionID,
				"payment_response": models.RawJSON(raw),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		var payment models.Payment
		err := tx.First(&payment, "order_id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var order models.Order
			if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
				return err
			}
			return tx.Create(&models.Payment{
				OrderID:         orderID,
				PaymentMethod:   order.PaymentMethod,
				Status:          models.PaymentStatusPaid,
				Amount:          order.TotalAmount,
				TransactionID:   transactionID,
				PaidAt:          &now,
				GatewayResponse: models.RawJSON(raw),
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&payment).Updates(map[string]any{
			"status":           models.PaymentStatusPaid,
			"transaction_id":   transactionID,
			"paid_at":          now,
			"gateway_response": models.RawJSON(raw),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("[Payment] %s paid, transaction %s", order.OrderNumber, transactionID)
		if s.telegram != nil {
			go func(o models.Order) {
				if err := s.telegram.NotifyPaymentSuccess(&o); err != nil {
					log.Printf("[Payment] Telegram payment notification failed: %v", err)
				}
			}(*order)
		}
	}
	return order, nil
}

// PaymentStatus is the answer to a payment status query.
type PaymentStatus struct {
	OrderID       uuid.UUID       `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentStatus string          `json:"paymentStatus"`
	TotalAmount   float64         `json:"totalAmount"`
	TransactionID string          `json:"transactionId,omitempty"`
	Payment       *models.Payment `json:"payment"`
}

// Status reports the payment state of an order.
func (s *PaymentService) Status(ctx context.Context, orderID uuid.UUID, caller Caller) (*PaymentStatus, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.owns(order) {
		return nil, forbidden("Not authorized to view this order")
	}

	payment, err := s.paymentFor(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &PaymentStatus{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		TransactionID: order.TransactionID,
		Payment:       payment,
	}, nil
}

// FrontendURL builds a link into the storefront for redirects.
func (s *PaymentService) FrontendURL(path string, query url.Values) string {
	target := s.frontendURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (s *PaymentService) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (s *PaymentService) paymentFor(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func amountMatches(raw string, expected float64) bool {
	got, err := utils.ParseAmount(raw)
	if err != nil {
		return false
	}
	return got.Round(2).Equal(utils.RoundDecimal(expected))
}
