package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/utils"
)

const deliveryEstimate = 5 * 24 * time.Hour

// OrderService owns order placement, status changes and cancellation.
type OrderService struct {
	db       *gorm.DB
	telegram *TelegramService
	taxRate  float64
	now      func() time.Time
}

func NewOrderService(db *gorm.DB, telegram *TelegramService, taxRate float64) *OrderService {
	return &OrderService{db: db, telegram: telegram, taxRate: taxRate, now: time.Now}
}

type OrderLineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type PlaceOrderInput struct {
	UserID          uuid.UUID
	Items           []OrderLineInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	Phone           string
	Notes           string
}

// Place creates an order and its pending payment, taking stock for every line.
// Everything happens in one transaction: a failing line leaves stock untouched.
func (s *OrderService) Place(ctx context.Context, in PlaceOrderInput) (*models.Order, *models.Payment, error) {
	if len(in.Items) == 0 {
		return nil, nil, badRequest("Order must contain at least one product")
	}
	if !models.ValidPaymentMethod(in.PaymentMethod) {
		return nil, nil, badRequest("Invalid payment method: %s", in.PaymentMethod)
	}
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return nil, nil, badRequest("Quantity must be at least 1")
		}
	}

	now := s.now()
	var (
		order    models.Order
		payment  models.Payment
		customer models.User
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&customer, "id = ?", in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("User not found")
			}
			return err
		}

		subtotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(in.Items))
		productIDs := make([]uuid.UUID, 0, len(in.Items))

		for _, line := range in.Items {
			var product models.Product
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&product, "id = ?", line.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("Product not found: %s", line.ProductID)
				}
				return err
			}

			if product.Stock < line.Quantity {
				return insufficientStock(&product, line.Quantity)
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", product.ID, line.Quantity).
				Update("stock", gorm.Expr("stock - ?", line.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return insufficientStock(&product, line.Quantity)
			}

			subtotal = subtotal.Add(utils.LineTotal(product.Price, line.Quantity))
			items = append(items, models.OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Image:     product.MainImage,
				Quantity:  line.Quantity,
				Price:     product.Price,
			})
			productIDs = append(productIDs, product.ID)
		}

		number, err := nextOrderNumber(tx, now)
		if err != nil {
			return err
		}

		phone, err := contactPhone(tx, customer.ID, in.Phone)
		if err != nil {
			return err
		}

		deliveryDate := now.Add(deliveryEstimate)
		order = models.Order{
			OrderNumber:     number,
			UserID:          customer.ID,
			Phone:           phone,
			Items:           items,
			TotalAmount:     utils.RoundMoney(utils.WithTax(subtotal, s.taxRate)),
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			PaymentStatus:   models.PaymentStatusPending,
			Status:          models.OrderStatusProcessing,
			DeliveryDate:    &deliveryDate,
			Notes:           strings.TrimSpace(in.Notes),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		payment = models.Payment{
			OrderID:       order.ID,
			PaymentMethod: order.PaymentMethod,
			Status:        models.PaymentStatusPending,
			Amount:        order.TotalAmount,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		return tx.Where("product_id IN ? AND cart_id IN (?)", productIDs,
			tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", customer.ID)).
			Delete(&models.CartItem{}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[Order] %s placed by %s, total %s", order.OrderNumber, customer.ID, utils.FormatAmount(order.TotalAmount))

	if s.telegram != nil {
		go func(o models.Order, name string) {
			if err := s.telegram.NotifyNewOrder(&o, name); err != nil {
				log.Printf("[Order] Telegram notification failed for %s: %v", o.OrderNumber, err)
			}
		}(order, customer.Name)
	}

	return &order, &payment, nil
}

func insufficientStock(product *models.Product, requested int) *Error {
	return &Error{
		Status:  400,
		Message: fmt.Sprintf("Insufficient stock for %s. Available: %d", product.Name, product.Stock),
		Data: map[string]any{
			"productId": product.ID,
			"available": product.Stock,
			"requested": requested,
		},
	}
}

// UpdateOrderInput is a partial update; nil fields are left alone.
type UpdateOrderInput struct {
	Status         *string
	PaymentStatus  *string
	TrackingNumber *string
	Notes          *string
	TransactionID  *string
	DeliveryDate   *time.Time
}

// Update applies a partial update. Any enumerated status may follow any other.
// A cash-on-delivery order marked delivered is also marked paid.
func (s *OrderService) Update(ctx context.Context, id uuid.UUID, in UpdateOrderInput) (*models.Order, *models.Payment, error) {
	if in.Status != nil && !models.ValidOrderStatus(*in.Status) {
		return nil, nil, badRequest("Invalid order status: %s", *in.Status)
	}
	if in.PaymentStatus != nil && !models.ValidPaymentStatus(*in.PaymentStatus) {
		return nil, nil, badRequest("Invalid payment status: %s", *in.PaymentStatus)
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Order not found")
			}
			return err
		}

		updates := map[string]any{}
		if in.Status != nil {
			updates["status"] = *in.Status
		}
		paymentStatus := order.PaymentStatus
		if in.PaymentStatus != nil {
			paymentStatus = *in.PaymentStatus
		}
		if order.PaymentMethod == models.PaymentMethodCOD &&
			in.Status != nil && *in.Status == models.OrderStatusDelivered &&
			order.PaymentStatus != models.PaymentStatusPaid {
			paymentStatus = models.PaymentStatusPaid
		}
		if paymentStatus != order.PaymentStatus {
			updates["payment_status"] = paymentStatus
		}
		if in.TrackingNumber != nil {
			updates["tracking_number"] = strings.TrimSpace(*in.TrackingNumber)
		}
		if in.Notes != nil {
			updates["notes"] = strings.TrimSpace(*in.Notes)
		}
		if in.TransactionID != nil {
			updates["transaction_id"] = strings.TrimSpace(*in.TransactionID)
		}
		if in.DeliveryDate != nil {
			updates["delivery_date"] = *in.DeliveryDate
		}
		if len(updates) == 0 {
			return badRequest("No fields to update")
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}

		if paymentStatus != order.PaymentStatus {
			if err := syncPaymentStatus(tx, order.ID, paymentStatus, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return s.Get(ctx, id)
}

// syncPaymentStatus mirrors an order's payment status onto its Payment row.
func syncPaymentStatus(tx *gorm.DB, orderID uuid.UUID, status string, now time.Time) error {
	switch status {
	case models.PaymentStatusPaid:
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ?", orderID).
			Update("status", models.PaymentStatusPaid).Error; err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("order_id = ? AND paid_at IS NULL", orderID).
			Update("paid_at", now).Error
	case models.PaymentStatusPending, models.PaymentStatusFailed:
		return tx.Model(&models.Payment{}).
			Where("order_id = ?", orderID).
			Update("status", status).Error
	}
	// refunded has no Payment counterpart
	return nil
}

// Cancel deletes a processing order owned by userID, returning its stock and
// removing its payment record.
func (s *OrderService) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	var number string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Order not found")
			}
			return err
		}

		if order.UserID != userID {
			return forbidden("Not authorized to cancel this order")
		}

		if order.Status != models.OrderStatusProcessing {
			return &Error{
				Status:  400,
				Message: fmt.Sprintf("Order cannot be cancelled. Current status: %s", order.Status),
				Data:    map[string]any{"status": order.Status},
			}
		}

		for _, item := range order.Items {
			res := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock + ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				log.Printf("[Order] product %s of order %s no longer exists, stock not restored", item.ProductID, order.OrderNumber)
			}
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Order{}, "id = ?", order.ID).Error; err != nil {
			return err
		}
		number = order.OrderNumber
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Order] %s cancelled by %s", number, userID)
	return nil
}

// Get loads an order with its items and payment. The payment may be nil.
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, *models.Payment, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, notFound("Order not found")
		}
		return nil, nil, err
	}

	payment, err := s.paymentFor(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return &order, payment, nil
}

func (s *OrderService) paymentFor(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListOrdersFilter narrows an order listing.
type ListOrdersFilter struct {
	UserID        *uuid.UUID
	Status        string
	PaymentStatus string
	Search        string
	Sort          string
	Page          utils.Pagination
}

var orderSorts = map[string]string{
	"newest":      "created_at desc",
	"oldest":      "created_at asc",
	"amount-high": "total_amount desc",
	"amount-low":  "total_amount asc",
}

// List returns one page of orders and the total number of matches.
func (s *OrderService) List(ctx context.Context, f ListOrdersFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})

	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		query = query.Where("payment_status = ?", f.PaymentStatus)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		query = query.Where("LOWER(order_number) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, ok := orderSorts[f.Sort]
	if !ok {
		order = orderSorts["newest"]
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "email", "image", "role", "created_at", "updated_at")
		}).
		Order(order).
		Limit(f.Page.Limit).Offset(f.Page.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// OrderStats summarizes orders for the admin dashboard.
type OrderStats struct {
	TotalOrders       int64            `json:"totalOrders"`
	OrdersByStatus    map[string]int64 `json:"ordersByStatus"`
	OrdersByPayment   map[string]int64 `json:"ordersByPaymentStatus"`
	TotalRevenue      float64          `json:"totalRevenue"`
	PendingRevenue    float64          `json:"pendingRevenue"`
	AverageOrderValue float64          `json:"averageOrderValue"`
	TodayOrders       int64            `json:"todayOrders"`
}

// Stats aggregates counts and revenue over all orders.
func (s *OrderService) Stats(ctx context.Context) (*OrderStats, error) {
	db := s.db.WithContext(ctx)
	stats := &OrderStats{
		OrdersByStatus:  map[string]int64{},
		OrdersByPayment: map[string]int64{},
	}

	if err := db.Model(&models.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, err
	}

	type groupCount struct {
		Label string
		Count int64
	}

	var byStatus []groupCount
	if err := db.Model(&models.Order{}).
		Select("status as label, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, g := range byStatus {
		stats.OrdersByStatus[g.Label] = g.Count
	}

	var byPayment []groupCount
	if err := db.Model(&models.Order{}).
		Select("payment_status as label, count(*) as count").
		Group("payment_status").
		Scan(&byPayment).Error; err != nil {
		return nil, err
	}
	for _, g := range byPayment {
		stats.OrdersByPayment[g.Label] = g.Count
	}

	if err := db.Model(&models.Order{}).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&stats.TotalRevenue).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.Order{}).
		Where("payment_status = ? AND status <> ?", models.PaymentStatusPending, models.OrderStatusCancelled).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&stats.PendingRevenue).Error; err != nil {
		return nil, err
	}

	if paid := stats.OrdersByPayment[models.PaymentStatusPaid]; paid > 0 {
		stats.AverageOrderValue = utils.RoundMoney(decimal.NewFromFloat(stats.TotalRevenue).Div(decimal.NewFromInt(paid)))
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.Order{}).
		Where("created_at >= ?", startOfDay).
		Count(&stats.TodayOrders).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// contactPhone returns the phone sent with the order, falling back to the one
// on the customer's default address.
func contactPhone(tx *gorm.DB, userID uuid.UUID, given string) (string, error) {
	if phone := strings.TrimSpace(given); phone != "" {
		return phone, nil
	}

	var addr models.UserAddress
	err := tx.Where("user_id = ? AND is_default = ?", userID, true).Limit(1).Find(&addr).Error
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(addr.Phone), nil
}
