package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentMethodEsewa = "esewa"
	PaymentMethodCOD   = "cod"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Order is a placed purchase. Line prices are captured at placement time.
type Order struct {
	BaseModel
	OrderNumber     string          `gorm:"uniqueIndex;not null" json:"orderNumber"`
	UserID          uuid.UUID       `gorm:"type:uuid;index" json:"userId"`
	User            *User           `gorm:"-:migration" json:"user,omitempty"`
	Phone           string          `json:"phone"`
	Items           []OrderItem     `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	TotalAmount     float64         `json:"totalAmount"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   string          `gorm:"index;default:pending" json:"paymentStatus"`
	Status          string          `gorm:"index;default:processing" json:"status"`
	TransactionID   string          `json:"transactionId,omitempty"`
	PaymentResponse RawJSON         `gorm:"type:jsonb" json:"paymentResponse,omitempty"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	DeliveryDate    *time.Time      `json:"deliveryDate,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `gorm:"type:uuid;index" json:"orderId"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"productId"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
}

// ShippingAddress is a snapshot of the address an order ships to.
type ShippingAddress struct {
	Name     string `json:"name" validate:"required"`
	Street   string `json:"street" validate:"required"`
	City     string `json:"city" validate:"required"`
	District string `json:"district"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

// Payment tracks the money side of exactly one order.
type Payment struct {
	BaseModel
	OrderID         uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"orderId"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          string          `gorm:"default:pending" json:"status"`
	Amount          float64         `json:"amount"`
	TransactionID   string          `json:"transactionId,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	GatewayResponse RawJSON         `gorm:"type:jsonb" json:"gatewayResponse,omitempty"`
}

func ValidPaymentMethod(v string) bool {
	return v == PaymentMethodEsewa || v == PaymentMethodCOD
}

func ValidPaymentStatus(v string) bool {
	switch v {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func ValidOrderStatus(v string) bool {
	switch v {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}
