package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart holds the items a user intends to buy. One cart per user.
type Cart struct {
	BaseModel
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"userId"`
	Items  []CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

type CartItem struct {
	BaseModel
	CartID    uuid.UUID       `gorm:"type:uuid;index" json:"cartId"`
	ProductID uuid.UUID       `gorm:"type:uuid;index" json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   ProductSnapshot `gorm:"embedded;embeddedPrefix:product_" json:"product"`
	AddedAt   time.Time       `json:"addedAt"`
}

// TotalItems sums the quantities of all lines.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Favorite marks a product a user wants to keep an eye on.
type Favorite struct {
	BaseModel
	UserID    uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_favorite_user_product" json:"userId"`
	ProductID uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_favorite_user_product" json:"productId"`
	Product   ProductSnapshot `gorm:"embedded;embeddedPrefix:product_" json:"product"`
}

// TotalAmount sums snapshot price times quantity, rounded to cents.
func (c *Cart) TotalAmount() float64 {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(decimal.NewFromFloat(item.Product.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2).InexactFloat64()
}
