package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
)

const orderNumberAttempts = 5

// GenerateOrderNumber builds "WH-" + YYMMDD + "-" + the last five digits of
// the epoch milliseconds + three random digits.
func GenerateOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WH-%s-%05d%03d", now.Format("060102"), now.UnixMilli()%100000, n.Int64()), nil
}

// nextOrderNumber draws order numbers until one is not taken yet. The unique
// index on orders.order_number still guards against concurrent writers.
func nextOrderNumber(tx *gorm.DB, now time.Time) (string, error) {
	for i := 0; i < orderNumberAttempts; i++ {
		number, err := GenerateOrderNumber(now)
		if err != nil {
			return "", err
		}

		var count int64
		if err := tx.Model(&models.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", errors.New("could not allocate a unique order number")
}
