// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whristorium/backend/internal/database"
	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/utils"
)

// Password is the plain text password of every fixture user.
const Password = "secret123"

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps the memory database alive and shared by transactions.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.PasswordCost = bcrypt.MinCost

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(conn))
	return conn
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, role string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(Password)
	require.NoError(t, err)

	id := uuid.New()
	user := &models.User{
		BaseModel:    models.BaseModel{ID: id},
		Name:         "User " + id.String()[:8],
		Email:        fmt.Sprintf("%s@example.com", id.String()[:8]),
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateProduct inserts a men's watch with the given price and stock.
func CreateProduct(t *testing.T, db *gorm.DB, name string, price float64, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:     name,
		Price:    price,
		Category: models.CategoryMen,
		Brand:    "Seiko",
		Images:   models.StringList{"/images/" + name + ".jpg"},
		Stock:    stock,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// Stock reloads the stock counter of a product.
func Stock(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()

	var product models.Product
	require.NoError(t, db.Select("id", "stock").First(&product, "id = ?", productID).Error)
	return product.Stock
}
