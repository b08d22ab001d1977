package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whristorium/backend/internal/models"
)

// Models lists every table the shop owns, in creation order.
var Models = []any{
	&models.User{},
	&models.UserAddress{},
	&models.Product{},
	&models.ProductSpecification{},
	&models.Cart{},
	&models.CartItem{},
	&models.Favorite{},
	&models.Order{},
	&models.OrderItem{},
	&models.Payment{},
}

// Connect opens the shop database, creating it on the server first when it
// is missing, and migrates the schema.
func Connect(dsn string) (*gorm.DB, error) {
	if err := createIfMissing(dsn); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Println("[DB] connected and migrated")
	return conn, nil
}

// Migrate creates or updates the schema for every model.
func Migrate(conn *gorm.DB) error {
	for _, model := range Models {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("%T: %w", model, err)
		}
	}
	return nil
}

// maintenanceDSN points a postgres URL at the server's "postgres" database and
// returns the database name the URL originally asked for. ok is false for
// key=value DSNs and URLs without a database name.
func maintenanceDSN(dsn string) (admin, name string, ok bool) {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return "", "", false
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", false
	}
	name = strings.TrimPrefix(u.Path, "/")
	if name == "" || name == "postgres" {
		return "", "", false
	}

	u.Path = "/postgres"
	return u.String(), name, true
}

func createIfMissing(dsn string) error {
	admin, name, ok := maintenanceDSN(dsn)
	if !ok {
		return nil
	}

	server, err := sql.Open("postgres", admin)
	if err != nil {
		return err
	}
	defer server.Close()

	var found int
	err = server.QueryRow("SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&found)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	log.Printf("[DB] creating database %s", name)
	_, err = server.Exec("CREATE DATABASE " + pq.QuoteIdentifier(name))
	return err
}
