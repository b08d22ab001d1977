package database

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whristorium/backend/internal/models"
)

func TestMaintenanceDSN(t *testing.T) {
	admin, name, ok := maintenanceDSN("postgres://app:pw@db:5432/whristorium?sslmode=disable")
	require.True(t, ok)
	assert.Equal(t, "whristorium", name)
	assert.Equal(t, "postgres://app:pw@db:5432/postgres?sslmode=disable", admin)

	for _, dsn := range []string{
		"host=db user=app dbname=whristorium",
		"postgres://app:pw@db:5432",
		"postgresql://app:pw@db:5432/postgres",
	} {
		_, _, ok := maintenanceDSN(dsn)
		assert.False(t, ok, dsn)
	}
}

func TestMigrateStoresProductLists(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(conn))
	for _, model := range Models {
		assert.True(t, conn.Migrator().HasTable(model), "%T", model)
	}

	product := models.Product{
		Name:     "Presage",
		Price:    1000,
		Category: "men",
		Brand:    "Seiko",
		Features: models.StringList{"automatic", "sapphire, crystal"},
		Images:   models.StringList{"/img/presage.jpg"},
	}
	require.NoError(t, conn.Create(&product).Error)

	var loaded models.Product
	require.NoError(t, conn.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, product.Features, loaded.Features)
	assert.Equal(t, "/img/presage.jpg", loaded.MainImage)
}
