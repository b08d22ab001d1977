package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
)

// FavoriteHandler manages the caller's favorite products.
type FavoriteHandler struct {
	db *gorm.DB
}

func NewFavoriteHandler(db *gorm.DB) *FavoriteHandler {
	return &FavoriteHandler{db: db}
}

func (h *FavoriteHandler) ListFavorites(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	favorites := []models.Favorite{}
	if err := h.db.Where("user_id = ?", userID).Order("created_at desc").Find(&favorites).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": favorites})
}

type favoriteRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
}

func (h *FavoriteHandler) AddFavorite(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req favoriteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var count int64
	if err := h.db.Model(&models.Favorite{}).
		Where("user_id = ? AND product_id = ?", userID, product.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fiber.NewError(fiber.StatusConflict, "product already in favorites")
	}

	favorite := models.Favorite{
		UserID:    userID,
		ProductID: product.ID,
		Product:   product.Snapshot(),
	}
	if err := h.db.Create(&favorite).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": favorite})
}

func (h *FavoriteHandler) RemoveFavorite(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := parseIDParam(c, "productId")
	if err != nil {
		return err
	}

	res := h.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.Favorite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "favorite not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Removed from favorites"})
}

// CheckFavorite reports whether the product is in the caller's favorites.
func (h *FavoriteHandler) CheckFavorite(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := parseIDParam(c, "productId")
	if err != nil {
		return err
	}

	var count int64
	if err := h.db.Model(&models.Favorite{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"isFavorite": count > 0}})
}
