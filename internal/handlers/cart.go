package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whristorium/backend/internal/models"
)

// CartHandler serves the caller's own cart. Concurrent requests against the
// same cart are not coordinated; the last write wins.
type CartHandler struct {
	db *gorm.DB
}

func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{db: db}
}

type cartResponse struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"userId"`
	Items       []models.CartItem `json:"items"`
	TotalItems  int               `json:"totalItems"`
	TotalAmount float64           `json:"totalAmount"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func newCartResponse(cart models.Cart) cartResponse {
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	return cartResponse{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Items:       items,
		TotalItems:  cart.TotalItems(),
		TotalAmount: cart.TotalAmount(),
		UpdatedAt:   cart.UpdatedAt,
	}
}

// GetCart returns the caller's cart, or an empty one when nothing was added yet.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	cart, err := h.loadCart(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": true, "data": newCartResponse(models.Cart{UserID: userID})})
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": newCartResponse(*cart)})
}

type addToCartRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"omitempty,min=1"`
}

// AddToCart inserts a line or increments an existing one, capping at stock.
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req addToCartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}
	if product.Stock <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "product is out of stock")
	}

	cart, err := h.ensureCart(userID)
	if err != nil {
		return err
	}

	var item models.CartItem
	err = h.db.Where("cart_id = ? AND product_id = ?", cart.ID, product.ID).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: product.ID,
			Quantity:  min(req.Quantity, product.Stock),
			Product:   product.Snapshot(),
			AddedAt:   time.Now(),
		}
		if err := h.db.Create(&item).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		item.Quantity = min(item.Quantity+req.Quantity, product.Stock)
		item.Product = product.Snapshot()
		if err := h.db.Save(&item).Error; err != nil {
			return err
		}
	}

	return h.respondWithCart(c, userID)
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// UpdateCartItem sets the quantity of a line. Zero removes it.
func (h *CartHandler) UpdateCartItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := parseIDParam(c, "productId")
	if err != nil {
		return err
	}

	var req updateCartItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	item, err := h.findItem(userID, productID)
	if err != nil {
		return err
	}

	if *req.Quantity == 0 {
		if err := h.db.Delete(item).Error; err != nil {
			return err
		}
		return h.respondWithCart(c, userID)
	}

	if *req.Quantity > item.Quantity {
		var product models.Product
		if err := h.db.Select("id", "stock").First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "product not found")
			}
			return err
		}
		if *req.Quantity > product.Stock {
			return fiber.NewError(fiber.StatusBadRequest, "requested quantity exceeds available stock")
		}
	}

	if err := h.db.Model(item).Update("quantity", *req.Quantity).Error; err != nil {
		return err
	}

	return h.respondWithCart(c, userID)
}

// RemoveCartItem drops one product from the cart.
func (h *CartHandler) RemoveCartItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := parseIDParam(c, "productId")
	if err != nil {
		return err
	}

	item, err := h.findItem(userID, productID)
	if err != nil {
		return err
	}
	if err := h.db.Delete(item).Error; err != nil {
		return err
	}

	return h.respondWithCart(c, userID)
}

// ClearCart empties the caller's cart.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.db.Where("cart_id IN (?)", h.userCartID(userID)).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": newCartResponse(models.Cart{UserID: userID})})
}

func (h *CartHandler) loadCart(userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := h.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("added_at asc")
	}).Where("user_id = ?", userID).First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (h *CartHandler) ensureCart(userID uuid.UUID) (*models.Cart, error) {
	fresh := models.Cart{UserID: userID}
	if err := h.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := h.db.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (h *CartHandler) userCartID(userID uuid.UUID) *gorm.DB {
	return h.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)
}

func (h *CartHandler) findItem(userID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := h.db.Where("product_id = ? AND cart_id IN (?)", productID, h.userCartID(userID)).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "item not found in cart")
		}
		return nil, err
	}
	return &item, nil
}

func (h *CartHandler) respondWithCart(c *fiber.Ctx, userID uuid.UUID) error {
	cart, err := h.loadCart(userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": newCartResponse(*cart)})
}
