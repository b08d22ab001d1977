package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/utils"
)

// ProductHandler manages the watch catalog.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

var productSorts = map[string]string{
	"newest":     "created_at desc",
	"price-low":  "price asc",
	"price-high": "price desc",
	"rating":     "rating desc",
	"name":       "name asc",
}

// ListProducts returns paginated products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{})

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	if brand := strings.TrimSpace(c.Query("brand")); brand != "" {
		query = query.Where("LOWER(brand) = ?", strings.ToLower(brand))
	}

	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		q := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(description) LIKE ?", q, q, q)
	}

	if c.Query("isNew") == "true" {
		query = query.Where("is_new = ?", true)
	}

	if c.Query("onSale") == "true" {
		query = query.Where("on_sale = ?", true)
	}

	if c.Query("inStock") == "true" {
		query = query.Where("stock > 0")
	}

	if minPrice := c.Query("minPrice"); minPrice != "" {
		if val, err := strconv.ParseFloat(minPrice, 64); err == nil {
			query = query.Where("price >= ?", val)
		}
	}

	if maxPrice := c.Query("maxPrice"); maxPrice != "" {
		if val, err := strconv.ParseFloat(maxPrice, 64); err == nil {
			query = query.Where("price <= ?", val)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	order, ok := productSorts[c.Query("sort")]
	if !ok {
		order = productSorts["newest"]
	}

	var products []models.Product
	if err := query.Order(order).
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// GetProduct loads a product with its specifications.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.db.Preload("Specifications", func(db *gorm.DB) *gorm.DB {
		return db.Order("display_order asc")
	}).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// ListBrands returns the distinct brands in the catalog.
func (h *ProductHandler) ListBrands(c *fiber.Ctx) error {
	var brands []string
	if err := h.db.Model(&models.Product{}).
		Where("brand <> ''").
		Distinct("brand").
		Order("brand asc").
		Pluck("brand", &brands).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": brands})
}

type specRequest struct {
	Label        string `json:"label" validate:"required"`
	Value        string `json:"value"`
	DisplayOrder int    `json:"displayOrder"`
}

type productRequest struct {
	Name           string                   `json:"name" validate:"required"`
	Description    string                   `json:"description"`
	Price          float64                  `json:"price" validate:"gt=0"`
	OriginalPrice  *float64                 `json:"originalPrice" validate:"omitempty,gte=0"`
	Category       string                   `json:"category" validate:"required,oneof=men women smart"`
	Brand          string                   `json:"brand" validate:"required"`
	Features       []string                 `json:"features"`
	Images         []string                 `json:"images"`
	IsNew          bool                     `json:"isNew"`
	OnSale         bool                     `json:"onSale"`
	Stock          int                      `json:"stock" validate:"gte=0"`
	Weight         models.ProductWeight     `json:"weight"`
	Dimensions     models.ProductDimensions `json:"dimensions"`
	Materials      models.ProductMaterials  `json:"materials"`
	Specifications []specRequest            `json:"specifications" validate:"dive"`
	Rating         float64                  `json:"rating" validate:"gte=0,lte=5"`
	ReviewCount    int                      `json:"reviewCount" validate:"gte=0"`
	SKU            string                   `json:"sku"`
}

// CreateProduct handles product creation.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	product := models.Product{
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Price:          req.Price,
		OriginalPrice:  req.OriginalPrice,
		Category:       req.Category,
		Brand:          strings.TrimSpace(req.Brand),
		Features:       models.StringList(cleanList(req.Features)),
		Images:         models.StringList(cleanList(req.Images)),
		IsNew:          req.IsNew,
		OnSale:         req.OnSale,
		Stock:          req.Stock,
		Weight:         req.Weight,
		Dimensions:     req.Dimensions,
		Materials:      req.Materials,
		Specifications: buildSpecifications(uuid.Nil, req.Specifications),
		Rating:         req.Rating,
		ReviewCount:    req.ReviewCount,
		SKU:            optionalString(req.SKU),
	}

	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

type updateProductRequest struct {
	Name           *string                   `json:"name" validate:"omitempty,min=1"`
	Description    *string                   `json:"description"`
	Price          *float64                  `json:"price" validate:"omitempty,gt=0"`
	OriginalPrice  *float64                  `json:"originalPrice" validate:"omitempty,gte=0"`
	Category       *string                   `json:"category" validate:"omitempty,oneof=men women smart"`
	Brand          *string                   `json:"brand"`
	Features       []string                  `json:"features"`
	Images         []string                  `json:"images"`
	IsNew          *bool                     `json:"isNew"`
	OnSale         *bool                     `json:"onSale"`
	Stock          *int                      `json:"stock" validate:"omitempty,gte=0"`
	Weight         *models.ProductWeight     `json:"weight"`
	Dimensions     *models.ProductDimensions `json:"dimensions"`
	Materials      *models.ProductMaterials  `json:"materials"`
	Specifications []specRequest             `json:"specifications" validate:"omitempty,dive"`
	Rating         *float64                  `json:"rating" validate:"omitempty,gte=0,lte=5"`
	ReviewCount    *int                      `json:"reviewCount" validate:"omitempty,gte=0"`
	SKU            *string                   `json:"sku"`
}

// UpdateProduct applies a partial update. Specifications, when sent, replace the old ones.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req updateProductRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.OriginalPrice != nil {
		updates["original_price"] = *req.OriginalPrice
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Brand != nil {
		updates["brand"] = strings.TrimSpace(*req.Brand)
	}
	if req.Features != nil {
		updates["features"] = models.StringList(cleanList(req.Features))
	}
	if req.Images != nil {
		updates["images"] = models.StringList(cleanList(req.Images))
	}
	if req.IsNew != nil {
		updates["is_new"] = *req.IsNew
	}
	if req.OnSale != nil {
		updates["on_sale"] = *req.OnSale
	}
	if req.Stock != nil {
		updates["stock"] = *req.Stock
	}
	if req.Weight != nil {
		updates["weight_value"] = req.Weight.Value
		updates["weight_unit"] = req.Weight.Unit
	}
	if req.Dimensions != nil {
		updates["dimensions_length"] = req.Dimensions.Length
		updates["dimensions_width"] = req.Dimensions.Width
		updates["dimensions_height"] = req.Dimensions.Height
		updates["dimensions_unit"] = req.Dimensions.Unit
	}
	if req.Materials != nil {
		updates["materials_case"] = req.Materials.Case
		updates["materials_strap"] = req.Materials.Strap
		updates["materials_glass"] = req.Materials.Glass
	}
	if req.Rating != nil {
		updates["rating"] = *req.Rating
	}
	if req.ReviewCount != nil {
		updates["review_count"] = *req.ReviewCount
	}
	if req.SKU != nil {
		updates["sku"] = optionalString(*req.SKU)
	}

	if len(updates) == 0 && req.Specifications == nil {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		if err := tx.First(&existing, "id = ?", id).Error; err != nil {
			return err
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}

		if req.Specifications != nil {
			if err := tx.Where("product_id = ?", id).Delete(&models.ProductSpecification{}).Error; err != nil {
				return err
			}
			if specs := buildSpecifications(id, req.Specifications); len(specs) > 0 {
				if err := tx.Create(&specs).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var product models.Product
	if err := h.db.Preload("Specifications").First(&product, "id = ?", id).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type updateStockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

// UpdateStock sets the stock counter of a product.
func (h *ProductHandler) UpdateStock(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req updateStockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res := h.db.Model(&models.Product{}).Where("id = ?", id).Update("stock", *req.Stock)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"id": id, "stock": *req.Stock}})
}

// DeleteProduct removes a product and its specifications. Cart and favorite
// entries keep their snapshot; order lines keep their captured price.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductSpecification{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func buildSpecifications(productID uuid.UUID, specs []specRequest) []models.ProductSpecification {
	result := make([]models.ProductSpecification, 0, len(specs))
	for i, s := range specs {
		order := s.DisplayOrder
		if order == 0 {
			order = i + 1
		}
		result = append(result, models.ProductSpecification{
			ProductID:    productID,
			Label:        strings.TrimSpace(s.Label),
			Value:        strings.TrimSpace(s.Value),
			DisplayOrder: order,
		})
	}
	return result
}

func cleanList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
