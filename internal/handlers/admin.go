package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tealeg/xlsx"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/services"
	"github.com/whristorium/backend/internal/utils"
)

const lowStockThreshold = 5

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	db     *gorm.DB
	orders *services.OrderService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, orders *services.OrderService) *AdminHandler {
	return &AdminHandler{db: db, orders: orders}
}

// Dashboard returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalProducts int64
	if err := h.db.Model(&models.Product{}).Count(&totalProducts).Error; err != nil {
		return err
	}

	var lowStock []models.Product
	if err := h.db.Where("stock <= ?", lowStockThreshold).
		Order("stock asc").
		Limit(10).
		Find(&lowStock).Error; err != nil {
		return err
	}

	orderStats, err := h.orders.Stats(c.UserContext())
	if err != nil {
		return err
	}

	var recent []models.Order
	if err := h.db.Preload("Items").
		Order("created_at desc").
		Limit(5).
		Find(&recent).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"totalUsers":       totalUsers,
			"totalProducts":    totalProducts,
			"lowStockProducts": lowStock,
			"orders":           orderStats,
			"recentOrders":     recent,
		},
	})
}

// ListUsers returns all registered users with pagination, search and order totals.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		q := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", q, q)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	type userStats struct {
		UserID     string
		OrderCount int64
		TotalSpent float64
	}

	var stats []userStats
	if err := h.db.Model(&models.Order{}).
		Select("user_id, count(*) as order_count, COALESCE(SUM(total_amount), 0) as total_spent").
		Group("user_id").
		Scan(&stats).Error; err != nil {
		return err
	}

	statsMap := make(map[string]userStats, len(stats))
	for _, s := range stats {
		statsMap[s.UserID] = s
	}

	type userResponse struct {
		models.User
		OrderCount int64   `json:"orderCount"`
		TotalSpent float64 `json:"totalSpent"`
	}

	result := make([]userResponse, len(users))
	for i, u := range users {
		result[i] = userResponse{User: u}
		if s, ok := statsMap[u.ID.String()]; ok {
			result[i].OrderCount = s.OrderCount
			result[i].TotalSpent = s.TotalSpent
		}
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       result,
		"pagination": pg.Meta(total),
	})
}

// GetUser returns one user with addresses.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.Preload("Addresses").First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": user})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UpdateUserRole grants or revokes the admin role.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req updateRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res := h.db.Model(&models.User{}).Where("id = ?", id).Update("role", req.Role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "role updated"})
}

// DeleteUser removes a user account together with the cart, favorites and
// addresses it owns. Orders are kept. Admins cannot delete themselves.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	callerID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	if id == callerID {
		return fiber.NewError(fiber.StatusBadRequest, "cannot delete your own account")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id IN (?)", tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", id)).
			Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		for _, owned := range []any{&models.Cart{}, &models.Favorite{}, &models.UserAddress{}} {
			if err := tx.Where("user_id = ?", id).Delete(owned).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.User{}, "id = ?", id)
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
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "user deleted"})
}

var orderExportHeaders = []string{
	"Order Number", "Created At", "Customer", "Email", "Phone", "Items",
	"Total Amount", "Payment Method", "Payment Status", "Status",
	"Transaction ID", "Tracking Number", "City",
}

// ExportOrders streams all orders matching the status filters as an xlsx workbook.
func (h *AdminHandler) ExportOrders(c *fiber.Ctx) error {
	query := h.db.Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if paymentStatus := c.Query("paymentStatus"); paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}

	var orders []models.Order
	if err := query.Preload("Items").Preload("User").
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return err
	}

	workbook, err := buildOrdersWorkbook(orders)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := workbook.Write(&buf); err != nil {
		return fmt.Errorf("write orders workbook: %w", err)
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().Format("20060102"))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(buf.Bytes())
}

func buildOrdersWorkbook(orders []models.Order) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		return nil, fmt.Errorf("create orders sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, title := range orderExportHeaders {
		header.AddCell().SetString(title)
	}

	for _, o := range orders {
		row := sheet.AddRow()
		customer, email := "", ""
		if o.User != nil {
			customer, email = o.User.Name, o.User.Email
		}

		items := make([]string, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		}

		row.AddCell().SetString(o.OrderNumber)
		row.AddCell().SetString(o.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(customer)
		row.AddCell().SetString(email)
		row.AddCell().SetString(o.Phone)
		row.AddCell().SetString(strings.Join(items, ", "))
		row.AddCell().SetFloat(o.TotalAmount)
		row.AddCell().SetString(o.PaymentMethod)
		row.AddCell().SetString(o.PaymentStatus)
		row.AddCell().SetString(o.Status)
		row.AddCell().SetString(o.TransactionID)
		row.AddCell().SetString(o.TrackingNumber)
		row.AddCell().SetString(o.ShippingAddress.City)
	}

	return file, nil
}
