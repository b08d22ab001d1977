package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/services"
	"github.com/whristorium/backend/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type orderProductRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

type createOrderRequest struct {
	UserID          *uuid.UUID             `json:"userId"`
	Products        []orderProductRequest  `json:"products" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required,oneof=esewa cod"`
	Phone           string                 `json:"phone"`
	Notes           string                 `json:"notes"`
}

// CreateOrder places an order for the caller. Admins may place one for another user.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}

	var req createOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	userID := caller.UserID
	if req.UserID != nil && *req.UserID != uuid.Nil && *req.UserID != caller.UserID {
		if !caller.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, "Not authorized to place orders for another user")
		}
		userID = *req.UserID
	}

	items := make([]services.OrderLineInput, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, services.OrderLineInput{ProductID: p.ProductID, Quantity: p.Quantity})
	}

	order, payment, err := h.orders.Place(c.UserContext(), services.PlaceOrderInput{
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Phone:           req.Phone,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Order placed successfully",
		"data":    fiber.Map{"order": order, "payment": payment},
	})
}

// ListOrders returns every order for admins.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	return h.list(c, nil)
}

// ListUserOrders returns the orders of one user. Owners and admins only.
func (h *OrderHandler) ListUserOrders(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return err
	}
	if userID != caller.UserID && !caller.IsAdmin {
		return fiber.NewError(fiber.StatusForbidden, "Not authorized to view these orders")
	}
	return h.list(c, &userID)
}

func (h *OrderHandler) list(c *fiber.Ctx, userID *uuid.UUID) error {
	pg := utils.ParsePagination(c)
	orders, total, err := h.orders.List(c.UserContext(), services.ListOrdersFilter{
		UserID:        userID,
		Status:        c.Query("status"),
		PaymentStatus: c.Query("paymentStatus"),
		Search:        c.Query("search"),
		Sort:          c.Query("sort"),
		Page:          pg,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

func (h *OrderHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.orders.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// GetOrder returns an order with its payment. Owners and admins only.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	order, payment, err := h.orders.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin {
		return fiber.NewError(fiber.StatusForbidden, "Not authorized to view this order")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"order": order, "payment": payment}})
}

type updateOrderRequest struct {
	Status         *string    `json:"status" validate:"omitempty,oneof=processing shipped delivered cancelled"`
	PaymentStatus  *string    `json:"paymentStatus" validate:"omitempty,oneof=pending paid failed refunded"`
	TrackingNumber *string    `json:"trackingNumber"`
	Notes          *string    `json:"notes"`
	TransactionID  *string    `json:"transactionId"`
	DeliveryDate   *time.Time `json:"deliveryDate"`
}

// UpdateOrder applies an admin's partial update.
func (h *OrderHandler) UpdateOrder(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req updateOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, payment, err := h.orders.Update(c.UserContext(), id, services.UpdateOrderInput{
		Status:         req.Status,
		PaymentStatus:  req.PaymentStatus,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
		TransactionID:  req.TransactionID,
		DeliveryDate:   req.DeliveryDate,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order updated successfully",
		"data":    fiber.Map{"order": order, "payment": payment},
	})
}

type cancelOrderRequest struct {
	UserID *uuid.UUID `json:"userId"`
}

// CancelOrder deletes a processing order and returns its stock.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req cancelOrderRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	userID := caller.UserID
	if req.UserID != nil && *req.UserID != uuid.Nil && *req.UserID != caller.UserID {
		if !caller.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, "Not authorized to cancel this order")
		}
		userID = *req.UserID
	}

	if err := h.orders.Cancel(c.UserContext(), id, userID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "Order cancelled successfully"})
}
