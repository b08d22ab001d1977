package handlers

import (
	"errors"
	"log"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/whristorium/backend/internal/services"
)

// PaymentHandler exposes the eSewa checkout flow.
type PaymentHandler struct {
	payments *services.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type orderIDRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// InitiateEsewa returns the signed form fields the storefront posts to eSewa.
func (h *PaymentHandler) InitiateEsewa(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}

	var req orderIDRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.payments.InitiateEsewa(c.UserContext(), req.OrderID, caller)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

// EsewaSuccess is the browser redirect target after checkout. It always
// answers with a redirect back to the storefront.
func (h *PaymentHandler) EsewaSuccess(c *fiber.Ctx) error {
	data := c.Query("data")
	if data == "" {
		return h.redirectFailure(c, "Missing payment response", "")
	}

	order, err := h.payments.CompleteEsewa(c.UserContext(), data)
	if err != nil {
		return h.redirectFailure(c, redirectMessage(err), "")
	}

	return c.Redirect(h.payments.FrontendURL("/payment/success", url.Values{
		"orderId": {order.ID.String()},
	}), fiber.StatusFound)
}

// EsewaFailure marks the order failed when the shopper abandoned checkout.
func (h *PaymentHandler) EsewaFailure(c *fiber.Ctx) error {
	orderID := c.Query("orderId")
	if id, err := uuid.Parse(orderID); err == nil {
		if err := h.payments.FailEsewa(c.UserContext(), id); err != nil {
			log.Printf("[Payment] failed to record eSewa failure for %s: %v", id, err)
		}
	} else {
		orderID = ""
	}

	return h.redirectFailure(c, "Payment was cancelled or failed", orderID)
}

// VerifyEsewa re-checks the gateway for an order whose callback never arrived.
func (h *PaymentHandler) VerifyEsewa(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}

	var req orderIDRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, payment, err := h.payments.VerifyEsewa(c.UserContext(), req.OrderID, caller)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Payment verified",
		"data":    fiber.Map{"order": order, "payment": payment},
	})
}

func (h *PaymentHandler) PaymentStatus(c *fiber.Ctx) error {
	caller, err := currentCaller(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}

	status, err := h.payments.Status(c.UserContext(), id, caller)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": status})
}

func (h *PaymentHandler) redirectFailure(c *fiber.Ctx, message, orderID string) error {
	query := url.Values{"error": {message}}
	if orderID != "" {
		query.Set("orderId", orderID)
	}
	return c.Redirect(h.payments.FrontendURL("/payment/failure", query), fiber.StatusFound)
}

func redirectMessage(err error) string {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	log.Printf("[Payment] eSewa callback failed: %v", err)
	return "Payment processing failed"
}
