package services

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/models"
	"github.com/whristorium/backend/internal/testutil"
	"github.com/whristorium/backend/internal/utils"
)

var testAddress = models.ShippingAddress{
	Name:    "Sita Sharma",
	Street:  "Durbar Marg 4",
	City:    "Kathmandu",
	Country: "Nepal",
}

func newOrderService(t *testing.T) (*OrderService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := NewOrderService(db, nil, 0.13)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC) }
	return svc, db
}

func placeOne(t *testing.T, svc *OrderService, userID, productID uuid.UUID, method string) *models.Order {
	t.Helper()
	order, _, err := svc.Place(context.Background(), PlaceOrderInput{
		UserID:          userID,
		Items:           []OrderLineInput{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   method,
		Phone:           "9800000000",
	})
	require.NoError(t, err)
	return order
}

func requireServiceError(t *testing.T, err error, status int) *Error {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := err.(*Error)
	require.True(t, ok, "expected *Error, got %T: %v", err, err)
	assert.Equal(t, status, svcErr.Status)
	return svcErr
}

func TestPlaceOrderAppliesTaxAndTakesStock(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "presage", 1000, 5)

	order, payment, err := svc.Place(context.Background(), PlaceOrderInput{
		UserID:          user.ID,
		Items:           []OrderLineInput{{ProductID: watch.ID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodEsewa,
		Phone:           " 9800000000 ",
	})
	require.NoError(t, err)

	assert.Equal(t, 1130.0, order.TotalAmount)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "9800000000", order.Phone)
	require.NotNil(t, order.DeliveryDate)
	assert.Equal(t, svc.now().Add(5*24*time.Hour), *order.DeliveryDate)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 1000.0, order.Items[0].Price)
	assert.Equal(t, "presage", order.Items[0].Name)

	require.NotNil(t, payment)
	assert.Equal(t, order.ID, payment.OrderID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, 1130.0, payment.Amount)

	assert.Equal(t, 4, testutil.Stock(t, db, watch.ID))
	assert.Regexp(t, regexp.MustCompile(`^WH-250314-\d{8}$`), order.OrderNumber)
}

func TestPlaceOrderClearsOrderedProductsFromCart(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	ordered := testutil.CreateProduct(t, db, "ordered", 100, 3)
	kept := testutil.CreateProduct(t, db, "kept", 200, 3)

	cart := models.Cart{UserID: user.ID}
	require.NoError(t, db.Create(&cart).Error)
	for _, p := range []*models.Product{ordered, kept} {
		require.NoError(t, db.Create(&models.CartItem{
			CartID: cart.ID, ProductID: p.ID, Quantity: 1, Product: p.Snapshot(), AddedAt: time.Now(),
		}).Error)
	}

	placeOne(t, svc, user.ID, ordered.ID, models.PaymentMethodCOD)

	var items []models.CartItem
	require.NoError(t, db.Where("cart_id = ?", cart.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ProductID)
}

func TestPlaceOrderFallsBackToDefaultAddressPhone(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "presage", 1000, 5)
	require.NoError(t, db.Create(&models.UserAddress{UserID: user.ID, Phone: "9811111111", City: "Lalitpur", IsDefault: true}).Error)

	order, _, err := svc.Place(context.Background(), PlaceOrderInput{
		UserID:          user.ID,
		Items:           []OrderLineInput{{ProductID: watch.ID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodCOD,
	})
	require.NoError(t, err)
	assert.Equal(t, "9811111111", order.Phone)

	other := testutil.CreateUser(t, db, models.RoleUser)
	order, _, err = svc.Place(context.Background(), PlaceOrderInput{
		UserID:          other.ID,
		Items:           []OrderLineInput{{ProductID: watch.ID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodCOD,
	})
	require.NoError(t, err)
	assert.Empty(t, order.Phone)
}

func TestPlaceOrderRollsBackStockWhenALineFails(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	first := testutil.CreateProduct(t, db, "first", 500, 5)
	scarce := testutil.CreateProduct(t, db, "scarce", 800, 1)

	_, _, err := svc.Place(context.Background(), PlaceOrderInput{
		UserID: user.ID,
		Items: []OrderLineInput{
			{ProductID: first.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 3},
		},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodCOD,
		Phone:           "9800000000",
	})
	svcErr := requireServiceError(t, err, http.StatusBadRequest)
	assert.Contains(t, svcErr.Message, "Insufficient stock for scarce")
	data, ok := svcErr.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, data["available"])
	assert.Equal(t, 3, data["requested"])

	assert.Equal(t, 5, testutil.Stock(t, db, first.ID))
	assert.Equal(t, 1, testutil.Stock(t, db, scarce.ID))

	var orders, payments int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Zero(t, orders)
	assert.Zero(t, payments)
}

func TestPlaceOrderRejectsUnknownReferences(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 100, 1)

	_, _, err := svc.Place(context.Background(), PlaceOrderInput{
		UserID:          uuid.New(),
		Items:           []OrderLineInput{{ProductID: watch.ID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodCOD,
	})
	svcErr := requireServiceError(t, err, http.StatusNotFound)
	assert.Equal(t, "User not found", svcErr.Message)

	_, _, err = svc.Place(context.Background(), PlaceOrderInput{
		UserID:          user.ID,
		Items:           []OrderLineInput{{ProductID: uuid.New(), Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentMethodCOD,
	})
	svcErr = requireServiceError(t, err, http.StatusNotFound)
	assert.Contains(t, svcErr.Message, "Product not found")
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 100, 1)

	cases := []struct {
		name string
		in   PlaceOrderInput
	}{
		{"no items", PlaceOrderInput{UserID: user.ID, PaymentMethod: models.PaymentMethodCOD}},
		{"bad method", PlaceOrderInput{UserID: user.ID, PaymentMethod: "card", Items: []OrderLineInput{{ProductID: watch.ID, Quantity: 1}}}},
		{"zero quantity", PlaceOrderInput{UserID: user.ID, PaymentMethod: models.PaymentMethodCOD, Items: []OrderLineInput{{ProductID: watch.ID, Quantity: 0}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Place(context.Background(), tc.in)
			requireServiceError(t, err, http.StatusBadRequest)
		})
	}
	assert.Equal(t, 1, testutil.Stock(t, db, watch.ID))
}

func TestCancelOrderRestoresStockAndDeletesRecords(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 5)
	order := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodEsewa)
	require.Equal(t, 4, testutil.Stock(t, db, watch.ID))

	require.NoError(t, svc.Cancel(context.Background(), order.ID, user.ID))

	assert.Equal(t, 5, testutil.Stock(t, db, watch.ID))
	var orders, items, payments int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&items).Error)
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Zero(t, payments)
}

func TestCancelOrderRequiresOwnerAndProcessingStatus(t *testing.T) {
	svc, db := newOrderService(t)
	owner := testutil.CreateUser(t, db, models.RoleUser)
	stranger := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 5)
	order := placeOne(t, svc, owner.ID, watch.ID, models.PaymentMethodCOD)

	err := svc.Cancel(context.Background(), order.ID, stranger.ID)
	requireServiceError(t, err, http.StatusForbidden)

	shipped := models.OrderStatusShipped
	_, _, err = svc.Update(context.Background(), order.ID, UpdateOrderInput{Status: &shipped})
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), order.ID, owner.ID)
	svcErr := requireServiceError(t, err, http.StatusBadRequest)
	assert.Equal(t, "Order cannot be cancelled. Current status: shipped", svcErr.Message)

	assert.Equal(t, 4, testutil.Stock(t, db, watch.ID))
	_, _, err = svc.Get(context.Background(), order.ID)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), uuid.New(), owner.ID)
	requireServiceError(t, err, http.StatusNotFound)
}

func TestUpdateCashOnDeliveryMarkedPaidOnDelivery(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 5)
	order := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodCOD)

	delivered := models.OrderStatusDelivered
	tracking := " NP123 "
	updated, payment, err := svc.Update(context.Background(), order.ID, UpdateOrderInput{
		Status:         &delivered,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDelivered, updated.Status)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, "NP123", updated.TrackingNumber)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.NotNil(t, payment.PaidAt)
}

func TestUpdateEsewaDeliveryLeavesPaymentAlone(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 5)
	order := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodEsewa)

	delivered := models.OrderStatusDelivered
	updated, payment, err := svc.Update(context.Background(), order.ID, UpdateOrderInput{Status: &delivered})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Nil(t, payment.PaidAt)
}

func TestUpdateOrderRejectsBadInput(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 5)
	order := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodCOD)

	bogus := "lost"
	_, _, err := svc.Update(context.Background(), order.ID, UpdateOrderInput{Status: &bogus})
	requireServiceError(t, err, http.StatusBadRequest)

	_, _, err = svc.Update(context.Background(), order.ID, UpdateOrderInput{PaymentStatus: &bogus})
	requireServiceError(t, err, http.StatusBadRequest)

	_, _, err = svc.Update(context.Background(), order.ID, UpdateOrderInput{})
	svcErr := requireServiceError(t, err, http.StatusBadRequest)
	assert.Equal(t, "No fields to update", svcErr.Message)

	shipped := models.OrderStatusShipped
	_, _, err = svc.Update(context.Background(), uuid.New(), UpdateOrderInput{Status: &shipped})
	requireServiceError(t, err, http.StatusNotFound)
}

func TestListOrdersFiltersAndPaginates(t *testing.T) {
	svc, db := newOrderService(t)
	alice := testutil.CreateUser(t, db, models.RoleUser)
	bob := testutil.CreateUser(t, db, models.RoleUser)
	cheap := testutil.CreateProduct(t, db, "cheap", 100, 10)
	dear := testutil.CreateProduct(t, db, "dear", 900, 10)

	placeOne(t, svc, alice.ID, cheap.ID, models.PaymentMethodCOD)
	placeOne(t, svc, alice.ID, dear.ID, models.PaymentMethodEsewa)
	bobs := placeOne(t, svc, bob.ID, cheap.ID, models.PaymentMethodCOD)

	orders, total, err := svc.List(context.Background(), ListOrdersFilter{
		UserID: &alice.ID,
		Sort:   "amount-high",
		Page:   utils.Pagination{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, orders, 2)
	assert.Equal(t, 1017.0, orders[0].TotalAmount)
	assert.Equal(t, 113.0, orders[1].TotalAmount)
	require.NotNil(t, orders[0].User)
	assert.Equal(t, alice.Email, orders[0].User.Email)

	orders, total, err = svc.List(context.Background(), ListOrdersFilter{
		Search: bobs.OrderNumber,
		Page:   utils.Pagination{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, bobs.ID, orders[0].ID)

	orders, total, err = svc.List(context.Background(), ListOrdersFilter{
		Page: utils.Pagination{Page: 2, Limit: 2, Offset: 2},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, orders, 1)
}

func TestOrderStats(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 1000, 10)

	paid := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodCOD)
	placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodEsewa)

	delivered := models.OrderStatusDelivered
	_, _, err := svc.Update(context.Background(), paid.ID, UpdateOrderInput{Status: &delivered})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalOrders)
	assert.EqualValues(t, 1, stats.OrdersByStatus[models.OrderStatusDelivered])
	assert.EqualValues(t, 1, stats.OrdersByStatus[models.OrderStatusProcessing])
	assert.EqualValues(t, 1, stats.OrdersByPayment[models.PaymentStatusPaid])
	assert.InDelta(t, 1130.0, stats.TotalRevenue, 0.001)
	assert.InDelta(t, 1130.0, stats.PendingRevenue, 0.001)
	assert.InDelta(t, 1130.0, stats.AverageOrderValue, 0.001)
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	now := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		number, err := GenerateOrderNumber(now)
		require.NoError(t, err)
		assert.Regexp(t, `^WH-241201-\d{8}$`, number)
		seen[number] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestPlacedOrderNumbersAreUnique(t *testing.T) {
	svc, db := newOrderService(t)
	user := testutil.CreateUser(t, db, models.RoleUser)
	watch := testutil.CreateProduct(t, db, "watch", 10, 100)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		order := placeOne(t, svc, user.ID, watch.ID, models.PaymentMethodCOD)
		assert.False(t, seen[order.OrderNumber], "duplicate %s", order.OrderNumber)
		seen[order.OrderNumber] = true
	}
}
