package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gainzy/api/internal/domain"
)

var testShippingAddress = domain.ShippingAddress{
	FullName: "Nguyen Van A",
	Phone:    "0900000001",
	Street:   "12 Ly Thuong Kiet",
	Ward:     "Ward 7",
	District: "District 3",
	City:     "Ho Chi Minh City",
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type orderServiceFixture struct {
	service  OrderService
	products *memProductRepo
	carts    *memCartRepo
	orders   *memOrderRepo
	counters *memCounterRepo
	events   *capturedOrderEvents
	now      time.Time
}

func newOrderServiceFixture(t *testing.T, products []domain.Product, carts []domain.Cart, orders []domain.Order) *orderServiceFixture {
	t.Helper()

	fixture := &orderServiceFixture{
		products: newMemProductRepo(products...),
		carts:    newMemCartRepo(carts...),
		orders:   newMemOrderRepo(orders...),
		counters: newMemCounterRepo(),
		events:   &capturedOrderEvents{},
		now:      time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
	}

	service, err := NewOrderService(OrderServiceDeps{
		Orders:      fixture.orders,
		Products:    fixture.products,
		Carts:       fixture.carts,
		Counters:    fixture.counters,
		Clock:       fixedClock(fixture.now),
		IDGenerator: sequentialIDs("OID"),
		Events:      fixture.events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	fixture.service = service
	return fixture
}

func testProduct(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    price,
		Stock:    stock,
		IsActive: true,
		Images:   []string{"https://cdn.example.com/" + id + ".jpg"},
	}
}

func TestPlaceOrderSnapshotsCartAndConsumesStock(t *testing.T) {
	products := []domain.Product{
		testProduct("prod_a", 120000, 10),
		testProduct("prod_b", 55000, 4),
	}
	cart := domain.Cart{
		UserID: "user_1",
		Items: []domain.CartItem{
			{ProductID: "prod_a", Quantity: 2, UnitPrice: 100000},
			{ProductID: "prod_b", Quantity: 1, UnitPrice: 55000},
		},
	}
	fixture := newOrderServiceFixture(t, products, []domain.Cart{cart}, nil)

	order, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		ShippingAddress: testShippingAddress,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// Snapshot keeps the cart's stored unit price, not the current catalog price.
	if got := order.Items[0].UnitPrice; got != 100000 {
		t.Fatalf("item unit price = %d, want cart snapshot 100000", got)
	}
	if order.ItemsPrice != 2*100000+55000 {
		t.Fatalf("items price = %d, want 255000", order.ItemsPrice)
	}
	if order.TotalPrice != order.ItemsPrice+defaultShippingPrice {
		t.Fatalf("total price = %d, want items plus default shipping", order.TotalPrice)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("new order status = %s/%s, want pending/pending", order.Status, order.PaymentStatus)
	}
	if order.OrderNumber != "ORD202603140001" {
		t.Fatalf("order number = %q", order.OrderNumber)
	}

	prodA := fixture.products.products["prod_a"]
	if prodA.Stock != 8 || prodA.Sold != 2 {
		t.Fatalf("prod_a stock/sold = %d/%d, want 8/2", prodA.Stock, prodA.Sold)
	}
	prodB := fixture.products.products["prod_b"]
	if prodB.Stock != 3 || prodB.Sold != 1 {
		t.Fatalf("prod_b stock/sold = %d/%d, want 3/1", prodB.Stock, prodB.Sold)
	}

	// Checkout empties the cart but the cart itself survives.
	clearedCart, ok := fixture.carts.carts["user_1"]
	if !ok {
		t.Fatal("cart document should survive checkout")
	}
	if len(clearedCart.Items) != 0 {
		t.Fatalf("cart items = %+v, want emptied", clearedCart.Items)
	}
	if len(fixture.events.events) != 1 || fixture.events.events[0].Type != orderEventPlaced {
		t.Fatalf("events = %+v, want one %s", fixture.events.events, orderEventPlaced)
	}
}

func TestPlaceOrderNumberUsesDailySequence(t *testing.T) {
	products := []domain.Product{testProduct("prod_a", 120000, 20000)}
	cart := domain.Cart{
		UserID: "user_1",
		Items:  []domain.CartItem{{ProductID: "prod_a", Quantity: 1, UnitPrice: 120000}},
	}
	fixture := newOrderServiceFixture(t, products, []domain.Cart{cart}, nil)

	// A busy day: 9999 orders already placed. The next number must keep
	// counting instead of wrapping back to 0000.
	fixture.counters.counters["orders-20260314"] = 9999

	order, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		ShippingAddress: testShippingAddress,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.OrderNumber != "ORD2026031410000" {
		t.Fatalf("order number = %q, want ORD2026031410000", order.OrderNumber)
	}
	if _, ok := fixture.counters.counters["orders-20260314"]; !ok {
		t.Fatal("sequence should be keyed by day")
	}
}

func TestPlaceOrderIsAllOrNothing(t *testing.T) {
	products := []domain.Product{
		testProduct("prod_a", 120000, 10),
		testProduct("prod_b", 55000, 1),
	}
	cart := domain.Cart{
		UserID: "user_1",
		Items: []domain.CartItem{
			{ProductID: "prod_a", Quantity: 2, UnitPrice: 120000},
			{ProductID: "prod_b", Quantity: 3, UnitPrice: 55000},
		},
	}
	fixture := newOrderServiceFixture(t, products, []domain.Cart{cart}, nil)

	_, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		ShippingAddress: testShippingAddress,
	})
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("PlaceOrder error = %v, want ErrOrderInsufficientStock", err)
	}

	// Validation of the second line fails before any stock moves.
	prodA := fixture.products.products["prod_a"]
	if prodA.Stock != 10 || prodA.Sold != 0 {
		t.Fatalf("prod_a stock/sold = %d/%d, want untouched 10/0", prodA.Stock, prodA.Sold)
	}
	if len(fixture.orders.orders) != 0 {
		t.Fatal("no order should be persisted")
	}
	if _, ok := fixture.carts.carts["user_1"]; !ok {
		t.Fatal("cart should survive a failed checkout")
	}
	if len(fixture.events.events) != 0 {
		t.Fatal("no event should be published for a failed checkout")
	}
}

func TestPlaceOrderRejectsEmptyCartAndInactiveProduct(t *testing.T) {
	inactive := testProduct("prod_x", 90000, 5)
	inactive.IsActive = false

	fixture := newOrderServiceFixture(t,
		[]domain.Product{inactive},
		[]domain.Cart{
			{UserID: "user_empty", Items: nil},
			{UserID: "user_inactive", Items: []domain.CartItem{{ProductID: "prod_x", Quantity: 1, UnitPrice: 90000}}},
		},
		nil,
	)

	_, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_empty",
		ShippingAddress: testShippingAddress,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("empty cart error = %v, want ErrOrderInvalidInput", err)
	}

	_, err = fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_inactive",
		ShippingAddress: testShippingAddress,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("inactive product error = %v, want ErrOrderInvalidInput", err)
	}
}

func TestPlaceOrderValidatesShippingAddress(t *testing.T) {
	fixture := newOrderServiceFixture(t, nil, nil, nil)

	addr := testShippingAddress
	addr.Phone = ""
	addr.City = "  "

	_, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		ShippingAddress: addr,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("error = %v, want ErrOrderInvalidInput", err)
	}
}

func TestPlaceOrderEventPublishFailureDoesNotFailCheckout(t *testing.T) {
	fixture := newOrderServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Cart{{UserID: "user_1", Items: []domain.CartItem{{ProductID: "prod_a", Quantity: 1, UnitPrice: 120000}}}},
		nil,
	)
	fixture.events.failWith = errors.New("broker down")

	if _, err := fixture.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		ShippingAddress: testShippingAddress,
	}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
}

func placedOrder(id, userID string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "ORD202603140042",
		UserID:      userID,
		Items: []domain.OrderItem{
			{ProductID: "prod_a", Name: "Product prod_a", UnitPrice: 120000, Quantity: 2},
		},
		ItemsPrice:    240000,
		ShippingPrice: defaultShippingPrice,
		TotalPrice:    240000 + defaultShippingPrice,
		Status:        status,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     time.Date(2026, time.March, 13, 8, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, time.March, 13, 8, 0, 0, 0, time.UTC),
	}
}

func TestCancelRestoresStockExactly(t *testing.T) {
	product := testProduct("prod_a", 120000, 8)
	product.Sold = 2

	fixture := newOrderServiceFixture(t,
		[]domain.Product{product},
		nil,
		[]domain.Order{placedOrder("ord_1", "user_1", domain.OrderStatusPending)},
	)

	order, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "user_1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", order.Status)
	}
	if order.CancelledAt == nil || !order.CancelledAt.Equal(fixture.now) {
		t.Fatalf("cancelledAt = %v, want %v", order.CancelledAt, fixture.now)
	}

	// Exact inverse of checkout: stock returns, sold drops.
	prodA := fixture.products.products["prod_a"]
	if prodA.Stock != 10 || prodA.Sold != 0 {
		t.Fatalf("stock/sold = %d/%d, want 10/0", prodA.Stock, prodA.Sold)
	}
	if len(fixture.events.events) != 1 || fixture.events.events[0].Type != orderEventCancelled {
		t.Fatalf("events = %+v, want one %s", fixture.events.events, orderEventCancelled)
	}
}

func TestCancelGuards(t *testing.T) {
	fixture := newOrderServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 8)},
		nil,
		[]domain.Order{
			placedOrder("ord_pending", "user_1", domain.OrderStatusPending),
			placedOrder("ord_shipped", "user_1", domain.OrderStatusShipped),
			placedOrder("ord_cancelled", "user_1", domain.OrderStatusCancelled),
		},
	)

	// Non-owner sees not found, not forbidden, to avoid leaking existence.
	_, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_pending", UserID: "user_2"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("non-owner cancel error = %v, want ErrOrderNotFound", err)
	}

	_, err = fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_shipped", UserID: "user_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("shipped cancel error = %v, want ErrOrderInvalidState", err)
	}

	// A second cancel sees the cancelled status and must not reverse stock twice.
	_, err = fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_cancelled", UserID: "user_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("repeat cancel error = %v, want ErrOrderInvalidState", err)
	}
	prodA := fixture.products.products["prod_a"]
	if prodA.Stock != 8 {
		t.Fatalf("stock = %d, want untouched 8", prodA.Stock)
	}
}

func TestUpdateStatusDeliveredSettlesPayment(t *testing.T) {
	fixture := newOrderServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 8)},
		nil,
		[]domain.Order{placedOrder("ord_1", "user_1", domain.OrderStatusShipped)},
	)

	order, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusDelivered,
		ActorID: "admin_1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", order.Status)
	}
	if order.DeliveredAt == nil || !order.DeliveredAt.Equal(fixture.now) {
		t.Fatalf("deliveredAt = %v, want %v", order.DeliveredAt, fixture.now)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(fixture.now) {
		t.Fatalf("paidAt = %v, want %v", order.PaidAt, fixture.now)
	}
}

func TestUpdateStatusDeliveredKeepsEarlierPaidAt(t *testing.T) {
	paidAt := time.Date(2026, time.March, 13, 12, 0, 0, 0, time.UTC)
	order := placedOrder("ord_1", "user_1", domain.OrderStatusShipped)
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaidAt = &paidAt

	fixture := newOrderServiceFixture(t, nil, nil, []domain.Order{order})

	updated, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.PaidAt == nil || !updated.PaidAt.Equal(paidAt) {
		t.Fatalf("paidAt = %v, want original %v", updated.PaidAt, paidAt)
	}
}

func TestUpdateStatusCancelledReversesStockFromAnyStatus(t *testing.T) {
	product := testProduct("prod_a", 120000, 8)
	product.Sold = 2

	fixture := newOrderServiceFixture(t,
		[]domain.Product{product},
		nil,
		[]domain.Order{placedOrder("ord_1", "user_1", domain.OrderStatusShipped)},
	)

	order, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if order.CancelledAt == nil {
		t.Fatal("cancelledAt should be set")
	}
	prodA := fixture.products.products["prod_a"]
	if prodA.Stock != 10 || prodA.Sold != 0 {
		t.Fatalf("stock/sold = %d/%d, want 10/0", prodA.Stock, prodA.Sold)
	}
}

func TestUpdateStatusTerminalStates(t *testing.T) {
	fixture := newOrderServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 8)},
		nil,
		[]domain.Order{
			placedOrder("ord_delivered", "user_1", domain.OrderStatusDelivered),
			placedOrder("ord_cancelled", "user_1", domain.OrderStatusCancelled),
		},
	)

	for _, tc := range []struct {
		orderID string
		target  domain.OrderStatus
	}{
		{"ord_delivered", domain.OrderStatusPending},
		{"ord_delivered", domain.OrderStatusCancelled},
		{"ord_cancelled", domain.OrderStatusProcessing},
		{"ord_cancelled", domain.OrderStatusDelivered},
	} {
		_, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID: tc.orderID,
			Status:  tc.target,
		})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("%s -> %s error = %v, want ErrOrderInvalidState", tc.orderID, tc.target, err)
		}
	}

	// A repeated target is a no-op, not an error.
	order, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_delivered",
		Status:  domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("no-op UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", order.Status)
	}
	if len(fixture.events.events) != 0 {
		t.Fatal("no-op transition must not publish an event")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	fixture := newOrderServiceFixture(t, nil, nil, []domain.Order{placedOrder("ord_1", "user_1", domain.OrderStatusPending)})

	_, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatus("returned"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("error = %v, want ErrOrderInvalidInput", err)
	}
}

func TestUpdatePaymentStatusPaidStampsPaidAt(t *testing.T) {
	fixture := newOrderServiceFixture(t, nil, nil, []domain.Order{placedOrder("ord_1", "user_1", domain.OrderStatusPending)})

	order, err := fixture.service.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID:       "ord_1",
		PaymentStatus: domain.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(fixture.now) {
		t.Fatalf("paidAt = %v, want %v", order.PaidAt, fixture.now)
	}

	// Fulfillment status is independent of payment settlement.
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
}

func TestListUserOrdersFiltersAndPages(t *testing.T) {
	orders := []domain.Order{
		placedOrder("ord_1", "user_1", domain.OrderStatusPending),
		placedOrder("ord_2", "user_1", domain.OrderStatusDelivered),
		placedOrder("ord_3", "user_2", domain.OrderStatusPending),
	}
	fixture := newOrderServiceFixture(t, nil, nil, orders)

	page, err := fixture.service.ListUserOrders(context.Background(), ListUserOrdersCommand{
		UserID: "user_1",
		Page:   1,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("total/items = %d/%d, want 2/2", page.Total, len(page.Items))
	}

	status := domain.OrderStatusDelivered
	page, err = fixture.service.ListUserOrders(context.Background(), ListUserOrdersCommand{
		UserID: "user_1",
		Status: &status,
		Page:   1,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("ListUserOrders with status: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "ord_2" {
		t.Fatalf("filtered page = %+v", page)
	}
}
