package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/repositories"
)

const (
	orderEventPlaced         = "order.placed"
	orderEventCancelled      = "order.cancelled"
	orderEventStatusChanged  = "order.status_changed"
	orderEventPaymentUpdated = "order.payment_updated"

	orderIDPrefix = "ord_"

	// Flat-rate shipping applied when the request omits a shipping price.
	defaultShippingPrice int64 = 30000
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderInsufficientStock indicates a line item exceeds the available stock.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates concurrent-update conflicts in the backing store.
	ErrOrderConflict = errors.New("order: conflict")
)

// Admin transitions are bounded by this table. Delivered and cancelled are
// terminal: forcing an order out of either would strand the payment and stock
// side effects already applied.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

var validOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

var validPaymentStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusPaid,
	domain.PaymentStatusFailed,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Carts       repositories.CartRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	carts      repositories.CartRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		carts:      deps.Carts,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// PlaceOrder turns the user's cart into an immutable order. Validation of
// every line precedes any stock mutation, and the whole sequence runs inside
// one unit of work so a failure on item N leaves items 1..N-1 untouched.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	if method != domain.PaymentMethodCOD && method != domain.PaymentMethodBankTransfer {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}

	shippingPrice := defaultShippingPrice
	if cmd.ShippingPrice != nil {
		if *cmd.ShippingPrice < 0 {
			return Order{}, fmt.Errorf("%w: shipping price cannot be negative", ErrOrderInvalidInput)
		}
		shippingPrice = *cmd.ShippingPrice
	}

	now := s.now()

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   method,
		ShippingPrice:   shippingPrice,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Note:            strings.TrimSpace(cmd.Note),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.FindByUser(txCtx, userID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(cart.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
		}

		// Validate every line against the live product before touching stock.
		items := make([]OrderItem, 0, len(cart.Items))
		var itemsPrice int64
		for _, line := range cart.Items {
			product, err := s.products.FindByID(txCtx, line.ProductID)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					return fmt.Errorf("%w: product %q no longer exists", ErrOrderInvalidInput, line.ProductID)
				}
				return s.mapRepositoryError(err)
			}
			if !product.IsActive {
				return fmt.Errorf("%w: product %q is no longer for sale", ErrOrderInvalidInput, product.Name)
			}
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: invalid quantity for product %q", ErrOrderInvalidInput, product.Name)
			}
			if product.Stock < line.Quantity {
				return fmt.Errorf("%w: product %q has %d left, requested %d", ErrOrderInsufficientStock, product.Name, product.Stock, line.Quantity)
			}

			// Snapshot with the cart's stored unit price, not a recomputed one.
			items = append(items, OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Image:     product.PrimaryImage(),
				UnitPrice: line.UnitPrice,
				Quantity:  line.Quantity,
			})
			itemsPrice += line.UnitPrice * int64(line.Quantity)
		}

		order.Items = items
		order.ItemsPrice = itemsPrice
		order.TotalPrice = itemsPrice + order.ShippingPrice

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		for _, item := range items {
			if err := s.products.AdjustStock(txCtx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
				return s.mapStockError(err, item)
			}
		}
		if err := s.carts.Clear(txCtx, userID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata:      map[string]any{"total": order.TotalPrice},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.Page[Order], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.Status != nil && !slices.Contains(validOrderStatuses, *cmd.Status) {
		return domain.Page[Order]{}, fmt.Errorf("%w: invalid status %q", ErrOrderInvalidInput, *cmd.Status)
	}

	page, limit := normalizePage(cmd.Page, cmd.Limit)
	result, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: cmd.Status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *orderService) ListAllOrders(ctx context.Context, cmd ListAllOrdersCommand) (domain.Page[Order], error) {
	if cmd.Status != nil && !slices.Contains(validOrderStatuses, *cmd.Status) {
		return domain.Page[Order]{}, fmt.Errorf("%w: invalid status %q", ErrOrderInvalidInput, *cmd.Status)
	}

	page, limit := normalizePage(cmd.Page, cmd.Limit)
	result, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status: cmd.Status,
		Search: strings.TrimSpace(cmd.Search),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// Cancel reverses the stock consumption of a pending order owned by the
// caller. The status re-read and the reversal share one unit of work, so a
// concurrent second cancel observes the cancelled status and fails instead of
// double-reversing stock.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var order Order
	var prevStatus domain.OrderStatus

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if found.UserID != userID {
			return fmt.Errorf("%w: order %q", ErrOrderNotFound, orderID)
		}
		if found.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders may be cancelled, current status is %q", ErrOrderInvalidState, found.Status)
		}

		prevStatus = found.Status
		found.Status = domain.OrderStatusCancelled
		found.CancelledAt = &now
		found.UpdatedAt = now

		if err := s.orders.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.reverseStock(txCtx, found.Items); err != nil {
			return err
		}
		order = found
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
	})

	return order, nil
}

// UpdateStatus applies an admin transition from the bounded table, running the
// delivery payment coupling or the cancellation stock reversal as required.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Status
	if !slices.Contains(validOrderStatuses, target) {
		return Order{}, fmt.Errorf("%w: invalid status %q", ErrOrderInvalidInput, target)
	}

	now := s.now()
	var order Order
	var prevStatus domain.OrderStatus

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		prevStatus = found.Status

		if found.Status == target {
			order = found
			return nil
		}
		if !canTransition(found.Status, target) {
			return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, found.Status, target)
		}

		found.Status = target
		found.UpdatedAt = now

		switch target {
		case domain.OrderStatusDelivered:
			// Delivery settles payment: COD orders are collected on handover.
			found.DeliveredAt = &now
			found.PaymentStatus = domain.PaymentStatusPaid
			if found.PaidAt == nil {
				found.PaidAt = &now
			}
		case domain.OrderStatusCancelled:
			if found.CancelledAt == nil {
				found.CancelledAt = &now
			}
		}

		if err := s.orders.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		if target == domain.OrderStatusCancelled {
			if err := s.reverseStock(txCtx, found.Items); err != nil {
				return err
			}
		}
		order = found
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if prevStatus != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			OccurredAt:     now,
			Metadata:       map[string]any{"actor": strings.TrimSpace(cmd.ActorID)},
		})
	}

	return order, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !slices.Contains(validPaymentStatuses, cmd.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: invalid payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}

	now := s.now()
	var order Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		found.PaymentStatus = cmd.PaymentStatus
		if cmd.PaymentStatus == domain.PaymentStatusPaid && found.PaidAt == nil {
			found.PaidAt = &now
		}
		found.UpdatedAt = now

		if err := s.orders.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		order = found
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventPaymentUpdated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		OccurredAt:  now,
		Metadata: map[string]any{
			"paymentStatus": string(order.PaymentStatus),
			"actor":         strings.TrimSpace(cmd.ActorID),
		},
	})

	return order, nil
}

// reverseStock is the exact additive inverse of the consumption in PlaceOrder.
func (s *orderService) reverseStock(ctx context.Context, items []OrderItem) error {
	for _, item := range items {
		if err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity, -item.Quantity); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func (s *orderService) mapStockError(err error, item OrderItem) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: product %q", ErrOrderInsufficientStock, item.Name)
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber draws from a per-day counter, so sequences restart at
// 0001 each day and never collide within one.
func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := s.counters.Next(ctx, "orders-"+day, 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("ORD%s%04d", day, seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStatusTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func validateShippingAddress(addr ShippingAddress) error {
	missing := make([]string, 0, 6)
	if strings.TrimSpace(addr.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(addr.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(addr.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(addr.Ward) == "" {
		missing = append(missing, "ward")
	}
	if strings.TrimSpace(addr.District) == "" {
		missing = append(missing, "district")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shipping address missing %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
