package services

import (
	"context"
	"time"

	domain "github.com/gainzy/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Product         = domain.Product
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	PaymentStatus   = domain.PaymentStatus
	PaymentMethod   = domain.PaymentMethod
	ShippingAddress = domain.ShippingAddress
	Review          = domain.Review
)

// OrderService is the order lifecycle engine: it turns a cart into an
// immutable order, consumes stock, and manages every transition that reverses
// that consumption or settles payment.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.Page[Order], error)
	ListAllOrders(ctx context.Context, cmd ListAllOrdersCommand) (domain.Page[Order], error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
}

// CartService manages the mutable per-user line-item list consumed at checkout.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// ReviewService coordinates the review lifecycle and keeps the denormalized
// product rating aggregate consistent with the review set.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
	ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.Page[Review], error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	UserID         string         `json:"userId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// ReviewEvent captures metadata for emitted review domain events.
type ReviewEvent struct {
	Type       string    `json:"type"`
	ReviewID   string    `json:"reviewId"`
	ProductID  string    `json:"productId"`
	UserID     string    `json:"userId"`
	Rating     int       `json:"rating,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ReviewEventPublisher publishes review domain events for downstream consumers.
type ReviewEventPublisher interface {
	PublishReviewEvent(ctx context.Context, event ReviewEvent) error
}

// PlaceOrderCommand carries checkout input for the authenticated user.
type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	ShippingPrice   *int64
	Note            string
}

// ListUserOrdersCommand filters the caller's own orders.
type ListUserOrdersCommand struct {
	UserID string
	Status *OrderStatus
	Page   int
	Limit  int
}

// ListAllOrdersCommand filters the admin listing across all users.
type ListAllOrdersCommand struct {
	Status *OrderStatus
	Search string
	Page   int
	Limit  int
}

// CancelOrderCommand is the owner-initiated cancellation request.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
}

// UpdateOrderStatusCommand is the admin status transition request.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
}

// UpdatePaymentStatusCommand is the admin payment status update request.
type UpdatePaymentStatusCommand struct {
	OrderID       string
	PaymentStatus PaymentStatus
	ActorID       string
}

// AddCartItemCommand adds quantity of a product to the user's cart.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of an existing cart line.
// A quantity of zero or less removes the line.
type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// RemoveCartItemCommand drops a product from the user's cart.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

// CreateReviewCommand submits a new review for a product.
type CreateReviewCommand struct {
	UserID    string
	ProductID string
	Rating    int
	Comment   string
}

// UpdateReviewCommand edits an existing review. Nil fields are left unchanged.
type UpdateReviewCommand struct {
	ReviewID string
	ActorID  string
	IsAdmin  bool
	Rating   *int
	Comment  *string
}

// DeleteReviewCommand removes a review, owner or admin.
type DeleteReviewCommand struct {
	ReviewID string
	ActorID  string
	IsAdmin  bool
}

// ListProductReviewsCommand pages through a product's reviews.
type ListProductReviewsCommand struct {
	ProductID string
	Page      int
	Limit     int
}
