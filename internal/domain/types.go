package domain

import "time"

// OrderStatus enumerates the fulfillment states an order moves through.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment settlement states, independent of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod identifies how an order is settled.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Product is the catalog record consumed by the order engine. Amounts are in
// minor currency units. Stock and Sold only move through the engine's stock
// adjustments; Rating and NumReviews only move through the rating recompute.
type Product struct {
	ID         string
	Name       string
	Slug       string
	Price      int64
	Discount   int // percent, 0-100
	Images     []string
	Stock      int
	Sold       int
	Rating     float64
	NumReviews int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FinalPrice returns the discounted unit price used for cart snapshots.
func (p Product) FinalPrice() int64 {
	if p.Discount <= 0 {
		return p.Price
	}
	return p.Price * int64(100-p.Discount) / 100
}

// PrimaryImage returns the first catalog image, or empty when none exist.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// CartItem is one mutable line in a user's cart. UnitPrice is the discounted
// price snapshotted when the item was added or last updated; it is not
// re-derived at checkout.
type CartItem struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

// Cart holds the single mutable line-item list owned by a user.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingAddress is the delivery destination captured on an order.
type ShippingAddress struct {
	FullName string
	Phone    string
	Street   string
	Ward     string
	District string
	City     string
}

// OrderItem is a frozen copy of a purchased line, independent of later
// catalog or cart changes.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice int64
	Quantity  int
}

// Order is created once at checkout; only the status pair and the transition
// timestamps mutate afterwards.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	ItemsPrice      int64
	ShippingPrice   int64
	TotalPrice      int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Note            string
	PaidAt          *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Review carries a 1-5 rating and a comment, unique per (user, product).
type Review struct {
	ID                 string
	ProductID          string
	UserID             string
	Rating             int
	Comment            string
	IsVerifiedPurchase bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Page is an offset-paginated result set.
type Page[T any] struct {
	Items []T
	Total int
}

// TotalPages derives the page count for the given limit.
func (p Page[T]) TotalPages(limit int) int {
	if limit <= 0 {
		return 0
	}
	return (p.Total + limit - 1) / limit
}
