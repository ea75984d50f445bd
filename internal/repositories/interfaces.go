package repositories

import (
	"context"

	domain "github.com/gainzy/api/internal/domain"
)

// RepositoryError lets services translate persistence failures without
// depending on the backing store's error types.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork executes the supplied function atomically. Repository calls made
// with the context passed to fn participate in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter bounds order listing queries.
type OrderListFilter struct {
	UserID string
	Status *domain.OrderStatus
	Search string // matched against the order number
	Offset int
	Limit  int
}

// ReviewListFilter bounds review listing queries.
type ReviewListFilter struct {
	Offset int
	Limit  int
}

// ProductRepository exposes the catalog operations the order engine and the
// rating aggregator are allowed to perform.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock applies stock += stockDelta and sold += soldDelta. A negative
	// stockDelta that would drive stock below zero fails with a conflict.
	AdjustStock(ctx context.Context, productID string, stockDelta, soldDelta int) error
	SetRating(ctx context.Context, productID string, rating float64, numReviews int) error
}

// CartRepository persists the per-user mutable cart.
type CartRepository interface {
	FindByUser(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Clear(ctx context.Context, userID string) error
}

// OrderRepository persists immutable order snapshots and their status fields.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// HasDeliveredOrderWithProduct reports whether the user has a delivered
	// order containing the product. Backs the verified-purchase flag.
	HasDeliveredOrderWithProduct(ctx context.Context, userID, productID string) (bool, error)
}

// ReviewRepository persists reviews and serves the aggregator's full scans.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByUserAndProduct(ctx context.Context, userID, productID string) (domain.Review, error)
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	ListByProduct(ctx context.Context, productID string, filter ReviewListFilter) (domain.Page[domain.Review], error)
	// AllByProduct returns every review for the product, for the full recompute.
	AllByProduct(ctx context.Context, productID string) ([]domain.Review, error)
}

// CounterRepository hands out monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// Registry bundles the repository set handed to the service container.
type Registry struct {
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
	Reviews  ReviewRepository
	Counters CounterRepository
	Unit     UnitOfWork
}
