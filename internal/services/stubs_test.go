package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/repositories"
)

// stubError implements repositories.RepositoryError for the in-memory stubs.
type stubError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubError) Error() string       { return e.msg }
func (e *stubError) IsNotFound() bool    { return e.notFound }
func (e *stubError) IsConflict() bool    { return e.conflict }
func (e *stubError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(format string, args ...any) error {
	return &stubError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflictErr(format string, args ...any) error {
	return &stubError{msg: fmt.Sprintf(format, args...), conflict: true}
}

type memProductRepo struct {
	products map[string]domain.Product
	failWith error
}

func newMemProductRepo(products ...domain.Product) *memProductRepo {
	repo := &memProductRepo{products: make(map[string]domain.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memProductRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	if r.failWith != nil {
		return domain.Product{}, r.failWith
	}
	product, ok := r.products[id]
	if !ok {
		return domain.Product{}, notFoundErr("product %s not found", id)
	}
	return product, nil
}

func (r *memProductRepo) AdjustStock(_ context.Context, id string, stockDelta, soldDelta int) error {
	if r.failWith != nil {
		return r.failWith
	}
	product, ok := r.products[id]
	if !ok {
		return notFoundErr("product %s not found", id)
	}
	if product.Stock+stockDelta < 0 {
		return conflictErr("product %s stock below zero", id)
	}
	product.Stock += stockDelta
	product.Sold += soldDelta
	r.products[id] = product
	return nil
}

func (r *memProductRepo) SetRating(_ context.Context, id string, rating float64, numReviews int) error {
	if r.failWith != nil {
		return r.failWith
	}
	product, ok := r.products[id]
	if !ok {
		return notFoundErr("product %s not found", id)
	}
	product.Rating = rating
	product.NumReviews = numReviews
	r.products[id] = product
	return nil
}

type memCartRepo struct {
	carts    map[string]domain.Cart
	failWith error
}

func newMemCartRepo(carts ...domain.Cart) *memCartRepo {
	repo := &memCartRepo{carts: make(map[string]domain.Cart)}
	for _, c := range carts {
		repo.carts[c.UserID] = c
	}
	return repo
}

func (r *memCartRepo) FindByUser(_ context.Context, userID string) (domain.Cart, error) {
	if r.failWith != nil {
		return domain.Cart{}, r.failWith
	}
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, notFoundErr("cart for %s not found", userID)
	}
	return cart, nil
}

func (r *memCartRepo) Save(_ context.Context, cart domain.Cart) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.carts[cart.UserID] = cart
	return nil
}

func (r *memCartRepo) Clear(_ context.Context, userID string) error {
	if r.failWith != nil {
		return r.failWith
	}
	cart, ok := r.carts[userID]
	if !ok {
		return notFoundErr("cart for %s not found", userID)
	}
	cart.Items = []domain.CartItem{}
	r.carts[userID] = cart
	return nil
}

type memOrderRepo struct {
	orders   map[string]domain.Order
	failWith error
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.orders[order.ID]; ok {
		return conflictErr("order %s already exists", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	if r.failWith != nil {
		return domain.Order{}, r.failWith
	}
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, notFoundErr("order %s not found", id)
	}
	return order, nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.orders[order.ID]; !ok {
		return notFoundErr("order %s not found", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r.failWith != nil {
		return domain.Page[domain.Order]{}, r.failWith
	}

	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(order.OrderNumber, filter.Search) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return domain.Page[domain.Order]{Items: matched[start:end], Total: total}, nil
}

func (r *memOrderRepo) HasDeliveredOrderWithProduct(_ context.Context, userID, productID string) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	for _, order := range r.orders {
		if order.UserID != userID || order.Status != domain.OrderStatusDelivered {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

type memReviewRepo struct {
	reviews  map[string]domain.Review
	failWith error
}

func newMemReviewRepo(reviews ...domain.Review) *memReviewRepo {
	repo := &memReviewRepo{reviews: make(map[string]domain.Review)}
	for _, rv := range reviews {
		repo.reviews[rv.ID] = rv
	}
	return repo
}

func (r *memReviewRepo) Insert(_ context.Context, review domain.Review) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.reviews[review.ID]; ok {
		return conflictErr("review %s already exists", review.ID)
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *memReviewRepo) FindByID(_ context.Context, id string) (domain.Review, error) {
	if r.failWith != nil {
		return domain.Review{}, r.failWith
	}
	review, ok := r.reviews[id]
	if !ok {
		return domain.Review{}, notFoundErr("review %s not found", id)
	}
	return review, nil
}

func (r *memReviewRepo) FindByUserAndProduct(_ context.Context, userID, productID string) (domain.Review, error) {
	if r.failWith != nil {
		return domain.Review{}, r.failWith
	}
	for _, review := range r.reviews {
		if review.UserID == userID && review.ProductID == productID {
			return review, nil
		}
	}
	return domain.Review{}, notFoundErr("review by %s for %s not found", userID, productID)
}

func (r *memReviewRepo) Update(_ context.Context, review domain.Review) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.reviews[review.ID]; !ok {
		return notFoundErr("review %s not found", review.ID)
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *memReviewRepo) Delete(_ context.Context, id string) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.reviews[id]; !ok {
		return notFoundErr("review %s not found", id)
	}
	delete(r.reviews, id)
	return nil
}

func (r *memReviewRepo) ListByProduct(_ context.Context, productID string, filter repositories.ReviewListFilter) (domain.Page[domain.Review], error) {
	if r.failWith != nil {
		return domain.Page[domain.Review]{}, r.failWith
	}

	all, err := r.AllByProduct(context.Background(), productID)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}

	total := len(all)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return domain.Page[domain.Review]{Items: all[start:end], Total: total}, nil
}

func (r *memReviewRepo) AllByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	matched := make([]domain.Review, 0, len(r.reviews))
	for _, review := range r.reviews {
		if review.ProductID == productID {
			matched = append(matched, review)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

type memCounterRepo struct {
	counters map[string]int64
	failWith error
}

func newMemCounterRepo() *memCounterRepo {
	return &memCounterRepo{counters: make(map[string]int64)}
}

func (r *memCounterRepo) Next(_ context.Context, name string, step int64) (int64, error) {
	if r.failWith != nil {
		return 0, r.failWith
	}
	r.counters[name] += step
	return r.counters[name], nil
}

type capturedOrderEvents struct {
	events   []OrderEvent
	failWith error
}

func (c *capturedOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.events = append(c.events, event)
	return nil
}

type capturedReviewEvents struct {
	events   []ReviewEvent
	failWith error
}

func (c *capturedReviewEvents) PublishReviewEvent(_ context.Context, event ReviewEvent) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.events = append(c.events, event)
	return nil
}

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s%02d", prefix, n)
	}
}
