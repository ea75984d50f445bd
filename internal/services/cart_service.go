package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the product is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product cannot be added.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartInsufficientStock indicates the requested quantity exceeds stock.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Cart{}, s.mapRepositoryError(err)
	}

	now := s.now()
	cart = Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

// AddItem appends a product to the cart, snapshotting the discounted unit
// price at add time. Adding a product already in the cart merges quantities
// and refreshes the snapshot to the current price.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{}, fmt.Errorf("%w: product %q does not exist", ErrCartProductUnavailable, productID)
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	if !product.IsActive {
		return Cart{}, fmt.Errorf("%w: product %q is no longer for sale", ErrCartProductUnavailable, product.Name)
	}

	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	quantity := cmd.Quantity
	index := findCartItem(cart.Items, productID)
	if index >= 0 {
		quantity += cart.Items[index].Quantity
	}
	if product.Stock < quantity {
		return Cart{}, fmt.Errorf("%w: product %q has %d left, requested %d", ErrCartInsufficientStock, product.Name, product.Stock, quantity)
	}

	item := CartItem{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.FinalPrice(),
	}
	if index >= 0 {
		cart.Items[index] = item
	} else {
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

// UpdateItem sets an existing line's quantity. Zero or less removes the line.
// The snapshot price is left untouched: quantity edits do not reprice.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	if cmd.Quantity <= 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{UserID: userID, ProductID: productID})
	}

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}

	index := findCartItem(cart.Items, productID)
	if index < 0 {
		return Cart{}, fmt.Errorf("%w: product %q", ErrCartItemNotFound, productID)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	if product.Stock < cmd.Quantity {
		return Cart{}, fmt.Errorf("%w: product %q has %d left, requested %d", ErrCartInsufficientStock, product.Name, product.Stock, cmd.Quantity)
	}

	cart.Items[index].Quantity = cmd.Quantity
	cart.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}

	index := findCartItem(cart.Items, productID)
	if index < 0 {
		return Cart{}, fmt.Errorf("%w: product %q", ErrCartItemNotFound, productID)
	}

	cart.Items = append(cart.Items[:index], cart.Items[index+1:]...)
	cart.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		// Clearing a cart that was never created is a no-op.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("cart: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *cartService) now() time.Time {
	return s.clock()
}

func findCartItem(items []domain.CartItem, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
