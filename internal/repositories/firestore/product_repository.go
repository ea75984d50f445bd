package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gainzy/api/internal/domain"
	pfirestore "github.com/gainzy/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	Name       string    `firestore:"name"`
	Slug       string    `firestore:"slug"`
	Price      int64     `firestore:"price"`
	Discount   int       `firestore:"discount"`
	Images     []string  `firestore:"images"`
	Stock      int       `firestore:"stock"`
	Sold       int       `firestore:"sold"`
	Rating     float64   `firestore:"rating"`
	NumReviews int       `firestore:"numReviews"`
	IsActive   bool      `firestore:"isActive"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc.ID, doc.Data), nil
}

// AdjustStock applies stock += stockDelta and sold += soldDelta.
//
// Inside a unit of work the caller has already read the product in the same
// transaction, so the deltas are applied as blind field increments and
// serializable isolation protects the guard. Outside a unit of work the
// method runs its own transaction and enforces the non-negative stock guard
// itself.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, stockDelta, soldDelta int) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}

	updates := []firestore.Update{
		{Path: "stock", Value: firestore.Increment(stockDelta)},
		{Path: "sold", Value: firestore.Increment(soldDelta)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}

	if _, ok := pfirestore.TxFromContext(ctx); ok {
		_, err := r.base.Update(ctx, id, updates)
		return err
	}

	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(txCtx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("products.adjust_stock", err)
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return pfirestore.WrapError("products.adjust_stock", err)
		}
		if doc.Stock+stockDelta < 0 {
			return pfirestore.NewConflictError("products.adjust_stock",
				fmt.Errorf("stock %d cannot absorb delta %d", doc.Stock, stockDelta))
		}
		return tx.Update(ref, updates)
	})
}

func (r *ProductRepository) SetRating(ctx context.Context, productID string, rating float64, numReviews int) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	_, err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: "rating", Value: rating},
		{Path: "numReviews", Value: numReviews},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

func productFromDocument(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       doc.Name,
		Slug:       doc.Slug,
		Price:      doc.Price,
		Discount:   doc.Discount,
		Images:     doc.Images,
		Stock:      doc.Stock,
		Sold:       doc.Sold,
		Rating:     doc.Rating,
		NumReviews: doc.NumReviews,
		IsActive:   doc.IsActive,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
