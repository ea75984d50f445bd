package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gainzy/api/internal/domain"
	pfirestore "github.com/gainzy/api/internal/platform/firestore"
	"github.com/gainzy/api/internal/repositories"
)

const reviewsCollection = "reviews"

type reviewDocument struct {
	ProductID          string    `firestore:"productId"`
	UserID             string    `firestore:"userId"`
	Rating             int       `firestore:"rating"`
	Comment            string    `firestore:"comment"`
	IsVerifiedPurchase bool      `firestore:"isVerifiedPurchase"`
	CreatedAt          time.Time `firestore:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

// ReviewRepository implements repositories.ReviewRepository backed by Firestore.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base: pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil),
	}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	_, err := r.base.Create(ctx, review.ID, reviewToDocument(review))
	return err
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return reviewFromDocument(doc.ID, doc.Data), nil
}

func (r *ReviewRepository) FindByUserAndProduct(ctx context.Context, userID, productID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("userId", "==", userID).
			Where("productId", "==", productID).
			Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.NewNotFoundError("reviews.find_by_user_and_product",
			errors.New("review not found"))
	}
	return reviewFromDocument(docs[0].ID, docs[0].Data), nil
}

func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	_, err := r.base.Set(ctx, review.ID, reviewToDocument(review))
	return err
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	return r.base.Delete(ctx, reviewID)
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, filter repositories.ReviewListFilter) (domain.Page[domain.Review], error) {
	all, err := r.AllByProduct(ctx, productID)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}

	total := len(all)
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return domain.Page[domain.Review]{Items: all[start:end], Total: total}, nil
}

func (r *ReviewRepository) AllByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("review repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("productId", "==", productID).
			OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, reviewFromDocument(doc.ID, doc.Data))
	}
	return reviews, nil
}

func reviewToDocument(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID:          review.ProductID,
		UserID:             review.UserID,
		Rating:             review.Rating,
		Comment:            review.Comment,
		IsVerifiedPurchase: review.IsVerifiedPurchase,
		CreatedAt:          review.CreatedAt,
		UpdatedAt:          review.UpdatedAt,
	}
}

func reviewFromDocument(id string, doc reviewDocument) domain.Review {
	return domain.Review{
		ID:                 id,
		ProductID:          doc.ProductID,
		UserID:             doc.UserID,
		Rating:             doc.Rating,
		Comment:            doc.Comment,
		IsVerifiedPurchase: doc.IsVerifiedPurchase,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}
