package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/repositories"
)

const (
	reviewEventCreated = "review.created"
	reviewEventUpdated = "review.updated"
	reviewEventDeleted = "review.deleted"

	reviewIDPrefix = "rev_"

	minRating = 1
	maxRating = 5
)

var (
	// ErrReviewInvalidInput signals the caller provided invalid data.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review or product could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewConflict indicates the user already reviewed the product.
	ErrReviewConflict = errors.New("review: already exists")
	// ErrReviewForbidden indicates the actor may not modify the review.
	ErrReviewForbidden = errors.New("review: forbidden")
)

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      ReviewEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)

	// RequireVerifiedPurchase restricts review creation to users with a
	// delivered order containing the product.
	RequireVerifiedPurchase bool
}

type reviewService struct {
	reviews         repositories.ReviewRepository
	products        repositories.ProductRepository
	orders          repositories.OrderRepository
	unitOfWork      repositories.UnitOfWork
	clock           func() time.Time
	newID           func() string
	events          ReviewEventPublisher
	logger          func(context.Context, string, map[string]any)
	sanitizer       *bluemonday.Policy
	requireVerified bool
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
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

	return &reviewService{
		reviews:    deps.Reviews,
		products:   deps.Products,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:           idGen,
		events:          deps.Events,
		logger:          logger,
		sanitizer:       bluemonday.StrictPolicy(),
		requireVerified: deps.RequireVerifiedPurchase,
	}, nil
}

// Create records one review per user per product and folds it into the
// product's denormalized rating aggregate.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Review{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < minRating || cmd.Rating > maxRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minRating, maxRating)
	}
	comment := s.sanitizeComment(cmd.Comment)
	if comment == "" {
		return Review{}, fmt.Errorf("%w: comment is required", ErrReviewInvalidInput)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}

	verified, err := s.orders.HasDeliveredOrderWithProduct(ctx, userID, productID)
	if err != nil {
		if s.requireVerified {
			return Review{}, s.mapRepositoryError(err)
		}
		// The flag is informational by default; a lookup failure must not
		// block the review.
		s.logger(ctx, "review.verified_purchase.lookup.failed", map[string]any{
			"user":    userID,
			"product": productID,
			"error":   err.Error(),
		})
		verified = false
	}
	if s.requireVerified && !verified {
		return Review{}, fmt.Errorf("%w: only verified purchasers may review product %q", ErrReviewForbidden, productID)
	}

	now := s.now()
	review := Review{
		ID:                 reviewIDPrefix + s.newID(),
		ProductID:          productID,
		UserID:             userID,
		Rating:             cmd.Rating,
		Comment:            comment,
		IsVerifiedPurchase: verified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// All reads precede writes inside a Firestore transaction. The
		// one-review-per-(user, product) check runs here so a concurrent
		// create for the same pair conflicts at commit instead of both
		// landing.
		if _, err := s.reviews.FindByUserAndProduct(txCtx, userID, productID); err == nil {
			return fmt.Errorf("%w: product %q already reviewed", ErrReviewConflict, productID)
		} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrReviewNotFound) {
			return mapped
		}
		rating, count, err := s.aggregateRating(txCtx, productID, []Review{review}, nil)
		if err != nil {
			return err
		}
		if err := s.reviews.Insert(txCtx, review); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.applyRating(txCtx, productID, rating, count)
	})
	if err != nil {
		return Review{}, err
	}

	s.publishEvent(ctx, ReviewEvent{
		Type:       reviewEventCreated,
		ReviewID:   review.ID,
		ProductID:  review.ProductID,
		UserID:     review.UserID,
		Rating:     review.Rating,
		OccurredAt: now,
	})

	return review, nil
}

// Update edits the actor's review and recomputes the product aggregate when
// the rating changed.
func (s *reviewService) Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating == nil && cmd.Comment == nil {
		return Review{}, fmt.Errorf("%w: nothing to update", ErrReviewInvalidInput)
	}
	if cmd.Rating != nil && (*cmd.Rating < minRating || *cmd.Rating > maxRating) {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minRating, maxRating)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	if !cmd.IsAdmin && review.UserID != strings.TrimSpace(cmd.ActorID) {
		return Review{}, fmt.Errorf("%w: review %q", ErrReviewForbidden, reviewID)
	}

	ratingChanged := false
	if cmd.Rating != nil && *cmd.Rating != review.Rating {
		review.Rating = *cmd.Rating
		ratingChanged = true
	}
	if cmd.Comment != nil {
		comment := s.sanitizeComment(*cmd.Comment)
		if comment == "" {
			return Review{}, fmt.Errorf("%w: comment cannot be empty", ErrReviewInvalidInput)
		}
		review.Comment = comment
	}

	now := s.now()
	review.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var rating float64
		var count int
		if ratingChanged {
			var err error
			rating, count, err = s.aggregateRating(txCtx, review.ProductID, []Review{review}, nil)
			if err != nil {
				return err
			}
		}
		if err := s.reviews.Update(txCtx, review); err != nil {
			return s.mapRepositoryError(err)
		}
		if !ratingChanged {
			return nil
		}
		return s.applyRating(txCtx, review.ProductID, rating, count)
	})
	if err != nil {
		return Review{}, err
	}

	s.publishEvent(ctx, ReviewEvent{
		Type:       reviewEventUpdated,
		ReviewID:   review.ID,
		ProductID:  review.ProductID,
		UserID:     review.UserID,
		Rating:     review.Rating,
		OccurredAt: now,
	})

	return review, nil
}

// Delete removes a review and recomputes the aggregate. Deleting the last
// review resets the product to an unrated state.
func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if !cmd.IsAdmin && review.UserID != strings.TrimSpace(cmd.ActorID) {
		return fmt.Errorf("%w: review %q", ErrReviewForbidden, reviewID)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		rating, count, err := s.aggregateRating(txCtx, review.ProductID, nil, []string{reviewID})
		if err != nil {
			return err
		}
		if err := s.reviews.Delete(txCtx, reviewID); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.applyRating(txCtx, review.ProductID, rating, count)
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, ReviewEvent{
		Type:       reviewEventDeleted,
		ReviewID:   review.ID,
		ProductID:  review.ProductID,
		UserID:     review.UserID,
		OccurredAt: s.now(),
	})

	return nil
}

func (s *reviewService) ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.Page[Review], error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.Page[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}

	page, limit := normalizePage(cmd.Page, cmd.Limit)
	result, err := s.reviews.ListByProduct(ctx, productID, repositories.ReviewListFilter{
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return domain.Page[Review]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// aggregateRating derives the aggregate from the full review set rather than
// applying incremental deltas, so any drift self-heals on the next write.
// Transactions stage writes until commit, so the stored set does not yet
// include mutations of the current transaction; extra holds the about-to-be
// written reviews and removed the about-to-be deleted IDs.
func (s *reviewService) aggregateRating(ctx context.Context, productID string, extra []Review, removed []string) (float64, int, error) {
	existing, err := s.reviews.AllByProduct(ctx, productID)
	if err != nil {
		return 0, 0, s.mapRepositoryError(err)
	}

	merged := make(map[string]Review, len(existing)+len(extra))
	for _, review := range existing {
		merged[review.ID] = review
	}
	for _, review := range extra {
		merged[review.ID] = review
	}
	for _, id := range removed {
		delete(merged, id)
	}

	var sum int
	for _, review := range merged {
		sum += review.Rating
	}

	rating := 0.0
	if len(merged) > 0 {
		mean := float64(sum) / float64(len(merged))
		rating = math.Round(mean*10) / 10
	}
	return rating, len(merged), nil
}

func (s *reviewService) applyRating(ctx context.Context, productID string, rating float64, count int) error {
	if err := s.products.SetRating(ctx, productID, rating, count); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *reviewService) sanitizeComment(comment string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(comment))
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *reviewService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *reviewService) now() time.Time {
	return s.clock()
}

func (s *reviewService) publishEvent(ctx context.Context, event ReviewEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReviewEvent(ctx, event); err != nil {
		s.logger(ctx, "review.event.publish.failed", map[string]any{
			"type":   event.Type,
			"review": event.ReviewID,
			"error":  err.Error(),
		})
	}
}
