package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gainzy/api/internal/domain"
)

type reviewServiceFixture struct {
	service  ReviewService
	reviews  *memReviewRepo
	products *memProductRepo
	orders   *memOrderRepo
	events   *capturedReviewEvents
	now      time.Time
}

func newReviewServiceFixture(t *testing.T, products []domain.Product, reviews []domain.Review, orders []domain.Order) *reviewServiceFixture {
	t.Helper()

	fixture := &reviewServiceFixture{
		reviews:  newMemReviewRepo(reviews...),
		products: newMemProductRepo(products...),
		orders:   newMemOrderRepo(orders...),
		events:   &capturedReviewEvents{},
		now:      time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
	}

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews:     fixture.reviews,
		Products:    fixture.products,
		Orders:      fixture.orders,
		Clock:       fixedClock(fixture.now),
		IDGenerator: sequentialIDs("RID"),
		Events:      fixture.events,
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}
	fixture.service = service
	return fixture
}

func storedReview(id, userID, productID string, rating int) domain.Review {
	return domain.Review{
		ID:        id,
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   "solid",
		CreatedAt: time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestCreateReviewRecomputesRating(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{
			storedReview("rev_1", "user_1", "prod_a", 5),
			storedReview("rev_2", "user_2", "prod_a", 4),
		},
		nil,
	)

	review, err := fixture.service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_3",
		ProductID: "prod_a",
		Rating:    2,
		Comment:   "arrived late",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if review.IsVerifiedPurchase {
		t.Fatal("no delivered order exists, review must not be verified")
	}

	// (5+4+2)/3 = 3.666..., rounded to one decimal.
	product := fixture.products.products["prod_a"]
	if product.Rating != 3.7 {
		t.Fatalf("rating = %v, want 3.7", product.Rating)
	}
	if product.NumReviews != 3 {
		t.Fatalf("numReviews = %d, want 3", product.NumReviews)
	}
	if len(fixture.events.events) != 1 || fixture.events.events[0].Type != reviewEventCreated {
		t.Fatalf("events = %+v, want one %s", fixture.events.events, reviewEventCreated)
	}
}

func TestCreateReviewMarksVerifiedPurchase(t *testing.T) {
	delivered := placedOrder("ord_1", "user_1", domain.OrderStatusDelivered)

	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil,
		[]domain.Order{delivered},
	)

	review, err := fixture.service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    5,
		Comment:   "exactly as described",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !review.IsVerifiedPurchase {
		t.Fatal("delivered order contains the product, review should be verified")
	}
}

func TestCreateReviewVerifiedLookupFailureIsNonFatal(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil, nil,
	)
	fixture.orders.failWith = errors.New("query timeout")

	review, err := fixture.service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    4,
		Comment:   "fine",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if review.IsVerifiedPurchase {
		t.Fatal("flag should default to false when the lookup fails")
	}
}

func TestCreateReviewRequireVerifiedPurchaseFlag(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil, nil,
	)

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews:                 fixture.reviews,
		Products:                fixture.products,
		Orders:                  fixture.orders,
		Clock:                   fixedClock(fixture.now),
		IDGenerator:             sequentialIDs("RID"),
		RequireVerifiedPurchase: true,
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	_, err = service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    5,
		Comment:   "great",
	})
	if !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("error = %v, want ErrReviewForbidden", err)
	}
}

func TestCreateReviewRejectsDuplicate(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{storedReview("rev_1", "user_1", "prod_a", 5)},
		nil,
	)

	_, err := fixture.service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    3,
		Comment:   "changed my mind",
	})
	if !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("error = %v, want ErrReviewConflict", err)
	}
}

// beforeTxUnitOfWork runs a hook once before the first transaction body,
// standing in for a rival request whose commit lands first.
type beforeTxUnitOfWork struct {
	before func()
}

func (u *beforeTxUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if u.before != nil {
		before := u.before
		u.before = nil
		before()
	}
	return fn(ctx)
}

func TestCreateReviewDetectsConcurrentDuplicate(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil, nil,
	)

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews:     fixture.reviews,
		Products:    fixture.products,
		Orders:      fixture.orders,
		Clock:       fixedClock(fixture.now),
		IDGenerator: sequentialIDs("RID"),
		UnitOfWork: &beforeTxUnitOfWork{before: func() {
			// A second request for the same (user, product) pair commits
			// between our pre-checks and our transaction.
			fixture.reviews.reviews["rev_rival"] = storedReview("rev_rival", "user_1", "prod_a", 4)
		}},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	_, err = service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    3,
		Comment:   "second opinion",
	})
	if !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("error = %v, want ErrReviewConflict", err)
	}

	count := 0
	for _, review := range fixture.reviews.reviews {
		if review.UserID == "user_1" && review.ProductID == "prod_a" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("reviews for (user_1, prod_a) = %d, want exactly 1", count)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil, nil,
	)

	for _, tc := range []struct {
		name string
		cmd  CreateReviewCommand
		want error
	}{
		{"rating too low", CreateReviewCommand{UserID: "u", ProductID: "prod_a", Rating: 0, Comment: "x"}, ErrReviewInvalidInput},
		{"rating too high", CreateReviewCommand{UserID: "u", ProductID: "prod_a", Rating: 6, Comment: "x"}, ErrReviewInvalidInput},
		{"empty comment", CreateReviewCommand{UserID: "u", ProductID: "prod_a", Rating: 3, Comment: "  "}, ErrReviewInvalidInput},
		{"unknown product", CreateReviewCommand{UserID: "u", ProductID: "prod_nope", Rating: 3, Comment: "x"}, ErrReviewNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fixture.service.Create(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateReviewStripsMarkup(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		nil, nil,
	)

	review, err := fixture.service.Create(context.Background(), CreateReviewCommand{
		UserID:    "user_1",
		ProductID: "prod_a",
		Rating:    4,
		Comment:   `great <script>alert("x")</script> quality`,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if review.Comment != "great  quality" {
		t.Fatalf("comment = %q, markup should be stripped", review.Comment)
	}
}

func TestUpdateReviewRatingRecomputes(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{
			storedReview("rev_1", "user_1", "prod_a", 5),
			storedReview("rev_2", "user_2", "prod_a", 3),
		},
		nil,
	)

	newRating := 1
	_, err := fixture.service.Update(context.Background(), UpdateReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "user_1",
		Rating:   &newRating,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// (1+3)/2 = 2.0
	product := fixture.products.products["prod_a"]
	if product.Rating != 2.0 || product.NumReviews != 2 {
		t.Fatalf("rating/numReviews = %v/%d, want 2.0/2", product.Rating, product.NumReviews)
	}
}

func TestUpdateReviewOwnerOnly(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{storedReview("rev_1", "user_1", "prod_a", 5)},
		nil,
	)

	rating := 2
	_, err := fixture.service.Update(context.Background(), UpdateReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "user_2",
		Rating:   &rating,
	})
	if !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("error = %v, want ErrReviewForbidden", err)
	}

	// Admin may edit regardless of ownership.
	if _, err := fixture.service.Update(context.Background(), UpdateReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "admin_1",
		IsAdmin:  true,
		Rating:   &rating,
	}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestDeleteReviewRecomputesRating(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{
			storedReview("rev_1", "user_1", "prod_a", 5),
			storedReview("rev_2", "user_2", "prod_a", 2),
		},
		nil,
	)

	if err := fixture.service.Delete(context.Background(), DeleteReviewCommand{
		ReviewID: "rev_2",
		ActorID:  "user_2",
	}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	product := fixture.products.products["prod_a"]
	if product.Rating != 5.0 || product.NumReviews != 1 {
		t.Fatalf("rating/numReviews = %v/%d, want 5.0/1", product.Rating, product.NumReviews)
	}
}

func TestDeleteLastReviewResetsAggregate(t *testing.T) {
	product := testProduct("prod_a", 120000, 5)
	product.Rating = 5.0
	product.NumReviews = 1

	fixture := newReviewServiceFixture(t,
		[]domain.Product{product},
		[]domain.Review{storedReview("rev_1", "user_1", "prod_a", 5)},
		nil,
	)

	if err := fixture.service.Delete(context.Background(), DeleteReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "user_1",
	}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got := fixture.products.products["prod_a"]
	if got.Rating != 0 || got.NumReviews != 0 {
		t.Fatalf("rating/numReviews = %v/%d, want 0/0", got.Rating, got.NumReviews)
	}
}

func TestDeleteReviewOwnerOrAdmin(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{
			storedReview("rev_1", "user_1", "prod_a", 5),
			storedReview("rev_2", "user_2", "prod_a", 4),
		},
		nil,
	)

	err := fixture.service.Delete(context.Background(), DeleteReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "user_2",
	})
	if !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("error = %v, want ErrReviewForbidden", err)
	}

	if err := fixture.service.Delete(context.Background(), DeleteReviewCommand{
		ReviewID: "rev_1",
		ActorID:  "admin_1",
		IsAdmin:  true,
	}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestListProductReviewsPages(t *testing.T) {
	fixture := newReviewServiceFixture(t,
		[]domain.Product{testProduct("prod_a", 120000, 5)},
		[]domain.Review{
			storedReview("rev_1", "user_1", "prod_a", 5),
			storedReview("rev_2", "user_2", "prod_a", 4),
			storedReview("rev_3", "user_3", "prod_a", 3),
		},
		nil,
	)

	page, err := fixture.service.ListByProduct(context.Background(), ListProductReviewsCommand{
		ProductID: "prod_a",
		Page:      2,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 {
		t.Fatalf("total/items = %d/%d, want 3/1", page.Total, len(page.Items))
	}
}
