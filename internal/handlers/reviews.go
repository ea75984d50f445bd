package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/platform/auth"
	"github.com/gainzy/api/internal/platform/httpx"
	"github.com/gainzy/api/internal/platform/pagination"
	"github.com/gainzy/api/internal/services"
)

// ReviewHandlers exposes the review lifecycle endpoints.
type ReviewHandlers struct {
	reviews services.ReviewService
}

// NewReviewHandlers constructs review handlers backed by the given service.
func NewReviewHandlers(reviews services.ReviewService) (*ReviewHandlers, error) {
	if reviews == nil {
		return nil, errors.New("review handlers require a review service")
	}
	return &ReviewHandlers{reviews: reviews}, nil
}

// Routes registers the authenticated review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	r.Post("/", h.createReview)
	r.Put("/{reviewId}", h.updateReview)
	r.Delete("/{reviewId}", h.deleteReview)
}

// ProductRoutes registers the public per-product review listing.
func (h *ReviewHandlers) ProductRoutes(r chi.Router) {
	r.Get("/{productId}/reviews", h.listProductReviews)
}

type createReviewRequest struct {
	ProductID string `json:"productId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type reviewPayload struct {
	ID                 string    `json:"id"`
	ProductID          string    `json:"productId"`
	UserID             string    `json:"userId"`
	Rating             int       `json:"rating"`
	Comment            string    `json:"comment"`
	IsVerifiedPurchase bool      `json:"isVerifiedPurchase"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	review, err := h.reviews.Create(r.Context(), services.CreateReviewCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeReviewError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, buildReviewPayload(review))
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	var req updateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	review, err := h.reviews.Update(r.Context(), services.UpdateReviewCommand{
		ReviewID: chi.URLParam(r, "reviewId"),
		ActorID:  identity.UID,
		IsAdmin:  identity.IsAdmin(),
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		writeReviewError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	err := h.reviews.Delete(r.Context(), services.DeleteReviewCommand{
		ReviewID: chi.URLParam(r, "reviewId"),
		ActorID:  identity.UID,
		IsAdmin:  identity.IsAdmin(),
	})
	if err != nil {
		writeReviewError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *ReviewHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.reviews.ListByProduct(r.Context(), services.ListProductReviewsCommand{
		ProductID: chi.URLParam(r, "productId"),
		Page:      params.Page,
		Limit:     params.Limit,
	})
	if err != nil {
		writeReviewError(w, r, err)
		return
	}

	payloads := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		payloads = append(payloads, buildReviewPayload(review))
	}
	httpx.WriteList(w, http.StatusOK, payloads, httpx.PageMeta{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages(params.Limit),
	})
}

func writeReviewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(r.Context(), w, httpx.NewError("review_exists", "you have already reviewed this product", http.StatusConflict))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "you may only modify your own reviews", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(r.Context(), w, httpx.NewError("not_found", "review or product not found", http.StatusNotFound))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "unexpected error", http.StatusInternalServerError))
	}
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:                 review.ID,
		ProductID:          review.ProductID,
		UserID:             review.UserID,
		Rating:             review.Rating,
		Comment:            review.Comment,
		IsVerifiedPurchase: review.IsVerifiedPurchase,
		CreatedAt:          review.CreatedAt,
		UpdatedAt:          review.UpdatedAt,
	}
}
