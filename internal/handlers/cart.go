package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/platform/auth"
	"github.com/gainzy/api/internal/platform/httpx"
	"github.com/gainzy/api/internal/services"
)

// CartHandlers exposes the per-user cart endpoints.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers backed by the given service.
func NewCartHandlers(carts services.CartService) (*CartHandlers, error) {
	if carts == nil {
		return nil, errors.New("cart handlers require a cart service")
	}
	return &CartHandlers{carts: carts}, nil
}

// Routes registers the authenticated cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productId}", h.updateItem)
	r.Delete("/items/{productId}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type cartPayload struct {
	UserID     string            `json:"userId"`
	Items      []cartItemPayload `json:"items"`
	TotalPrice int64             `json:"totalPrice"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	cart, err := h.carts.GetOrCreateCart(r.Context(), identity.UID)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItem(r.Context(), services.UpdateCartItemCommand{
		UserID:    identity.UID,
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), services.RemoveCartItemCommand{
		UserID:    identity.UID,
		ProductID: chi.URLParam(r, "productId"),
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	if err := h.carts.Clear(r.Context(), identity.UID); err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{"cleared": true})
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(r.Context(), w, httpx.NewError("product_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_item_not_found", err.Error(), http.StatusNotFound))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "unexpected error", http.StatusInternalServerError))
	}
}

func buildCartPayload(cart domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	var total int64
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		total += item.UnitPrice * int64(item.Quantity)
	}
	return cartPayload{
		UserID:     cart.UserID,
		Items:      items,
		TotalPrice: total,
	}
}
