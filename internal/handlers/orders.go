package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/platform/auth"
	"github.com/gainzy/api/internal/platform/httpx"
	"github.com/gainzy/api/internal/platform/pagination"
	"github.com/gainzy/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers backed by the given service.
func NewOrderHandlers(orders services.OrderService) (*OrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("order handlers require an order service")
	}
	return &OrderHandlers{orders: orders}, nil
}

// Routes registers the authenticated order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.placeOrder)
	r.Get("/my-orders", h.listMyOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Put("/{orderId}/cancel", h.cancelOrder)
}

// AdminRoutes registers the admin-only order endpoints. They share the
// /orders prefix with the user routes; the router applies the admin
// middleware stack to this group only.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	r.Get("/all", h.listAllOrders)
	r.Put("/{orderId}/status", h.updateStatus)
	r.Put("/{orderId}/payment", h.updatePaymentStatus)
}

type shippingAddressPayload struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city"`
}

type placeOrderRequest struct {
	ShippingAddress shippingAddressPayload `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ShippingPrice   *int64                 `json:"shippingPrice"`
	Note            string                 `json:"note"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	UserID          string                 `json:"userId"`
	Items           []orderItemPayload     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ItemsPrice      int64                  `json:"itemsPrice"`
	ShippingPrice   int64                  `json:"shippingPrice"`
	TotalPrice      int64                  `json:"totalPrice"`
	Status          string                 `json:"status"`
	PaymentStatus   string                 `json:"paymentStatus"`
	Note            string                 `json:"note,omitempty"`
	PaidAt          *time.Time             `json:"paidAt,omitempty"`
	DeliveredAt     *time.Time             `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time             `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), services.PlaceOrderCommand{
		UserID: identity.UID,
		ShippingAddress: domain.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Phone:    req.ShippingAddress.Phone,
			Street:   req.ShippingAddress.Street,
			Ward:     req.ShippingAddress.Ward,
			District: req.ShippingAddress.District,
			City:     req.ShippingAddress.City,
		},
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		ShippingPrice: req.ShippingPrice,
		Note:          req.Note,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	status, err := statusFilterFromQuery(r)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	page, err := h.orders.ListUserOrders(r.Context(), services.ListUserOrdersCommand{
		UserID: identity.UID,
		Status: status,
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeOrderPage(w, page, params)
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	status, err := statusFilterFromQuery(r)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	page, err := h.orders.ListAllOrders(r.Context(), services.ListAllOrdersCommand{
		Status: status,
		Search: r.URL.Query().Get("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeOrderPage(w, page, params)
}

// getOrder serves the order to its owner, or to an admin.
func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	if order.UserID != identity.UID && !identity.IsAdmin() {
		// Hide existence from non-owners.
		httpx.WriteError(r.Context(), w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r, w)
		return
	}

	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderId"),
		UserID:  identity.UID,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID: actorID(identity),
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req updatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePaymentStatus(r.Context(), services.UpdatePaymentStatusCommand{
		OrderID:       chi.URLParam(r, "orderId"),
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(req.PaymentStatus)),
		ActorID:       actorID(identity),
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func statusFilterFromQuery(r *http.Request) (*domain.OrderStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	status := domain.OrderStatus(raw)
	return &status, nil
}

func writeOrderPage(w http.ResponseWriter, page domain.Page[domain.Order], params pagination.Params) {
	payloads := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		payloads = append(payloads, buildOrderPayload(order))
	}
	httpx.WriteList(w, http.StatusOK, payloads, httpx.PageMeta{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages(params.Limit),
	})
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(r.Context(), w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(r.Context(), w, httpx.NewError("conflict", "the order was modified concurrently, retry the request", http.StatusConflict))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeUnauthenticated(r *http.Request, w http.ResponseWriter) {
	httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func actorID(identity *auth.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.UID
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       items,
		ShippingAddress: shippingAddressPayload{
			FullName: order.ShippingAddress.FullName,
			Phone:    order.ShippingAddress.Phone,
			Street:   order.ShippingAddress.Street,
			Ward:     order.ShippingAddress.Ward,
			District: order.ShippingAddress.District,
			City:     order.ShippingAddress.City,
		},
		PaymentMethod: string(order.PaymentMethod),
		ItemsPrice:    order.ItemsPrice,
		ShippingPrice: order.ShippingPrice,
		TotalPrice:    order.TotalPrice,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Note:          order.Note,
		PaidAt:        order.PaidAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}
