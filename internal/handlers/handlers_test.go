package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/gainzy/api/internal/domain"
	"github.com/gainzy/api/internal/platform/auth"
	"github.com/gainzy/api/internal/services"
)

type stubOrderService struct {
	placeOrder          func(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error)
	getOrder            func(ctx context.Context, orderID string) (domain.Order, error)
	listUserOrders      func(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.Page[domain.Order], error)
	listAllOrders       func(ctx context.Context, cmd services.ListAllOrdersCommand) (domain.Page[domain.Order], error)
	cancel              func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	updateStatus        func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error)
	updatePaymentStatus func(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error) {
	return s.placeOrder(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.Page[domain.Order], error) {
	return s.listUserOrders(ctx, cmd)
}

func (s *stubOrderService) ListAllOrders(ctx context.Context, cmd services.ListAllOrdersCommand) (domain.Page[domain.Order], error) {
	return s.listAllOrders(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	return s.cancel(ctx, cmd)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	return s.updateStatus(ctx, cmd)
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (domain.Order, error) {
	return s.updatePaymentStatus(ctx, cmd)
}

type stubReviewService struct {
	create        func(ctx context.Context, cmd services.CreateReviewCommand) (domain.Review, error)
	update        func(ctx context.Context, cmd services.UpdateReviewCommand) (domain.Review, error)
	delete        func(ctx context.Context, cmd services.DeleteReviewCommand) error
	listByProduct func(ctx context.Context, cmd services.ListProductReviewsCommand) (domain.Page[domain.Review], error)
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (domain.Review, error) {
	return s.create(ctx, cmd)
}

func (s *stubReviewService) Update(ctx context.Context, cmd services.UpdateReviewCommand) (domain.Review, error) {
	return s.update(ctx, cmd)
}

func (s *stubReviewService) Delete(ctx context.Context, cmd services.DeleteReviewCommand) error {
	return s.delete(ctx, cmd)
}

func (s *stubReviewService) ListByProduct(ctx context.Context, cmd services.ListProductReviewsCommand) (domain.Page[domain.Review], error) {
	return s.listByProduct(ctx, cmd)
}

type stubCartService struct {
	getOrCreate func(ctx context.Context, userID string) (domain.Cart, error)
	addItem     func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error)
	updateItem  func(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error)
	removeItem  func(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error)
	clear       func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	return s.getOrCreate(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
	return s.addItem(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error) {
	return s.updateItem(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
	return s.removeItem(ctx, cmd)
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	return s.clear(ctx, userID)
}

// identityMiddleware injects a fixed identity the way the auth middleware would.
func identityMiddleware(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func userIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}
}

func adminIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleAdmin}}
}

func newTestRouter(t *testing.T, registrar RouteRegistrar, path string, identity *auth.Identity) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	if identity != nil {
		r.Use(identityMiddleware(identity))
	}
	r.Route(path, registrar)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type envelopeBody struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination"`
	Message    string          `json:"message"`
	Code       string          `json:"code"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return body
}

func sampleOrder(id, userID string) domain.Order {
	createdAt := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	return domain.Order{
		ID:          id,
		OrderNumber: "ORD202603140001",
		UserID:      userID,
		Items: []domain.OrderItem{
			{ProductID: "prod_a", Name: "Product A", UnitPrice: 100000, Quantity: 2},
		},
		ShippingAddress: domain.ShippingAddress{
			FullName: "Nguyen Van A",
			Phone:    "0900000001",
			Street:   "12 Ly Thuong Kiet",
			Ward:     "Ward 7",
			District: "District 3",
			City:     "Ho Chi Minh City",
		},
		PaymentMethod: domain.PaymentMethodCOD,
		ItemsPrice:    200000,
		ShippingPrice: 30000,
		TotalPrice:    230000,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}
