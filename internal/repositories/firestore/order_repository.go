package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gainzy/api/internal/domain"
	pfirestore "github.com/gainzy/api/internal/platform/firestore"
	"github.com/gainzy/api/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	ProductIDs      []string            `firestore:"productIds"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	ItemsPrice      int64               `firestore:"itemsPrice"`
	ShippingPrice   int64               `firestore:"shippingPrice"`
	TotalPrice      int64               `firestore:"totalPrice"`
	Status          string              `firestore:"status"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	Note            string              `firestore:"note,omitempty"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

type addressDocument struct {
	FullName string `firestore:"fullName"`
	Phone    string `firestore:"phone"`
	Street   string `firestore:"street"`
	Ward     string `firestore:"ward"`
	District string `firestore:"district"`
	City     string `firestore:"city"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.base.Create(ctx, order.ID, orderToDocument(order))
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.base.Set(ctx, order.ID, orderToDocument(order))
	return err
}

// List fetches the matching documents and pages in memory. The order number
// search is a substring match Firestore cannot express, and result sets stay
// small at this catalog's scale.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.UserID != "" {
			query = query.Where("userId", "==", filter.UserID)
		}
		if filter.Status != nil {
			query = query.Where("status", "==", string(*filter.Status))
		}
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	search := strings.TrimSpace(filter.Search)
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		if search != "" && !strings.Contains(doc.Data.OrderNumber, search) {
			continue
		}
		orders = append(orders, orderFromDocument(doc.ID, doc.Data))
	}

	total := len(orders)
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

	return domain.Page[domain.Order]{Items: orders[start:end], Total: total}, nil
}

// HasDeliveredOrderWithProduct relies on the denormalized productIds array
// written at checkout, which makes the lookup a single array-contains query.
func (r *OrderRepository) HasDeliveredOrderWithProduct(ctx context.Context, userID, productID string) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("userId", "==", userID).
			Where("status", "==", string(domain.OrderStatusDelivered)).
			Where("productIds", "array-contains", productID).
			Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func orderToDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
		productIDs = append(productIDs, item.ProductID)
	}

	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       items,
		ProductIDs:  productIDs,
		ShippingAddress: addressDocument{
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

func orderFromDocument(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		Items:       items,
		ShippingAddress: domain.ShippingAddress{
			FullName: doc.ShippingAddress.FullName,
			Phone:    doc.ShippingAddress.Phone,
			Street:   doc.ShippingAddress.Street,
			Ward:     doc.ShippingAddress.Ward,
			District: doc.ShippingAddress.District,
			City:     doc.ShippingAddress.City,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		ItemsPrice:    doc.ItemsPrice,
		ShippingPrice: doc.ShippingPrice,
		TotalPrice:    doc.TotalPrice,
		Status:        domain.OrderStatus(doc.Status),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		Note:          doc.Note,
		PaidAt:        doc.PaidAt,
		DeliveredAt:   doc.DeliveredAt,
		CancelledAt:   doc.CancelledAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
