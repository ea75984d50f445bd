package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gainzy/api/internal/platform/config"
	"github.com/gainzy/api/internal/repositories"
	"github.com/gainzy/api/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Cart    services.CartService
	Orders  services.OrderService
	Reviews services.ReviewService
}

// Deps carries the externally constructed collaborators.
type Deps struct {
	Config       config.Config
	Repositories repositories.Registry
	OrderEvents  services.OrderEventPublisher
	ReviewEvents services.ReviewEventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer assembles the service layer from the provided dependencies.
func NewContainer(deps Deps) (*Container, error) {
	reg := deps.Repositories
	if reg.Products == nil || reg.Carts == nil || reg.Orders == nil || reg.Reviews == nil || reg.Counters == nil {
		return nil, errors.New("di: repository registry is incomplete")
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts,
		Products: reg.Products,
		Clock:    time.Now,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build cart service: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders,
		Products:   reg.Products,
		Carts:      reg.Carts,
		Counters:   reg.Counters,
		UnitOfWork: reg.Unit,
		Clock:      time.Now,
		Events:     deps.OrderEvents,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build order service: %w", err)
	}

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:                 reg.Reviews,
		Products:                reg.Products,
		Orders:                  reg.Orders,
		UnitOfWork:              reg.Unit,
		Clock:                   time.Now,
		Events:                  deps.ReviewEvents,
		Logger:                  deps.Logger,
		RequireVerifiedPurchase: deps.Config.Features.RequireVerifiedPurchase,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build review service: %w", err)
	}

	return &Container{
		Config:       deps.Config,
		Repositories: reg,
		Services: Services{
			Cart:    cartSvc,
			Orders:  orderSvc,
			Reviews: reviewSvc,
		},
	}, nil
}
