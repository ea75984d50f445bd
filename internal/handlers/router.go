package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gainzy/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	cart        RouteRegistrar
	orders      RouteRegistrar
	adminOrders RouteRegistrar
	reviews     RouteRegistrar
	products    RouteRegistrar

	userMiddlewares  []func(http.Handler) http.Handler
	adminMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
			if registrar == nil {
				return
			}
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				registrar(group)
			})
		}

		mount("/products", cfg.products, nil)
		mount("/cart", cfg.cart, cfg.userMiddlewares)
		mount("/reviews", cfg.reviews, cfg.userMiddlewares)

		// User and admin order endpoints share the /orders prefix but run
		// behind different auth stacks, so each set gets its own group.
		if cfg.orders != nil || cfg.adminOrders != nil {
			api.Route("/orders", func(group chi.Router) {
				if cfg.orders != nil {
					group.Group(func(user chi.Router) {
						for _, mw := range cfg.userMiddlewares {
							if mw != nil {
								user.Use(mw)
							}
						}
						cfg.orders(user)
					})
				}
				if cfg.adminOrders != nil {
					group.Group(func(admin chi.Router) {
						for _, mw := range cfg.adminMiddlewares {
							if mw != nil {
								admin.Use(mw)
							}
						}
						cfg.adminOrders(admin)
					})
				}
			})
		}
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithBasePath overrides the default API prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithHealthHandlers overrides the health handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithUserMiddlewares sets the middleware stack for authenticated user groups.
func WithUserMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.userMiddlewares = mw
	}
}

// WithAdminMiddlewares sets the middleware stack for admin groups.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = mw
	}
}

// WithCartRoutes mounts the cart endpoints.
func WithCartRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = registrar
	}
}

// WithOrderRoutes mounts the user-facing order endpoints.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = registrar
	}
}

// WithAdminOrderRoutes mounts the admin order endpoints.
func WithAdminOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.adminOrders = registrar
	}
}

// WithReviewRoutes mounts the review endpoints.
func WithReviewRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.reviews = registrar
	}
}

// WithProductRoutes mounts the public product endpoints.
func WithProductRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = registrar
	}
}
