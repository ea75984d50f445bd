package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/gainzy/api/internal/di"
	"github.com/gainzy/api/internal/handlers"
	"github.com/gainzy/api/internal/platform/auth"
	"github.com/gainzy/api/internal/platform/config"
	pfirestore "github.com/gainzy/api/internal/platform/firestore"
	"github.com/gainzy/api/internal/platform/jobs"
	"github.com/gainzy/api/internal/platform/observability"
	"github.com/gainzy/api/internal/repositories"
	firestorerepo "github.com/gainzy/api/internal/repositories/firestore"
	"github.com/gainzy/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := buildRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to build repositories", zap.Error(err))
	}

	var orderEvents services.OrderEventPublisher
	var reviewEvents services.ReviewEventPublisher
	if cfg.PubSub.OrderEventsTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		defer topic.Stop()

		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		orderEvents = publisher
		reviewEvents = publisher
	} else {
		logger.Info("event publishing disabled, no topic configured")
	}

	container, err := di.NewContainer(di.Deps{
		Config:       cfg,
		Repositories: registry,
		OrderEvents:  orderEvents,
		ReviewEvents: reviewEvents,
		Logger:       observability.EventLogger(logger),
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	orderHandlers, err := handlers.NewOrderHandlers(container.Services.Orders)
	if err != nil {
		logger.Fatal("failed to build order handlers", zap.Error(err))
	}
	cartHandlers, err := handlers.NewCartHandlers(container.Services.Cart)
	if err != nil {
		logger.Fatal("failed to build cart handlers", zap.Error(err))
	}
	reviewHandlers, err := handlers.NewReviewHandlers(container.Services.Reviews)
	if err != nil {
		logger.Fatal("failed to build review handlers", zap.Error(err))
	}

	health := handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
		"firestore": func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		},
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithUserMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleUser, auth.RoleAdmin)),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin)),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminOrderRoutes(orderHandlers.AdminRoutes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithProductRoutes(reviewHandlers.ProductRoutes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func buildRegistry(provider *pfirestore.Provider) (repositories.Registry, error) {
	products, err := firestorerepo.NewProductRepository(provider)
	if err != nil {
		return repositories.Registry{}, err
	}
	carts, err := firestorerepo.NewCartRepository(provider)
	if err != nil {
		return repositories.Registry{}, err
	}
	orders, err := firestorerepo.NewOrderRepository(provider)
	if err != nil {
		return repositories.Registry{}, err
	}
	reviews, err := firestorerepo.NewReviewRepository(provider)
	if err != nil {
		return repositories.Registry{}, err
	}
	counters, err := firestorerepo.NewCounterRepository(provider)
	if err != nil {
		return repositories.Registry{}, err
	}
	unit, err := firestorerepo.NewUnitOfWork(provider)
	if err != nil {
		return repositories.Registry{}, err
	}

	return repositories.Registry{
		Products: products,
		Carts:    carts,
		Orders:   orders,
		Reviews:  reviews,
		Counters: counters,
		Unit:     unit,
	}, nil
}
