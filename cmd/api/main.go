package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/example/ec-checkout/configs"
	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/app"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/cache"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/notification"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/projection"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/session"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		logging.Base().Error("load config", "err", err)
		os.Exit(1)
	}
	log := app.InitLogging(cfg, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg configs.Config) error {
	log := logging.New("api")
	res := app.NewResources(cfg)
	defer func() {
		if err := res.Close(); err != nil {
			log.Warn("close resources", "err", err)
		}
	}()

	readStore, err := res.ReadStore(ctx)
	if err != nil {
		return err
	}
	projector := projection.NewProjector(readStore)

	// With the inline bus this process projects and sends emails itself.
	var inline store.Publisher = projector
	if res.BusDriver() == app.BusInline {
		notifier := notification.NewHandler(app.Mailer(cfg), readStore, cfg.Payment.Currency)
		inline = app.NewInlineBus(projector, notifier.HandleEvent)
	}
	publisher, err := res.Publisher(inline)
	if err != nil {
		return err
	}
	eventStore, err := res.EventStore(ctx, publisher)
	if err != nil {
		return err
	}

	// Read models held in memory are rebuilt from the event store.
	if res.ReadsInMemory() {
		if _, err := projector.Replay(ctx, eventStore); err != nil {
			return err
		}
	}

	rdb, err := res.Redis(ctx)
	if err != nil {
		return err
	}
	var idempotency command.IdempotencyStore
	var sessions session.Store
	if rdb != nil {
		idempotency = cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL)
		sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
	} else {
		idempotency = cache.NewMemoryIdempotencyStore(cfg.Idempotency.TTL)
		sessions = session.NewMemoryStore()
	}

	productSvc := product.NewService(eventStore)
	inventorySvc := inventory.NewService(eventStore)
	cartSvc := cart.NewService(eventStore)
	orderSvc := order.NewService(eventStore)
	customerSvc := customer.NewService(eventStore)
	addressSvc := address.NewService(eventStore)

	jwtService := auth.NewJWTService(cfg.Security.JWTSecret, cfg.Security.AccessTTL, cfg.Security.RefreshTTL)

	cmdHandler := command.NewHandler(eventStore, productSvc, inventorySvc, cartSvc, orderSvc, customerSvc,
		idempotency, app.ServerCalculator(cfg))
	queryHandler := query.NewHandler(readStore)
	paymentSvc := payment.NewService(orderSvc, app.Gateway(cfg), app.PaymentConfig(cfg))
	workflow := checkout.NewWorkflow(cartSvc, addressSvc, sessions, cmdHandler, paymentSvc, checkout.Config{
		ConfirmationURL: cfg.Checkout.ConfirmationURL,
		RedirectAfter:   cfg.Checkout.RedirectAfter,
		Estimator:       app.EstimateCalculator(cfg),
	})

	if err := bootstrapAdmin(ctx, cfg, customerSvc, queryHandler); err != nil {
		return err
	}

	// Out-of-process buses still need a local projector for in-memory reads.
	var wg sync.WaitGroup
	if res.BusDriver() != app.BusInline && res.ReadsInMemory() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := res.Consume(ctx, cfg.Kafka.ProjectorGroup+"-api", cfg.Rabbit.ProjectorQueue+".api", projector.HandleEvent)
			if err != nil && ctx.Err() == nil {
				log.Error("api projector stopped", "err", err)
			}
		}()
	}

	handlers := api.NewHandlers(api.Services{
		Commands:  cmdHandler,
		Queries:   queryHandler,
		Carts:     cartSvc,
		Addresses: addressSvc,
		Sessions:  sessions,
		Checkout:  workflow,
		Payments:  paymentSvc,
	})
	authHandlers := api.NewAuthHandlers(customerSvc, queryHandler, jwtService, readStore)
	router := api.NewRouter(api.RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		JWTService:   jwtService,
		WebDir:       cfg.App.WebDir,
		Logger:       logging.New("http"),
	})

	server := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started",
			"addr", cfg.App.HTTPAddr,
			"events", cfg.Store.Events,
			"reads", cfg.Store.Reads,
			"bus", res.BusDriver(),
			"gateway", cfg.Payment.Provider,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

// bootstrapAdmin registers the configured admin account once.
func bootstrapAdmin(ctx context.Context, cfg configs.Config, customers *customer.Service, queries *query.Handler) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return nil
	}
	_, exists, err := queries.CustomerIDByEmail(ctx, cfg.Admin.Email)
	if err != nil || exists {
		return err
	}
	admin, err := customers.RegisterAdmin(ctx, customer.RegisterInput{
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Name:     cfg.Admin.Name,
	})
	if err != nil {
		return err
	}
	logging.New("api").Info("admin account created", "customer_id", admin.ID)
	return nil
}
