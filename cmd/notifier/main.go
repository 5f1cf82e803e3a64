package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-checkout/internal/app"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/notification"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		logging.Base().Error("load config", "err", err)
		os.Exit(1)
	}
	log := app.InitLogging(cfg, "notifier")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := app.NewResources(cfg)
	defer res.Close()

	if res.BusDriver() == app.BusInline {
		log.Error("notifier needs bus.driver kafka or rabbitmq; the api sends emails itself on the inline bus")
		os.Exit(1)
	}

	// Customer emails are looked up in the shared read models.
	readStore, err := res.ReadStore(ctx)
	if err != nil {
		log.Error("open read store", "err", err)
		os.Exit(1)
	}
	handler := notification.NewHandler(app.Mailer(cfg), readStore, cfg.Payment.Currency)

	log.Info("consuming events", "bus", res.BusDriver(), "provider", cfg.Email.Provider)
	if err := res.Consume(ctx, cfg.Kafka.NotifierGroup, cfg.Rabbit.NotifierQueue, handler.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("shutting down")
}
