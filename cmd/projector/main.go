package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-checkout/internal/app"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/projection"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		logging.Base().Error("load config", "err", err)
		os.Exit(1)
	}
	log := app.InitLogging(cfg, "projector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := app.NewResources(cfg)
	defer res.Close()

	if res.BusDriver() == app.BusInline {
		log.Error("projector needs bus.driver kafka or rabbitmq")
		os.Exit(1)
	}
	if res.ReadsInMemory() {
		log.Warn("read models are in memory; this process keeps its own copy")
	}

	readStore, err := res.ReadStore(ctx)
	if err != nil {
		log.Error("open read store", "err", err)
		os.Exit(1)
	}
	projector := projection.NewProjector(readStore)

	log.Info("consuming events", "bus", res.BusDriver(), "group", cfg.Kafka.ProjectorGroup, "queue", cfg.Rabbit.ProjectorQueue)
	if err := res.Consume(ctx, cfg.Kafka.ProjectorGroup, cfg.Rabbit.ProjectorQueue, projector.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("shutting down")
}
