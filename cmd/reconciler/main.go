package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-reconciler"
	logger, err := logging.New(service, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: order.reconciled
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderReconciled, 256, logger)
	prod.Start(ctx)

	backend, err := commerce.NewClient(commerce.Options{
		BaseURL:        cfg.CommerceURL,
		PublishableKey: cfg.PublishableKey,
		HTTP:           &http.Client{Timeout: cfg.CommerceTimeout},
		MaxRetries:     cfg.CommerceMaxRetries,
		RPS:            cfg.CommerceRPS,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("commerce client", zap.Error(err))
	}

	// Service
	svc := &reconcile.Service{
		Backend: backend,
		Orders: &orders.Service{
			Repo:        &orders.Repo{DB: db},
			Redis:       rdb,
			ServiceName: service,
			Log:         logger.Named("orders"),
		},
		Redis:       rdb,
		Producer:    prod,
		ServiceName: service,
		Log:         logger.Named("reconcile"),
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicOrderPlaced, cfg.ReconcilerWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("reconciler consumer started",
			zap.String("group", cfg.ReconcilerGroup), zap.String("topic", orders.TopicOrderPlaced),
			zap.Int("workers", cfg.ReconcilerWorkers))
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("consumer did not stop in time")
	}
	prod.Close()
	prod.WaitClosed()
}
