package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName, cfg.LogFormat, cfg.LogLevel)
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
	if err := postgres.Migrate(db, logger); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, logger)
	prod.Start(ctx)

	// Commerce backend
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

	// Services
	carts := cart.NewManager(backend,
		redisx.NewStore[string](rdb, redisx.KeySessionCart, redisx.TTLSession),
		redisx.NewStore[commerce.Cart](rdb, redisx.KeyCartState, redisx.TTLCartState),
		cfg.RegionID, logger)
	customers := customer.NewService(backend, carts,
		redisx.NewStore[string](rdb, redisx.KeyCustomerToken, redisx.TTLToken),
		redisx.NewStore[customer.Cached](rdb, redisx.KeyCustomer, redisx.TTLCustomer),
		logger)
	ordersSvc := &orders.Service{
		Repo:        &orders.Repo{DB: db},
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName,
		Log:         logger.Named("orders"),
	}
	co := checkout.New(checkout.Deps{
		Backend:         backend,
		Carts:           carts,
		Customers:       customers,
		Recorder:        ordersSvc,
		States:          redisx.NewStore[checkout.State](rdb, redisx.KeyCheckout, redisx.TTLCheckout),
		Logger:          logger,
		CountryCode:     cfg.CountryCode,
		OfflineFallback: cfg.OfflineFallback,
		Debounce:        cfg.AddressDebounce,
	})
	cat := catalog.NewService(backend, rdb, catalog.Options{
		RegionID:    cfg.RegionID,
		CountryCode: cfg.CountryCode,
		PublicURL:   cfg.PublicURL(),
		TTL:         redisx.TTLCatalog,
	}, logger)

	// Router & handlers
	router := httpx.NewRouter(logger, httpx.RouterOptions{
		SessionTTL:    cfg.SessionCookieTTL,
		SecureCookies: cfg.SessionCookieSecure,
	})
	(&httpx.CartHandler{Carts: carts, Log: logger}).Register(router)
	(&httpx.CheckoutHandler{Checkout: co, Log: logger}).Register(router)
	(&httpx.AccountHandler{Customers: customers, Log: logger}).Register(router)
	(&httpx.CatalogHandler{Catalog: cat, Log: logger}).Register(router)
	(&httpx.OrdersHandler{Orders: ordersSvc, Log: logger}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// graceful shutdown
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	co.Close()        // draft alamat yang masih pending dibatalkan
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	cancel()
}
