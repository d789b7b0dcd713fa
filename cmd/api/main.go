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

	"craftchain/internal/cache"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/lock"
	"craftchain/internal/logger"
	"craftchain/internal/metrics"
	"craftchain/internal/repository"
	"craftchain/internal/server"
	"craftchain/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const serviceName = "craftchain-api"

type stores struct {
	orders        repository.OrderRepository
	certificates  repository.CertificateRepository
	products      repository.ProductRepository
	webhookEvents repository.WebhookEventRepository
	users         repository.UserRepository
	close         func(context.Context) error
}

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(serviceName, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var (
		locker lock.Locker = lock.NewLocal()
		store  cache.Cache = cache.NewMemory()
		rdb    *redis.Client
		ledger client.LedgerClient
	)
	if cfg.Redis.Addr != "" {
		rdb, err = client.InitRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL, log)
		store = cache.NewRedis(rdb)
		log.Info("using redis for locks and cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("redis not configured, using in-process locks; run a single instance only")
	}

	switch cfg.Ledger.Mode {
	case "http":
		ledger = client.NewLedgerClient(&cfg.Ledger, m)
	case "simulated", "":
		// prefix token ids so instances sharing a store never collide
		ledger = client.NewLedgerStub(uuid.NewString()[:8])
		log.Warn("ledger running in simulated mode")
	default:
		return fmt.Errorf("unknown ledger mode %q", cfg.Ledger.Mode)
	}

	productService := service.NewProductService(st.products, store, cfg.Cache.ProductTTL, log)
	if err := productService.Seed(ctx); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	certificateService := service.NewCertificateService(
		cfg, ledger,
		st.certificates,
		st.orders,
		productService,
		locker, m, log,
	)

	paymentService := service.NewPaymentService(
		cfg, client.NewRazorpayClient(&cfg.Razorpay, m),
		productService,
		certificateService,
		st.orders,
		st.certificates,
		st.webhookEvents,
		locker, m, log,
	)

	userService := service.NewUserService(cfg, st.users, log)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(cfg, log, reg, paymentService, certificateService, productService, userService)

	log.Info("starting HTTP server",
		zap.String("addr", serverAddr),
		zap.String("environment", cfg.Environment.Name),
		zap.String("store", cfg.Database.Driver))
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		log.Info("signal received, starting graceful shutdown", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn("closing redis", zap.Error(err))
		}
	}
	if err := st.close(shutdownCtx); err != nil {
		log.Warn("closing store", zap.Error(err))
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "mongo" {
		mc, db, err := client.InitMongoClient(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = mc.Disconnect(ctx)
			return nil, err
		}
		return mongoStores(mc, db), nil
	}

	db, err := client.InitGormClient(&cfg.Database)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	return &stores{
		orders:        repository.NewOrderRepository(db),
		certificates:  repository.NewCertificateRepository(db),
		products:      repository.NewProductRepository(db),
		webhookEvents: repository.NewWebhookEventRepository(db),
		users:         repository.NewUserRepository(db),
		close:         func(context.Context) error { return sqlDB.Close() },
	}, nil
}

func mongoStores(mc *mongo.Client, db *mongo.Database) *stores {
	return &stores{
		orders:        repository.NewMongoOrderRepository(db),
		certificates:  repository.NewMongoCertificateRepository(db),
		products:      repository.NewMongoProductRepository(db),
		webhookEvents: repository.NewMongoWebhookEventRepository(db),
		users:         repository.NewMongoUserRepository(db),
		close:         mc.Disconnect,
	}
}
