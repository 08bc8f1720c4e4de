package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/cache"
	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/http/fiber/handlers"
	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/http/fiber/middleware"
	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/ocpi"
	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/queue"
	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/storage/postgres"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/auth"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/billing"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/bridge"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/catalog"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/health"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/session"
	"github.com/evinterop/beckn-ocpi-bridge/pkg/config"
)

const (
	serviceName    = "beckn-ocpi-bridge"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting Beckn-OCPI bridge",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Initialize PostgreSQL Connection Pool
	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 5. Initialize Cache (Redis, in-memory fallback)
	var kv ports.Cache
	kv, err = cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
		kv = cache.NewLocalCache(time.Minute, logger)
	}
	defer kv.Close()

	// 6. Initialize Message Queue (NATS)
	messageQueue, err := queue.NewNATSQueue(cfg.NATS.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer messageQueue.Close()

	// 7. Initialize OCPI Client (cached reads on top of the HTTP client)
	ocpiClient := ocpi.NewClient(ocpi.Config{
		BaseURL: cfg.OCPI.BaseURL,
		Token:   cfg.OCPI.Token,
		Timeout: cfg.OCPI.Timeout,
	}, logger)
	cachedOCPI := ocpi.NewCachedClient(ocpiClient, kv, cfg.OCPI.CacheTTL, logger)

	// 8. Initialize Repositories
	txStore := postgres.NewTransactionStore(db, logger)
	billStore := postgres.NewBillingStore(db, logger)

	// 9. Initialize Services (Business Logic Layer)
	transformer := catalog.NewTransformer(cfg.Provider.BppID, cfg.Provider.Name, logger)
	machine := session.NewMachine(txStore, cachedOCPI, messageQueue, logger)
	billingSvc := billing.NewService(billStore, messageQueue, cfg.Billing.Tolerance, logger)
	authSvc := auth.NewService(cfg.JWT.Secret, cfg.JWT.TokenDuration, kv, logger)

	retry := bridge.BackoffPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	coordinator := bridge.NewCoordinator(
		transformer,
		machine,
		billingSvc,
		cachedOCPI,
		retry,
		bridge.RealClock(),
		cfg.Provider.BppID,
		cfg.Provider.BppURI,
		logger,
	)

	// 10. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	}
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(logger))
	}

	// Health Check Endpoints
	healthSvc := health.NewService(serviceVersion, logger)
	healthSvc.Register("database", true, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	healthSvc.Register("cache", false, func(ctx context.Context) error {
		return kv.Set(ctx, "health:ping", "ok", time.Second)
	})

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		ready, report := healthSvc.Ready(c.Context())
		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(report)
		}
		return c.JSON(report)
	})

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	// Action Routes (authenticated network subscribers only)
	bridgeHandler := handlers.NewBridgeHandler(coordinator, logger)
	actions := app.Group("/beckn/v1", middleware.AuthRequired(authSvc))
	actions.Post("/search", bridgeHandler.Search)
	actions.Post("/select", bridgeHandler.Select)
	actions.Post("/init", bridgeHandler.Init)
	actions.Post("/confirm", bridgeHandler.Confirm)
	actions.Post("/status", bridgeHandler.Status)
	actions.Post("/update", bridgeHandler.Update)
	actions.Post("/cancel", bridgeHandler.Cancel)

	// 11. Start Background Workers
	go startBackgroundWorkers(messageQueue, logger)

	// 12. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 13. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

// startBackgroundWorkers drains the order and billing event streams for
// audit logging. Downstream consumers (settlement, notifications) attach
// to the same subjects out of process.
func startBackgroundWorkers(mq queue.MessageQueue, logger *zap.Logger) {
	logger.Info("Starting background workers")

	mq.Subscribe("order.diverged", func(msg []byte) error {
		logger.Warn("order diverged", zap.ByteString("event", msg))
		return nil
	})

	mq.Subscribe("billing.recorded", func(msg []byte) error {
		logger.Info("billing recorded", zap.ByteString("event", msg))
		return nil
	})
}
