package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	outboxRepository "github.com/onstechno/storefront/internal/outbox/repository"
	"github.com/onstechno/storefront/internal/outbox/worker"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/onstechno/storefront/internal/service"
	transport "github.com/onstechno/storefront/internal/transport/http"
	"github.com/onstechno/storefront/internal/transport/http/handler"
	"github.com/onstechno/storefront/internal/transport/http/middleware"
	"github.com/onstechno/storefront/pkg/config"
	"github.com/onstechno/storefront/pkg/db"
	"github.com/onstechno/storefront/pkg/kafka"
	"github.com/onstechno/storefront/pkg/mylogger"
	"github.com/onstechno/storefront/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, "storefront", cfg.Env)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	productService := service.NewCachedProductService(
		service.NewProductService(productRepo, pool, logger),
		redisClient,
	)
	orderService := service.NewOrderService(pool, logger, orderRepo, productRepo, outboxRepo)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	app := fiber.New()
	app.Use(otelfiber.Middleware())
	app.Use(middleware.NewMetricsMiddleware())

	handlers := &transport.Handlers{
		Product: handler.NewProductHandler(productService, logger),
		Order:   handler.NewOrderHandler(orderService, logger),
	}
	transport.RegisterRoutes(app, handlers, cfg.JWT.Secret)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Metrics.Port,
		Handler: metricsMux,
	}

	go func() {
		log.Println("Metrics listening on: " + cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("error listening on metrics port %v: %v\n", cfg.Metrics.Port, err)
		}
	}()

	go func() {
		log.Println("HTTP listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	logger.Info("Storefront started", zap.String("env", cfg.Env))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down storefront")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down metrics server", zap.Error(err))
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error closing kafka producer", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error closing redis client", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
