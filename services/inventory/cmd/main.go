package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	outbox "github.com/sakashimaa/fulfillment-saga/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/pkg/telemetry"
	"github.com/sakashimaa/fulfillment-saga/pkg/utils"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/service"
	inventoryHttp "github.com/sakashimaa/fulfillment-saga/services/inventory/internal/transport/http"
	inventoryKafka "github.com/sakashimaa/fulfillment-saga/services/inventory/internal/transport/kafka"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	if cfg.Service == "" {
		cfg.Service = "inventory-service"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = inventoryKafka.GroupID
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := telemetry.InitTracer(ctx, cfg.Service, cfg.Env, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Error creating new postgres DB: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	breaker := utils.NewBreaker("product-cache", cfg.Breaker.ConsecutiveFailures, cfg.Breaker.Cooldown, logger)

	policy := kafka.PolicyFromConfig(cfg.Kafka.Retry)

	productRepository := repository.NewProductRepository(pool, logger)
	orderRepository := repository.NewOrderRepository(pool, logger)
	outboxRepository := outbox.NewOutboxRepository()

	engine := service.NewReservationEngine(productRepository, logger)
	inventoryService := service.NewInventoryService(pool, orderRepository, engine, outboxRepository, cfg.Reservation.TTL, logger)
	productService := service.NewProductService(productRepository, pool, logger)
	cachedProductService := service.NewCachedProductService(productService, rdb, breaker, cfg.Redis.TTL, logger)

	kafkaProducer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, policy, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepository, kafkaProducer, logger, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
	go outboxProcessor.Start(ctx)

	if cfg.Reservation.ReaperEnabled {
		reaper := service.NewReaper(inventoryService, cfg.Reservation.ReaperInterval, cfg.Reservation.ReaperBatch, logger)
		go reaper.Start(ctx)
	}

	consumer := inventoryKafka.NewConsumer(inventoryService, logger)
	consumerGroup := kafka.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumer.Router(), policy, logger)
	go func() {
		if err := consumerGroup.Run(ctx); err != nil {
			logger.Error("Consumer group stopped", zap.Error(err))
			stop()
		}
	}()

	app := httpserver.New(cfg.Service, cfg.HTTP, logger)
	inventoryHttp.RegisterRoutes(app, inventoryHttp.NewProductHandler(cachedProductService, logger))
	httpserver.Serve(ctx, app, cfg.HTTP.Port, logger)

	logger.Info("inventory service started!")

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("Error closing kafka producer", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("Error closing redis client", zap.Error(err))
	}

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping telemetry", zap.Error(err))
	}
}
