package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	outbox "github.com/sakashimaa/fulfillment-saga/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/pkg/telemetry"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/service"
	ordersHttp "github.com/sakashimaa/fulfillment-saga/services/orders/internal/transport/http"
	ordersKafka "github.com/sakashimaa/fulfillment-saga/services/orders/internal/transport/kafka"
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
		cfg.Service = "orders-service"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = ordersKafka.GroupID
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

	policy := kafka.PolicyFromConfig(cfg.Kafka.Retry)

	orderRepository := repository.NewOrderRepository(pool, logger)
	outboxRepository := outbox.NewOutboxRepository()
	orderService := service.NewOrderService(pool, orderRepository, outboxRepository, logger)

	kafkaProducer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, policy, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepository, kafkaProducer, logger, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
	go outboxProcessor.Start(ctx)

	consumer := ordersKafka.NewConsumer(orderService, logger)
	consumerGroup := kafka.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumer.Router(), policy, logger)
	go func() {
		if err := consumerGroup.Run(ctx); err != nil {
			logger.Error("Consumer group stopped", zap.Error(err))
			stop()
		}
	}()

	app := httpserver.New(cfg.Service, cfg.HTTP, logger)
	ordersHttp.RegisterRoutes(app, ordersHttp.NewOrderHandler(orderService, logger))
	httpserver.Serve(ctx, app, cfg.HTTP.Port, logger)

	logger.Info("orders service started!")

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("Error closing kafka producer", zap.Error(err))
	}

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping telemetry", zap.Error(err))
	}
}
