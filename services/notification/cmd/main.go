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
	"github.com/sakashimaa/fulfillment-saga/pkg/telemetry"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/sender"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/service"
	notificationHttp "github.com/sakashimaa/fulfillment-saga/services/notification/internal/transport/http"
	notificationKafka "github.com/sakashimaa/fulfillment-saga/services/notification/internal/transport/kafka"
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
		cfg.Service = "notification-service"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = notificationKafka.GroupID
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

	notificationRepository := repository.NewNotificationRepository(pool, logger)
	notificationService := service.NewNotificationService(pool, notificationRepository, sender.NewLogSender(logger), logger)

	consumer := notificationKafka.NewConsumer(notificationService, logger)
	consumerGroup := kafka.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumer.Router(), kafka.PolicyFromConfig(cfg.Kafka.Retry), logger)
	go func() {
		if err := consumerGroup.Run(ctx); err != nil {
			logger.Error("Consumer group stopped", zap.Error(err))
			stop()
		}
	}()

	app := httpserver.New(cfg.Service, cfg.HTTP, logger)
	notificationHttp.RegisterRoutes(app, notificationHttp.NewNotificationHandler(notificationService, logger))
	httpserver.Serve(ctx, app, cfg.HTTP.Port, logger)

	logger.Info("notification service started!")

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping telemetry", zap.Error(err))
	}
}
