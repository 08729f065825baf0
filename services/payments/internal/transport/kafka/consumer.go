package kafka

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/service"
	"go.uber.org/zap"
)

const GroupID = "payments-service-group"

type Consumer struct {
	service service.PaymentService
	logger  *zap.Logger
}

func NewConsumer(service service.PaymentService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Router() *kafka.Router {
	r := kafka.NewRouter()
	kafka.Handle(r, events.TopicStockAvailable, c.stockAvailable)
	kafka.Handle(r, events.TopicReservationExpired, c.reservationExpired)
	kafka.Handle(r, events.TopicReservationLost, c.reservationLost)

	return r
}

func (c *Consumer) stockAvailable(ctx context.Context, env *events.Envelope, event *events.StockAvailable) error {
	mylogger.Info(ctx, c.logger, "Processing stock available",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	return c.service.HandleStockAvailable(ctx, event)
}

func (c *Consumer) reservationExpired(ctx context.Context, env *events.Envelope, event *events.ReservationExpired) error {
	mylogger.Info(ctx, c.logger, "Processing reservation expired",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	return c.service.HandleReservationExpired(ctx, event)
}

func (c *Consumer) reservationLost(ctx context.Context, env *events.Envelope, event *events.ReservationLost) error {
	mylogger.Info(ctx, c.logger, "Processing reservation lost",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	return c.service.HandleReservationLost(ctx, event)
}
