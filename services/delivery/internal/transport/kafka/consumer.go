package kafka

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/service"
	"go.uber.org/zap"
)

const GroupID = "delivery-service-group"

type Consumer struct {
	service service.DeliveryService
	logger  *zap.Logger
}

func NewConsumer(service service.DeliveryService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Router() *kafka.Router {
	r := kafka.NewRouter()
	kafka.Handle(r, events.TopicPaymentDone, c.paymentDone)
	kafka.Handle(r, events.TopicPaymentRefunded, c.paymentRefunded)

	return r
}

func (c *Consumer) paymentDone(ctx context.Context, env *events.Envelope, event *events.PaymentDone) error {
	mylogger.Info(ctx, c.logger, "Processing payment done",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	_, err := c.service.HandlePaymentDone(ctx, event)
	return err
}

func (c *Consumer) paymentRefunded(ctx context.Context, env *events.Envelope, event *events.PaymentRefunded) error {
	mylogger.Info(ctx, c.logger, "Processing payment refunded",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	return c.service.HandlePaymentRefunded(ctx, event)
}
