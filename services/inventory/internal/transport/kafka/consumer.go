package kafka

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/service"
	"go.uber.org/zap"
)

const GroupID = "inventory-service-group"

type Consumer struct {
	service service.InventoryService
	logger  *zap.Logger
}

func NewConsumer(service service.InventoryService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// Router wires the topics inventory reacts to.
func (c *Consumer) Router() *kafka.Router {
	r := kafka.NewRouter()
	kafka.Handle(r, events.TopicOrderCreated, c.orderCreated)
	kafka.Handle(r, events.TopicPaymentDone, c.paymentDone)

	return r
}

func (c *Consumer) orderCreated(ctx context.Context, env *events.Envelope, event *events.OrderCreated) error {
	mylogger.Info(ctx, c.logger, "Processing order created",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	_, err := c.service.HandleOrderCreated(ctx, event)
	return err
}

func (c *Consumer) paymentDone(ctx context.Context, env *events.Envelope, event *events.PaymentDone) error {
	mylogger.Info(ctx, c.logger, "Processing payment done",
		zap.String("event_id", env.ID),
		zap.String("order_id", event.OrderID),
	)

	return c.service.HandlePaymentDone(ctx, event)
}
