package kafka

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/service"
	"go.uber.org/zap"
)

const GroupID = "orders-service-group"

type Consumer struct {
	service service.OrderService
	logger  *zap.Logger
}

func NewConsumer(service service.OrderService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// Router projects every downstream saga step onto the order.
func (c *Consumer) Router() *kafka.Router {
	r := kafka.NewRouter()
	kafka.Handle(r, events.TopicStockAvailable, on(c, c.service.UpdateOrderAfterStockAvailable, func(e *events.StockAvailable) string { return e.OrderID }))
	kafka.Handle(r, events.TopicStockUnavailable, on(c, c.service.HandleStockUnavailable, func(e *events.StockUnavailable) string { return e.OrderID }))
	kafka.Handle(r, events.TopicAwaitingPayment, on(c, c.service.HandleAwaitingPayment, func(e *events.AwaitingPayment) string { return e.OrderID }))
	kafka.Handle(r, events.TopicPaymentDone, on(c, c.service.HandlePaymentDone, func(e *events.PaymentDone) string { return e.OrderID }))
	kafka.Handle(r, events.TopicPaymentFailed, on(c, c.service.HandlePaymentFailed, func(e *events.PaymentFailed) string { return e.OrderID }))
	kafka.Handle(r, events.TopicPaymentRefunded, on(c, c.service.HandlePaymentRefunded, func(e *events.PaymentRefunded) string { return e.OrderID }))
	kafka.Handle(r, events.TopicShipmentCreated, on(c, c.service.HandleShipmentCreated, func(e *events.ShipmentCreated) string { return e.OrderID }))
	kafka.Handle(r, events.TopicDeliveredShipment, on(c, c.service.HandleDeliveredShipment, func(e *events.DeliveredShipment) string { return e.OrderID }))
	kafka.Handle(r, events.TopicDeliveryFailed, on(c, c.service.HandleDeliveryFailed, func(e *events.DeliveryFailed) string { return e.OrderID }))

	return r
}

func on[T any](c *Consumer, handle func(context.Context, *T) error, orderID func(*T) string) func(context.Context, *events.Envelope, *T) error {
	return func(ctx context.Context, env *events.Envelope, event *T) error {
		mylogger.Info(ctx, c.logger, "Processing order event",
			zap.String("topic", env.EventContractType),
			zap.String("event_id", env.ID),
			zap.String("order_id", orderID(event)),
		)

		return handle(ctx, event)
	}
}
