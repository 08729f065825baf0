package kafka

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/service"
	"go.uber.org/zap"
)

const GroupID = "notification-service-group"

type Consumer struct {
	service service.NotificationService
	logger  *zap.Logger
}

func NewConsumer(service service.NotificationService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Router() *kafka.Router {
	r := kafka.NewRouter()
	notify(c, r, events.TopicOrderCreated, func(e *events.OrderCreated) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.OrderCreatedMessage(e) }
	})
	notify(c, r, events.TopicStockUnavailable, func(e *events.StockUnavailable) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.StockUnavailableMessage(e) }
	})
	notify(c, r, events.TopicAwaitingPayment, func(e *events.AwaitingPayment) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.AwaitingPaymentMessage(e) }
	})
	notify(c, r, events.TopicPaymentDone, func(e *events.PaymentDone) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.PaymentDoneMessage(e) }
	})
	notify(c, r, events.TopicPaymentFailed, func(e *events.PaymentFailed) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.PaymentFailedMessage(e) }
	})
	notify(c, r, events.TopicPaymentRefunded, func(e *events.PaymentRefunded) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.PaymentRefundedMessage(e) }
	})
	notify(c, r, events.TopicShipmentCreated, func(e *events.ShipmentCreated) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.ShipmentCreatedMessage(e) }
	})
	notify(c, r, events.TopicDeliveredShipment, func(e *events.DeliveredShipment) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.DeliveredShipmentMessage(e) }
	})
	notify(c, r, events.TopicDeliveryFailed, func(e *events.DeliveryFailed) (string, string, func() (string, string)) {
		return e.OrderID, e.CustomerID, func() (string, string) { return domain.DeliveryFailedMessage(e) }
	})

	return r
}

// notify routes topic to the service. describe names the order and customer
// of the event and how to render its message.
func notify[T any](c *Consumer, r *kafka.Router, topic string, describe func(*T) (string, string, func() (string, string))) {
	kafka.Handle(r, topic, func(ctx context.Context, env *events.Envelope, event *T) error {
		orderID, customerID, render := describe(event)

		mylogger.Info(ctx, c.logger, "Processing customer event",
			zap.String("event_id", env.ID),
			zap.String("topic", topic),
			zap.String("order_id", orderID),
		)

		_, err := c.service.Notify(ctx, service.NoticeFor(env, orderID, customerID, render))
		return err
	})
}
