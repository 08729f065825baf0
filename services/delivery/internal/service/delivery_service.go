package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/fulfillment-saga/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Events are keyed by order id so every event of an order shares a partition.
const aggregateOrder = "order"

type DeliveryService interface {
	// HandlePaymentDone saves the delivery projection of a paid order and
	// opens its shipment.
	HandlePaymentDone(ctx context.Context, event *events.PaymentDone) (*domain.Shipment, error)
	GetShipment(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error)
	MarkDelivered(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error)
	MarkFailed(ctx context.Context, id sharedDomain.ID, reason string) (*domain.Shipment, error)
	// HandlePaymentRefunded fails the open shipment of a refunded order. A
	// refund seen before its payment leaves a PAYMENT_REFUNDED order behind so
	// the late payment-done opens nothing.
	HandlePaymentRefunded(ctx context.Context, event *events.PaymentRefunded) error
}

type deliveryService struct {
	pool      db.TxBeginner
	orders    repository.OrderRepository
	shipments repository.ShipmentRepository
	outbox    worker.OutboxRepository
	now       func() time.Time
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewDeliveryService(
	pool db.TxBeginner,
	orders repository.OrderRepository,
	shipments repository.ShipmentRepository,
	outbox worker.OutboxRepository,
	logger *zap.Logger,
) DeliveryService {
	return &deliveryService{
		pool:      pool,
		orders:    orders,
		shipments: shipments,
		outbox:    outbox,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		tracer:    otel.Tracer("delivery/service"),
	}
}

func (s *deliveryService) rollback(ctx context.Context, tx pgx.Tx, method string) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(cleanupCtx, s.logger, "Failed to rollback transaction",
			zap.Error(err),
			zap.String("method_name", method),
		)
	}
}

func (s *deliveryService) HandlePaymentDone(ctx context.Context, event *events.PaymentDone) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "DeliveryService.HandlePaymentDone")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	ids, err := sharedDomain.ParseIDs(event.OrderID, event.CustomerID)
	if err != nil {
		return nil, err
	}

	exists, err := s.orders.Exists(ctx, ids[0])
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrOrderAlreadyExists, ids[0])
	}

	now := s.now()
	order := &domain.Order{
		ID:         ids[0],
		CustomerID: ids[1],
		Status:     domain.OrderStatusPaymentSucceeded,
		PaymentAt:  event.PaymentAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "HandlePaymentDone")

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	shipment := domain.NewShipment(order, now)
	if err := s.shipments.Create(ctx, tx, shipment); err != nil {
		return nil, err
	}

	if err := order.Transition(domain.OrderStatusShipmentCreated, now); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	payload := events.ShipmentCreated{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
	}
	if err := s.record(ctx, tx, order.ID, events.TopicShipmentCreated, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing shipment: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Shipment created",
		zap.String("order_id", order.ID.String()),
		zap.String("shipment_id", shipment.ID.String()),
	)

	return shipment, nil
}

func (s *deliveryService) HandlePaymentRefunded(ctx context.Context, event *events.PaymentRefunded) error {
	ctx, span := s.tracer.Start(ctx, "DeliveryService.HandlePaymentRefunded")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	ids, err := sharedDomain.ParseIDs(event.OrderID, event.CustomerID)
	if err != nil {
		return err
	}

	exists, err := s.orders.Exists(ctx, ids[0])
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !exists {
		err := s.saveRefunded(ctx, ids[0], ids[1], event.RefundedAt)
		if !errors.Is(err, repository.ErrOrderAlreadyExists) {
			return err
		}
	}

	shipment, err := s.shipments.GetByOrderID(ctx, ids[0])
	if err != nil {
		return err
	}

	_, err = s.MarkFailed(ctx, shipment.ID, cancelReason(event.Reason))
	return err
}

func (s *deliveryService) saveRefunded(ctx context.Context, orderID, customerID sharedDomain.ID, refundedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "saveRefunded")

	now := s.now()
	order := &domain.Order{
		ID:         orderID,
		CustomerID: customerID,
		Status:     domain.OrderStatusPaymentRefunded,
		PaymentAt:  refundedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Create(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing refunded order: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Refund arrived before payment, shipment blocked", zap.String("order_id", orderID.String()))
	return nil
}

func cancelReason(refundReason string) string {
	reason := "payment refunded: " + refundReason
	if r := []rune(reason); len(r) > 500 {
		reason = string(r[:500])
	}
	return reason
}

func (s *deliveryService) GetShipment(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "DeliveryService.GetShipment")
	defer span.End()

	return s.shipments.GetByID(ctx, id)
}

func (s *deliveryService) MarkDelivered(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error) {
	return s.complete(ctx, "MarkDelivered", id, domain.OrderStatusDeliveryCompleted,
		func(shipment *domain.Shipment, now time.Time) (string, any, error) {
			if err := shipment.MarkDelivered(now); err != nil {
				return "", nil, err
			}

			return events.TopicDeliveredShipment, events.DeliveredShipment{
				ShipmentID:  shipment.ID.String(),
				OrderID:     shipment.OrderID.String(),
				CustomerID:  shipment.CustomerID.String(),
				DeliveredAt: now,
			}, nil
		})
}

func (s *deliveryService) MarkFailed(ctx context.Context, id sharedDomain.ID, reason string) (*domain.Shipment, error) {
	return s.complete(ctx, "MarkFailed", id, domain.OrderStatusDeliveryFailed,
		func(shipment *domain.Shipment, now time.Time) (string, any, error) {
			if err := shipment.MarkFailed(reason, now); err != nil {
				return "", nil, err
			}

			return events.TopicDeliveryFailed, events.DeliveryFailed{
				ShipmentID: shipment.ID.String(),
				OrderID:    shipment.OrderID.String(),
				CustomerID: shipment.CustomerID.String(),
				Reason:     reason,
				FailedAt:   now,
			}, nil
		})
}

// complete settles a shipment and its order in one transaction and records
// the outcome event built by settle.
func (s *deliveryService) complete(
	ctx context.Context,
	method string,
	id sharedDomain.ID,
	orderTarget domain.OrderStatus,
	settle func(*domain.Shipment, time.Time) (string, any, error),
) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "DeliveryService."+method)
	defer span.End()

	span.SetAttributes(attribute.String("shipment_id", id.String()))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, method)

	shipment, err := s.shipments.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetByIDForUpdate(ctx, tx, shipment.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	topic, payload, err := settle(shipment, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := order.Transition(orderTarget, now); err != nil {
		return nil, err
	}

	if err := s.shipments.Update(ctx, tx, shipment); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, order.ID, topic, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing shipment %s: %w", id, err)
	}

	mylogger.Info(ctx, s.logger, "Shipment settled",
		zap.String("shipment_id", id.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(shipment.Status)),
	)

	return shipment, nil
}

func (s *deliveryService) record(ctx context.Context, tx pgx.Tx, orderID sharedDomain.ID, topic string, payload any) error {
	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, orderID.String(), topic, payload)
	if err != nil {
		return err
	}

	return s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent)
}
