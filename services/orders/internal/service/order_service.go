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
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateOrder = "order"

type OrderService interface {
	CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id sharedDomain.ID) (*domain.Order, error)

	UpdateOrderAfterStockAvailable(ctx context.Context, event *events.StockAvailable) error
	HandleStockUnavailable(ctx context.Context, event *events.StockUnavailable) error
	HandleAwaitingPayment(ctx context.Context, event *events.AwaitingPayment) error
	HandlePaymentDone(ctx context.Context, event *events.PaymentDone) error
	HandlePaymentFailed(ctx context.Context, event *events.PaymentFailed) error
	// HandlePaymentRefunded closes a paid order whose stock was lost. An order
	// already shipped is left to the delivery-failed event that follows.
	HandlePaymentRefunded(ctx context.Context, event *events.PaymentRefunded) error
	HandleShipmentCreated(ctx context.Context, event *events.ShipmentCreated) error
	HandleDeliveredShipment(ctx context.Context, event *events.DeliveredShipment) error
	HandleDeliveryFailed(ctx context.Context, event *events.DeliveryFailed) error
}

type orderService struct {
	pool   db.TxBeginner
	orders repository.OrderRepository
	outbox worker.OutboxRepository
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderService(
	pool db.TxBeginner,
	orders repository.OrderRepository,
	outbox worker.OutboxRepository,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		pool:   pool,
		orders: orders,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
		tracer: otel.Tracer("orders/service"),
	}
}

func (s *orderService) rollback(ctx context.Context, tx pgx.Tx, method string) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(cleanupCtx, s.logger, "Failed to rollback transaction",
			zap.Error(err),
			zap.String("method_name", method),
		)
	}
}

func (s *orderService) CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	order, err := s.newOrder(input)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.String("customer_id", order.CustomerID.String()),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "CreateOrder")

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	payload := events.OrderCreated{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		PaymentMethod: string(order.PaymentMethod),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, p := range order.Products {
		payload.Products = append(payload.Products, events.ProductQuantity{ID: p.ProductID.String(), Quantity: p.Quantity})
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, order.ID.String(), events.TopicOrderCreated, payload)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing order: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Order created",
		zap.String("order_id", order.ID.String()),
		zap.Int("products", len(order.Products)),
	)

	return order, nil
}

func (s *orderService) newOrder(input *domain.CreateOrderInput) (*domain.Order, error) {
	orderID := sharedDomain.NewID()
	if input.ID != "" {
		id, err := sharedDomain.ParseID(input.ID)
		if err != nil {
			return nil, err
		}
		orderID = id
	}

	customerID, err := sharedDomain.ParseID(input.CustomerID)
	if err != nil {
		return nil, err
	}

	method, err := sharedDomain.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if len(input.Products) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	now := s.now()
	order := &domain.Order{
		ID:            orderID,
		CustomerID:    customerID,
		PaymentMethod: method,
		Status:        domain.OrderStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, p := range input.Products {
		productID, err := sharedDomain.ParseID(p.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", domain.ErrInvalidQuantity, productID, p.Quantity)
		}

		order.Products = append(order.Products, domain.OrderProduct{
			ID:        sharedDomain.NewID(),
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  p.Quantity,
		})
	}

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.orders.GetByID(ctx, id)
}

// transition locks the order, applies change and persists it in one
// transaction. A failed change leaves the stored order untouched.
func (s *orderService) transition(ctx context.Context, method, rawOrderID string, change func(order *domain.Order, now time.Time) error) error {
	ctx, span := s.tracer.Start(ctx, "OrderService."+method)
	defer span.End()

	span.SetAttributes(attribute.String("order_id", rawOrderID))

	orderID, err := sharedDomain.ParseID(rawOrderID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, method)

	order, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	from := order.Status
	if err := change(order, s.now()); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.orders.Update(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing order %s: %w", orderID, err)
	}

	mylogger.Info(ctx, s.logger, "Order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
	)

	return nil
}

func (s *orderService) UpdateOrderAfterStockAvailable(ctx context.Context, event *events.StockAvailable) error {
	prices := make(map[sharedDomain.ID]int64, len(event.Products))
	for _, p := range event.Products {
		id, err := sharedDomain.ParseID(p.ID)
		if err != nil {
			return err
		}
		prices[id] = p.PriceInCents
	}

	return s.transition(ctx, "UpdateOrderAfterStockAvailable", event.OrderID, func(order *domain.Order, now time.Time) error {
		return order.ConfirmStock(prices, now)
	})
}

func (s *orderService) HandleStockUnavailable(ctx context.Context, event *events.StockUnavailable) error {
	return s.transition(ctx, "HandleStockUnavailable", event.OrderID, moveTo(domain.OrderStatusInventoryProductsMissing))
}

func (s *orderService) HandleAwaitingPayment(ctx context.Context, event *events.AwaitingPayment) error {
	return s.transition(ctx, "HandleAwaitingPayment", event.OrderID, func(order *domain.Order, now time.Time) error {
		return order.AwaitPayment(event.PaymentURL, now)
	})
}

func (s *orderService) HandlePaymentDone(ctx context.Context, event *events.PaymentDone) error {
	return s.transition(ctx, "HandlePaymentDone", event.OrderID, moveTo(domain.OrderStatusPaymentSucceeded))
}

func (s *orderService) HandlePaymentFailed(ctx context.Context, event *events.PaymentFailed) error {
	return s.transition(ctx, "HandlePaymentFailed", event.OrderID, moveTo(domain.OrderStatusPaymentFailed))
}

func (s *orderService) HandlePaymentRefunded(ctx context.Context, event *events.PaymentRefunded) error {
	return s.transition(ctx, "HandlePaymentRefunded", event.OrderID, moveTo(domain.OrderStatusPaymentRefunded))
}

func (s *orderService) HandleShipmentCreated(ctx context.Context, event *events.ShipmentCreated) error {
	return s.transition(ctx, "HandleShipmentCreated", event.OrderID, moveTo(domain.OrderStatusShipmentCreated))
}

func (s *orderService) HandleDeliveredShipment(ctx context.Context, event *events.DeliveredShipment) error {
	return s.transition(ctx, "HandleDeliveredShipment", event.OrderID, moveTo(domain.OrderStatusDeliveryCompleted))
}

func (s *orderService) HandleDeliveryFailed(ctx context.Context, event *events.DeliveryFailed) error {
	return s.transition(ctx, "HandleDeliveryFailed", event.OrderID, moveTo(domain.OrderStatusDeliveryFailed))
}

func moveTo(target domain.OrderStatus) func(*domain.Order, time.Time) error {
	return func(order *domain.Order, now time.Time) error {
		return order.Transition(target, now)
	}
}
