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
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateOrder     = "order"
	DefaultHoldTTL     = 15 * time.Minute
	defaultReaperBatch = 100
)

type InventoryService interface {
	HandleOrderCreated(ctx context.Context, event *events.OrderCreated) (*domain.Order, error)
	HandlePaymentDone(ctx context.Context, event *events.PaymentDone) error
	GetOrder(ctx context.Context, id sharedDomain.ID) (*domain.Order, error)
	// ReleaseExpired cancels up to limit holds whose clock ran out at now and
	// returns how many orders it expired.
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type inventoryService struct {
	pool   db.TxBeginner
	orders repository.OrderRepository
	engine *ReservationEngine
	outbox worker.OutboxRepository
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryService(
	pool db.TxBeginner,
	orders repository.OrderRepository,
	engine *ReservationEngine,
	outbox worker.OutboxRepository,
	ttl time.Duration,
	logger *zap.Logger,
) InventoryService {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}

	return &inventoryService{
		pool:   pool,
		orders: orders,
		engine: engine,
		outbox: outbox,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
		tracer: otel.Tracer("inventory/service"),
	}
}

func (s *inventoryService) rollback(ctx context.Context, tx pgx.Tx, method string) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(cleanupCtx, s.logger, "Failed to rollback transaction",
			zap.Error(err),
			zap.String("method_name", method),
		)
	}
}

func (s *inventoryService) HandleOrderCreated(ctx context.Context, event *events.OrderCreated) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.HandleOrderCreated")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	order, err := s.orderFromEvent(event)
	if err != nil {
		return nil, err
	}

	exists, err := s.orders.Exists(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrOrderAlreadyExists, order.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "HandleOrderCreated")

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	prices, err := s.engine.Reserve(ctx, tx, order.StockLines())
	if err != nil {
		lineFaults := domain.LineFaults(err)
		if len(lineFaults) == 0 {
			span.RecordError(err)
			return nil, err
		}

		s.rollback(ctx, tx, "HandleOrderCreated")
		return s.recordProductsMissing(ctx, order, lineFaults)
	}

	now := s.now()
	if err := order.ConfirmReservation(prices, now, s.ttl); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, order.ID.String(), events.TopicStockAvailable, stockAvailable(order))
	if err != nil {
		return nil, err
	}
	if err := s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing reservation: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Stock reserved",
		zap.String("order_id", order.ID.String()),
		zap.Int64("total_amount_in_cents", *order.TotalAmountInCents),
	)

	return order, nil
}

// recordProductsMissing saves the rejected order in a transaction of its own,
// after the reservation attempt was rolled back.
func (s *inventoryService) recordProductsMissing(ctx context.Context, order *domain.Order, lineFaults []*domain.LineFault) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "recordProductsMissing")

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := order.MarkProductsMissing(s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	payload := events.StockUnavailable{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
	}
	for _, f := range lineFaults {
		payload.MissingProducts = append(payload.MissingProducts, events.MissingProduct{
			ID:        f.ProductID.String(),
			Requested: f.Requested,
			Available: f.Available,
			Reason:    f.Reason(),
		})
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, order.ID.String(), events.TopicStockUnavailable, payload)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing missing products: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Order rejected for missing products",
		zap.String("order_id", order.ID.String()),
		zap.Int("missing", len(lineFaults)),
	)

	return order, nil
}

func (s *inventoryService) orderFromEvent(event *events.OrderCreated) (*domain.Order, error) {
	ids, err := sharedDomain.ParseIDs(event.OrderID, event.CustomerID)
	if err != nil {
		return nil, err
	}

	method, err := sharedDomain.ParsePaymentMethod(event.PaymentMethod)
	if err != nil {
		return nil, err
	}

	status, err := domain.ParseOrderStatus(event.Status)
	if err != nil {
		return nil, err
	}
	if status != domain.OrderStatusCreated {
		return nil, fmt.Errorf("%w: order-created carries %s", domain.ErrInvalidOrderStatus, status)
	}

	lines := make([]domain.StockLine, 0, len(event.Products))
	for _, p := range event.Products {
		productID, err := sharedDomain.ParseID(p.ID)
		if err != nil {
			return nil, err
		}
		if p.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", domain.ErrInvalidQuantity, productID, p.Quantity)
		}
		lines = append(lines, domain.StockLine{ProductID: productID, Quantity: p.Quantity})
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	return domain.NewOrder(ids[0], ids[1], method, lines, s.now()), nil
}

func stockAvailable(order *domain.Order) events.StockAvailable {
	payload := events.StockAvailable{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		PaymentMethod: string(order.PaymentMethod),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, l := range order.Lines {
		payload.Products = append(payload.Products, events.PricedProduct{
			ID:           l.ProductID.String(),
			Quantity:     l.Quantity,
			PriceInCents: l.PricePerUnitInCents,
		})
	}
	return payload
}

// HandlePaymentDone settles the hold of a paid order. When the reaper released
// the hold before the payment arrived, the units are reserved again; if they
// are gone, the order is marked lost and reservation-lost is recorded so the
// payment can be refunded.
func (s *inventoryService) HandlePaymentDone(ctx context.Context, event *events.PaymentDone) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.HandlePaymentDone")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	orderID, err := sharedDomain.ParseID(event.OrderID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "HandlePaymentDone")

	order, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	now := s.now()
	outcome := "Reservation settled"
	if order.Status == domain.OrderStatusReservationExpired {
		if outcome, err = s.reclaim(ctx, tx, order, now); err != nil {
			span.RecordError(err)
			return err
		}
	} else if err := order.SettleReservation(now); err != nil {
		return err
	}

	if err := s.orders.Update(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing settlement: %w", err)
	}

	mylogger.Info(ctx, s.logger, outcome,
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)
	return nil
}

// reclaim holds the released units of a paid order again. A shortfall leaves
// stock untouched and records reservation-lost instead.
func (s *inventoryService) reclaim(ctx context.Context, tx pgx.Tx, order *domain.Order, now time.Time) (string, error) {
	_, err := s.engine.Reserve(ctx, tx, order.StockLines())
	if err == nil {
		return "Reservation restored after expiry", order.RestoreReservation(now)
	}

	lineFaults := domain.LineFaults(err)
	if len(lineFaults) == 0 {
		return "", err
	}

	if err := order.MarkReservationLost(now); err != nil {
		return "", err
	}

	payload := events.ReservationLost{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		LostAt:     now,
	}
	for _, f := range lineFaults {
		payload.MissingProducts = append(payload.MissingProducts, events.MissingProduct{
			ID:        f.ProductID.String(),
			Requested: f.Requested,
			Available: f.Available,
			Reason:    f.Reason(),
		})
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, order.ID.String(), events.TopicReservationLost, payload)
	if err != nil {
		return "", err
	}
	if err := s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return "", err
	}

	return "Reservation lost after expiry", nil
}

func (s *inventoryService) GetOrder(ctx context.Context, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.GetOrder")
	defer span.End()

	return s.orders.GetByID(ctx, id)
}

func (s *inventoryService) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.ReleaseExpired")
	defer span.End()

	if limit <= 0 {
		limit = defaultReaperBatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "ReleaseExpired")

	ids, err := s.orders.LockExpired(ctx, tx, now, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	expired := make([]*domain.Order, 0, len(ids))
	var lines []domain.StockLine
	for _, id := range ids {
		order, err := s.orders.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		expired = append(expired, order)
		lines = append(lines, order.StockLines()...)
	}

	// One release over the whole batch locks the products in id order, the
	// same order reservations take them in.
	if err := s.engine.Release(ctx, tx, lines); err != nil {
		return 0, fmt.Errorf("release expired holds: %w", err)
	}

	for _, order := range expired {
		if err := s.expire(ctx, tx, order, now); err != nil {
			return 0, fmt.Errorf("expire order %s: %w", order.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing expired reservations: %w", err)
	}

	span.SetAttributes(attribute.Int("expired", len(ids)))
	return len(ids), nil
}

func (s *inventoryService) expire(ctx context.Context, tx pgx.Tx, order *domain.Order, now time.Time) error {
	lines := order.StockLines()

	if err := order.ExpireReservation(now); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return err
	}

	payload := events.ReservationExpired{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		ExpiredAt:  now,
	}
	for _, l := range lines {
		payload.Products = append(payload.Products, events.ProductQuantity{ID: l.ProductID.String(), Quantity: l.Quantity})
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, order.ID.String(), events.TopicReservationExpired, payload)
	if err != nil {
		return err
	}
	if err := s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return err
	}

	mylogger.Info(ctx, s.logger, "Reservation expired", zap.String("order_id", order.ID.String()))
	return nil
}
