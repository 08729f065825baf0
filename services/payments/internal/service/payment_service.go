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
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/fulfillment-saga/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/gateway"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateOrder = "order"

	reasonReservationExpired = "reservation expired before payment"
	reasonReservationLost    = "stock released before payment could not be reserved again"
)

type PaymentService interface {
	HandleStockAvailable(ctx context.Context, event *events.StockAvailable) error
	HandleReservationExpired(ctx context.Context, event *events.ReservationExpired) error
	// HandleReservationLost refunds an order that was paid after its stock
	// went back on sale.
	HandleReservationLost(ctx context.Context, event *events.ReservationLost) error
	// CreateBilling opens the one billing of an order and moves the order to
	// AWAITING_PAYMENT.
	CreateBilling(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error)
	// ProcessBilling applies a status reported by the gateway. Only PAID is
	// acted on.
	ProcessBilling(ctx context.Context, gatewayBillingID, reportedStatus string) (*domain.Billing, error)
	GetBilling(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error)
}

type paymentService struct {
	pool     db.TxBeginner
	orders   repository.OrderRepository
	billings repository.BillingRepository
	gateway  gateway.PaymentGateway
	outbox   worker.OutboxRepository
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewPaymentService(
	pool db.TxBeginner,
	orders repository.OrderRepository,
	billings repository.BillingRepository,
	gw gateway.PaymentGateway,
	outbox worker.OutboxRepository,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		pool:     pool,
		orders:   orders,
		billings: billings,
		gateway:  gw,
		outbox:   outbox,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		tracer:   otel.Tracer("payments/service"),
	}
}

func (s *paymentService) rollback(ctx context.Context, tx pgx.Tx, method string) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(cleanupCtx, s.logger, "Failed to rollback transaction",
			zap.Error(err),
			zap.String("method_name", method),
		)
	}
}

// HandleStockAvailable saves the payments projection of the order and opens
// its billing. A redelivery after a failed gateway call finds the order saved
// and resumes at the billing step, where an existing billing is a conflict.
func (s *paymentService) HandleStockAvailable(ctx context.Context, event *events.StockAvailable) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.HandleStockAvailable")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	order, err := s.orderFromEvent(event)
	if err != nil {
		return err
	}

	exists, err := s.orders.Exists(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if exists {
		mylogger.Info(ctx, s.logger, "Order already saved, resuming billing", zap.String("order_id", order.ID.String()))
	} else if err := s.saveOrder(ctx, order); err != nil && !errors.Is(err, repository.ErrOrderAlreadyExists) {
		return err
	}

	_, err = s.CreateBilling(ctx, order.ID)
	return err
}

func (s *paymentService) saveOrder(ctx context.Context, order *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "saveOrder")

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing order: %w", err)
	}

	return nil
}

func (s *paymentService) orderFromEvent(event *events.StockAvailable) (*domain.Order, error) {
	ids, err := sharedDomain.ParseIDs(event.OrderID, event.CustomerID)
	if err != nil {
		return nil, err
	}

	method, err := sharedDomain.ParsePaymentMethod(event.PaymentMethod)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &domain.Order{
		ID:                 ids[0],
		CustomerID:         ids[1],
		PaymentMethod:      method,
		Status:             domain.OrderStatusInventoryConfirmed,
		TotalAmountInCents: event.TotalInCents(),
		CreatedAt:          event.CreatedAt,
		UpdatedAt:          now,
	}, nil
}

func (s *paymentService) CreateBilling(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateBilling")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	exists, err := s.billings.ExistsForOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: order %s", repository.ErrBillingAlreadyExists, orderID)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := domain.OrderTransitions.Check(order.Status, domain.OrderStatusAwaitingPayment); err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}

	opened, err := s.gateway.CreateBilling(ctx, gateway.BillingRequest{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		AmountInCents: order.TotalAmountInCents,
		PaymentMethod: order.PaymentMethod,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error creating billing at gateway: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "CreateBilling")

	locked, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := locked.Transition(domain.OrderStatusAwaitingPayment, now); err != nil {
		return nil, err
	}

	billing := &domain.Billing{
		ID:                      sharedDomain.NewID(),
		OrderID:                 locked.ID,
		CustomerID:              locked.CustomerID,
		Status:                  domain.BillingStatusPending,
		AmountInCents:           locked.TotalAmountInCents,
		PaymentMethod:           locked.PaymentMethod,
		PaymentGateway:          opened.PaymentGateway,
		PaymentGatewayBillingID: opened.PaymentGatewayBillingID,
		PaymentURL:              opened.PaymentURL,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.billings.Create(ctx, tx, billing); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, locked); err != nil {
		return nil, err
	}

	payload := events.AwaitingPayment{
		OrderID:       locked.ID.String(),
		CustomerID:    locked.CustomerID.String(),
		PaymentURL:    billing.PaymentURL,
		AmountInCents: billing.AmountInCents,
		PaymentMethod: string(billing.PaymentMethod),
	}
	if err := s.record(ctx, tx, locked.ID, events.TopicAwaitingPayment, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing billing: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Billing created",
		zap.String("order_id", locked.ID.String()),
		zap.String("payment_gateway", billing.PaymentGateway),
		zap.String("payment_gateway_billing_id", billing.PaymentGatewayBillingID),
		zap.Int64("amount_in_cents", billing.AmountInCents),
	)

	return billing, nil
}

func (s *paymentService) ProcessBilling(ctx context.Context, gatewayBillingID, reportedStatus string) (*domain.Billing, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessBilling")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_gateway_billing_id", gatewayBillingID),
		attribute.String("reported_status", reportedStatus),
	)

	status, err := domain.ParseBillingStatus(reportedStatus)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "ProcessBilling")

	billing, err := s.billings.GetByGatewayIDForUpdate(ctx, tx, gatewayBillingID)
	if err != nil {
		return nil, err
	}

	if status != domain.BillingStatusPaid {
		return nil, fmt.Errorf("%w: billing %s reported %s", domain.ErrUnsupportedBillingTransition, billing.ID, status)
	}

	order, err := s.orders.GetByIDForUpdate(ctx, tx, billing.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := billing.MarkPaid(now); err != nil {
		return nil, err
	}
	if err := order.Transition(domain.OrderStatusPaymentSucceeded, now); err != nil {
		return nil, err
	}

	if err := s.billings.Update(ctx, tx, billing); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	payload := events.PaymentDone{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		AmountInCents: billing.AmountInCents,
		PaymentMethod: string(billing.PaymentMethod),
		PaymentAt:     *billing.PaymentAt,
	}
	if err := s.record(ctx, tx, order.ID, events.TopicPaymentDone, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing payment: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Billing paid",
		zap.String("order_id", order.ID.String()),
		zap.String("billing_id", billing.ID.String()),
	)

	return billing, nil
}

// HandleReservationExpired fails the payment of an order whose stock hold ran
// out and expires its pending billing. An order paid before the expiry is
// read here is left alone; inventory settles that race when payment-done
// reaches it.
func (s *paymentService) HandleReservationExpired(ctx context.Context, event *events.ReservationExpired) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.HandleReservationExpired")
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
	defer s.rollback(ctx, tx, "HandleReservationExpired")

	order, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	now := s.now()
	if err := order.Transition(domain.OrderStatusPaymentFailed, now); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return err
	}

	billing, err := s.billings.GetByOrderIDForUpdate(ctx, tx, orderID)
	switch {
	case err == nil:
		if err := billing.Transition(domain.BillingStatusExpired, now); err != nil {
			return err
		}
		if err := s.billings.Update(ctx, tx, billing); err != nil {
			return err
		}
	case faults.Is(err, faults.NotFound):
		// billing was never opened
	default:
		return err
	}

	payload := events.PaymentFailed{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		Reason:     reasonReservationExpired,
		FailedAt:   now,
	}
	if err := s.record(ctx, tx, order.ID, events.TopicPaymentFailed, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing expiry: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Payment failed on expired reservation", zap.String("order_id", orderID.String()))
	return nil
}

// HandleReservationLost refunds the paid billing at the gateway, then marks
// the billing and the order refunded. The gateway call is keyed per order, so
// a redelivery after a failed commit refunds nothing twice.
func (s *paymentService) HandleReservationLost(ctx context.Context, event *events.ReservationLost) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.HandleReservationLost")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", event.OrderID))

	orderID, err := sharedDomain.ParseID(event.OrderID)
	if err != nil {
		return err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := domain.OrderTransitions.Check(order.Status, domain.OrderStatusPaymentRefunded); err != nil {
		return fmt.Errorf("order %s: %w", orderID, err)
	}

	billing, err := s.billings.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := domain.BillingTransitions.Check(billing.Status, domain.BillingStatusRefunded); err != nil {
		return fmt.Errorf("billing %s: %w", billing.ID, err)
	}

	err = s.gateway.Refund(ctx, gateway.RefundRequest{
		OrderID:                 orderID,
		PaymentGatewayBillingID: billing.PaymentGatewayBillingID,
		AmountInCents:           billing.AmountInCents,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error refunding billing at gateway: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "HandleReservationLost")

	locked, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	lockedBilling, err := s.billings.GetByOrderIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	now := s.now()
	if err := lockedBilling.Transition(domain.BillingStatusRefunded, now); err != nil {
		return err
	}
	if err := locked.Transition(domain.OrderStatusPaymentRefunded, now); err != nil {
		return err
	}

	if err := s.billings.Update(ctx, tx, lockedBilling); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, tx, locked); err != nil {
		return err
	}

	payload := events.PaymentRefunded{
		OrderID:       locked.ID.String(),
		CustomerID:    locked.CustomerID.String(),
		AmountInCents: lockedBilling.AmountInCents,
		Reason:        reasonReservationLost,
		RefundedAt:    now,
	}
	if err := s.record(ctx, tx, locked.ID, events.TopicPaymentRefunded, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing refund: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Payment refunded on lost reservation",
		zap.String("order_id", locked.ID.String()),
		zap.String("billing_id", lockedBilling.ID.String()),
		zap.Int64("amount_in_cents", lockedBilling.AmountInCents),
	)

	return nil
}

func (s *paymentService) GetBilling(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.GetBilling")
	defer span.End()

	return s.billings.GetByOrderID(ctx, orderID)
}

func (s *paymentService) record(ctx context.Context, tx pgx.Tx, orderID sharedDomain.ID, topic string, payload any) error {
	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateOrder, orderID.String(), topic, payload)
	if err != nil {
		return err
	}

	return s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent)
}
