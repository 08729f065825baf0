package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BillingRepository interface {
	// ExistsForOrder reports any billing of the order, whatever its status.
	ExistsForOrder(ctx context.Context, orderID sharedDomain.ID) (bool, error)
	Create(ctx context.Context, tx pgx.Tx, billing *domain.Billing) error
	GetByOrderID(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error)
	GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID sharedDomain.ID) (*domain.Billing, error)
	GetByGatewayIDForUpdate(ctx context.Context, tx pgx.Tx, gatewayBillingID string) (*domain.Billing, error)
	Update(ctx context.Context, tx pgx.Tx, billing *domain.Billing) error
}

type billingRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewBillingRepository(pool *pgxpool.Pool, logger *zap.Logger) BillingRepository {
	return &billingRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("payments/billing_repo"),
	}
}

const billingColumns = `
	id, order_id, customer_id, status, amount_in_cents, payment_method, payment_gateway,
	payment_gateway_billing_id, payment_url, payment_at, created_at, updated_at
`

func (r *billingRepo) ExistsForOrder(ctx context.Context, orderID sharedDomain.ID) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.ExistsForOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM billings WHERE order_id = $1)`, orderID.String()).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error checking billing: %w", err)
	}

	return exists, nil
}

func (r *billingRepo) Create(ctx context.Context, tx pgx.Tx, billing *domain.Billing) error {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("billing_id", billing.ID.String()),
		attribute.String("order_id", billing.OrderID.String()),
		attribute.Int64("amount_in_cents", billing.AmountInCents),
	)

	query := `INSERT INTO billings (` + billingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		billing.ID.String(),
		billing.OrderID.String(),
		billing.CustomerID.String(),
		string(billing.Status),
		billing.AmountInCents,
		string(billing.PaymentMethod),
		billing.PaymentGateway,
		billing.PaymentGatewayBillingID,
		billing.PaymentURL,
		billing.PaymentAt,
		billing.CreatedAt,
		billing.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", ErrBillingAlreadyExists, billing.OrderID)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating billing", zap.String("order_id", billing.OrderID.String()), zap.Error(err))

		return fmt.Errorf("error creating billing: %w", err)
	}

	return nil
}

func (r *billingRepo) GetByOrderID(ctx context.Context, orderID sharedDomain.ID) (*domain.Billing, error) {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.GetByOrderID")
	defer span.End()

	return r.scanOne(ctx, r.pool, `WHERE order_id = $1 AND deleted_at IS NULL`, orderID.String())
}

func (r *billingRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID sharedDomain.ID) (*domain.Billing, error) {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.GetByOrderIDForUpdate")
	defer span.End()

	return r.scanOne(ctx, tx, `WHERE order_id = $1 AND deleted_at IS NULL FOR UPDATE`, orderID.String())
}

func (r *billingRepo) GetByGatewayIDForUpdate(ctx context.Context, tx pgx.Tx, gatewayBillingID string) (*domain.Billing, error) {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.GetByGatewayIDForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("payment_gateway_billing_id", gatewayBillingID))

	return r.scanOne(ctx, tx, `WHERE payment_gateway_billing_id = $1 AND deleted_at IS NULL FOR UPDATE`, gatewayBillingID)
}

func (r *billingRepo) scanOne(ctx context.Context, q querier, where string, arg string) (*domain.Billing, error) {
	var b domain.Billing
	err := q.QueryRow(ctx, `SELECT `+billingColumns+` FROM billings `+where, arg).Scan(
		&b.ID,
		&b.OrderID,
		&b.CustomerID,
		&b.Status,
		&b.AmountInCents,
		&b.PaymentMethod,
		&b.PaymentGateway,
		&b.PaymentGatewayBillingID,
		&b.PaymentURL,
		&b.PaymentAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBillingNotFound, arg)
		}

		trace.SpanFromContext(ctx).RecordError(err)
		return nil, fmt.Errorf("error getting billing: %w", err)
	}

	return &b, nil
}

func (r *billingRepo) Update(ctx context.Context, tx pgx.Tx, billing *domain.Billing) error {
	ctx, span := r.tracer.Start(ctx, "BillingRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("billing_id", billing.ID.String()),
		attribute.String("status", string(billing.Status)),
	)

	commandTag, err := tx.Exec(ctx,
		`UPDATE billings SET status = $2, payment_at = $3, updated_at = $4 WHERE id = $1`,
		billing.ID.String(), string(billing.Status), billing.PaymentAt, billing.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating billing: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBillingNotFound, billing.ID)
	}

	return nil
}
