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

type OrderRepository interface {
	Exists(ctx context.Context, id sharedDomain.ID) (bool, error)
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Order, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type orderRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("payments/order_repo"),
	}
}

func (r *orderRepo) Exists(ctx context.Context, id sharedDomain.ID) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Exists")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error checking order: %w", err)
	}

	return exists, nil
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	query := `
		INSERT INTO orders (id, customer_id, payment_method, status, total_amount_in_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		order.ID.String(),
		order.CustomerID.String(),
		string(order.PaymentMethod),
		string(order.Status),
		order.TotalAmountInCents,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrOrderAlreadyExists, order.ID)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating order", zap.String("order_id", order.ID.String()), zap.Error(err))

		return fmt.Errorf("error creating order: %w", err)
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	return r.load(ctx, r.pool, id, "")
}

func (r *orderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIDForUpdate")
	defer span.End()

	return r.load(ctx, tx, id, "FOR UPDATE")
}

func (r *orderRepo) load(ctx context.Context, q querier, id sharedDomain.ID, lock string) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, payment_method, status, total_amount_in_cents, created_at, updated_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	` + lock

	var o domain.Order
	err := q.QueryRow(ctx, query, id.String()).
		Scan(&o.ID, &o.CustomerID, &o.PaymentMethod, &o.Status, &o.TotalAmountInCents, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}

		trace.SpanFromContext(ctx).RecordError(err)
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	return &o, nil
}

func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.String("status", string(order.Status)),
	)

	commandTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		order.ID.String(), string(order.Status), order.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
	}

	return nil
}
