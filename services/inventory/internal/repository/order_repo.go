package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
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
	// Update persists the order status, total and every line.
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	// LockExpired returns confirmed orders holding a line whose clock ran out
	// at now, skipping orders another worker has locked.
	LockExpired(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]sharedDomain.ID, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
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
		tracer: otel.Tracer("inventory/order_repo"),
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

	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.Int("lines", len(order.Lines)),
	)

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

	lineQuery := `
		INSERT INTO order_product_reservations
			(id, order_id, product_id, quantity, price_per_unit_in_cents, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	batch := &pgx.Batch{}
	for _, l := range order.Lines {
		batch.Queue(lineQuery,
			l.ID.String(),
			order.ID.String(),
			l.ProductID.String(),
			l.Quantity,
			l.PricePerUnitInCents,
			string(l.Status),
			l.ExpiresAt,
			order.CreatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error creating reservation lines: %w", err)
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	order, err := r.load(ctx, r.pool, id, "")
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		span.RecordError(err)
	}

	return order, err
}

func (r *orderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIDForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	order, err := r.load(ctx, tx, id, "FOR UPDATE")
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		span.RecordError(err)
	}

	return order, err
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
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	lineQuery := `
		SELECT id, order_id, product_id, quantity, price_per_unit_in_cents, status, expires_at
		FROM order_product_reservations
		WHERE order_id = $1
		ORDER BY product_id, id
	`

	rows, err := q.Query(ctx, lineQuery, id.String())
	if err != nil {
		return nil, fmt.Errorf("error getting reservation lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderProductReservation
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.PricePerUnitInCents, &l.Status, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("error scanning reservation line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservation lines: %w", err)
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

	query := `
		UPDATE orders
		SET status = $2, total_amount_in_cents = $3, updated_at = $4
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, order.ID.String(), string(order.Status), order.TotalAmountInCents, order.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error updating order", zap.String("order_id", order.ID.String()), zap.Error(err))

		return fmt.Errorf("error updating order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
	}

	lineQuery := `
		UPDATE order_product_reservations
		SET status = $2, price_per_unit_in_cents = $3, expires_at = $4, updated_at = $5
		WHERE id = $1
	`

	batch := &pgx.Batch{}
	for _, l := range order.Lines {
		batch.Queue(lineQuery, l.ID.String(), string(l.Status), l.PricePerUnitInCents, l.ExpiresAt, order.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range order.Lines {
		var tag pgconn.CommandTag
		if tag, err = results.Exec(); err != nil {
			break
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("reservation line of order %s vanished", order.ID)
			break
		}
	}
	if closeErr := results.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating reservation lines: %w", err)
	}

	return nil
}

func (r *orderRepo) LockExpired(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]sharedDomain.ID, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.LockExpired")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT o.id
		FROM orders o
		WHERE o.status = $1
			AND o.deleted_at IS NULL
			AND EXISTS (
				SELECT 1 FROM order_product_reservations r
				WHERE r.order_id = o.id AND r.status = $2 AND r.expires_at <= $3
			)
		ORDER BY o.updated_at
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query,
		string(domain.OrderStatusInventoryConfirmed),
		string(domain.ReservationStatusConfirmed),
		now,
		limit,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error querying expired reservations: %w", err)
	}
	defer rows.Close()

	var ids []sharedDomain.ID
	for rows.Next() {
		var id sharedDomain.ID
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating expired reservations: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(ids)))
	return ids, nil
}
