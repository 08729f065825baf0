package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Order, error)
	// Update persists status, total, payment url and every line price.
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
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
		tracer: otel.Tracer("orders/order_repo"),
	}
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.Int("products", len(order.Products)),
	)

	query := `
		INSERT INTO orders (id, customer_id, payment_method, status, total_amount_in_cents, payment_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		order.ID.String(),
		order.CustomerID.String(),
		string(order.PaymentMethod),
		string(order.Status),
		order.TotalAmountInCents,
		order.PaymentURL,
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

	productQuery := `
		INSERT INTO order_products (id, order_id, product_id, quantity, price_per_unit_in_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	batch := &pgx.Batch{}
	for _, p := range order.Products {
		batch.Queue(productQuery,
			p.ID.String(),
			order.ID.String(),
			p.ProductID.String(),
			p.Quantity,
			p.PricePerUnitInCents,
			order.CreatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error creating order products: %w", err)
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
		SELECT id, customer_id, payment_method, status, total_amount_in_cents, payment_url, created_at, updated_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	` + lock

	var o domain.Order
	err := q.QueryRow(ctx, query, id.String()).Scan(
		&o.ID,
		&o.CustomerID,
		&o.PaymentMethod,
		&o.Status,
		&o.TotalAmountInCents,
		&o.PaymentURL,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	productQuery := `
		SELECT id, order_id, product_id, quantity, price_per_unit_in_cents
		FROM order_products
		WHERE order_id = $1
		ORDER BY product_id, id
	`

	rows, err := q.Query(ctx, productQuery, id.String())
	if err != nil {
		return nil, fmt.Errorf("error getting order products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.OrderProduct
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ProductID, &p.Quantity, &p.PricePerUnitInCents); err != nil {
			return nil, fmt.Errorf("error scanning order product: %w", err)
		}
		o.Products = append(o.Products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order products: %w", err)
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
		SET status = $2, total_amount_in_cents = $3, payment_url = $4, updated_at = $5
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query,
		order.ID.String(),
		string(order.Status),
		order.TotalAmountInCents,
		order.PaymentURL,
		order.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error updating order", zap.String("order_id", order.ID.String()), zap.Error(err))

		return fmt.Errorf("error updating order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
	}

	productQuery := `
		UPDATE order_products
		SET price_per_unit_in_cents = $2, updated_at = $3
		WHERE id = $1
	`

	batch := &pgx.Batch{}
	for _, p := range order.Products {
		batch.Queue(productQuery, p.ID.String(), p.PricePerUnitInCents, order.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range order.Products {
		var tag pgconn.CommandTag
		if tag, err = results.Exec(); err != nil {
			break
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("product line of order %s vanished", order.ID)
			break
		}
	}
	if closeErr := results.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating order products: %w", err)
	}

	return nil
}
