package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, product *domain.Product) error
	GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error)
	Restock(ctx context.Context, tx pgx.Tx, id sharedDomain.ID, quantity int64) (*domain.Product, error)
	// LockByIDs locks the rows of the given products in id order. Ids with
	// no live product are absent from the result.
	LockByIDs(ctx context.Context, tx pgx.Tx, ids []sharedDomain.ID) (map[sharedDomain.ID]*domain.Product, error)
	// MoveStock shifts delta units from available to held. A negative delta
	// releases held units.
	MoveStock(ctx context.Context, tx pgx.Tx, id sharedDomain.ID, delta int64) error
}

type productRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory/product_repo"),
	}
}

const productColumns = `id, name, price_in_cents, available_count, unavailable_count, created_at, updated_at`

func scanProduct(row pgx.Row, p *domain.Product) error {
	return row.Scan(&p.ID, &p.Name, &p.PriceInCents, &p.AvailableCount, &p.UnavailableCount, &p.CreatedAt, &p.UpdatedAt)
}

func (r *productRepo) Create(ctx context.Context, tx pgx.Tx, product *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", product.ID.String()),
		attribute.String("name", product.Name),
	)

	query := `
		INSERT INTO products (id, name, price_in_cents, available_count, unavailable_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRow(ctx, query, product.ID.String(), product.Name, product.PriceInCents, product.AvailableCount).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating product", zap.Error(err))

		return fmt.Errorf("error creating product: %w", err)
	}

	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", id.String()))

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND deleted_at IS NULL`

	var res domain.Product
	if err := scanProduct(r.pool.QueryRow(ctx, query, id.String()), &res); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error get product by id", zap.String("product_id", id.String()), zap.Error(err))

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return &res, nil
}

func (r *productRepo) List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error counting products: %w", err)
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error listing products", zap.Error(err))

		return nil, 0, fmt.Errorf("error listing products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("error scanning product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

func (r *productRepo) Restock(ctx context.Context, tx pgx.Tx, id sharedDomain.ID, quantity int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Restock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", id.String()),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE products
		SET available_count = available_count + $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + productColumns

	var res domain.Product
	if err := scanProduct(tx.QueryRow(ctx, query, id.String(), quantity), &res); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Failed to restock product", zap.String("product_id", id.String()), zap.Error(err))

		return nil, fmt.Errorf("error restocking product: %w", err)
	}

	return &res, nil
}

func (r *productRepo) LockByIDs(ctx context.Context, tx pgx.Tx, ids []sharedDomain.ID) (map[sharedDomain.ID]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.LockByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int("count", len(ids)))

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1::text[]::uuid[]) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, raw)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error locking products", zap.Error(err))

		return nil, fmt.Errorf("error locking products: %w", err)
	}
	defer rows.Close()

	locked := make(map[sharedDomain.ID]*domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		locked[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return locked, nil
}

func (r *productRepo) MoveStock(ctx context.Context, tx pgx.Tx, id sharedDomain.ID, delta int64) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.MoveStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", id.String()),
		attribute.Int64("delta", delta),
	)

	query := `
		UPDATE products
		SET available_count = available_count - $2,
			unavailable_count = unavailable_count + $2,
			updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id.String(), delta)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error moving stock",
			zap.String("product_id", id.String()),
			zap.Int64("delta", delta),
			zap.Error(err),
		)

		return fmt.Errorf("error moving stock for product %s: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}
