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
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ShipmentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error
	GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Shipment, error)
	GetByOrderID(ctx context.Context, orderID sharedDomain.ID) (*domain.Shipment, error)
	// Update persists the status and the delivery outcome.
	Update(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error
}

type shipmentRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewShipmentRepository(pool *pgxpool.Pool, logger *zap.Logger) ShipmentRepository {
	return &shipmentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("delivery/shipment_repo"),
	}
}

const shipmentColumns = `id, order_id, customer_id, status, failure_reason, delivered_at, failed_at, created_at, updated_at`

func (r *shipmentRepo) Create(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("shipment_id", shipment.ID.String()),
		attribute.String("order_id", shipment.OrderID.String()),
	)

	query := `INSERT INTO shipments (` + shipmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		shipment.ID.String(),
		shipment.OrderID.String(),
		shipment.CustomerID.String(),
		string(shipment.Status),
		shipment.FailureReason,
		shipment.DeliveredAt,
		shipment.FailedAt,
		shipment.CreatedAt,
		shipment.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", ErrShipmentAlreadyExists, shipment.OrderID)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating shipment", zap.String("order_id", shipment.OrderID.String()), zap.Error(err))

		return fmt.Errorf("error creating shipment: %w", err)
	}

	return nil
}

func (r *shipmentRepo) GetByID(ctx context.Context, id sharedDomain.ID) (*domain.Shipment, error) {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.GetByID")
	defer span.End()

	return r.load(ctx, r.pool, "id", id, "")
}

func (r *shipmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Shipment, error) {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.GetByIDForUpdate")
	defer span.End()

	return r.load(ctx, tx, "id", id, "FOR UPDATE")
}

func (r *shipmentRepo) GetByOrderID(ctx context.Context, orderID sharedDomain.ID) (*domain.Shipment, error) {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.GetByOrderID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	return r.load(ctx, r.pool, "order_id", orderID, "")
}

// load reads one shipment by column, which is always a constant.
func (r *shipmentRepo) load(ctx context.Context, q querier, column string, id sharedDomain.ID, lock string) (*domain.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE ` + column + ` = $1 ` + lock

	var s domain.Shipment
	err := q.QueryRow(ctx, query, id.String()).Scan(
		&s.ID,
		&s.OrderID,
		&s.CustomerID,
		&s.Status,
		&s.FailureReason,
		&s.DeliveredAt,
		&s.FailedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
		}

		trace.SpanFromContext(ctx).RecordError(err)
		return nil, fmt.Errorf("error getting shipment: %w", err)
	}

	return &s, nil
}

func (r *shipmentRepo) Update(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("shipment_id", shipment.ID.String()),
		attribute.String("status", string(shipment.Status)),
	)

	query := `
		UPDATE shipments
		SET status = $2, failure_reason = $3, delivered_at = $4, failed_at = $5, updated_at = $6
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query,
		shipment.ID.String(),
		string(shipment.Status),
		shipment.FailureReason,
		shipment.DeliveredAt,
		shipment.FailedAt,
		shipment.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating shipment: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrShipmentNotFound, shipment.ID)
	}

	return nil
}
