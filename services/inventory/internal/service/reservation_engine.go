package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StockRepository is the part of the product store the engine needs.
type StockRepository interface {
	LockByIDs(ctx context.Context, tx pgx.Tx, ids []sharedDomain.ID) (map[sharedDomain.ID]*domain.Product, error)
	MoveStock(ctx context.Context, tx pgx.Tx, id sharedDomain.ID, delta int64) error
}

var _ StockRepository = (repository.ProductRepository)(nil)

// ReservationEngine moves stock between available and held inside the
// caller's transaction. It never commits, rolls back or retries.
type ReservationEngine struct {
	stock  StockRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewReservationEngine(stock StockRepository, logger *zap.Logger) *ReservationEngine {
	return &ReservationEngine{
		stock:  stock,
		logger: logger,
		tracer: otel.Tracer("inventory/reservation_engine"),
	}
}

// Reserve holds every line or nothing. Shortfalls come back together as one
// multi-error of *domain.LineFault; on success it returns the unit price of
// each product.
func (e *ReservationEngine) Reserve(ctx context.Context, tx pgx.Tx, lines []domain.StockLine) (map[sharedDomain.ID]int64, error) {
	ctx, span := e.tracer.Start(ctx, "ReservationEngine.Reserve")
	defer span.End()

	merged, err := domain.MergeLines(lines)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("products", len(merged)))

	products, err := e.stock.LockByIDs(ctx, tx, productIDs(merged))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := domain.PlanReservation(products, merged); err != nil {
		mylogger.Info(ctx, e.logger, "Reservation rejected",
			zap.Int("failing_lines", len(domain.LineFaults(err))),
			zap.Error(err),
		)
		return nil, err
	}

	prices := make(map[sharedDomain.ID]int64, len(merged))
	for _, l := range merged {
		p := products[l.ProductID]
		if err := p.Reserve(l.Quantity); err != nil {
			return nil, err
		}
		if err := e.stock.MoveStock(ctx, tx, l.ProductID, l.Quantity); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("reserve %s: %w", l.ProductID, err)
		}
		prices[l.ProductID] = p.PriceInCents
	}

	return prices, nil
}

// Release returns held units to available.
func (e *ReservationEngine) Release(ctx context.Context, tx pgx.Tx, lines []domain.StockLine) error {
	ctx, span := e.tracer.Start(ctx, "ReservationEngine.Release")
	defer span.End()

	merged, err := domain.MergeLines(lines)
	if err != nil {
		return err
	}

	products, err := e.stock.LockByIDs(ctx, tx, productIDs(merged))
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, l := range merged {
		p, ok := products[l.ProductID]
		if !ok {
			return fmt.Errorf("release %s: %w", l.ProductID, domain.ErrProductNotFound)
		}
		if err := p.Release(l.Quantity); err != nil {
			return err
		}
		if err := e.stock.MoveStock(ctx, tx, l.ProductID, -l.Quantity); err != nil {
			span.RecordError(err)
			return fmt.Errorf("release %s: %w", l.ProductID, err)
		}
	}

	return nil
}

func productIDs(lines []domain.StockLine) []sharedDomain.ID {
	ids := make([]sharedDomain.ID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
