package service

import (
	"context"
	"fmt"

	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxPageSize = 100

type ProductService interface {
	Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error)
	FindByID(ctx context.Context, id sharedDomain.ID) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error)
	Restock(ctx context.Context, id sharedDomain.ID, quantity int64) (*domain.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	pool        db.TxBeginner
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewProductService(productRepo repository.ProductRepository, pool db.TxBeginner, logger *zap.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		pool:        pool,
		logger:      logger,
		tracer:      otel.Tracer("inventory/product_service"),
	}
}

func (s *productService) Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	product := &domain.Product{
		ID:             sharedDomain.NewID(),
		Name:           input.Name,
		PriceInCents:   input.PriceInCents,
		AvailableCount: input.AvailableCount,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := s.productRepo.Create(ctx, tx, product); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Product created", zap.String("product_id", product.ID.String()))
	return product, nil
}

func (s *productService) FindByID(ctx context.Context, id sharedDomain.ID) (*domain.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

func (s *productService) List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return s.productRepo.List(ctx, limit, offset)
}

func (s *productService) Restock(ctx context.Context, id sharedDomain.ID, quantity int64) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Restock")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	product, err := s.productRepo.Restock(ctx, tx, id, quantity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit restock: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Product restocked",
		zap.String("product_id", id.String()),
		zap.Int64("quantity", quantity),
		zap.Int64("available_count", product.AvailableCount),
	)

	return product, nil
}
