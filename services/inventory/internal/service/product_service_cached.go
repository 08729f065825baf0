package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/pkg/utils"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// cachedProductService reads products through Redis. Every Redis call goes
// through the breaker; while it is open reads fall through to next. Cached
// counters may lag reservations by up to the TTL.
type cachedProductService struct {
	next        ProductService
	redisClient *redis.Client
	breaker     *gobreaker.CircuitBreaker
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedProductService(
	next ProductService,
	redisClient *redis.Client,
	breaker *gobreaker.CircuitBreaker,
	cacheTTL time.Duration,
	logger *zap.Logger,
) ProductService {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &cachedProductService{
		next:        next,
		redisClient: redisClient,
		breaker:     breaker,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func productKey(id sharedDomain.ID) string {
	return "product:" + id.String()
}

func (s *cachedProductService) Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error) {
	return s.next.Create(ctx, input)
}

func (s *cachedProductService) FindByID(ctx context.Context, id sharedDomain.ID) (*domain.Product, error) {
	key := productKey(id)

	data, err := utils.ExecuteWithBreaker(s.breaker, func() ([]byte, error) {
		v, err := s.redisClient.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		mylogger.Debug(ctx, s.logger, "Product cache read skipped", zap.String("key", key), zap.Error(err))
	}

	if data != nil {
		var product domain.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		s.write(ctx, key, data)
	}

	return product, nil
}

func (s *cachedProductService) List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	return s.next.List(ctx, limit, offset)
}

func (s *cachedProductService) Restock(ctx context.Context, id sharedDomain.ID, quantity int64) (*domain.Product, error) {
	product, err := s.next.Restock(ctx, id, quantity)
	if err != nil {
		return nil, err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.redisClient.Del(ctx, productKey(id)).Err()
	})
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Product cache invalidation skipped", zap.String("product_id", id.String()), zap.Error(err))
	}

	return product, nil
}

func (s *cachedProductService) write(ctx context.Context, key string, data []byte) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.redisClient.Set(ctx, key, data, s.cacheTTL).Err()
	})
	if err != nil {
		mylogger.Debug(ctx, s.logger, "Product cache write skipped", zap.String("key", key), zap.Error(err))
	}
}
