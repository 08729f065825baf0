package tests

import (
	"time"

	"github.com/redis/go-redis/v9"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/utils"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/service"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestFindById_CachesProduct() {
	product := s.createProduct("A Great Chaos Vinyl", 9999, 5)

	found, err := s.CachedProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Equal(product.Name, found.Name)
	s.Require().Equal(product.PriceInCents, found.PriceInCents)

	val, err := s.RedisInternalClient.Get(s.Ctx, "product:"+product.ID.String()).Result()
	s.Require().NoError(err)
	s.Require().Contains(val, product.Name)

	restocked, err := s.CachedProductService.Restock(s.Ctx, product.ID, 3)
	s.Require().NoError(err)
	s.Require().Equal(int64(8), restocked.AvailableCount)

	_, err = s.RedisInternalClient.Get(s.Ctx, "product:"+product.ID.String()).Result()
	s.Require().ErrorIs(err, redis.Nil)
}

func (s *IntegrationTestSuite) TestFindById_NotFound() {
	_, err := s.CachedProductService.FindByID(s.Ctx, sharedDomain.NewID())
	s.Require().True(faults.Is(err, faults.NotFound))
}

func (s *IntegrationTestSuite) TestFindById_FallsBackWhenCacheIsDown() {
	product := s.createProduct("Offline cache", 100, 1)

	deadRedis := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer deadRedis.Close()

	breaker := utils.NewBreaker("dead-cache", 2, time.Minute, zap.NewNop())
	cached := service.NewCachedProductService(s.ProductService, deadRedis, breaker, time.Minute, zap.NewNop())

	for i := 0; i < 4; i++ {
		found, err := cached.FindByID(s.Ctx, product.ID)
		s.Require().NoError(err)
		s.Require().Equal(product.ID, found.ID)
	}

	s.Require().Equal("open", breaker.State().String())
}

func (s *IntegrationTestSuite) TestList_Paginates() {
	for i := 0; i < 3; i++ {
		s.createProduct("Item", 100, 1)
	}

	page, total, err := s.CachedProductService.List(s.Ctx, 2, 0)
	s.Require().NoError(err)
	s.Require().Equal(int64(3), total)
	s.Require().Len(page, 2)

	page, _, err = s.CachedProductService.List(s.Ctx, 2, 2)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
}
