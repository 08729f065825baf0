package tests

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/fulfillment-saga/pkg/kafka"
	outbox "github.com/sakashimaa/fulfillment-saga/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/service"
	ordersKafka "github.com/sakashimaa/fulfillment-saga/services/orders/internal/transport/kafka"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	OrderService    service.OrderService
	TestProducer    kafka.Producer
	OutboxProcessor *worker.OutboxProcessor
	workerCancel    context.CancelFunc
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../migrations", testsuite.Infra{Kafka: true})

	var err error
	s.TestProducer, err = kafka.NewProducer(s.Ctx, s.KafkaBrokers, kafka.DefaultRetryPolicy(), zap.NewNop())
	s.Require().NoError(err, "failed to create kafka producer")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.TestProducer != nil {
		_ = s.TestProducer.Close()
	}
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("order_products", "orders", "outbox")

	logger := zap.NewNop()
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	outboxRepo := outbox.NewOutboxRepository()
	s.OrderService = service.NewOrderService(s.DbPool, orderRepo, outboxRepo, logger)

	s.OutboxProcessor = worker.NewOutboxProcessor(s.DbPool, outboxRepo, s.TestProducer, logger, 50, 100*time.Millisecond)

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go s.OutboxProcessor.Start(workerCtx)

	consumer := ordersKafka.NewConsumer(s.OrderService, logger)
	group := kafka.NewConsumerGroup(s.KafkaBrokers, ordersKafka.GroupID, consumer.Router(), kafka.DefaultRetryPolicy(), logger)
	go func() {
		_ = group.Run(workerCtx)
	}()
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
