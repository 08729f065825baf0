package tests

import (
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
)

func (s *IntegrationTestSuite) createOrder(quantity int64) *domain.Order {
	order, err := s.OrderService.CreateOrder(s.Ctx, &domain.CreateOrderInput{
		CustomerID:    sharedDomain.NewID().String(),
		PaymentMethod: string(sharedDomain.PaymentMethodCreditCard),
		Products: []domain.CreateOrderProduct{
			{ProductID: sharedDomain.NewID().String(), Quantity: quantity},
		},
	})
	s.Require().NoError(err)
	return order
}

func (s *IntegrationTestSuite) publish(topic, key string, payload any) {
	env, err := events.NewEnvelope(topic, payload)
	s.Require().NoError(err)

	data, err := env.Marshal()
	s.Require().NoError(err)

	s.Require().NoError(s.TestProducer.Publish(s.Ctx, topic, key, data))
}

func (s *IntegrationTestSuite) eventuallyStatus(id sharedDomain.ID, want domain.OrderStatus) {
	s.Require().Eventually(func() bool {
		order, err := s.OrderService.GetOrder(s.Ctx, id)
		return err == nil && order.Status == want
	}, 30*time.Second, 200*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCreateOrder_PublishesOrderCreated() {
	order := s.createOrder(2)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCreated, stored.Status)
	s.Require().Nil(stored.TotalAmountInCents)
	s.Require().Len(stored.Products, 1)
	s.Require().Nil(stored.Products[0].PricePerUnitInCents)

	query := `SELECT published_at IS NOT NULL FROM outbox WHERE aggregate_id = $1 AND topic = $2`
	s.Require().Eventually(func() bool {
		var published bool
		err := s.DbPool.QueryRow(s.Ctx, query, order.ID.String(), events.TopicOrderCreated).Scan(&published)
		return err == nil && published
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCreateOrder_DuplicateClientID() {
	input := &domain.CreateOrderInput{
		ID:            sharedDomain.NewID().String(),
		CustomerID:    sharedDomain.NewID().String(),
		PaymentMethod: string(sharedDomain.PaymentMethodPix),
		Products:      []domain.CreateOrderProduct{{ProductID: sharedDomain.NewID().String(), Quantity: 1}},
	}

	_, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().NoError(err)

	_, err = s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().True(faults.Is(err, faults.Conflict))
}

func (s *IntegrationTestSuite) TestSagaEventsDriveOrder() {
	order := s.createOrder(3)
	line := order.Products[0]

	s.publish(events.TopicStockAvailable, order.ID.String(), events.StockAvailable{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		PaymentMethod: string(order.PaymentMethod),
		Products:      []events.PricedProduct{{ID: line.ProductID.String(), Quantity: line.Quantity, PriceInCents: 1200}},
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	})
	s.eventuallyStatus(order.ID, domain.OrderStatusInventoryConfirmed)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(3600), *stored.TotalAmountInCents)
	s.Require().Equal(int64(1200), *stored.Products[0].PricePerUnitInCents)

	// A payment confirmation that arrives early is dropped as invalid-status.
	s.publish(events.TopicPaymentDone, order.ID.String(), events.PaymentDone{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		AmountInCents: 3600,
		PaymentMethod: string(order.PaymentMethod),
		PaymentAt:     time.Now().UTC(),
	})

	s.publish(events.TopicAwaitingPayment, order.ID.String(), events.AwaitingPayment{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		PaymentURL:    "https://pay.example/checkout/" + order.ID.String(),
		AmountInCents: 3600,
		PaymentMethod: string(order.PaymentMethod),
	})
	s.eventuallyStatus(order.ID, domain.OrderStatusAwaitingPayment)

	stored, err = s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.PaymentURL)
}

func (s *IntegrationTestSuite) TestStockUnavailableEvent() {
	order := s.createOrder(1)

	s.publish(events.TopicStockUnavailable, order.ID.String(), events.StockUnavailable{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		MissingProducts: []events.MissingProduct{
			{ID: order.Products[0].ProductID.String(), Requested: 1, Available: 0, Reason: "INSUFFICIENT_STOCK"},
		},
	})

	s.eventuallyStatus(order.ID, domain.OrderStatusInventoryProductsMissing)
}
