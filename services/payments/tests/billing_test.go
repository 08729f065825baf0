package tests

import (
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/domain"
)

func (s *IntegrationTestSuite) publish(topic, key string, payload any) {
	env, err := events.NewEnvelope(topic, payload)
	s.Require().NoError(err)

	data, err := env.Marshal()
	s.Require().NoError(err)

	s.Require().NoError(s.TestProducer.Publish(s.Ctx, topic, key, data))
}

func stockAvailable() events.StockAvailable {
	now := time.Now().UTC()
	return events.StockAvailable{
		OrderID:       sharedDomain.NewID().String(),
		CustomerID:    sharedDomain.NewID().String(),
		PaymentMethod: string(sharedDomain.PaymentMethodCreditCard),
		Products: []events.PricedProduct{
			{ID: sharedDomain.NewID().String(), Quantity: 3, PriceInCents: 1000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *IntegrationTestSuite) eventuallyBilling(orderID string) *domain.Billing {
	var billing *domain.Billing
	s.Require().Eventually(func() bool {
		b, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(orderID))
		billing = b
		return err == nil
	}, 30*time.Second, 200*time.Millisecond)

	return billing
}

func (s *IntegrationTestSuite) eventuallyPublished(orderID, topic string) {
	query := `SELECT published_at IS NOT NULL FROM outbox WHERE aggregate_id = $1 AND topic = $2`
	s.Require().Eventually(func() bool {
		var published bool
		err := s.DbPool.QueryRow(s.Ctx, query, orderID, topic).Scan(&published)
		return err == nil && published
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) orderStatus(orderID string) string {
	var status string
	err := s.DbPool.QueryRow(s.Ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	s.Require().NoError(err)
	return status
}

func (s *IntegrationTestSuite) TestStockAvailable_OpensBillingAndPublishes() {
	event := stockAvailable()
	s.publish(events.TopicStockAvailable, event.OrderID, event)

	billing := s.eventuallyBilling(event.OrderID)
	s.Require().Equal(domain.BillingStatusPending, billing.Status)
	s.Require().Equal(int64(3000), billing.AmountInCents)
	s.Require().Equal(sharedDomain.PaymentMethodCreditCard, billing.PaymentMethod)
	s.Require().Contains(billing.PaymentURL, "/checkout/")

	s.Require().Equal(string(domain.OrderStatusAwaitingPayment), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicAwaitingPayment)
}

func (s *IntegrationTestSuite) TestWebhookPaid_PublishesPaymentDone() {
	event := stockAvailable()
	s.Require().NoError(s.PaymentService.HandleStockAvailable(s.Ctx, &event))

	billing, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().NoError(err)

	paid, err := s.PaymentService.ProcessBilling(s.Ctx, billing.PaymentGatewayBillingID, "PAID")
	s.Require().NoError(err)
	s.Require().Equal(domain.BillingStatusPaid, paid.Status)
	s.Require().NotNil(paid.PaymentAt)

	stored, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().NoError(err)
	s.Require().Equal(domain.BillingStatusPaid, stored.Status)
	s.Require().NotNil(stored.PaymentAt)

	s.Require().Equal(string(domain.OrderStatusPaymentSucceeded), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicPaymentDone)

	_, err = s.PaymentService.ProcessBilling(s.Ctx, billing.PaymentGatewayBillingID, "PAID")
	s.Require().True(faults.Is(err, faults.InvalidStatus))
}

func (s *IntegrationTestSuite) TestSecondBillingConflicts() {
	event := stockAvailable()
	s.Require().NoError(s.PaymentService.HandleStockAvailable(s.Ctx, &event))

	_, err := s.PaymentService.CreateBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().True(faults.Is(err, faults.Conflict))

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT count(*) FROM billings WHERE order_id = $1`, event.OrderID).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)
}

func (s *IntegrationTestSuite) TestWebhookUnsupportedStatus() {
	event := stockAvailable()
	s.Require().NoError(s.PaymentService.HandleStockAvailable(s.Ctx, &event))

	billing, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().NoError(err)

	_, err = s.PaymentService.ProcessBilling(s.Ctx, billing.PaymentGatewayBillingID, "CANCELLED")
	s.Require().ErrorIs(err, domain.ErrUnsupportedBillingTransition)

	stored, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().NoError(err)
	s.Require().Equal(domain.BillingStatusPending, stored.Status)
}

func (s *IntegrationTestSuite) TestReservationExpired_ExpiresBilling() {
	event := stockAvailable()
	s.Require().NoError(s.PaymentService.HandleStockAvailable(s.Ctx, &event))

	s.publish(events.TopicReservationExpired, event.OrderID, events.ReservationExpired{
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Products:   []events.ProductQuantity{{ID: event.Products[0].ID, Quantity: 3}},
		ExpiredAt:  time.Now().UTC(),
	})

	s.Require().Eventually(func() bool {
		b, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
		return err == nil && b.Status == domain.BillingStatusExpired
	}, 30*time.Second, 200*time.Millisecond)

	s.Require().Equal(string(domain.OrderStatusPaymentFailed), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicPaymentFailed)
}

func (s *IntegrationTestSuite) TestReservationLost_RefundsPayment() {
	event := stockAvailable()
	s.Require().NoError(s.PaymentService.HandleStockAvailable(s.Ctx, &event))

	billing, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
	s.Require().NoError(err)
	_, err = s.PaymentService.ProcessBilling(s.Ctx, billing.PaymentGatewayBillingID, "PAID")
	s.Require().NoError(err)

	s.publish(events.TopicReservationLost, event.OrderID, events.ReservationLost{
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		MissingProducts: []events.MissingProduct{
			{ID: event.Products[0].ID, Requested: 3, Available: 1, Reason: "INSUFFICIENT_STOCK"},
		},
		LostAt: time.Now().UTC(),
	})

	s.Require().Eventually(func() bool {
		b, err := s.PaymentService.GetBilling(s.Ctx, sharedDomain.ID(event.OrderID))
		return err == nil && b.Status == domain.BillingStatusRefunded
	}, 30*time.Second, 200*time.Millisecond)

	s.Require().Equal(string(domain.OrderStatusPaymentRefunded), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicPaymentRefunded)
}
