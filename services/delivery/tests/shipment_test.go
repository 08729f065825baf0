package tests

import (
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/domain"
)

func (s *IntegrationTestSuite) publish(topic, key string, payload any) {
	env, err := events.NewEnvelope(topic, payload)
	s.Require().NoError(err)

	data, err := env.Marshal()
	s.Require().NoError(err)

	s.Require().NoError(s.TestProducer.Publish(s.Ctx, topic, key, data))
}

func paymentDone() *events.PaymentDone {
	return &events.PaymentDone{
		OrderID:       sharedDomain.NewID().String(),
		CustomerID:    sharedDomain.NewID().String(),
		AmountInCents: 9900,
		PaymentMethod: string(sharedDomain.PaymentMethodPix),
		PaymentAt:     time.Now().UTC(),
	}
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

func (s *IntegrationTestSuite) TestPaymentDoneEvent_CreatesShipment() {
	event := paymentDone()
	s.publish(events.TopicPaymentDone, event.OrderID, event)

	var shipmentID sharedDomain.ID
	s.Require().Eventually(func() bool {
		err := s.DbPool.QueryRow(s.Ctx, `SELECT id FROM shipments WHERE order_id = $1`, event.OrderID).Scan(&shipmentID)
		return err == nil
	}, 30*time.Second, 200*time.Millisecond)

	shipment, err := s.DeliveryService.GetShipment(s.Ctx, shipmentID)
	s.Require().NoError(err)
	s.Require().Equal(domain.ShipmentStatusCreated, shipment.Status)
	s.Require().Nil(shipment.DeliveredAt)

	s.Require().Equal(string(domain.OrderStatusShipmentCreated), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicShipmentCreated)
}

func (s *IntegrationTestSuite) TestDuplicatePaymentDone() {
	event := paymentDone()
	_, err := s.DeliveryService.HandlePaymentDone(s.Ctx, event)
	s.Require().NoError(err)

	_, err = s.DeliveryService.HandlePaymentDone(s.Ctx, event)
	s.Require().True(faults.Is(err, faults.Conflict))

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT count(*) FROM shipments WHERE order_id = $1`, event.OrderID).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)
}

func (s *IntegrationTestSuite) TestDelivered_PublishesOutcome() {
	event := paymentDone()
	created, err := s.DeliveryService.HandlePaymentDone(s.Ctx, event)
	s.Require().NoError(err)

	delivered, err := s.DeliveryService.MarkDelivered(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Require().NotNil(delivered.DeliveredAt)

	stored, err := s.DeliveryService.GetShipment(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.ShipmentStatusDelivered, stored.Status)
	s.Require().NotNil(stored.DeliveredAt)

	s.Require().Equal(string(domain.OrderStatusDeliveryCompleted), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicDeliveredShipment)

	_, err = s.DeliveryService.MarkDelivered(s.Ctx, created.ID)
	s.Require().True(faults.Is(err, faults.InvalidStatus))
}

func (s *IntegrationTestSuite) TestFailed_StoresReason() {
	event := paymentDone()
	created, err := s.DeliveryService.HandlePaymentDone(s.Ctx, event)
	s.Require().NoError(err)

	_, err = s.DeliveryService.MarkFailed(s.Ctx, created.ID, "damaged parcel")
	s.Require().NoError(err)

	stored, err := s.DeliveryService.GetShipment(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.ShipmentStatusFailed, stored.Status)
	s.Require().Equal("damaged parcel", *stored.FailureReason)
	s.Require().NotNil(stored.FailedAt)

	s.Require().Equal(string(domain.OrderStatusDeliveryFailed), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicDeliveryFailed)
}

func (s *IntegrationTestSuite) TestPaymentRefundedEvent_FailsShipment() {
	event := paymentDone()
	created, err := s.DeliveryService.HandlePaymentDone(s.Ctx, event)
	s.Require().NoError(err)

	s.publish(events.TopicPaymentRefunded, event.OrderID, events.PaymentRefunded{
		OrderID:       event.OrderID,
		CustomerID:    event.CustomerID,
		AmountInCents: event.AmountInCents,
		Reason:        "stock sold out",
		RefundedAt:    time.Now().UTC(),
	})

	s.Require().Eventually(func() bool {
		shipment, err := s.DeliveryService.GetShipment(s.Ctx, created.ID)
		return err == nil && shipment.Status == domain.ShipmentStatusFailed
	}, 30*time.Second, 200*time.Millisecond)

	s.Require().Equal(string(domain.OrderStatusDeliveryFailed), s.orderStatus(event.OrderID))
	s.eventuallyPublished(event.OrderID, events.TopicDeliveryFailed)
}
