package tests

import (
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/service"
)

func (s *IntegrationTestSuite) publishEnvelope(env *events.Envelope, key string) {
	data, err := env.Marshal()
	s.Require().NoError(err)

	s.Require().NoError(s.TestProducer.Publish(s.Ctx, env.EventContractType, key, data))
}

func (s *IntegrationTestSuite) eventuallyNotified(orderID string, want int) []domain.Notification {
	var notifications []domain.Notification
	s.Require().Eventually(func() bool {
		list, err := s.NotificationService.ListByOrder(s.Ctx, sharedDomain.ID(orderID))
		notifications = list
		return err == nil && len(list) == want
	}, 30*time.Second, 200*time.Millisecond)

	return notifications
}

func (s *IntegrationTestSuite) TestRedeliveredEventNotifiesOnce() {
	payload := events.AwaitingPayment{
		OrderID:       sharedDomain.NewID().String(),
		CustomerID:    sharedDomain.NewID().String(),
		PaymentURL:    "https://sandbox.payments.local/checkout/abc",
		AmountInCents: 5000,
		PaymentMethod: "BANK_SLIP",
	}
	env, err := events.NewEnvelope(events.TopicAwaitingPayment, payload)
	s.Require().NoError(err)

	s.publishEnvelope(env, payload.OrderID)
	s.publishEnvelope(env, payload.OrderID)

	notifications := s.eventuallyNotified(payload.OrderID, 1)
	s.Require().Equal(env.ID, notifications[0].ID.String())
	s.Require().Equal(events.TopicAwaitingPayment, notifications[0].Topic)
	s.Require().Contains(notifications[0].Body, payload.PaymentURL)

	// a later event of the same order still gets through
	next, err := events.NewEnvelope(events.TopicPaymentFailed, events.PaymentFailed{
		OrderID:    payload.OrderID,
		CustomerID: payload.CustomerID,
		Reason:     "reservation expired before payment",
		FailedAt:   time.Now().UTC(),
	})
	s.Require().NoError(err)
	s.publishEnvelope(next, payload.OrderID)

	s.eventuallyNotified(payload.OrderID, 2)
}

func (s *IntegrationTestSuite) TestNotifyConflictOnStoredEvent() {
	orderID := sharedDomain.NewID().String()
	env, err := events.NewEnvelope(events.TopicShipmentCreated, events.ShipmentCreated{OrderID: orderID})
	s.Require().NoError(err)

	n := service.NoticeFor(env, orderID, sharedDomain.NewID().String(), func() (string, string) { return "subject", "body" })

	_, err = s.NotificationService.Notify(s.Ctx, n)
	s.Require().NoError(err)

	_, err = s.NotificationService.Notify(s.Ctx, n)
	s.Require().True(faults.Is(err, faults.Conflict))
}
