package tests

import (
	"sync"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
)

func (s *IntegrationTestSuite) createProduct(name string, price, available int64) *domain.Product {
	product, err := s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:           name,
		PriceInCents:   price,
		AvailableCount: available,
	})
	s.Require().NoError(err)
	return product
}

func newOrderCreated(products ...events.ProductQuantity) *events.OrderCreated {
	now := time.Now().UTC()
	return &events.OrderCreated{
		OrderID:       sharedDomain.NewID().String(),
		CustomerID:    sharedDomain.NewID().String(),
		PaymentMethod: string(sharedDomain.PaymentMethodPix),
		Status:        string(domain.OrderStatusCreated),
		Products:      products,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *IntegrationTestSuite) counts(id sharedDomain.ID) (int64, int64) {
	var available, held int64
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT available_count, unavailable_count FROM products WHERE id = $1`, id.String(),
	).Scan(&available, &held)
	s.Require().NoError(err)
	return available, held
}

func (s *IntegrationTestSuite) eventuallyPublished(orderID sharedDomain.ID, topic string) {
	query := `
		SELECT published_at IS NOT NULL
		FROM outbox
		WHERE aggregate_id = $1 AND topic = $2
	`

	s.Require().Eventually(func() bool {
		var published bool
		err := s.DbPool.QueryRow(s.Ctx, query, orderID.String(), topic).Scan(&published)
		return err == nil && published
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestReserve_Success() {
	p1 := s.createProduct("Vinyl", 2500, 10)

	order, err := s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 2}))
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusInventoryConfirmed, order.Status)

	available, held := s.counts(p1.ID)
	s.Require().Equal(int64(8), available)
	s.Require().Equal(int64(2), held)

	stored, err := s.InventoryService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(5000), *stored.TotalAmountInCents)
	s.Require().Len(stored.Lines, 1)
	s.Require().Equal(domain.ReservationStatusConfirmed, stored.Lines[0].Status)
	s.Require().NotNil(stored.Lines[0].ExpiresAt)

	s.eventuallyPublished(order.ID, events.TopicStockAvailable)
}

func (s *IntegrationTestSuite) TestReserve_AllOrNothing() {
	p1 := s.createProduct("In stock", 100, 5)
	p2 := s.createProduct("Sold out", 100, 0)

	order, err := s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(
		events.ProductQuantity{ID: p1.ID.String(), Quantity: 3},
		events.ProductQuantity{ID: p2.ID.String(), Quantity: 1},
	))
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusInventoryProductsMissing, order.Status)

	available, held := s.counts(p1.ID)
	s.Require().Equal(int64(5), available)
	s.Require().Zero(held)

	stored, err := s.InventoryService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Nil(stored.TotalAmountInCents)
	s.Require().Len(stored.Lines, 2)

	s.eventuallyPublished(order.ID, events.TopicStockUnavailable)
}

func (s *IntegrationTestSuite) TestReserve_DuplicateDelivery() {
	p1 := s.createProduct("Vinyl", 100, 10)
	event := newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 1})

	_, err := s.InventoryService.HandleOrderCreated(s.Ctx, event)
	s.Require().NoError(err)

	_, err = s.InventoryService.HandleOrderCreated(s.Ctx, event)
	s.Require().True(faults.Is(err, faults.Conflict))

	available, _ := s.counts(p1.ID)
	s.Require().Equal(int64(9), available)
}

func (s *IntegrationTestSuite) TestReserve_ConcurrentOrdersNeverOversell() {
	p1 := s.createProduct("Limited", 100, 10)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 3}))
		}()
	}
	wg.Wait()

	available, held := s.counts(p1.ID)
	s.Require().Equal(int64(1), available)
	s.Require().Equal(int64(9), held)

	var confirmed int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, string(domain.OrderStatusInventoryConfirmed)).Scan(&confirmed)
	s.Require().NoError(err)
	s.Require().Equal(3, confirmed)
}

func (s *IntegrationTestSuite) TestReleaseExpired() {
	p1 := s.createProduct("Vinyl", 100, 4)

	order, err := s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 4}))
	s.Require().NoError(err)

	n, err := s.InventoryService.ReleaseExpired(s.Ctx, time.Now().UTC().Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Require().Equal(1, n)

	available, held := s.counts(p1.ID)
	s.Require().Equal(int64(4), available)
	s.Require().Zero(held)

	stored, err := s.InventoryService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusReservationExpired, stored.Status)

	s.eventuallyPublished(order.ID, events.TopicReservationExpired)
}

func (s *IntegrationTestSuite) TestPaymentDone_PreventsExpiry() {
	p1 := s.createProduct("Vinyl", 100, 4)

	order, err := s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 1}))
	s.Require().NoError(err)

	s.Require().NoError(s.InventoryService.HandlePaymentDone(s.Ctx, &events.PaymentDone{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		PaymentAt:  time.Now().UTC(),
	}))

	n, err := s.InventoryService.ReleaseExpired(s.Ctx, time.Now().UTC().Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Require().Zero(n)

	_, held := s.counts(p1.ID)
	s.Require().Equal(int64(1), held)
}

func (s *IntegrationTestSuite) TestPaymentDoneAfterExpiry_LostWhenResold() {
	p1 := s.createProduct("Vinyl", 100, 4)

	order, err := s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 3}))
	s.Require().NoError(err)

	_, err = s.InventoryService.ReleaseExpired(s.Ctx, time.Now().UTC().Add(time.Hour), 10)
	s.Require().NoError(err)

	_, err = s.InventoryService.HandleOrderCreated(s.Ctx, newOrderCreated(events.ProductQuantity{ID: p1.ID.String(), Quantity: 2}))
	s.Require().NoError(err)

	s.Require().NoError(s.InventoryService.HandlePaymentDone(s.Ctx, &events.PaymentDone{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		PaymentAt:  time.Now().UTC(),
	}))

	available, held := s.counts(p1.ID)
	s.Require().Equal(int64(2), available)
	s.Require().Equal(int64(2), held)

	stored, err := s.InventoryService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusReservationLost, stored.Status)

	s.eventuallyPublished(order.ID, events.TopicReservationLost)
}
