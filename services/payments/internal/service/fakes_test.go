package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/gateway"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/repository"
)

type state struct {
	testsuite.OutboxState
	orders   map[sharedDomain.ID]*domain.Order
	billings map[sharedDomain.ID]*domain.Billing
}

func newState() *state {
	return &state{
		orders:   map[sharedDomain.ID]*domain.Order{},
		billings: map[sharedDomain.ID]*domain.Billing{},
	}
}

func cloneState(s *state) *state {
	c := &state{
		OutboxState: s.OutboxState.Clone(),
		orders:      make(map[sharedDomain.ID]*domain.Order, len(s.orders)),
		billings:    make(map[sharedDomain.ID]*domain.Billing, len(s.billings)),
	}
	for id, o := range s.orders {
		cp := *o
		c.orders[id] = &cp
	}
	for id, b := range s.billings {
		cp := *b
		c.billings[id] = &cp
	}
	return c
}

func stateOf(tx pgx.Tx) *state { return testsuite.StateOf[*state](tx) }

type fakeOrders struct {
	db *testsuite.MemDB[*state]
}

func (f fakeOrders) Exists(_ context.Context, id sharedDomain.ID) (bool, error) {
	var ok bool
	f.db.Read(func(s *state) { _, ok = s.orders[id] })
	return ok, nil
}

func (f fakeOrders) Create(_ context.Context, tx pgx.Tx, order *domain.Order) error {
	st := stateOf(tx)
	if _, dup := st.orders[order.ID]; dup {
		return fmt.Errorf("%w: %s", repository.ErrOrderAlreadyExists, order.ID)
	}
	cp := *order
	st.orders[order.ID] = &cp
	return nil
}

func (f fakeOrders) GetByID(_ context.Context, id sharedDomain.ID) (*domain.Order, error) {
	var out *domain.Order
	f.db.Read(func(s *state) {
		if o, ok := s.orders[id]; ok {
			cp := *o
			out = &cp
		}
	})
	if out == nil {
		return nil, repository.ErrOrderNotFound
	}
	return out, nil
}

func (f fakeOrders) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Order, error) {
	o, ok := stateOf(tx).orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f fakeOrders) Update(_ context.Context, tx pgx.Tx, order *domain.Order) error {
	st := stateOf(tx)
	if _, ok := st.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	cp := *order
	st.orders[order.ID] = &cp
	return nil
}

// fakeBillings keys billings by order id, which also models the unique index.
type fakeBillings struct {
	db *testsuite.MemDB[*state]
}

func (f fakeBillings) ExistsForOrder(_ context.Context, orderID sharedDomain.ID) (bool, error) {
	var ok bool
	f.db.Read(func(s *state) { _, ok = s.billings[orderID] })
	return ok, nil
}

func (f fakeBillings) Create(_ context.Context, tx pgx.Tx, billing *domain.Billing) error {
	st := stateOf(tx)
	if _, dup := st.billings[billing.OrderID]; dup {
		return fmt.Errorf("%w: order %s", repository.ErrBillingAlreadyExists, billing.OrderID)
	}
	cp := *billing
	st.billings[billing.OrderID] = &cp
	return nil
}

func (f fakeBillings) GetByOrderID(_ context.Context, orderID sharedDomain.ID) (*domain.Billing, error) {
	var out *domain.Billing
	f.db.Read(func(s *state) {
		if b, ok := s.billings[orderID]; ok {
			cp := *b
			out = &cp
		}
	})
	if out == nil {
		return nil, repository.ErrBillingNotFound
	}
	return out, nil
}

func (f fakeBillings) GetByOrderIDForUpdate(_ context.Context, tx pgx.Tx, orderID sharedDomain.ID) (*domain.Billing, error) {
	b, ok := stateOf(tx).billings[orderID]
	if !ok {
		return nil, repository.ErrBillingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f fakeBillings) GetByGatewayIDForUpdate(_ context.Context, tx pgx.Tx, gatewayBillingID string) (*domain.Billing, error) {
	for _, b := range stateOf(tx).billings {
		if b.PaymentGatewayBillingID == gatewayBillingID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBillingNotFound
}

func (f fakeBillings) Update(_ context.Context, tx pgx.Tx, billing *domain.Billing) error {
	st := stateOf(tx)
	if _, ok := st.billings[billing.OrderID]; !ok {
		return repository.ErrBillingNotFound
	}
	cp := *billing
	st.billings[billing.OrderID] = &cp
	return nil
}

// flakyGateway fails the first failures billing calls and the first
// refundFailures refund calls, then defers to the sandbox.
type flakyGateway struct {
	mu             sync.Mutex
	failures       int
	calls          int
	refundFailures int
	refunds        int
	next           *gateway.Sandbox
}

func (g *flakyGateway) CreateBilling(ctx context.Context, req gateway.BillingRequest) (*gateway.BillingResponse, error) {
	g.mu.Lock()
	g.calls++
	fail := g.calls <= g.failures
	g.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: connection refused", gateway.ErrGatewayUnavailable)
	}
	return g.next.CreateBilling(ctx, req)
}

func (g *flakyGateway) Refund(ctx context.Context, req gateway.RefundRequest) error {
	g.mu.Lock()
	g.refunds++
	fail := g.refunds <= g.refundFailures
	g.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: connection refused", gateway.ErrGatewayUnavailable)
	}
	return g.next.Refund(ctx, req)
}
