package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/repository"
)

type state struct {
	testsuite.OutboxState
	orders map[sharedDomain.ID]*domain.Order
}

func newState() *state {
	return &state{orders: map[sharedDomain.ID]*domain.Order{}}
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Products = append([]domain.OrderProduct(nil), o.Products...)
	return &c
}

func cloneState(s *state) *state {
	c := &state{
		OutboxState: s.OutboxState.Clone(),
		orders:      make(map[sharedDomain.ID]*domain.Order, len(s.orders)),
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	return c
}

func stateOf(tx pgx.Tx) *state { return testsuite.StateOf[*state](tx) }

type fakeOrders struct {
	db *testsuite.MemDB[*state]
}

func (f fakeOrders) Create(_ context.Context, tx pgx.Tx, order *domain.Order) error {
	st := stateOf(tx)
	if _, dup := st.orders[order.ID]; dup {
		return fmt.Errorf("%w: %s", repository.ErrOrderAlreadyExists, order.ID)
	}
	st.orders[order.ID] = copyOrder(order)
	return nil
}

func (f fakeOrders) GetByID(_ context.Context, id sharedDomain.ID) (*domain.Order, error) {
	var out *domain.Order
	f.db.Read(func(s *state) {
		if o, ok := s.orders[id]; ok {
			out = copyOrder(o)
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
	return copyOrder(o), nil
}

func (f fakeOrders) Update(_ context.Context, tx pgx.Tx, order *domain.Order) error {
	st := stateOf(tx)
	if _, ok := st.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	st.orders[order.ID] = copyOrder(order)
	return nil
}
