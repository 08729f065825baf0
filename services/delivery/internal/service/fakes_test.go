package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/repository"
)

type state struct {
	testsuite.OutboxState
	orders    map[sharedDomain.ID]*domain.Order
	shipments map[sharedDomain.ID]*domain.Shipment
}

func newState() *state {
	return &state{
		orders:    map[sharedDomain.ID]*domain.Order{},
		shipments: map[sharedDomain.ID]*domain.Shipment{},
	}
}

func cloneState(s *state) *state {
	c := &state{
		OutboxState: s.OutboxState.Clone(),
		orders:      make(map[sharedDomain.ID]*domain.Order, len(s.orders)),
		shipments:   make(map[sharedDomain.ID]*domain.Shipment, len(s.shipments)),
	}
	for id, o := range s.orders {
		cp := *o
		c.orders[id] = &cp
	}
	for id, sh := range s.shipments {
		cp := *sh
		c.shipments[id] = &cp
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

type fakeShipments struct {
	db *testsuite.MemDB[*state]
}

func (f fakeShipments) Create(_ context.Context, tx pgx.Tx, shipment *domain.Shipment) error {
	st := stateOf(tx)
	for _, existing := range st.shipments {
		if existing.OrderID == shipment.OrderID {
			return fmt.Errorf("%w: order %s", repository.ErrShipmentAlreadyExists, shipment.OrderID)
		}
	}
	cp := *shipment
	st.shipments[shipment.ID] = &cp
	return nil
}

func (f fakeShipments) GetByID(_ context.Context, id sharedDomain.ID) (*domain.Shipment, error) {
	var out *domain.Shipment
	f.db.Read(func(s *state) {
		if sh, ok := s.shipments[id]; ok {
			cp := *sh
			out = &cp
		}
	})
	if out == nil {
		return nil, repository.ErrShipmentNotFound
	}
	return out, nil
}

func (f fakeShipments) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id sharedDomain.ID) (*domain.Shipment, error) {
	sh, ok := stateOf(tx).shipments[id]
	if !ok {
		return nil, repository.ErrShipmentNotFound
	}
	cp := *sh
	return &cp, nil
}

func (f fakeShipments) GetByOrderID(_ context.Context, orderID sharedDomain.ID) (*domain.Shipment, error) {
	var out *domain.Shipment
	f.db.Read(func(s *state) {
		for _, sh := range s.shipments {
			if sh.OrderID == orderID {
				cp := *sh
				out = &cp
			}
		}
	})
	if out == nil {
		return nil, repository.ErrShipmentNotFound
	}
	return out, nil
}

func (f fakeShipments) Update(_ context.Context, tx pgx.Tx, shipment *domain.Shipment) error {
	st := stateOf(tx)
	if _, ok := st.shipments[shipment.ID]; !ok {
		return repository.ErrShipmentNotFound
	}
	cp := *shipment
	st.shipments[shipment.ID] = &cp
	return nil
}
