package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/repository"
)

type state struct {
	testsuite.OutboxState
	products map[sharedDomain.ID]*domain.Product
	orders   map[sharedDomain.ID]*domain.Order
}

func newState() *state {
	return &state{
		products: map[sharedDomain.ID]*domain.Product{},
		orders:   map[sharedDomain.ID]*domain.Order{},
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderProductReservation(nil), o.Lines...)
	return &c
}

func cloneState(s *state) *state {
	c := &state{
		OutboxState: s.OutboxState.Clone(),
		products:    make(map[sharedDomain.ID]*domain.Product, len(s.products)),
		orders:      make(map[sharedDomain.ID]*domain.Order, len(s.orders)),
	}
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	return c
}

func stateOf(tx pgx.Tx) *state { return testsuite.StateOf[*state](tx) }

type fakeProducts struct {
	db *testsuite.MemDB[*state]
}

func (f fakeProducts) Create(_ context.Context, tx pgx.Tx, product *domain.Product) error {
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	cp := *product
	stateOf(tx).products[product.ID] = &cp
	return nil
}

func (f fakeProducts) GetByID(_ context.Context, id sharedDomain.ID) (*domain.Product, error) {
	var out *domain.Product
	f.db.Read(func(s *state) {
		if p, ok := s.products[id]; ok {
			cp := *p
			out = &cp
		}
	})
	if out == nil {
		return nil, repository.ErrProductNotFound
	}
	return out, nil
}

func (f fakeProducts) List(_ context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	var all []domain.Product
	f.db.Read(func(s *state) {
		for _, p := range s.products {
			all = append(all, *p)
		}
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := int64(len(all))
	if offset >= total {
		return []domain.Product{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f fakeProducts) Restock(_ context.Context, tx pgx.Tx, id sharedDomain.ID, quantity int64) (*domain.Product, error) {
	p, ok := stateOf(tx).products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p.AvailableCount += quantity
	cp := *p
	return &cp, nil
}

func (f fakeProducts) LockByIDs(_ context.Context, tx pgx.Tx, ids []sharedDomain.ID) (map[sharedDomain.ID]*domain.Product, error) {
	out := make(map[sharedDomain.ID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := stateOf(tx).products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (f fakeProducts) MoveStock(_ context.Context, tx pgx.Tx, id sharedDomain.ID, delta int64) error {
	p, ok := stateOf(tx).products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.AvailableCount-delta < 0 || p.UnavailableCount+delta < 0 {
		return fmt.Errorf("check constraint violated for product %s", id)
	}
	p.AvailableCount -= delta
	p.UnavailableCount += delta
	return nil
}

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

func (f fakeOrders) LockExpired(_ context.Context, tx pgx.Tx, now time.Time, limit int) ([]sharedDomain.ID, error) {
	var ids []sharedDomain.ID
	for id, o := range stateOf(tx).orders {
		if o.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// lockRecorder remembers the product ids of every lock, in the order taken.
type lockRecorder struct {
	StockRepository
	locks [][]sharedDomain.ID
}

func (r *lockRecorder) LockByIDs(ctx context.Context, tx pgx.Tx, ids []sharedDomain.ID) (map[sharedDomain.ID]*domain.Product, error) {
	r.locks = append(r.locks, append([]sharedDomain.ID(nil), ids...))
	return r.StockRepository.LockByIDs(ctx, tx, ids)
}
