package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrderService struct {
	service.OrderService
	created *domain.CreateOrderInput
	orders  map[sharedDomain.ID]*domain.Order
}

func (f *fakeOrderService) CreateOrder(_ context.Context, input *domain.CreateOrderInput) (*domain.Order, error) {
	f.created = input
	if input.ID != "" {
		if _, ok := f.orders[sharedDomain.ID(input.ID)]; ok {
			return nil, repository.ErrOrderAlreadyExists
		}
	}
	return &domain.Order{ID: sharedDomain.NewID(), Status: domain.OrderStatusCreated}, nil
}

func (f *fakeOrderService) GetOrder(_ context.Context, id sharedDomain.ID) (*domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrOrderNotFound, id)
	}
	return o, nil
}

func newApp(svc *fakeOrderService) *fiber.App {
	app := httpserver.New("orders-test", config.HTTP{}, zap.NewNop())
	RegisterRoutes(app, NewOrderHandler(svc, zap.NewNop()))
	return app
}

func TestCreateOrder(t *testing.T) {
	existing := sharedDomain.NewID()
	svc := &fakeOrderService{orders: map[sharedDomain.ID]*domain.Order{existing: {ID: existing}}}
	app := newApp(svc)

	valid := func(id string) map[string]any {
		return map[string]any{
			"id":            id,
			"customerID":    sharedDomain.NewID().String(),
			"paymentMethod": "PIX",
			"products":      []map[string]any{{"productID": sharedDomain.NewID().String(), "quantity": 2}},
		}
	}

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"created", valid(""), fiber.StatusCreated},
		{"client id collides", valid(existing.String()), fiber.StatusConflict},
		{"missing products", map[string]any{"customerID": sharedDomain.NewID().String(), "paymentMethod": "PIX"}, fiber.StatusBadRequest},
		{"bad product id", map[string]any{
			"customerID":    sharedDomain.NewID().String(),
			"paymentMethod": "PIX",
			"products":      []map[string]any{{"productID": "nope", "quantity": 1}},
		}, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.body)
			require.NoError(t, err)

			req := httptest.NewRequest(fiber.MethodPost, "/orders", bytes.NewReader(raw))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestFindByID(t *testing.T) {
	id := sharedDomain.NewID()
	svc := &fakeOrderService{orders: map[sharedDomain.ID]*domain.Order{id: {ID: id, Status: domain.OrderStatusAwaitingPayment}}}
	app := newApp(svc)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/orders/"+id.String(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, domain.OrderStatusAwaitingPayment, got.Status)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/orders/"+sharedDomain.NewID().String(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/orders/not-a-uuid", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
