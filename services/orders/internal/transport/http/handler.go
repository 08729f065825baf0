package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/orders/internal/service"
	"go.uber.org/zap"
)

const requestTimeout = 3 * time.Second

type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func RegisterRoutes(app *fiber.App, h *OrderHandler) {
	order := app.Group("/orders")
	order.Post("", h.Create)
	order.Get("/:id", h.FindByID)
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var req domain.CreateOrderInput
	if err := httpserver.BindJSON(c, &req); err != nil {
		return err
	}

	mylogger.Info(ctx, h.logger, "create order request",
		zap.String("customer_id", req.CustomerID),
		zap.Int("products", len(req.Products)),
	)

	order, err := h.orders.CreateOrder(ctx, &req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(order)
}
