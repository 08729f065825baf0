package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/service"
	"go.uber.org/zap"
)

const requestTimeout = 3 * time.Second

type ProductHandler struct {
	products service.ProductService
	logger   *zap.Logger
}

func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

func RegisterRoutes(app *fiber.App, h *ProductHandler) {
	product := app.Group("/products")
	product.Post("", h.Create)
	product.Get("", h.List)
	product.Get("/:id", h.FindByID)
	product.Post("/:id/restock", h.Restock)
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var req domain.CreateProductInput
	if err := httpserver.BindJSON(c, &req); err != nil {
		return err
	}

	mylogger.Info(ctx, h.logger, "create product request", zap.String("name", req.Name))

	product, err := h.products.Create(ctx, &req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	product, err := h.products.FindByID(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(product)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	limit := int64(c.QueryInt("limit", 20))
	offset := int64(c.QueryInt("offset", 0))

	products, total, err := h.products.List(ctx, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"products":    products,
		"total_count": total,
	})
}

func (h *ProductHandler) Restock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	var req domain.RestockInput
	if err := httpserver.BindJSON(c, &req); err != nil {
		return err
	}

	product, err := h.products.Restock(ctx, id, req.Quantity)
	if err != nil {
		return err
	}

	return c.JSON(product)
}
