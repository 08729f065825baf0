package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/delivery/internal/service"
	"go.uber.org/zap"
)

const requestTimeout = 3 * time.Second

type ShipmentHandler struct {
	shipments service.DeliveryService
	logger    *zap.Logger
}

func NewShipmentHandler(shipments service.DeliveryService, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{shipments: shipments, logger: logger}
}

func RegisterRoutes(app *fiber.App, h *ShipmentHandler) {
	shipments := app.Group("/shipments")
	shipments.Get("/:id", h.FindByID)
	shipments.Post("/:id/delivered", h.Delivered)
	shipments.Post("/:id/failed", h.Failed)
}

func (h *ShipmentHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	shipment, err := h.shipments.GetShipment(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(shipment)
}

func (h *ShipmentHandler) Delivered(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	shipment, err := h.shipments.MarkDelivered(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(shipment)
}

func (h *ShipmentHandler) Failed(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	id, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	var req domain.FailShipmentInput
	if err := httpserver.BindJSON(c, &req); err != nil {
		return err
	}

	mylogger.Warn(ctx, h.logger, "delivery failed", zap.String("shipment_id", id.String()), zap.String("reason", req.Reason))

	shipment, err := h.shipments.MarkFailed(ctx, id, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(shipment)
}
