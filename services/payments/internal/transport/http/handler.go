package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/httpserver"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/payments/internal/service"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

type PaymentHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

func RegisterRoutes(app *fiber.App, h *PaymentHandler) {
	app.Post("/webhooks/payment-gateway", h.Webhook)

	billing := app.Group("/orders/:id/billing")
	billing.Post("", h.CreateBilling)
	billing.Get("", h.GetBilling)
}

func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var req domain.WebhookInput
	if err := httpserver.BindJSON(c, &req); err != nil {
		return err
	}

	mylogger.Info(ctx, h.logger, "payment gateway webhook",
		zap.String("payment_gateway_billing_id", req.PaymentGatewayBillingID),
		zap.String("status", req.Status),
	)

	billing, err := h.payments.ProcessBilling(ctx, req.PaymentGatewayBillingID, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(billing)
}

// CreateBilling retries billing creation by hand after the saga gave up on
// the gateway.
func (h *PaymentHandler) CreateBilling(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	orderID, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	billing, err := h.payments.CreateBilling(ctx, orderID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(billing)
}

func (h *PaymentHandler) GetBilling(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	orderID, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	billing, err := h.payments.GetBilling(ctx, orderID)
	if err != nil {
		return err
	}

	return c.JSON(billing)
}
